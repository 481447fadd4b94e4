package manager

import (
	"fmt"
	"strings"

	"larder/internal/apierr"
	"larder/internal/dbctx"
	"larder/internal/metrics"

	"gorm.io/gorm/clause"
)

// checkUnique fails with a conflict when another row already holds the
// candidate's values for any unique group. Empty values are left out of
// the comparison and a group with no values left is skipped. self is the
// candidate's own primary key, nil when it has none yet.
func (m *Manager[T, PT]) checkUnique(dbc dbctx.Context, candidate Fields, self any) error {
	table, err := m.constraints.Table(dbc.Context(), m.table)
	if err != nil {
		return err
	}

	for _, group := range table.Unique {
		var conds []clause.Expression
		for _, column := range group {
			v, ok := candidate[column]
			if !ok || empty(v) {
				continue
			}
			conds = append(conds, clause.Eq{Column: clause.Column{Table: m.table, Name: column}, Value: normalize(v)})
		}
		if len(conds) == 0 {
			continue
		}

		q := m.Base(dbc).Where(clause.And(conds...))
		if self != nil {
			if pk := m.primaryColumns(); len(pk) == 1 {
				q = q.Where(clause.Neq{Column: pk[0], Value: self})
			}
		}

		var count int64
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			metrics.IntegrityRejections.WithLabelValues(m.entity, metrics.ReasonConflict).Inc()
			return apierr.Conflict("%s with this %s already exists", m.entity, strings.Join(group, ", "))
		}
	}
	return nil
}

// checkBatchUnique fails with a conflict when two candidates of one write
// would end up with the same values for a unique group touched by changed.
// Groups holding an empty value are skipped.
func (m *Manager[T, PT]) checkBatchUnique(dbc dbctx.Context, candidates []Fields, changed Fields) error {
	if len(candidates) < 2 {
		return nil
	}
	table, err := m.constraints.Table(dbc.Context(), m.table)
	if err != nil {
		return err
	}

	for _, group := range table.Unique {
		touched := false
		for _, column := range group {
			if _, ok := changed[column]; ok {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}

		seen := make(map[string]struct{}, len(candidates))
		for _, candidate := range candidates {
			key, ok := groupKey(group, candidate)
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				metrics.IntegrityRejections.WithLabelValues(m.entity, metrics.ReasonConflict).Inc()
				return apierr.Conflict("%s with this %s already exists", m.entity, strings.Join(group, ", "))
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

func groupKey(group []string, candidate Fields) (string, bool) {
	var b strings.Builder
	for _, column := range group {
		v := candidate[column]
		if empty(v) {
			return "", false
		}
		fmt.Fprintf(&b, "%s=%v\x00", column, normalize(v))
	}
	return b.String(), true
}

// checkForeignKeys requires every supplied, non-empty foreign key value
// to reference an existing row.
func (m *Manager[T, PT]) checkForeignKeys(dbc dbctx.Context, supplied Fields) error {
	table, err := m.constraints.Table(dbc.Context(), m.table)
	if err != nil {
		return err
	}

	for _, fk := range table.ForeignKeys {
		v, ok := supplied[fk.Column]
		if !ok || empty(v) {
			continue
		}

		var count int64
		err := dbc.DB(m.db).
			Table(fk.ReferencedTable).
			Where(clause.Eq{Column: clause.Column{Table: fk.ReferencedTable, Name: fk.ReferencedColumn}, Value: normalize(v)}).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			metrics.IntegrityRejections.WithLabelValues(m.entity, metrics.ReasonMissingReference).Inc()
			return apierr.NotFound("%s not found", m.constraints.EntityName(fk.ReferencedTable))
		}
	}
	return nil
}
