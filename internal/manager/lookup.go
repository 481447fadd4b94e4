package manager

import (
	"fmt"

	"larder/internal/apierr"
	"larder/internal/dbctx"
	"larder/internal/filter"
)

// GetOrNone returns the single row matching match, or nil when there is
// none. More than one match is an error.
func (m *Manager[T, PT]) GetOrNone(dbc dbctx.Context, match Fields, opts ...Option) (*T, error) {
	q, err := m.Query(dbc, Criteria{Where: match})
	if err != nil {
		return nil, err
	}

	var rows []T
	if err := with(q, opts).Limit(2).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get %s: %w", m.entity, err)
	}

	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, apierr.Ambiguous("more than one %s matches", m.entity)
	}
}

// GetOr404 is GetOrNone that fails with NotFound when nothing matches.
// An empty message defaults to "<Entity> not found".
func (m *Manager[T, PT]) GetOr404(dbc dbctx.Context, message string, match Fields, opts ...Option) (*T, error) {
	row, err := m.GetOrNone(dbc, match, opts...)
	if err != nil {
		return nil, err
	}
	if row == nil {
		if message == "" {
			message = m.entity + " not found"
		}
		return nil, apierr.NotFound("%s", message)
	}
	return row, nil
}

// GetOrCreate returns the row matching fields, creating it when absent.
// The boolean reports whether a row was created.
func (m *Manager[T, PT]) GetOrCreate(dbc dbctx.Context, fields Fields) (*T, bool, error) {
	row, err := m.GetOrNone(dbc, fields)
	if err != nil || row != nil {
		return row, false, err
	}
	row, err = m.CreateFields(dbc, fields)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// UpdateOrCreate applies data to the rows matching match, or creates one
// row from match and data when nothing matches.
func (m *Manager[T, PT]) UpdateOrCreate(dbc dbctx.Context, data Fields, match Fields) ([]T, bool, error) {
	found, err := m.Exists(dbc, match)
	if err != nil {
		return nil, false, err
	}
	if found {
		rows, err := m.Update(dbc, data, match)
		return rows, false, err
	}

	merged := make(Fields, len(match)+len(data))
	for k, v := range match {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	row, err := m.CreateFields(dbc, merged)
	if err != nil {
		return nil, false, err
	}
	return []T{*row}, true, nil
}

// Exists reports whether any row matches match.
func (m *Manager[T, PT]) Exists(dbc dbctx.Context, match Fields) (bool, error) {
	q, err := m.Query(dbc, Criteria{Where: match})
	if err != nil {
		return false, err
	}
	var count int64
	if err := q.Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("exists %s: %w", m.entity, err)
	}
	return count > 0, nil
}

// ExistsAll reports whether every value resolves to a row through field.
// Duplicate values are counted once.
func (m *Manager[T, PT]) ExistsAll(dbc dbctx.Context, field string, values []any) (bool, error) {
	seen := make(map[any]struct{}, len(values))
	unique := make([]any, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	if len(unique) == 0 {
		return true, nil
	}

	q, err := m.Query(dbc, Criteria{Exprs: []filter.Expr{filter.In{Field: field, Values: unique}}})
	if err != nil {
		return false, err
	}
	var count int64
	if err := q.Distinct(m.table + "." + field).Count(&count).Error; err != nil {
		return false, fmt.Errorf("exists %s: %w", m.entity, err)
	}
	return count == int64(len(unique)), nil
}
