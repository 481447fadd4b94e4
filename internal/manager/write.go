package manager

import (
	"fmt"
	"reflect"

	"larder/internal/apierr"
	"larder/internal/dbctx"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Create checks uniqueness and foreign keys of row, then inserts it.
// Generated identifiers and timestamps are written back into row.
// Associations held by row are not saved.
func (m *Manager[T, PT]) Create(dbc dbctx.Context, row *T) error {
	ctx := dbc.Context()
	values := m.values(ctx, row)

	if err := m.checkForeignKeys(dbc, values); err != nil {
		return err
	}
	if err := m.checkUnique(dbc, values, m.primaryKey(ctx, row)); err != nil {
		return err
	}

	if err := dbc.DB(m.db).Omit(clause.Associations).Create(row).Error; err != nil {
		return fmt.Errorf("create %s: %w", m.entity, err)
	}
	return nil
}

// CreateFields builds a row from fields and creates it.
func (m *Manager[T, PT]) CreateFields(dbc dbctx.Context, fields Fields) (*T, error) {
	row, err := m.New(fields)
	if err != nil {
		return nil, err
	}
	if err := m.Create(dbc, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Update applies data to every row matching match. New foreign keys are
// validated once, uniqueness is checked per row against the updated copy
// while ignoring the row itself, and across the updated rows. Nothing is
// written unless every row passes.
func (m *Manager[T, PT]) Update(dbc dbctx.Context, data Fields, match Fields) ([]T, error) {
	ctx := dbc.Context()

	for _, f := range m.schema.PrimaryFields {
		if _, ok := data[f.DBName]; ok {
			return nil, apierr.BadRequest("%s: %s cannot be changed", m.entity, f.DBName)
		}
	}
	for name := range data {
		if _, err := m.field(name); err != nil {
			return nil, err
		}
	}

	if err := m.checkForeignKeys(dbc, data); err != nil {
		return nil, err
	}

	rows, err := m.Filter(dbc, Criteria{Where: match})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return rows, nil
	}

	candidates := make([]Fields, len(rows))
	for i := range rows {
		self := m.primaryKey(ctx, &rows[i])
		if err := m.assign(ctx, &rows[i], data); err != nil {
			return nil, err
		}
		candidates[i] = m.values(ctx, &rows[i])
		if err := m.checkUnique(dbc, candidates[i], self); err != nil {
			return nil, err
		}
	}
	if err := m.checkBatchUnique(dbc, candidates, data); err != nil {
		return nil, err
	}

	for i := range rows {
		// Column values come from the assigned row, not the raw input.
		rv := reflect.ValueOf(&rows[i]).Elem()
		updates := make(map[string]any, len(data))
		for name := range data {
			f, _ := m.field(name)
			v, _ := f.ValueOf(ctx, rv)
			updates[f.DBName] = normalize(v)
		}
		err := dbc.DB(m.db).Model(&rows[i]).Omit(clause.Associations).Updates(updates).Error
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", m.entity, err)
		}
	}
	return rows, nil
}

// Delete removes the single row matching match and returns it.
func (m *Manager[T, PT]) Delete(dbc dbctx.Context, match Fields) (*T, error) {
	row, err := m.GetOr404(dbc, "", match)
	if err != nil {
		return nil, err
	}
	// Link rows and recipe back references are handled by the foreign key actions.
	if err := dbc.DB(m.db).Delete(row).Error; err != nil {
		return nil, fmt.Errorf("delete %s: %w", m.entity, err)
	}
	return row, nil
}

// DeleteAll removes every row matching c and reports how many were removed.
func (m *Manager[T, PT]) DeleteAll(dbc dbctx.Context, c Criteria) (int64, error) {
	q, err := m.Query(dbc, c.unordered())
	if err != nil {
		return 0, err
	}
	res := q.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(new(T))
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", m.entity, res.Error)
	}
	return res.RowsAffected, nil
}
