// Package manager implements generic data access over catalog entities:
// filtering, sorting, search, pagination and writes guarded by the
// uniqueness and foreign-key rules recorded in the schema registry.
package manager

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"

	"larder/internal/apierr"
	"larder/internal/dbctx"
	"larder/internal/schema"
	"larder/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormschema "gorm.io/gorm/schema"
)

// Fields maps column names to values.
type Fields map[string]any

// Manager serves one entity type T. PT is *T and carries the table and
// entity names.
type Manager[T any, PT interface {
	*T
	models.Entity
}] struct {
	db          *gorm.DB
	constraints schema.Source
	schema      *gormschema.Schema
	table       string
	entity      string
}

// New parses T with db's naming strategy and binds it to constraints.
func New[T any, PT interface {
	*T
	models.Entity
}](db *gorm.DB, constraints schema.Source) (*Manager[T, PT], error) {
	if db == nil {
		return nil, fmt.Errorf("manager: database handle is nil")
	}
	if constraints == nil {
		return nil, fmt.Errorf("manager: constraint source is nil")
	}

	var probe PT = new(T)
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(probe); err != nil {
		return nil, fmt.Errorf("manager: parse %s: %w", probe.EntityName(), err)
	}

	return &Manager[T, PT]{
		db:          db,
		constraints: constraints,
		schema:      stmt.Schema,
		table:       probe.TableName(),
		entity:      probe.EntityName(),
	}, nil
}

// Must is New for wiring code.
func Must[T any, PT interface {
	*T
	models.Entity
}](db *gorm.DB, constraints schema.Source) *Manager[T, PT] {
	m, err := New[T, PT](db, constraints)
	if err != nil {
		panic(err)
	}
	return m
}

// Entity returns the entity name used in error messages.
func (m *Manager[T, PT]) Entity() string { return m.entity }

// Table returns the table backing T.
func (m *Manager[T, PT]) Table() string { return m.table }

// Base returns a query over T bound to dbc.
func (m *Manager[T, PT]) Base(dbc dbctx.Context) *gorm.DB {
	return dbc.DB(m.db).Model(new(T))
}

func (m *Manager[T, PT]) field(name string) (*gormschema.Field, error) {
	f, ok := m.schema.FieldsByDBName[name]
	if !ok {
		return nil, apierr.BadRequest("%s has no field %q", m.entity, name)
	}
	return f, nil
}

func (m *Manager[T, PT]) column(name string) (clause.Column, error) {
	f, err := m.field(name)
	if err != nil {
		return clause.Column{}, err
	}
	return clause.Column{Table: m.table, Name: f.DBName}, nil
}

func (m *Manager[T, PT]) primaryColumns() []clause.Column {
	cols := make([]clause.Column, 0, len(m.schema.PrimaryFields))
	for _, f := range m.schema.PrimaryFields {
		cols = append(cols, clause.Column{Table: m.table, Name: f.DBName})
	}
	return cols
}

// primaryKey returns the single primary key value of row, or nil for
// composite keys and rows not yet persisted.
func (m *Manager[T, PT]) primaryKey(ctx context.Context, row *T) any {
	f := m.schema.PrioritizedPrimaryField
	if f == nil {
		return nil
	}
	v, zero := f.ValueOf(ctx, reflect.ValueOf(row).Elem())
	if zero {
		return nil
	}
	return normalize(v)
}

// values returns the non-zero column values of row.
func (m *Manager[T, PT]) values(ctx context.Context, row *T) Fields {
	rv := reflect.ValueOf(row).Elem()
	out := Fields{}
	for _, f := range m.schema.Fields {
		if f.DBName == "" {
			continue
		}
		v, zero := f.ValueOf(ctx, rv)
		if zero {
			continue
		}
		out[f.DBName] = normalize(v)
	}
	return out
}

// assign copies fields onto row through the gorm setters so that values
// are converted to the column's Go type.
func (m *Manager[T, PT]) assign(ctx context.Context, row *T, fields Fields) error {
	rv := reflect.ValueOf(row).Elem()
	for _, name := range sortedKeys(fields) {
		f, err := m.field(name)
		if err != nil {
			return err
		}
		if !integral(f, fields[name]) {
			return apierr.BadRequest("%s: invalid value for %s: %v is not a whole number", m.entity, name, fields[name])
		}
		if err := f.Set(ctx, rv, fields[name]); err != nil {
			return apierr.BadRequest("%s: invalid value for %s: %v", m.entity, name, err)
		}
	}
	return nil
}

// New builds an unsaved T from column values.
func (m *Manager[T, PT]) New(fields Fields) (*T, error) {
	row := new(T)
	if err := m.assign(context.Background(), row, fields); err != nil {
		return nil, err
	}
	return row, nil
}

// integral reports whether v fits an integer column without losing a
// fraction. gorm's setters truncate floats silently.
func integral(f *gormschema.Field, v any) bool {
	switch f.IndirectFieldType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return true
	}
	switch n := normalize(v).(type) {
	case float64:
		return n == math.Trunc(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n) == math.Trunc(float64(n)) && !math.IsInf(float64(n), 0)
	}
	return true
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize dereferences pointers so values compare and bind uniformly.
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

// empty reports values skipped by integrity checks.
func empty(v any) bool {
	switch v := normalize(v).(type) {
	case nil:
		return true
	case string:
		return v == ""
	case uuid.UUID:
		return v == uuid.Nil
	default:
		return false
	}
}
