package schema

import (
	"context"
	"fmt"
	"sort"

	"larder/internal/log"
	"larder/models"
)

// Registry is a snapshot of catalog constraints taken once at startup.
// It is never mutated after Build returns.
type Registry struct {
	tables map[string]Table
}

// Build inspects the table of every entity and freezes the result.
func Build(ctx context.Context, inspector Inspector, entities ...models.Entity) (*Registry, error) {
	names := entityNames(entities)
	tables := make(map[string]Table, len(entities))
	for _, entity := range entities {
		table, err := inspect(ctx, inspector, entity.TableName(), names)
		if err != nil {
			return nil, err
		}
		tables[table.Name] = table
		log.Debug(ctx, "registered table constraints",
			"table", table.Name,
			"unique_groups", len(table.Unique),
			"foreign_keys", len(table.ForeignKeys),
		)
	}
	return &Registry{tables: tables}, nil
}

// Table returns the constraints recorded for name.
func (r *Registry) Table(_ context.Context, name string) (Table, error) {
	table, ok := r.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("schema: table %s is not registered", name)
	}
	return table, nil
}

// EntityName resolves a table to the entity stored in it.
func (r *Registry) EntityName(table string) string {
	if t, ok := r.tables[table]; ok && t.Entity != "" {
		return t.Entity
	}
	return table
}

// Tables lists the registered table names in lexical order.
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Live re-reads the catalog on every lookup.
type Live struct {
	inspector Inspector
	names     map[string]string
}

func NewLive(inspector Inspector, entities ...models.Entity) *Live {
	return &Live{inspector: inspector, names: entityNames(entities)}
}

func (l *Live) Table(ctx context.Context, name string) (Table, error) {
	return inspect(ctx, l.inspector, name, l.names)
}

func (l *Live) EntityName(table string) string {
	if name, ok := l.names[table]; ok {
		return name
	}
	return table
}

func inspect(ctx context.Context, inspector Inspector, name string, names map[string]string) (Table, error) {
	unique, err := inspector.UniqueConstraints(ctx, name)
	if err != nil {
		return Table{}, err
	}
	fks, err := inspector.ForeignKeys(ctx, name)
	if err != nil {
		return Table{}, err
	}
	return Table{Name: name, Entity: names[name], Unique: unique, ForeignKeys: fks}, nil
}

func entityNames(entities []models.Entity) map[string]string {
	names := make(map[string]string, len(entities))
	for _, entity := range entities {
		names[entity.TableName()] = entity.EntityName()
	}
	return names
}
