// Package schema reads uniqueness and foreign-key rules from the live
// database catalog and exposes them to the generic data manager.
package schema

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// ForeignKey is one constrained column and the column it references.
type ForeignKey struct {
	Column           string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
}

// Table describes the integrity rules declared on one table.
type Table struct {
	Name        string
	Entity      string
	Unique      [][]string
	ForeignKeys []ForeignKey
}

// ForeignKey returns the foreign key constraining column, if any.
func (t Table) ForeignKey(column string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Column == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Inspector discovers constraints of a table from the database catalog.
// Every call queries the catalog again.
type Inspector interface {
	UniqueConstraints(ctx context.Context, table string) ([][]string, error)
	ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error)
}

// Source resolves the constraints of a table for the data manager.
type Source interface {
	Table(ctx context.Context, name string) (Table, error)
	EntityName(table string) string
}

// NewInspector picks a catalog reader matching the dialect behind db.
func NewInspector(db *gorm.DB) (Inspector, error) {
	if db == nil {
		return nil, fmt.Errorf("schema: database handle is nil")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("schema: get sql db: %w", err)
	}

	switch name := db.Dialector.Name(); name {
	case "postgres":
		return &postgresInspector{db: sqlx.NewDb(sqlDB, "pgx")}, nil
	case "sqlite":
		return &sqliteInspector{db: sqlx.NewDb(sqlDB, "sqlite3")}, nil
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", name)
	}
}

func groupColumns(rows []indexColumn) [][]string {
	var (
		groups [][]string
		last   string
	)
	for _, row := range rows {
		if len(groups) == 0 || row.Index != last {
			groups = append(groups, nil)
			last = row.Index
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], row.Column)
	}
	return groups
}

type indexColumn struct {
	Index  string `db:"index_name"`
	Column string `db:"column_name"`
}
