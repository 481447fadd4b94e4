package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type sqliteInspector struct {
	db *sqlx.DB
}

type sqliteIndex struct {
	Name    string `db:"name"`
	Unique  bool   `db:"unique"`
	Origin  string `db:"origin"`
	Partial bool   `db:"partial"`
}

type sqliteForeignKey struct {
	From  string         `db:"from"`
	Table string         `db:"table"`
	To    sql.NullString `db:"to"`
}

func (s *sqliteInspector) UniqueConstraints(ctx context.Context, table string) ([][]string, error) {
	var indexes []sqliteIndex
	err := s.db.SelectContext(ctx, &indexes,
		`SELECT name, "unique", origin, partial FROM pragma_index_list(?) ORDER BY name`, table)
	if err != nil {
		return nil, fmt.Errorf("schema: unique constraints of %s: %w", table, err)
	}

	var rows []indexColumn
	for _, index := range indexes {
		if !index.Unique || index.Origin == "pk" || index.Partial {
			continue
		}
		var columns []sql.NullString
		err := s.db.SelectContext(ctx, &columns,
			`SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index.Name)
		if err != nil {
			return nil, fmt.Errorf("schema: columns of index %s: %w", index.Name, err)
		}
		group, ok := plainColumns(index.Name, columns)
		if !ok {
			continue
		}
		rows = append(rows, group...)
	}
	return groupColumns(rows), nil
}

func (s *sqliteInspector) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	var raw []sqliteForeignKey
	err := s.db.SelectContext(ctx, &raw,
		`SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY "from", "table"`, table)
	if err != nil {
		return nil, fmt.Errorf("schema: foreign keys of %s: %w", table, err)
	}

	fks := make([]ForeignKey, 0, len(raw))
	for _, fk := range raw {
		column := fk.To.String
		if !fk.To.Valid || column == "" {
			// A missing target column means the referenced primary key.
			pk, err := s.primaryKey(ctx, fk.Table)
			if err != nil {
				return nil, err
			}
			column = pk
		}
		fks = append(fks, ForeignKey{Column: fk.From, ReferencedTable: fk.Table, ReferencedColumn: column})
	}
	return fks, nil
}

func (s *sqliteInspector) primaryKey(ctx context.Context, table string) (string, error) {
	var columns []string
	err := s.db.SelectContext(ctx, &columns,
		`SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, table)
	if err != nil {
		return "", fmt.Errorf("schema: primary key of %s: %w", table, err)
	}
	if len(columns) != 1 {
		return "", fmt.Errorf("schema: %s has %d primary key columns", table, len(columns))
	}
	return columns[0], nil
}

// plainColumns drops indexes built over expressions.
func plainColumns(index string, columns []sql.NullString) ([]indexColumn, bool) {
	out := make([]indexColumn, 0, len(columns))
	for _, column := range columns {
		if !column.Valid {
			return nil, false
		}
		out = append(out, indexColumn{Index: index, Column: column.String})
	}
	return out, len(out) > 0
}
