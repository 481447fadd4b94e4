package schema

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type postgresInspector struct {
	db *sqlx.DB
}

// Unique indexes cover both UNIQUE constraints and CREATE UNIQUE INDEX.
// Partial and expression indexes are left out since they cannot be
// checked with plain equality.
const pgUniqueQuery = `
SELECT i.relname AS index_name, a.attname AS column_name
FROM pg_index ix
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
CROSS JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
WHERE t.relname = ?
  AND n.nspname = current_schema()
  AND ix.indisunique
  AND NOT ix.indisprimary
  AND ix.indpred IS NULL
ORDER BY i.relname, k.ord`

const pgForeignKeyQuery = `
SELECT kcu.column_name AS column_name,
       ccu.table_name AS referenced_table,
       ccu.column_name AS referenced_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name
 AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
  AND tc.table_name = ?
  AND tc.table_schema = current_schema()
ORDER BY kcu.column_name, ccu.table_name`

func (p *postgresInspector) UniqueConstraints(ctx context.Context, table string) ([][]string, error) {
	var rows []indexColumn
	if err := p.db.SelectContext(ctx, &rows, p.db.Rebind(pgUniqueQuery), table); err != nil {
		return nil, fmt.Errorf("schema: unique constraints of %s: %w", table, err)
	}
	return groupColumns(rows), nil
}

func (p *postgresInspector) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	var fks []ForeignKey
	if err := p.db.SelectContext(ctx, &fks, p.db.Rebind(pgForeignKeyQuery), table); err != nil {
		return nil, fmt.Errorf("schema: foreign keys of %s: %w", table, err)
	}
	return fks, nil
}
