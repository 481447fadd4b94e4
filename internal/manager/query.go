package manager

import (
	"fmt"
	"strings"

	"larder/internal/apierr"
	"larder/internal/dbctx"
	"larder/internal/filter"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Criteria describes a filtered, searched and ordered query over T.
type Criteria struct {
	// Base replaces the default query over T. It must select from T's table.
	Base *gorm.DB
	// Where is a conjunction of equality conditions.
	Where        Fields
	Exprs        []filter.Expr
	Search       string
	SearchFields []string
	// OrderBy is a comma separated field list, "-" prefix for descending.
	OrderBy string
	GroupBy []string
}

// Option adjusts a query before it is executed.
type Option func(*gorm.DB) *gorm.DB

// Preload eagerly loads an association path, e.g. "Recipes.Components".
func Preload(path string, args ...any) Option {
	return func(q *gorm.DB) *gorm.DB {
		return q.Preload(path, args...)
	}
}

// Page is one slice of a paginated result.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// PageParams selects a page. Page is 1-based.
type PageParams struct {
	Page int
	Size int
}

func (c Criteria) exprs() []filter.Expr {
	exprs := append([]filter.Expr(nil), c.Exprs...)
	if term := strings.TrimSpace(c.Search); term != "" && len(c.SearchFields) > 0 {
		exprs = append(exprs, filter.Search{Term: term, Fields: c.SearchFields})
	}
	if order := strings.TrimSpace(c.OrderBy); order != "" {
		exprs = append(exprs, filter.OrderBy{Fields: strings.Split(order, ",")})
	}
	return exprs
}

func (c Criteria) unordered() Criteria {
	out := c
	out.OrderBy = ""
	out.Exprs = nil
	for _, e := range c.Exprs {
		if _, ok := e.(filter.OrderBy); !ok {
			out.Exprs = append(out.Exprs, e)
		}
	}
	return out
}

// Query builds the query described by c without executing it.
func (m *Manager[T, PT]) Query(dbc dbctx.Context, c Criteria) (*gorm.DB, error) {
	q := c.Base
	if q == nil {
		q = m.Base(dbc)
	} else {
		q = q.WithContext(dbc.Context())
	}

	for _, name := range sortedKeys(c.Where) {
		col, err := m.column(name)
		if err != nil {
			return nil, err
		}
		q = q.Where(clause.Eq{Column: col, Value: normalize(c.Where[name])})
	}

	for _, e := range c.exprs() {
		var err error
		if q, err = m.apply(dbc, q, e); err != nil {
			return nil, err
		}
	}

	if len(c.GroupBy) > 0 {
		group := clause.GroupBy{}
		for _, name := range c.GroupBy {
			col, err := m.column(name)
			if err != nil {
				return nil, err
			}
			group.Columns = append(group.Columns, col)
		}
		q = q.Clauses(group)
	}

	return q, nil
}

// Filter builds and executes the query described by c.
func (m *Manager[T, PT]) Filter(dbc dbctx.Context, c Criteria, opts ...Option) ([]T, error) {
	q, err := m.Query(dbc, c)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := with(q, opts).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("filter %s: %w", m.entity, err)
	}
	return rows, nil
}

// All returns every row of T.
func (m *Manager[T, PT]) All(dbc dbctx.Context, opts ...Option) ([]T, error) {
	return m.Filter(dbc, Criteria{}, opts...)
}

// FilterIn returns the rows whose field is one of values.
func (m *Manager[T, PT]) FilterIn(dbc dbctx.Context, field string, values []any, opts ...Option) ([]T, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return m.Filter(dbc, Criteria{Exprs: []filter.Expr{filter.In{Field: field, Values: values}}}, opts...)
}

// Paginate returns one page of the rows matching c. The primary key is
// appended to the ordering so pages never overlap.
func (m *Manager[T, PT]) Paginate(dbc dbctx.Context, c Criteria, p PageParams, opts ...Option) (Page[T], error) {
	if p.Page < 1 || p.Size < 1 {
		return Page[T]{}, apierr.BadRequest("%s: page and size must be positive", m.entity)
	}

	countQuery, err := m.Query(dbc, c.unordered())
	if err != nil {
		return Page[T]{}, err
	}
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return Page[T]{}, fmt.Errorf("count %s: %w", m.entity, err)
	}

	q, err := m.Query(dbc, c)
	if err != nil {
		return Page[T]{}, err
	}
	for _, col := range m.primaryColumns() {
		q = q.Order(clause.OrderByColumn{Column: col})
	}

	items := make([]T, 0, p.Size)
	err = with(q, opts).Offset((p.Page - 1) * p.Size).Limit(p.Size).Find(&items).Error
	if err != nil {
		return Page[T]{}, fmt.Errorf("page %s: %w", m.entity, err)
	}

	return Page[T]{Items: items, Total: total, Page: p.Page, Size: p.Size}, nil
}

func with(q *gorm.DB, opts []Option) *gorm.DB {
	for _, opt := range opts {
		q = opt(q)
	}
	return q
}

func (m *Manager[T, PT]) apply(dbc dbctx.Context, q *gorm.DB, e filter.Expr) (*gorm.DB, error) {
	switch e := e.(type) {
	case filter.OrderBy:
		for _, raw := range e.Fields {
			name := strings.TrimSpace(raw)
			desc := strings.HasPrefix(name, "-")
			name = strings.TrimLeft(name, "-+")
			if name == "" {
				continue
			}
			col, err := m.column(name)
			if err != nil {
				return nil, err
			}
			q = q.Order(clause.OrderByColumn{Column: col, Desc: desc})
		}
		return q, nil
	case filter.Nested:
		sub, err := m.nested(dbc, e)
		if err != nil {
			return nil, err
		}
		pk := m.primaryColumns()
		if len(pk) != 1 {
			return nil, fmt.Errorf("filter %s: nested filters need a single primary key", m.entity)
		}
		return q.Where(clause.Expr{SQL: "? IN (?)", Vars: []any{pk[0], sub}}), nil
	default:
		cond, err := condition(e, m.column)
		if err != nil || cond == nil {
			return q, err
		}
		return q.Where(cond), nil
	}
}

// nested selects owner keys from the link table whose related rows match
// every nested expression.
func (m *Manager[T, PT]) nested(dbc dbctx.Context, e filter.Nested) (*gorm.DB, error) {
	j := e.Join
	related := dbc.DB(m.db).Session(&gorm.Session{NewDB: true}).
		Table(j.TargetTable).
		Select("?", clause.Column{Table: j.TargetTable, Name: j.TargetKey})

	target := func(name string) (clause.Column, error) {
		return clause.Column{Table: j.TargetTable, Name: name}, nil
	}
	for _, inner := range e.Exprs {
		switch inner.(type) {
		case filter.OrderBy, filter.Nested:
			return nil, apierr.BadRequest("%s: unsupported nested filter %T", m.entity, inner)
		}
		cond, err := condition(inner, target)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			related = related.Where(cond)
		}
	}

	return dbc.DB(m.db).Session(&gorm.Session{NewDB: true}).
		Table(j.Table).
		Select("?", clause.Column{Table: j.Table, Name: j.OwnerColumn}).
		Where(clause.Expr{SQL: "? IN (?)", Vars: []any{clause.Column{Table: j.Table, Name: j.TargetColumn}, related}}), nil
}

// condition translates a row predicate into a clause expression.
func condition(e filter.Expr, column func(string) (clause.Column, error)) (clause.Expression, error) {
	switch e := e.(type) {
	case filter.Equals:
		col, err := column(e.Field)
		if err != nil {
			return nil, err
		}
		return clause.Eq{Column: col, Value: normalize(e.Value)}, nil
	case filter.In:
		col, err := column(e.Field)
		if err != nil {
			return nil, err
		}
		return clause.IN{Column: col, Values: e.Values}, nil
	case filter.NotIn:
		col, err := column(e.Field)
		if err != nil {
			return nil, err
		}
		return clause.Not(clause.IN{Column: col, Values: e.Values}), nil
	case filter.Lte:
		col, err := column(e.Field)
		if err != nil {
			return nil, err
		}
		return clause.And(clause.Neq{Column: col, Value: nil}, clause.Lte{Column: col, Value: e.Value}), nil
	case filter.Gte:
		col, err := column(e.Field)
		if err != nil {
			return nil, err
		}
		return clause.And(clause.Neq{Column: col, Value: nil}, clause.Gte{Column: col, Value: e.Value}), nil
	case filter.Search:
		tokens := strings.Fields(e.Term)
		if len(tokens) == 0 || len(e.Fields) == 0 {
			return nil, nil
		}
		var all []clause.Expression
		for _, token := range tokens {
			pattern := "%" + escapeLike(strings.ToLower(token)) + "%"
			var alternatives []clause.Expression
			for _, name := range e.Fields {
				col, err := column(name)
				if err != nil {
					return nil, err
				}
				alternatives = append(alternatives, clause.Expr{SQL: `LOWER(?) LIKE ? ESCAPE '\'`, Vars: []any{col, pattern}})
			}
			// A bare OrConditions element is joined with OR by gorm.
			all = append(all, clause.And(clause.Or(alternatives...)))
		}
		return clause.And(all...), nil
	default:
		return nil, fmt.Errorf("unsupported filter expression %T", e)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
