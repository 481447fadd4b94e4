// Package filter turns query-string parameters into filter expressions
// consumed by the generic data manager.
package filter

// Expr is one filter expression. The set of implementations is closed.
type Expr interface {
	expr()
}

// Equals requires Field to equal Value.
type Equals struct {
	Field string
	Value any
}

// In requires Field to be one of Values.
type In struct {
	Field  string
	Values []any
}

// NotIn requires Field to be none of Values.
type NotIn struct {
	Field  string
	Values []any
}

// Lte requires Field to be set and at most Value. NULL never matches.
type Lte struct {
	Field string
	Value float64
}

// Gte requires Field to be set and at least Value. NULL never matches.
type Gte struct {
	Field string
	Value float64
}

// Search requires every whitespace separated token of Term to appear,
// case-insensitively, in at least one of Fields.
type Search struct {
	Term   string
	Fields []string
}

// OrderBy sorts by Fields. A leading "-" sorts that field descending.
type OrderBy struct {
	Fields []string
}

// Join describes how an owner row reaches related rows through a link table.
type Join struct {
	Table        string // link table
	OwnerColumn  string // link column referencing the owner
	TargetColumn string // link column referencing the related row
	TargetTable  string
	TargetKey    string // primary key of TargetTable
}

// Nested requires at least one related row reached through Join to
// satisfy every expression in Exprs.
type Nested struct {
	Join  Join
	Exprs []Expr
}

func (Equals) expr()  {}
func (In) expr()      {}
func (NotIn) expr()   {}
func (Lte) expr()     {}
func (Gte) expr()     {}
func (Search) expr()  {}
func (OrderBy) expr() {}
func (Nested) expr()  {}
