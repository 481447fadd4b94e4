package filter

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"larder/internal/apierr"

	"github.com/google/uuid"
)

// Kind selects the expression a parameter produces.
type Kind int

const (
	KindEquals Kind = iota + 1
	KindIn
	KindNotIn
	KindLte
	KindGte
)

// Type selects how raw parameter values are parsed.
type Type int

const (
	TypeString Type = iota + 1
	TypeUUID
	TypeFloat
	TypeBool
)

// Param binds a query parameter to a column.
type Param struct {
	Name  string
	Field string
	Kind  Kind
	Type  Type
}

// Sub is a filter over related rows, addressed with Prefix + "__".
type Sub struct {
	Prefix string
	Join   Join
	Schema *Schema
}

// Schema is the declarative filter of one entity.
type Schema struct {
	Entity       string
	Params       []Param
	SearchFields []string
	Orderable    bool
	Subs         []Sub
}

// Set holds the expressions parsed from one request.
type Set struct {
	Exprs []Expr
}

// Empty reports whether no parameter was supplied.
func (s Set) Empty() bool { return len(s.Exprs) == 0 }

const (
	searchParam  = "search"
	orderByParam = "order_by"
)

// New validates s and returns it.
func New(s Schema) (*Schema, error) {
	if strings.TrimSpace(s.Entity) == "" {
		return nil, fmt.Errorf("filter: entity name must not be empty")
	}

	seen := map[string]bool{searchParam: true, orderByParam: true}
	for _, p := range s.Params {
		if p.Name == "" || p.Field == "" {
			return nil, fmt.Errorf("filter: %s: parameter needs a name and a field", s.Entity)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("filter: %s: duplicate parameter %q", s.Entity, p.Name)
		}
		seen[p.Name] = true

		if p.Kind < KindEquals || p.Kind > KindGte {
			return nil, fmt.Errorf("filter: %s: parameter %q has unknown kind", s.Entity, p.Name)
		}
		if p.Type < TypeString || p.Type > TypeBool {
			return nil, fmt.Errorf("filter: %s: parameter %q has unknown type", s.Entity, p.Name)
		}
		if (p.Kind == KindLte || p.Kind == KindGte) && p.Type != TypeFloat {
			return nil, fmt.Errorf("filter: %s: range parameter %q must be numeric", s.Entity, p.Name)
		}
	}

	for _, sub := range s.Subs {
		if sub.Prefix == "" || sub.Schema == nil {
			return nil, fmt.Errorf("filter: %s: nested filter needs a prefix and a schema", s.Entity)
		}
		if sub.Join.Table == "" || sub.Join.OwnerColumn == "" || sub.Join.TargetColumn == "" ||
			sub.Join.TargetTable == "" || sub.Join.TargetKey == "" {
			return nil, fmt.Errorf("filter: %s: nested filter %q has an incomplete join", s.Entity, sub.Prefix)
		}
		for name := range seen {
			if strings.HasPrefix(name, sub.Prefix+"__") {
				return nil, fmt.Errorf("filter: %s: parameter %q shadows nested filter %q", s.Entity, name, sub.Prefix)
			}
		}
		if sub.Schema.Orderable {
			return nil, fmt.Errorf("filter: %s: nested filter %q cannot order", s.Entity, sub.Prefix)
		}
	}

	out := s
	return &out, nil
}

// MustNew is New for package-level schemas.
func MustNew(s Schema) *Schema {
	schema, err := New(s)
	if err != nil {
		panic(err)
	}
	return schema
}

// Parse reads the parameters the schema declares. Unknown parameters are
// ignored. Empty values count as absent.
func (s *Schema) Parse(values url.Values) (Set, error) {
	var set Set

	for _, p := range s.Params {
		var raw []string
		if p.Kind == KindIn || p.Kind == KindNotIn {
			raw = listValues(values[p.Name])
		} else {
			raw = nonEmpty(values[p.Name])
		}
		if len(raw) == 0 {
			continue
		}
		expr, err := s.build(p, raw)
		if err != nil {
			return Set{}, err
		}
		set.Exprs = append(set.Exprs, expr)
	}

	if term := strings.TrimSpace(values.Get(searchParam)); term != "" && len(s.SearchFields) > 0 {
		set.Exprs = append(set.Exprs, Search{Term: term, Fields: append([]string(nil), s.SearchFields...)})
	}

	if s.Orderable {
		if fields := listValues(values[orderByParam]); len(fields) > 0 {
			set.Exprs = append(set.Exprs, OrderBy{Fields: fields})
		}
	}

	for _, sub := range s.Subs {
		nested, err := sub.Schema.Parse(stripPrefix(values, sub.Prefix+"__"))
		if err != nil {
			return Set{}, err
		}
		if !nested.Empty() {
			set.Exprs = append(set.Exprs, Nested{Join: sub.Join, Exprs: nested.Exprs})
		}
	}

	return set, nil
}

func (s *Schema) build(p Param, raw []string) (Expr, error) {
	switch p.Kind {
	case KindEquals:
		// Only the last occurrence counts for single valued parameters.
		v, err := s.parse(p, raw[len(raw)-1])
		if err != nil {
			return nil, err
		}
		return Equals{Field: p.Field, Value: v}, nil
	case KindIn, KindNotIn:
		parsed := make([]any, 0, len(raw))
		for _, r := range raw {
			v, err := s.parse(p, r)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, v)
		}
		if p.Kind == KindIn {
			return In{Field: p.Field, Values: parsed}, nil
		}
		return NotIn{Field: p.Field, Values: parsed}, nil
	default:
		v, err := s.parse(p, raw[len(raw)-1])
		if err != nil {
			return nil, err
		}
		f := v.(float64)
		if p.Kind == KindLte {
			return Lte{Field: p.Field, Value: f}, nil
		}
		return Gte{Field: p.Field, Value: f}, nil
	}
}

func (s *Schema) parse(p Param, raw string) (any, error) {
	switch p.Type {
	case TypeUUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apierr.BadRequest("%s: invalid value %q for %s: expected an identifier", s.Entity, raw, p.Name)
		}
		return id, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apierr.BadRequest("%s: invalid value %q for %s: expected a number", s.Entity, raw, p.Name)
		}
		return f, nil
	case TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, apierr.BadRequest("%s: invalid value %q for %s: expected true or false", s.Entity, raw, p.Name)
		}
		return b, nil
	default:
		return raw, nil
	}
}

// Names lists every parameter the schema understands, nested ones included.
func (s *Schema) Names() []string {
	var names []string
	for _, p := range s.Params {
		names = append(names, p.Name)
	}
	if len(s.SearchFields) > 0 {
		names = append(names, searchParam)
	}
	if s.Orderable {
		names = append(names, orderByParam)
	}
	for _, sub := range s.Subs {
		for _, name := range sub.Schema.Names() {
			names = append(names, sub.Prefix+"__"+name)
		}
	}
	sort.Strings(names)
	return names
}

// listValues accepts both repeated parameters and comma separated lists.
func listValues(raw []string) []string {
	var out []string
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func nonEmpty(raw []string) []string {
	var out []string
	for _, value := range raw {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func stripPrefix(values url.Values, prefix string) url.Values {
	out := url.Values{}
	for key, vals := range values {
		if rest, ok := strings.CutPrefix(key, prefix); ok && rest != "" {
			out[rest] = vals
		}
	}
	return out
}
