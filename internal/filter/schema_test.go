package filter

import (
	"net/url"
	"testing"

	"larder/internal/apierr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductsParseBuildsExpressions(t *testing.T) {
	id := uuid.New()
	values := url.Values{
		"id__in":         {id.String()},
		"name__not_in":   {"salt,pepper", "sugar"},
		"calories__lte":  {"500"},
		"proteins__gte":  {""},
		"is_dish":        {"true"},
		"search":         {"  chicken soup "},
		"order_by":       {"-calories,name"},
		"page":           {"2"},
		"unknown_filter": {"x"},
	}

	set, err := Products.Parse(values)
	require.NoError(t, err)

	assert.Equal(t, []Expr{
		In{Field: "id", Values: []any{id}},
		NotIn{Field: "name", Values: []any{"salt", "pepper", "sugar"}},
		Equals{Field: "is_dish", Value: true},
		Lte{Field: "calories", Value: 500},
		Search{Term: "chicken soup", Fields: []string{"name"}},
		OrderBy{Fields: []string{"-calories", "name"}},
	}, set.Exprs)
}

func TestParseTreatsEmptyValuesAsAbsent(t *testing.T) {
	set, err := Products.Parse(url.Values{
		"name":                 {"   "},
		"name__in":             {",,"},
		"fats__gte":            {""},
		"search":               {""},
		"order_by":             {""},
		"components__name__in": {""},
	})
	require.NoError(t, err)
	assert.True(t, set.Empty())
}

func TestParseKeepsCommasInExactMatch(t *testing.T) {
	set, err := Products.Parse(url.Values{"name": {"Salt, sea"}})
	require.NoError(t, err)
	assert.Equal(t, []Expr{Equals{Field: "name", Value: "Salt, sea"}}, set.Exprs)
}

func TestParseRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		want   string
	}{
		{"number", url.Values{"calories__lte": {"lots"}}, `Product: invalid value "lots" for calories__lte: expected a number`},
		{"identifier", url.Values{"id__not_in": {"not-a-uuid"}}, `Product: invalid value "not-a-uuid" for id__not_in: expected an identifier`},
		{"bool", url.Values{"is_dish": {"maybe"}}, `Product: invalid value "maybe" for is_dish: expected true or false`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Products.Parse(tt.values)
			require.Error(t, err)
			assert.True(t, apierr.Is(err, apierr.CodeBadRequest))
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestParseNestedComponentFilter(t *testing.T) {
	set, err := Products.Parse(url.Values{"components__name__in": {"Egg,Flour"}})
	require.NoError(t, err)
	require.Len(t, set.Exprs, 1)

	nested, ok := set.Exprs[0].(Nested)
	require.True(t, ok, "expected nested expression, got %T", set.Exprs[0])
	assert.Equal(t, "dish_components_link", nested.Join.Table)
	assert.Equal(t, []Expr{In{Field: "name", Values: []any{"Egg", "Flour"}}}, nested.Exprs)
}

func TestNewValidatesSchemas(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
	}{
		{"missing entity", Schema{}},
		{"duplicate", Schema{Entity: "Product", Params: []Param{
			{Name: "name", Field: "name", Kind: KindEquals, Type: TypeString},
			{Name: "name", Field: "name", Kind: KindIn, Type: TypeString},
		}}},
		{"reserved name", Schema{Entity: "Product", Params: []Param{
			{Name: "search", Field: "name", Kind: KindEquals, Type: TypeString},
		}}},
		{"range on text", Schema{Entity: "Product", Params: []Param{
			{Name: "name__lte", Field: "name", Kind: KindLte, Type: TypeString},
		}}},
		{"unknown kind", Schema{Entity: "Product", Params: []Param{
			{Name: "name", Field: "name", Type: TypeString},
		}}},
		{"incomplete join", Schema{Entity: "Product", Subs: []Sub{
			{Prefix: "components", Schema: Components},
		}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.schema)
			assert.Error(t, err)
		})
	}
}

func TestNamesListsNestedParameters(t *testing.T) {
	names := Products.Names()
	assert.Contains(t, names, "components__name__in")
	assert.Contains(t, names, "carbohydrates__gte")
	assert.Contains(t, names, "order_by")
	assert.Contains(t, names, "search")
}
