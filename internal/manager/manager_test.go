package manager

import (
	"context"
	"fmt"
	"testing"

	"larder/internal/apierr"
	"larder/internal/db/dbtest"
	"larder/internal/dbctx"
	"larder/internal/filter"
	"larder/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	products *Manager[models.Product, *models.Product]
	recipes  *Manager[models.Recipe, *models.Recipe]
	links    *Manager[models.RecipeComponentsLink, *models.RecipeComponentsLink]
	dbc      dbctx.Context
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	database := dbtest.Open(t)
	registry := dbtest.Registry(t, database)
	return fixture{
		db:       database,
		products: Must[models.Product](database, registry),
		recipes:  Must[models.Recipe](database, registry),
		links:    Must[models.RecipeComponentsLink](database, registry),
		dbc:      dbctx.Background(),
	}
}

func (f fixture) product(t *testing.T, name string, calories *float64) models.Product {
	t.Helper()
	return dbtest.SeedProduct(t, f.db, models.Product{Name: name, Calories: calories})
}

func names(rows []models.Product) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Name)
	}
	return out
}

func TestCreatePopulatesGeneratedFields(t *testing.T) {
	f := newFixture(t)

	row, err := f.products.CreateFields(f.dbc, Fields{"name": "Tomato", "calories": 18.0, "is_dish": false})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, row.ID)
	assert.False(t, row.CreatedAt.IsZero())
	require.NotNil(t, row.Calories)
	assert.Equal(t, 18.0, *row.Calories)
}

func TestCreateRejectsDuplicateUniqueValues(t *testing.T) {
	f := newFixture(t)
	f.product(t, "Salt", nil)

	_, err := f.products.CreateFields(f.dbc, Fields{"name": "Salt"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeConflict), "expected conflict, got %v", err)
	assert.Contains(t, err.Error(), "Product")
}

func TestUpdateChecksUniquenessAgainstOtherRows(t *testing.T) {
	f := newFixture(t)
	salt := f.product(t, "Salt", nil)
	f.product(t, "Pepper", nil)

	_, err := f.products.Update(f.dbc, Fields{"name": "Pepper"}, Fields{"id": salt.ID})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	rows, err := f.products.Update(f.dbc, Fields{"name": "Salt", "calories": 0.0}, Fields{"id": salt.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Salt", rows[0].Name)

	stored, err := f.products.GetOr404(f.dbc, "", Fields{"id": salt.ID})
	require.NoError(t, err)
	require.NotNil(t, stored.Calories)
	assert.Equal(t, 0.0, *stored.Calories)
}

func TestUpdateRejectsPrimaryKeyChanges(t *testing.T) {
	f := newFixture(t)
	salt := f.product(t, "Salt", nil)

	_, err := f.products.Update(f.dbc, Fields{"id": uuid.New()}, Fields{"id": salt.ID})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeBadRequest))
}

func TestUpdateChecksUniquenessAcrossMatchedRows(t *testing.T) {
	f := newFixture(t)
	f.product(t, "Salt", dbtest.Float(0))
	f.product(t, "Pepper", dbtest.Float(0))

	_, err := f.products.Update(f.dbc, Fields{"name": "Seasoning"}, Fields{"calories": 0.0})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeConflict), "expected conflict, got %v", err)

	rows, err := f.products.Filter(f.dbc, Criteria{OrderBy: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Pepper", "Salt"}, names(rows))

	rows, err = f.products.Update(f.dbc, Fields{"receipt": "pantry"}, Fields{"calories": 0.0})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestUpdateRejectsValuesTheColumnCannotHold(t *testing.T) {
	f := newFixture(t)
	rice := f.product(t, "Rice", nil)

	for _, data := range []Fields{
		{"weight": 2.5},
		{"weight": "heavy"},
		{"calories": "lots"},
	} {
		_, err := f.products.Update(f.dbc, data, Fields{"id": rice.ID})
		require.Error(t, err, "%v", data)
		assert.True(t, apierr.Is(err, apierr.CodeBadRequest), "expected bad request for %v, got %v", data, err)
	}

	rows, err := f.products.Update(f.dbc, Fields{"weight": 250.0, "number": 2.0}, Fields{"id": rice.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	stored, err := f.products.GetOr404(f.dbc, "", Fields{"id": rice.ID})
	require.NoError(t, err)
	require.NotNil(t, stored.Weight)
	assert.Equal(t, 250, *stored.Weight)
	require.NotNil(t, stored.Number)
	assert.Equal(t, 2, *stored.Number)

	all, err := f.products.All(f.dbc)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateRejectsFractionalIntegers(t *testing.T) {
	f := newFixture(t)

	_, err := f.products.CreateFields(f.dbc, Fields{"name": "Eggs", "number": 1.5})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeBadRequest), "expected bad request, got %v", err)
}

func TestForeignKeysMustReferenceExistingRows(t *testing.T) {
	f := newFixture(t)
	dish := f.product(t, "Borscht", nil)
	missing := uuid.New()

	_, err := f.recipes.CreateFields(f.dbc, Fields{"text": "Boil beets", "dish_id": &missing})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
	assert.EqualError(t, err, "Product not found")

	recipe, err := f.recipes.CreateFields(f.dbc, Fields{"text": "Boil beets", "dish_id": &dish.ID})
	require.NoError(t, err)
	require.NotNil(t, recipe.DishID)
	assert.Equal(t, dish.ID, *recipe.DishID)

	_, err = f.recipes.Update(f.dbc, Fields{"dish_id": missing}, Fields{"id": recipe.ID})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))

	_, err = f.links.CreateFields(f.dbc, Fields{"recipe_id": recipe.ID, "component_id": missing})
	assert.EqualError(t, err, "Product not found")
}

func TestGetOr404(t *testing.T) {
	f := newFixture(t)
	salt := f.product(t, "Salt", nil)
	f.product(t, "Pepper", nil)

	row, err := f.products.GetOr404(f.dbc, "", Fields{"name": "Salt"})
	require.NoError(t, err)
	assert.Equal(t, salt.ID, row.ID)

	_, err = f.products.GetOr404(f.dbc, "", Fields{"name": "Sugar"})
	assert.EqualError(t, err, "Product not found")
	assert.Equal(t, 404, apierr.StatusOf(err))

	_, err = f.products.GetOr404(f.dbc, "no such ingredient", Fields{"name": "Sugar"})
	assert.EqualError(t, err, "no such ingredient")

	_, err = f.products.GetOr404(f.dbc, "", Fields{"is_dish": false})
	assert.True(t, apierr.Is(err, apierr.CodeAmbiguous), "expected ambiguous match, got %v", err)

	none, err := f.products.GetOrNone(f.dbc, Fields{"name": "Sugar"})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestOrderByEachFieldHonoursItsOwnDirection(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Cabbage", "Apple", "Banana"} {
		f.product(t, name, nil)
	}
	dbtest.SeedProduct(t, f.db, models.Product{Name: "Dumplings", IsDish: true})

	asc, err := f.products.Filter(f.dbc, Criteria{OrderBy: "name"})
	require.NoError(t, err)
	desc, err := f.products.Filter(f.dbc, Criteria{OrderBy: "-name"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Apple", "Banana", "Cabbage", "Dumplings"}, names(asc))
	reversed := names(desc)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	assert.Equal(t, names(asc), reversed)

	mixed, err := f.products.Filter(f.dbc, Criteria{OrderBy: "-is_dish,name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dumplings", "Apple", "Banana", "Cabbage"}, names(mixed))
}

func TestUnknownSortFieldIsBadRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.products.Filter(f.dbc, Criteria{OrderBy: "flavour"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeBadRequest))
	assert.EqualError(t, err, `Product has no field "flavour"`)

	_, err = f.products.Filter(f.dbc, Criteria{Where: Fields{"colour": "red"}})
	assert.True(t, apierr.Is(err, apierr.CodeBadRequest))
}

func TestRangeFiltersExcludeNulls(t *testing.T) {
	f := newFixture(t)
	f.product(t, "Broth", dbtest.Float(120))
	f.product(t, "Cheesecake", dbtest.Float(900))
	f.product(t, "Rice", dbtest.Float(500))
	f.product(t, "Mystery", nil)

	rows, err := f.products.Filter(f.dbc, Criteria{
		Exprs:   []filter.Expr{filter.Lte{Field: "calories", Value: 500}},
		OrderBy: "name",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Broth", "Rice"}, names(rows))

	rows, err = f.products.Filter(f.dbc, Criteria{
		Exprs:   []filter.Expr{filter.Gte{Field: "calories", Value: 500}},
		OrderBy: "name",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cheesecake", "Rice"}, names(rows))
}

func TestSearchRequiresEveryTokenCaseInsensitively(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Soup with Chicken", "chicken noodle soup", "Chicken salad", "Tomato soup", "100% juice"} {
		f.product(t, name, nil)
	}

	rows, err := f.products.Filter(f.dbc, Criteria{Search: "CHICKEN soup", SearchFields: []string{"name"}, OrderBy: "name"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Soup with Chicken", "chicken noodle soup"}, names(rows))

	rows, err = f.products.Filter(f.dbc, Criteria{Search: "0%", SearchFields: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"100% juice"}, names(rows))

	rows, err = f.products.Filter(f.dbc, Criteria{Search: "   ", SearchFields: []string{"name"}})
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestEqualityAndMembershipFilters(t *testing.T) {
	f := newFixture(t)
	salt := f.product(t, "Salt", nil)
	pepper := f.product(t, "Pepper", nil)
	f.product(t, "Sugar", nil)

	rows, err := f.products.Filter(f.dbc, Criteria{
		Exprs:   []filter.Expr{filter.In{Field: "id", Values: []any{salt.ID, pepper.ID}}},
		OrderBy: "name",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Pepper", "Salt"}, names(rows))

	rows, err = f.products.Filter(f.dbc, Criteria{
		Exprs:   []filter.Expr{filter.NotIn{Field: "name", Values: []any{"Salt", "Pepper"}}},
		OrderBy: "name",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Sugar"}, names(rows))

	rows, err = f.products.Filter(f.dbc, Criteria{Exprs: []filter.Expr{filter.Equals{Field: "name", Value: "Salt"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Salt"}, names(rows))
}

func TestNestedFilterFollowsDishComponents(t *testing.T) {
	f := newFixture(t)
	egg := f.product(t, "Egg", nil)
	flour := f.product(t, "Flour", nil)
	pancake := dbtest.SeedProduct(t, f.db, models.Product{Name: "Pancake", IsDish: true})
	omelette := dbtest.SeedProduct(t, f.db, models.Product{Name: "Omelette", IsDish: true})
	bread := dbtest.SeedProduct(t, f.db, models.Product{Name: "Bread", IsDish: true})

	links := []models.DishComponentsLink{
		{DishID: pancake.ID, ComponentID: egg.ID},
		{DishID: pancake.ID, ComponentID: flour.ID},
		{DishID: omelette.ID, ComponentID: egg.ID},
		{DishID: bread.ID, ComponentID: flour.ID},
	}
	require.NoError(t, f.db.Create(&links).Error)

	set, err := filter.Products.Parse(map[string][]string{"components__name__in": {"Egg"}})
	require.NoError(t, err)

	rows, err := f.products.Filter(f.dbc, Criteria{Exprs: set.Exprs, OrderBy: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Omelette", "Pancake"}, names(rows))
}

func TestPaginateCoversEveryRowOnce(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		f.product(t, fmt.Sprintf("Item %02d", i), nil)
	}
	f.product(t, "Other", nil)

	criteria := Criteria{Exprs: []filter.Expr{filter.Search{Term: "item", Fields: []string{"name"}}}, OrderBy: "name"}
	seen := map[uuid.UUID]bool{}
	for page, want := range map[int]int{1: 10, 2: 10, 3: 5} {
		result, err := f.products.Paginate(f.dbc, criteria, PageParams{Page: page, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(25), result.Total)
		assert.Equal(t, page, result.Page)
		assert.Equal(t, 10, result.Size)
		require.Len(t, result.Items, want)
		for _, item := range result.Items {
			assert.False(t, seen[item.ID], "item %s returned twice", item.Name)
			seen[item.ID] = true
		}
	}
	assert.Len(t, seen, 25)

	empty, err := f.products.Paginate(f.dbc, criteria, PageParams{Page: 4, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, int64(25), empty.Total)

	_, err = f.products.Paginate(f.dbc, criteria, PageParams{Page: 0, Size: 10})
	assert.True(t, apierr.Is(err, apierr.CodeBadRequest))
}

func TestQueryReturnsUnexecutedStatement(t *testing.T) {
	f := newFixture(t)
	f.product(t, "Salt", nil)

	q, err := f.products.Query(f.dbc, Criteria{Where: Fields{"name": "Salt"}})
	require.NoError(t, err)

	var count int64
	require.NoError(t, q.Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetOrCreateAndUpdateOrCreate(t *testing.T) {
	f := newFixture(t)

	first, created, err := f.products.GetOrCreate(f.dbc, Fields{"name": "Basil"})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := f.products.GetOrCreate(f.dbc, Fields{"name": "Basil"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	rows, created, err := f.products.UpdateOrCreate(f.dbc, Fields{"calories": 23.0}, Fields{"name": "Basil"})
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, 23.0, *rows[0].Calories)

	rows, created, err = f.products.UpdateOrCreate(f.dbc, Fields{"calories": 40.0}, Fields{"name": "Mint"})
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, rows, 1)
	assert.Equal(t, "Mint", rows[0].Name)
}

func TestExistsAndExistsAll(t *testing.T) {
	f := newFixture(t)
	salt := f.product(t, "Salt", nil)
	pepper := f.product(t, "Pepper", nil)

	ok, err := f.products.Exists(f.dbc, Fields{"name": "Salt"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.products.Exists(f.dbc, Fields{"name": "Sugar"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.products.ExistsAll(f.dbc, "id", []any{salt.ID, pepper.ID, salt.ID})
	require.NoError(t, err)
	assert.True(t, ok, "duplicates must not break the count")

	ok, err = f.products.ExistsAll(f.dbc, "id", []any{salt.ID, uuid.New()})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteClearsRecipeReferencesAndLinks(t *testing.T) {
	f := newFixture(t)
	dish := dbtest.SeedProduct(t, f.db, models.Product{Name: "Salad", IsDish: true})
	lettuce := f.product(t, "Lettuce", nil)

	recipe, err := f.recipes.CreateFields(f.dbc, Fields{"text": "Toss", "dish_id": &dish.ID})
	require.NoError(t, err)
	_, err = f.links.CreateFields(f.dbc, Fields{"recipe_id": recipe.ID, "component_id": lettuce.ID})
	require.NoError(t, err)

	deleted, err := f.products.Delete(f.dbc, Fields{"id": dish.ID})
	require.NoError(t, err)
	assert.Equal(t, "Salad", deleted.Name)

	stored, err := f.recipes.GetOr404(f.dbc, "", Fields{"id": recipe.ID})
	require.NoError(t, err)
	assert.Nil(t, stored.DishID)

	_, err = f.products.Delete(f.dbc, Fields{"id": lettuce.ID})
	require.NoError(t, err)
	linked, err := f.links.Exists(f.dbc, Fields{"recipe_id": recipe.ID})
	require.NoError(t, err)
	assert.False(t, linked)

	_, err = f.products.Delete(f.dbc, Fields{"id": dish.ID})
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
}

func TestDeleteAllAndFilterIn(t *testing.T) {
	f := newFixture(t)
	salt := f.product(t, "Salt", nil)
	f.product(t, "Pepper", nil)
	f.product(t, "Sugar", nil)

	rows, err := f.products.FilterIn(f.dbc, "name", []any{"Salt", "Sugar"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	removed, err := f.products.DeleteAll(f.dbc, Criteria{Exprs: []filter.Expr{filter.NotIn{Field: "id", Values: []any{salt.ID}}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	all, err := f.products.All(f.dbc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Salt"}, names(all))
}

func TestOperationsJoinTheSuppliedTransaction(t *testing.T) {
	f := newFixture(t)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
		if _, err := f.products.CreateFields(dbc, Fields{"name": "Saffron"}); err != nil {
			return err
		}
		_, err := f.products.CreateFields(dbc, Fields{"name": "Saffron"})
		return err
	})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	ok, err := f.products.Exists(f.dbc, Fields{"name": "Saffron"})
	require.NoError(t, err)
	assert.False(t, ok, "rolled back rows must not be visible")
}
