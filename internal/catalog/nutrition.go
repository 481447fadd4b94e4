package catalog

import (
	"context"

	"github.com/google/uuid"

	"larder/internal/apierr"
	"larder/internal/dbctx"
	"larder/internal/manager"
	"larder/models"
)

// Nutrients are summed nutrient values.
type Nutrients struct {
	Calories      float64 `json:"calories"`
	Proteins      float64 `json:"proteins"`
	Fats          float64 `json:"fats"`
	Carbohydrates float64 `json:"carbohydrates"`
}

func (n Nutrients) add(o Nutrients) Nutrients {
	return Nutrients{
		Calories:      n.Calories + o.Calories,
		Proteins:      n.Proteins + o.Proteins,
		Fats:          n.Fats + o.Fats,
		Carbohydrates: n.Carbohydrates + o.Carbohydrates,
	}
}

// RecipeNutrition totals the components of one recipe. Incomplete names
// the components whose values could not be fully determined.
type RecipeNutrition struct {
	ID         uuid.UUID `json:"id"`
	Text       string    `json:"text"`
	Totals     Nutrients `json:"totals"`
	Incomplete []string  `json:"incomplete"`
}

// Nutrition holds the derived totals of every recipe of a product.
type Nutrition struct {
	ID      uuid.UUID         `json:"id"`
	Name    string            `json:"name"`
	Recipes []RecipeNutrition `json:"recipes"`
}

type derived struct {
	nutrients Nutrients
	complete  bool
}

// walker derives nutrients over the composition graph. memo caches
// finished products, stack holds the products being derived.
type walker struct {
	s     *Service
	dbc   dbctx.Context
	memo  map[uuid.UUID]derived
	stack map[uuid.UUID]bool
}

// Nutrition sums the nutrients of the components of every recipe of the
// product. A component missing some values takes them from the totals of
// its own first recipe, recursively. Circular compositions are rejected.
func (s *Service) Nutrition(ctx context.Context, id uuid.UUID) (*Nutrition, error) {
	dbc := dbctx.Context{Ctx: ctx}
	product, err := s.products.GetOr404(dbc, "", manager.Fields{"id": id})
	if err != nil {
		return nil, err
	}

	w := &walker{s: s, dbc: dbc, memo: map[uuid.UUID]derived{}, stack: map[uuid.UUID]bool{}}
	recipes, err := w.recipesOf(product.ID)
	if err != nil {
		return nil, err
	}

	out := &Nutrition{ID: product.ID, Name: product.Name, Recipes: make([]RecipeNutrition, 0, len(recipes))}
	w.stack[product.ID] = true
	for _, recipe := range recipes {
		totals, err := w.recipe(recipe)
		if err != nil {
			return nil, err
		}
		out.Recipes = append(out.Recipes, totals)
	}
	return out, nil
}

func (w *walker) recipesOf(dishID uuid.UUID) ([]models.Recipe, error) {
	return w.s.recipes.Filter(w.dbc,
		manager.Criteria{Where: manager.Fields{"dish_id": dishID}, OrderBy: "created_at,id"},
		manager.Preload("Components"),
	)
}

func (w *walker) recipe(recipe models.Recipe) (RecipeNutrition, error) {
	out := RecipeNutrition{ID: recipe.ID, Text: recipe.Text, Incomplete: []string{}}
	sortProducts(recipe.Components)
	for _, component := range recipe.Components {
		if component == nil {
			continue
		}
		d, err := w.product(component)
		if err != nil {
			return out, err
		}
		out.Totals = out.Totals.add(d.nutrients)
		if !d.complete {
			out.Incomplete = append(out.Incomplete, component.Name)
		}
	}
	return out, nil
}

func (w *walker) product(p *models.Product) (derived, error) {
	if d, ok := w.memo[p.ID]; ok {
		return d, nil
	}
	if w.stack[p.ID] {
		return derived{}, apierr.BadRequest("composition of %s is circular", p.Name)
	}

	own := []*float64{p.Calories, p.Proteins, p.Fats, p.Carbohydrates}
	d := derived{nutrients: Nutrients{
		Calories:      value(p.Calories),
		Proteins:      value(p.Proteins),
		Fats:          value(p.Fats),
		Carbohydrates: value(p.Carbohydrates),
	}, complete: true}
	for _, v := range own {
		if v == nil {
			d.complete = false
		}
	}

	if !d.complete {
		w.stack[p.ID] = true
		recipes, err := w.recipesOf(p.ID)
		if err != nil {
			return derived{}, err
		}
		if len(recipes) > 0 {
			sub, err := w.recipe(recipes[0])
			if err != nil {
				return derived{}, err
			}
			d.nutrients = fill(p, d.nutrients, sub.Totals)
			d.complete = len(sub.Incomplete) == 0
		}
		w.stack[p.ID] = false
	}

	w.memo[p.ID] = d
	return d, nil
}

// fill replaces the values p leaves unset with those of from.
func fill(p *models.Product, n, from Nutrients) Nutrients {
	if p.Calories == nil {
		n.Calories = from.Calories
	}
	if p.Proteins == nil {
		n.Proteins = from.Proteins
	}
	if p.Fats == nil {
		n.Fats = from.Fats
	}
	if p.Carbohydrates == nil {
		n.Carbohydrates = from.Carbohydrates
	}
	return n
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
