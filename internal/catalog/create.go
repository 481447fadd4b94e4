package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"larder/internal/apierr"
	"larder/internal/dbctx"
	"larder/internal/log"
	"larder/internal/metrics"
	"larder/models"
)

// ProductInput carries the writable attributes of a product. Image is a
// source URL that is downloaded into object storage.
type ProductInput struct {
	Name          string   `json:"name"`
	IsDish        bool     `json:"is_dish"`
	Calories      *float64 `json:"calories"`
	Proteins      *float64 `json:"proteins"`
	Fats          *float64 `json:"fats"`
	Carbohydrates *float64 `json:"carbohydrates"`
	Number        *int     `json:"number"`
	Weight        *int     `json:"weight"`
	Receipt       string   `json:"receipt"`
	Image         string   `json:"image"`
}

// RecipeInput is one recipe of a dish and the products it uses.
type RecipeInput struct {
	Text       string         `json:"text"`
	Components []ProductInput `json:"components"`
}

// DishInput is the body of the create graph.
type DishInput struct {
	ProductInput
	Recipes []RecipeInput `json:"recipes"`
}

func (in ProductInput) validate(what string) error {
	if strings.TrimSpace(in.Name) == "" {
		return apierr.BadRequest("%s name is required", what)
	}
	return nil
}

// Validate rejects bodies that cannot produce a dish.
func (in DishInput) Validate() error {
	if err := in.ProductInput.validate("product"); err != nil {
		return err
	}
	for i, recipe := range in.Recipes {
		for _, component := range recipe.Components {
			if err := component.validate("component"); err != nil {
				return apierr.BadRequest("recipe %d: %v", i+1, err)
			}
		}
	}
	return nil
}

// build turns the input into an unsaved product with the stored image key.
func (in ProductInput) build(image string) *models.Product {
	return &models.Product{
		Name:          strings.TrimSpace(in.Name),
		Receipt:       in.Receipt,
		Image:         image,
		Calories:      in.Calories,
		Proteins:      in.Proteins,
		Fats:          in.Fats,
		Carbohydrates: in.Carbohydrates,
		IsDish:        in.IsDish,
		Number:        in.Number,
		Weight:        in.Weight,
	}
}

// graph tracks the rows and uploads of one create graph.
type graph struct {
	dbc      dbctx.Context
	fold     cases.Caser
	resolved map[string]uuid.UUID
	uploaded []string
}

// CreateDish creates the dish, its recipes and any new component
// products in one transaction. Components are matched to existing
// products by case-insensitive name. Nothing persists when any step
// fails, and images uploaded by the failed attempt are removed.
func (s *Service) CreateDish(ctx context.Context, in DishInput) (*models.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	g := &graph{fold: cases.Fold(), resolved: map[string]uuid.UUID{}}
	var dishID uuid.UUID

	err := s.transaction(ctx, func(dbc dbctx.Context) error {
		g.dbc = dbc

		dish, err := s.createProduct(g, in.ProductInput)
		if err != nil {
			return err
		}
		dishID = dish.ID
		g.resolved[g.key(dish.Name)] = dish.ID

		dishComponents := map[uuid.UUID]struct{}{}
		for _, recipeIn := range in.Recipes {
			recipe := &models.Recipe{Text: recipeIn.Text, DishID: &dish.ID}
			if err := s.recipes.Create(dbc, recipe); err != nil {
				return err
			}

			linked := map[uuid.UUID]struct{}{}
			for _, componentIn := range recipeIn.Components {
				componentID, err := s.resolveComponent(g, componentIn)
				if err != nil {
					return err
				}

				if _, dup := linked[componentID]; !dup {
					linked[componentID] = struct{}{}
					link := &models.RecipeComponentsLink{RecipeID: recipe.ID, ComponentID: componentID}
					if err := s.recipeLinks.Create(dbc, link); err != nil {
						return err
					}
				}

				if _, dup := dishComponents[componentID]; !dup {
					dishComponents[componentID] = struct{}{}
					link := &models.DishComponentsLink{DishID: dish.ID, ComponentID: componentID}
					if err := s.dishLinks.Create(dbc, link); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, g.uploaded)
		return nil, err
	}

	metrics.DishesCreated.Inc()
	log.Info(ctx, "dish created", "id", dishID, "name", in.Name, "recipes", len(in.Recipes))
	return s.Get(ctx, dishID)
}

func (g *graph) key(name string) string {
	return g.fold.String(strings.TrimSpace(name))
}

// resolveComponent returns the id of the product named like in, creating
// it when no product matches.
func (s *Service) resolveComponent(g *graph, in ProductInput) (uuid.UUID, error) {
	key := g.key(in.Name)
	if id, ok := g.resolved[key]; ok {
		metrics.ComponentsResolved.WithLabelValues(metrics.OutcomeReused).Inc()
		return id, nil
	}

	existing, err := s.products.Filter(g.dbc, s.byNameFold(g.dbc, in.Name))
	if err != nil {
		return uuid.Nil, err
	}
	if len(existing) > 0 {
		g.resolved[key] = existing[0].ID
		metrics.ComponentsResolved.WithLabelValues(metrics.OutcomeReused).Inc()
		return existing[0].ID, nil
	}

	component, err := s.createProduct(g, in)
	if err != nil {
		return uuid.Nil, err
	}
	g.resolved[key] = component.ID
	metrics.ComponentsResolved.WithLabelValues(metrics.OutcomeCreated).Inc()
	return component.ID, nil
}

func (s *Service) createProduct(g *graph, in ProductInput) (*models.Product, error) {
	image, err := s.images.Fetch(g.dbc.Context(), in.Image)
	if err != nil {
		return nil, err
	}
	if image != "" {
		g.uploaded = append(g.uploaded, image)
	}

	product := in.build(image)
	if err := s.products.Create(g.dbc, product); err != nil {
		return nil, err
	}
	return product, nil
}
