package handlers

import (
	"github.com/google/uuid"

	"larder/internal/manager"
	"larder/models"
)

type productListItem struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Calories      *float64  `json:"calories"`
	Proteins      *float64  `json:"proteins"`
	Fats          *float64  `json:"fats"`
	Carbohydrates *float64  `json:"carbohydrates"`
	Image         *string   `json:"image"`
}

type componentResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	IsDish        bool      `json:"is_dish"`
	Calories      *float64  `json:"calories"`
	Proteins      *float64  `json:"proteins"`
	Fats          *float64  `json:"fats"`
	Carbohydrates *float64  `json:"carbohydrates"`
	Image         *string   `json:"image"`
}

type recipeResponse struct {
	ID         uuid.UUID           `json:"id"`
	Text       string              `json:"text"`
	Components []componentResponse `json:"components"`
}

type productResponse struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	IsDish        bool             `json:"is_dish"`
	Recipes       []recipeResponse `json:"recipes"`
	Calories      *float64         `json:"calories"`
	Proteins      *float64         `json:"proteins"`
	Fats          *float64         `json:"fats"`
	Carbohydrates *float64         `json:"carbohydrates"`
	Number        *int             `json:"number"`
	Weight        *int             `json:"weight"`
	Image         *string          `json:"image"`
}

type pageResponse struct {
	Items []productListItem `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}

// imageURL rewrites a stored key to its public address, nil without an image.
func imageURL(key string) *string {
	if catalogService == nil {
		return nil
	}
	return catalogService.ImageURL(key)
}

func projectListItem(p models.Product) productListItem {
	return productListItem{
		ID:            p.ID,
		Name:          p.Name,
		Calories:      p.Calories,
		Proteins:      p.Proteins,
		Fats:          p.Fats,
		Carbohydrates: p.Carbohydrates,
		Image:         imageURL(p.Image),
	}
}

func projectPage(page manager.Page[models.Product]) pageResponse {
	items := make([]productListItem, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, projectListItem(p))
	}
	return pageResponse{Items: items, Total: page.Total, Page: page.Page, Size: page.Size}
}

func projectComponent(p *models.Product) componentResponse {
	return componentResponse{
		ID:            p.ID,
		Name:          p.Name,
		IsDish:        p.IsDish,
		Calories:      p.Calories,
		Proteins:      p.Proteins,
		Fats:          p.Fats,
		Carbohydrates: p.Carbohydrates,
		Image:         imageURL(p.Image),
	}
}

func projectProduct(p *models.Product) productResponse {
	recipes := make([]recipeResponse, 0, len(p.Recipes))
	for _, recipe := range p.Recipes {
		components := make([]componentResponse, 0, len(recipe.Components))
		for _, component := range recipe.Components {
			if component != nil {
				components = append(components, projectComponent(component))
			}
		}
		recipes = append(recipes, recipeResponse{ID: recipe.ID, Text: recipe.Text, Components: components})
	}

	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		IsDish:        p.IsDish,
		Recipes:       recipes,
		Calories:      p.Calories,
		Proteins:      p.Proteins,
		Fats:          p.Fats,
		Carbohydrates: p.Carbohydrates,
		Number:        p.Number,
		Weight:        p.Weight,
		Image:         imageURL(p.Image),
	}
}
