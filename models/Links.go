package models

import (
	"github.com/google/uuid"
)

// DishComponentsLink joins a dish product to one of its component products.
// Its foreign keys are declared by Product.Components and cascade on delete.
type DishComponentsLink struct {
	DishID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"dish_id"`
	ComponentID uuid.UUID `gorm:"type:uuid;primaryKey" json:"component_id"`
}

func (DishComponentsLink) TableName() string  { return "dish_components_link" }
func (DishComponentsLink) EntityName() string { return "DishComponentsLink" }

// RecipeComponentsLink joins a recipe to one of the products it uses.
// Its foreign keys are declared by Recipe.Components and cascade on delete.
type RecipeComponentsLink struct {
	RecipeID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"recipe_id"`
	ComponentID uuid.UUID `gorm:"type:uuid;primaryKey" json:"component_id"`
}

func (RecipeComponentsLink) TableName() string  { return "recipe_components_link" }
func (RecipeComponentsLink) EntityName() string { return "RecipeComponentsLink" }

// All lists every catalog model in migration order.
func All() []any {
	return []any{
		&Product{},
		&Recipe{},
		&DishComponentsLink{},
		&RecipeComponentsLink{},
	}
}

// Entities lists the catalog models whose constraints are registered at startup.
func Entities() []Entity {
	return []Entity{
		Product{},
		Recipe{},
		DishComponentsLink{},
		RecipeComponentsLink{},
	}
}
