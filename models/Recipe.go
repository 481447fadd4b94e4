package models

import (
	"github.com/google/uuid"
)

type Recipe struct {
	Base
	Text       string     `gorm:"type:text;not null" json:"text"`
	DishID     *uuid.UUID `gorm:"type:uuid;index" json:"dish_id"` // cleared when the dish is deleted
	Components []*Product `gorm:"many2many:recipe_components_link;joinForeignKey:RecipeID;joinReferences:ComponentID;constraint:OnDelete:CASCADE" json:"components"`
}

func (Recipe) TableName() string  { return "recipes" }
func (Recipe) EntityName() string { return "Recipe" }
