package models

import (
	"github.com/google/uuid"
)

type Product struct {
	Base
	Name          string   `gorm:"type:text;not null;uniqueIndex:idx_products_name" json:"name"`
	Receipt       string   `gorm:"type:text" json:"receipt"`
	Image         string   `gorm:"size:255;not null;default:''" json:"image"`
	Calories      *float64 `json:"calories"`
	Proteins      *float64 `json:"proteins"`
	Fats          *float64 `json:"fats"`
	Carbohydrates *float64 `json:"carbohydrates"`
	IsDish        bool     `gorm:"not null;default:false" json:"is_dish"`
	Number        *int     `json:"number"`
	Weight        *int     `json:"weight"`

	// Components are the products this dish is made of. The same product
	// may be a component of many dishes and a dish in its own right.
	Components []*Product `gorm:"many2many:dish_components_link;joinForeignKey:DishID;joinReferences:ComponentID;constraint:OnDelete:CASCADE" json:"components,omitempty"`
	Recipes    []Recipe   `gorm:"foreignKey:DishID;constraint:OnDelete:SET NULL" json:"recipes,omitempty"`
}

func (Product) TableName() string  { return "products" }
func (Product) EntityName() string { return "Product" }

// ComponentIDs returns the identifiers of the loaded components.
func (p *Product) ComponentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Components))
	for _, component := range p.Components {
		if component != nil {
			ids = append(ids, component.ID)
		}
	}
	return ids
}
