// Package mock opens an in-memory catalog seeded with a small pantry and
// one composed dish, for running the server without a database.
package mock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"larder/internal/db"
	applog "larder/internal/log"
	"larder/models"
)

// New returns an in-memory sqlite database seeded with representative catalog data.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	dsn := fmt.Sprintf("file:larder-mock-%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), db.GormConfig(logger.Silent))
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	// A single connection keeps the shared memory database alive and
	// serialises writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database); err != nil {
		return nil, err
	}

	if err := seed(ctx, database); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return database, nil
}

func float(v float64) *float64 { return &v }

func seed(ctx context.Context, database *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")

	pantry := []models.Product{
		{Name: "Wheat Flour", Calories: float(364), Proteins: float(10.3), Fats: float(1), Carbohydrates: float(76.3)},
		{Name: "Milk", Calories: float(42), Proteins: float(3.4), Fats: float(1), Carbohydrates: float(5)},
		{Name: "Egg", Calories: float(155), Proteins: float(12.6), Fats: float(10.6), Carbohydrates: float(1.1)},
		{Name: "Butter", Calories: float(717), Proteins: float(0.9), Fats: float(81.1), Carbohydrates: float(0.1)},
		{Name: "Sugar", Calories: float(387), Proteins: float(0), Fats: float(0), Carbohydrates: float(100)},
		{Name: "Blueberries", Calories: float(57), Proteins: float(0.7), Fats: float(0.3), Carbohydrates: float(14.5)},
		{Name: "Salt"},
	}

	return database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range pantry {
			if err := tx.Omit("Components", "Recipes").Create(&pantry[i]).Error; err != nil {
				return err
			}
		}

		dish := models.Product{Name: "Blueberry Pancakes", IsDish: true, Receipt: "Serves four."}
		if err := tx.Omit("Components", "Recipes").Create(&dish).Error; err != nil {
			return err
		}

		recipes := []struct {
			text       string
			components []int
		}{
			{text: "Whisk flour, milk, egg and sugar. Fold in blueberries and fry in butter.", components: []int{0, 1, 2, 3, 4, 5}},
			{text: "Salted variant without sugar.", components: []int{0, 1, 2, 3, 6}},
		}

		linked := map[uuid.UUID]bool{}
		for _, r := range recipes {
			recipe := models.Recipe{Text: r.text, DishID: &dish.ID}
			if err := tx.Omit("Components").Create(&recipe).Error; err != nil {
				return err
			}
			for _, idx := range r.components {
				component := pantry[idx]
				if err := tx.Create(&models.RecipeComponentsLink{RecipeID: recipe.ID, ComponentID: component.ID}).Error; err != nil {
					return err
				}
				if linked[component.ID] {
					continue
				}
				linked[component.ID] = true
				if err := tx.Create(&models.DishComponentsLink{DishID: dish.ID, ComponentID: component.ID}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
