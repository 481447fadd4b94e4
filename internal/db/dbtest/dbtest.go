// Package dbtest opens throwaway migrated databases for package tests.
package dbtest

import (
	"context"
	"testing"

	"larder/internal/db"
	"larder/internal/schema"
	"larder/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated in-memory SQLite database private to t.
// Foreign keys are enforced and the pool holds a single connection so
// every statement sees the same memory database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:larder-test-" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	database, err := gorm.Open(sqlite.Open(dsn), db.GormConfig(logger.Silent))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(database); err != nil {
		t.Fatalf("migrate sqlite database: %v", err)
	}
	return database
}

// Registry builds the constraint registry for every catalog model of database.
func Registry(t testing.TB, database *gorm.DB) *schema.Registry {
	t.Helper()

	inspector, err := schema.NewInspector(database)
	if err != nil {
		t.Fatalf("new inspector: %v", err)
	}
	registry, err := schema.Build(context.Background(), inspector, models.Entities()...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return registry
}

// Float is shorthand for optional nutrient values in fixtures.
func Float(v float64) *float64 { return &v }

// SeedProduct inserts a product bypassing integrity checks.
func SeedProduct(t testing.TB, database *gorm.DB, product models.Product) models.Product {
	t.Helper()
	if err := database.Omit("Components", "Recipes").Create(&product).Error; err != nil {
		t.Fatalf("seed product %s: %v", product.Name, err)
	}
	return product
}
