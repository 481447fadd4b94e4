// Package catalog implements the product catalog operations on top of the
// generic data manager: the create graph, detail and list reads, updates,
// deletes and derived nutrition.
package catalog

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"larder/internal/dbctx"
	"larder/internal/log"
	"larder/internal/manager"
	"larder/internal/schema"
	"larder/internal/storage"
	"larder/models"
)

// ImageFetcher copies a remote image into object storage and returns its
// key. An unreachable source yields an empty key and no error.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Service owns the catalog managers and the image collaborators.
type Service struct {
	db          *gorm.DB
	products    *manager.Manager[models.Product, *models.Product]
	recipes     *manager.Manager[models.Recipe, *models.Recipe]
	dishLinks   *manager.Manager[models.DishComponentsLink, *models.DishComponentsLink]
	recipeLinks *manager.Manager[models.RecipeComponentsLink, *models.RecipeComponentsLink]
	images      ImageFetcher
	store       storage.ObjectStorage
}

// NewService wires the managers of every catalog entity to constraints.
func NewService(db *gorm.DB, constraints schema.Source, images ImageFetcher, store storage.ObjectStorage) (*Service, error) {
	if images == nil {
		return nil, errors.New("catalog: image fetcher is nil")
	}
	if store == nil {
		return nil, errors.New("catalog: object storage is nil")
	}

	products, err := manager.New[models.Product](db, constraints)
	if err != nil {
		return nil, err
	}
	recipes, err := manager.New[models.Recipe](db, constraints)
	if err != nil {
		return nil, err
	}
	dishLinks, err := manager.New[models.DishComponentsLink](db, constraints)
	if err != nil {
		return nil, err
	}
	recipeLinks, err := manager.New[models.RecipeComponentsLink](db, constraints)
	if err != nil {
		return nil, err
	}

	return &Service{
		db:          db,
		products:    products,
		recipes:     recipes,
		dishLinks:   dishLinks,
		recipeLinks: recipeLinks,
		images:      images,
		store:       store,
	}, nil
}

// Products exposes the product manager for importers and tooling.
func (s *Service) Products() *manager.Manager[models.Product, *models.Product] {
	return s.products
}

// ImageURL resolves a stored image key to its public address.
func (s *Service) ImageURL(key string) *string {
	return s.store.PublicURL(key)
}

// transaction runs fn inside one database transaction bound to ctx.
func (s *Service) transaction(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// discard removes uploaded objects after a failed write.
func (s *Service) discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
			log.Warn(ctx, "failed to remove stored image", "key", key, "error", err)
		}
	}
}

// Get returns the product with its recipes and their components.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.products.GetOr404(dbctx.Context{Ctx: ctx}, "", manager.Fields{"id": id},
		manager.Preload("Recipes", func(db *gorm.DB) *gorm.DB {
			return db.Order("recipes.created_at").Order("recipes.id")
		}),
		manager.Preload("Recipes.Components"),
	)
	if err != nil {
		return nil, err
	}
	for i := range product.Recipes {
		sortProducts(product.Recipes[i].Components)
	}
	return product, nil
}

func sortProducts(products []*models.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID.String() < products[j].ID.String()
	})
}

// Ping checks that the catalog database answers.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
