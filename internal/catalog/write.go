package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"larder/internal/apierr"
	"larder/internal/dbctx"
	"larder/internal/log"
	"larder/internal/manager"
	"larder/models"
)

// editable lists the product columns a partial update may change.
var editable = map[string]bool{
	"name":          true,
	"receipt":       true,
	"image":         true,
	"calories":      true,
	"proteins":      true,
	"fats":          true,
	"carbohydrates": true,
	"is_dish":       true,
	"number":        true,
	"weight":        true,
}

// Update applies a partial update to one product. A string image value is
// a source URL that replaces the stored image, an empty or null image
// clears it. The previous image is removed once the update commits.
func (s *Service) Update(ctx context.Context, id uuid.UUID, fields manager.Fields) (*models.Product, error) {
	data := make(manager.Fields, len(fields))
	for name, value := range fields {
		if !editable[name] {
			return nil, apierr.BadRequest("Product field %q cannot be updated", name)
		}
		data[name] = value
	}
	if name, ok := data["name"]; ok {
		text, _ := name.(string)
		if strings.TrimSpace(text) == "" {
			return nil, apierr.BadRequest("product name is required")
		}
		data["name"] = strings.TrimSpace(text)
	}

	var previous, uploaded string
	err := s.transaction(ctx, func(dbc dbctx.Context) error {
		current, err := s.products.GetOr404(dbc, "", manager.Fields{"id": id})
		if err != nil {
			return err
		}

		if raw, ok := data["image"]; ok {
			source, err := imageSource(raw)
			if err != nil {
				return err
			}
			if uploaded, err = s.images.Fetch(ctx, source); err != nil {
				return err
			}
			data["image"] = uploaded
			previous = current.Image
		}

		_, err = s.products.Update(dbc, data, manager.Fields{"id": id})
		return err
	})
	if err != nil {
		s.discard(ctx, []string{uploaded})
		return nil, err
	}

	if previous != "" && previous != uploaded {
		s.discard(ctx, []string{previous})
	}
	log.Info(ctx, "product updated", "id", id, "fields", len(data))
	return s.Get(ctx, id)
}

func imageSource(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", apierr.BadRequest("Product: invalid value for image: %v", v)
	}
}

// Delete removes one product. Recipes of a deleted dish lose their dish
// reference, composition links are removed with it. The stored image is
// removed best-effort after the delete commits.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var image string
	err := s.transaction(ctx, func(dbc dbctx.Context) error {
		product, err := s.products.Delete(dbc, manager.Fields{"id": id})
		if err != nil {
			return err
		}
		image = product.Image
		return nil
	})
	if err != nil {
		return err
	}

	s.discard(ctx, []string{image})
	log.Info(ctx, "product deleted", "id", id)
	return nil
}
