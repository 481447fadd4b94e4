package catalog

import (
	"context"
	"strings"

	"larder/internal/dbctx"
	"larder/internal/filter"
	"larder/internal/manager"
	"larder/models"
)

const defaultOrder = "name"

// List returns one page of products matching set. Products are ordered by
// name unless set carries its own ordering.
func (s *Service) List(ctx context.Context, set filter.Set, page manager.PageParams) (manager.Page[models.Product], error) {
	criteria := manager.Criteria{Exprs: set.Exprs}
	if !ordered(set) {
		criteria.OrderBy = defaultOrder
	}
	return s.products.Paginate(dbctx.Context{Ctx: ctx}, criteria, page)
}

func ordered(set filter.Set) bool {
	for _, e := range set.Exprs {
		if _, ok := e.(filter.OrderBy); ok {
			return true
		}
	}
	return false
}

// byNameFold matches products whose name equals name ignoring case,
// oldest first. Case is folded by the database: SQLite's LOWER only folds
// ASCII letters, so on SQLite "ÉCLAIR" does not find a stored "éclair"
// while PostgreSQL does. Within one create request the graph memo folds
// full Unicode case and links both spellings to the same product.
func (s *Service) byNameFold(dbc dbctx.Context, name string) manager.Criteria {
	return manager.Criteria{
		Base:    s.products.Base(dbc).Where("LOWER(products.name) = LOWER(?)", strings.TrimSpace(name)),
		OrderBy: "created_at",
	}
}
