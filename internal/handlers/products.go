package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"larder/internal/apierr"
	"larder/internal/catalog"
	"larder/internal/filter"
	applog "larder/internal/log"
	"larder/internal/manager"
)

const productsPrefix = "/products"

// ProductResource serves the product catalog:
//
//	GET    /products/                list
//	POST   /products/                create a dish with its recipes
//	GET    /products/{id}            detail
//	PUT    /products/{id}            partial update
//	DELETE /products/{id}            delete
//	GET    /products/{id}/nutrition  derived recipe totals
func ProductResource(w http.ResponseWriter, r *http.Request) {
	if catalogService == nil {
		applog.Debug(r.Context(), "product request without catalog service")
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, productsPrefix)
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			listProducts(w, r)
		case http.MethodPost:
			createProduct(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	segments := strings.Split(path, "/")
	productID, err := uuid.Parse(segments[0])
	if err != nil {
		applog.Debug(r.Context(), "invalid product identifier", "identifier", segments[0], "error", err)
		writeError(w, r, apierr.NotFound("Product not found"))
		return
	}

	if len(segments) > 1 {
		if len(segments) == 2 && segments[1] == "nutrition" {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			showNutrition(w, r, productID)
			return
		}
		writeError(w, r, apierr.NotFound("route not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		showProduct(w, r, productID)
	case http.MethodPut, http.MethodPatch:
		updateProduct(w, r, productID)
	case http.MethodDelete:
		deleteProduct(w, r, productID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := pageParams(query.Get("page"), query.Get("size"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	set, err := filter.Products.Parse(query)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := catalogService.List(r.Context(), set, page)
	if err != nil {
		writeError(w, r, err)
		return
	}

	applog.Debug(r.Context(), "products listed", "total", result.Total, "page", result.Page, "size", result.Size)
	writeJSON(w, http.StatusOK, projectPage(result))
}

func pageParams(rawPage, rawSize string) (manager.PageParams, error) {
	params := manager.PageParams{Page: 1, Size: pagination.DefaultSize}

	if rawPage = strings.TrimSpace(rawPage); rawPage != "" {
		page, err := strconv.Atoi(rawPage)
		if err != nil || page < 1 {
			return params, apierr.BadRequest("page must be a positive integer")
		}
		params.Page = page
	}

	if rawSize = strings.TrimSpace(rawSize); rawSize != "" {
		size, err := strconv.Atoi(rawSize)
		if err != nil || size < 1 || size > pagination.MaxSize {
			return params, apierr.BadRequest("size must be between 1 and %d", pagination.MaxSize)
		}
		params.Size = size
	}

	return params, nil
}

func showProduct(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	product, err := catalogService.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectProduct(product))
}

func createProduct(w http.ResponseWriter, r *http.Request) {
	var input catalog.DishInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	product, err := catalogService.CreateDish(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectProduct(product))
}

func updateProduct(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var fields map[string]any
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, r, err)
		return
	}

	product, err := catalogService.Update(r.Context(), id, manager.Fields(fields))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectProduct(product))
}

func deleteProduct(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := catalogService.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func showNutrition(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	nutrition, err := catalogService.Nutrition(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nutrition)
}
