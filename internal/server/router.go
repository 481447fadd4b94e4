package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"larder/internal/handlers"
	applog "larder/internal/log"
)

func newRouter() http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")
	mux.HandleFunc("/healthz", handlers.Health)
	applog.Debug(context.Background(), "route registered", "path", "/healthz")
	mux.Handle("/metrics", promhttp.Handler())
	applog.Debug(context.Background(), "route registered", "path", "/metrics")
	mux.HandleFunc("/products", handlers.ProductResource)
	mux.HandleFunc("/products/", handlers.ProductResource)
	applog.Debug(context.Background(), "route registered", "path", "/products/")
	return mux
}
