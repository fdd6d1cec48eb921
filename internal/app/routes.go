package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"store-core/internal/auth"
	"store-core/internal/dispatch"
	"store-core/internal/maintenance"
	"store-core/internal/observability"
	"store-core/internal/product"
	"store-core/internal/respond"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type routeDeps struct {
	dispatcher  *dispatch.Dispatcher
	tokens      *auth.TokenService
	logger      *observability.Logger
	database    pinger
	limiter     *auth.LoginRateLimiter
	maintenance *maintenance.CleanupHandler
}

func routes(deps routeDeps) *http.ServeMux {
	users := auth.NewHandler(deps.dispatcher, auth.RoleUser, deps.logger)
	admins := auth.NewHandler(deps.dispatcher, auth.RoleAdmin, deps.logger)
	products := product.NewHandler(deps.dispatcher, deps.logger)

	requireUser := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(deps.tokens, auth.RoleUser, deps.logger, h)
	}
	requireAdmin := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(deps.tokens, auth.RoleAdmin, deps.logger, h)
	}
	limited := func(h http.HandlerFunc) http.Handler {
		return deps.limiter.Middleware(h)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/user/auth/register", users.Register)
	mux.Handle("POST /api/user/auth/login", limited(users.Login))
	mux.HandleFunc("POST /api/user/auth/refresh", users.Refresh)
	mux.HandleFunc("POST /api/user/auth/logout", users.Logout)
	mux.Handle("GET /api/user/auth/profile", requireUser(users.Profile))

	mux.Handle("POST /api/admin/auth/register", requireAdmin(admins.Register))
	mux.Handle("POST /api/admin/auth/login", limited(admins.Login))
	mux.HandleFunc("POST /api/admin/auth/refresh", admins.Refresh)
	mux.HandleFunc("POST /api/admin/auth/logout", admins.Logout)
	mux.Handle("GET /api/admin/auth/profile", requireAdmin(admins.Profile))
	mux.Handle("GET /api/admin/users", requireAdmin(admins.ListUsers))
	mux.Handle("POST /api/admin/users/{id}/revoke", requireAdmin(admins.RevokeSessions))

	mux.HandleFunc("GET /api/products", products.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", products.GetProduct)
	mux.Handle("POST /api/products", requireAdmin(products.CreateProduct))
	mux.Handle("PUT /api/products/{id}", requireAdmin(products.UpdateProduct))
	mux.Handle("PATCH /api/products/{id}/stock", requireAdmin(products.AdjustStock))
	mux.Handle("DELETE /api/products/{id}", requireAdmin(products.DeleteProduct))

	mux.HandleFunc("GET /internal/maintenance/cleanup", deps.maintenance.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", deps.maintenance.Handle)
	mux.HandleFunc("GET /health", healthHandler(deps.database))
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func healthHandler(database pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		respond.JSON(w, status, body)
	}
}
