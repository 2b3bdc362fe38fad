package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"coraza-store/internal/account"
	"coraza-store/internal/activation"
	"coraza-store/internal/audit"
	"coraza-store/internal/auth"
	"coraza-store/internal/loader"
	"coraza-store/internal/loginhistory"
	"coraza-store/internal/maintenance"
	"coraza-store/internal/media"
	"coraza-store/internal/observability"
	"coraza-store/internal/product"
	"coraza-store/internal/stats"
	"coraza-store/internal/user"
)

type handlers struct {
	logger         *observability.Logger
	metrics        *observability.Metrics
	cors           observability.CORSConfig
	authenticator  *auth.Authenticator
	internalSecret func() string
	loginLimiter   auth.RateLimiter

	health http.HandlerFunc
	// uploads serves locally stored images; nil when images live remotely.
	uploads http.Handler

	accounts     *account.Handler
	users        *user.Handler
	products     *product.Handler
	images       *media.UploadHandler
	keys         *activation.Handler
	loader       *loader.Handler
	actionLogs   *audit.Handler
	loginHistory *loginhistory.Handler
	stats        *stats.Handler
	cleanup      *maintenance.CleanupHandler
}

func newRouter(h handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return observability.RecoverMiddleware(h.logger, next)
	})
	r.Use(func(next http.Handler) http.Handler {
		return observability.RequestLoggingMiddleware(h.logger, next)
	})
	r.Use(h.metrics.Middleware)
	r.Use(observability.CORSMiddleware(h.cors))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	if h.uploads != nil {
		r.Method(http.MethodGet, "/uploads/*", h.uploads)
	}

	loginLimit := auth.LoginRateLimit(h.loginLimiter, h.logger)
	requireAdmin := auth.RequireRole(auth.RoleAdmin)

	r.Route("/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/login", h.accounts.Login)
		r.With(loginLimit).Post("/register", h.accounts.Register)
		r.Post("/validate", h.accounts.Validate)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/public", h.products.ListPublic)
		r.Get("/public/{id}", h.products.GetPublic)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(h.authenticator.Middleware)
		r.Get("/me", h.users.Me)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/", h.users.List)
			r.Post("/", h.users.Create)
			r.Put("/{id}", h.users.Update)
			r.Delete("/{id}", h.users.Delete)
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(auth.InternalGate(h.internalSecret, h.logger))
		r.Post("/loader_login", h.loader.Login)
		r.Post("/loader_register", h.loader.Register)
		r.Post("/activate_key", h.loader.ActivateKey)
		r.Post("/ban_user", h.loader.BanUser)
		r.Post("/maintenance/cleanup", h.cleanup.Handle)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.authenticator.Middleware, requireAdmin)

		r.Get("/products", h.products.ListAll)
		r.Post("/products", h.products.Create)
		r.Post("/products/upload-image", h.images.Upload)
		r.Put("/products/{id}", h.products.Update)
		r.Delete("/products/{id}", h.products.Delete)
		r.Post("/products/{id}/freeze", h.products.Freeze)
		r.Post("/products/{id}/unfreeze", h.products.Unfreeze)

		r.Get("/activation_keys", h.keys.List)
		r.Post("/activation_keys", h.keys.Create)
		r.Delete("/activation_keys/{id}", h.keys.Delete)
		r.Post("/activation_keys/{id}/replace", h.keys.Replace)

		r.Get("/logs", h.actionLogs.List)
		r.Get("/login_history", h.loginHistory.List)
		r.Get("/users", h.users.List)
	})

	r.Route("/stats", func(r chi.Router) {
		r.Use(h.authenticator.Middleware, requireAdmin)
		r.Get("/registrations", h.stats.Registrations)
	})

	return r
}
