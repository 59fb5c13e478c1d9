package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventmaster-auth/internal/config"
	"eventmaster-auth/internal/handler"
	"eventmaster-auth/internal/middleware"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Role   *handler.RoleHandler
	Health *handler.HealthHandler
}

// Options carries the optional pieces of the middleware chain.
type Options struct {
	RateLimit *middleware.RateLimitMiddleware
	Metrics   func(http.Handler) http.Handler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.ClientIP(cfg.TrustedProxies))
	r.Use(middleware.Logging)
	if opts.Metrics != nil {
		r.Use(opts.Metrics)
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	if opts.RateLimit != nil {
		r.Use(opts.RateLimit.Handler)
	}

	r.Get("/health", h.Health.Health)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refreshToken", h.Auth.RefreshToken)
			auth.With(
				authMiddleware.RequireAuth,
				authMiddleware.RequireSelfOrRoles("userId", middleware.RoleAdmin),
			).Delete("/logout/{userId}", h.Auth.Logout)
		})

		api.Group(func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Use(authMiddleware.RequirePolicy(middleware.PolicyAdminArea))

			admin.Get("/user/getAll", h.User.GetAll)

			admin.Get("/role/getAll", h.Role.GetAll)
			admin.Put("/role/setRoleToUser", h.Role.SetRoleToUser)
			admin.Put("/role/removeRoleFromUser", h.Role.RemoveRoleFromUser)
			admin.Get("/role/getRolesByUser/{userId}", h.Role.GetRolesByUser)
			admin.Get("/role/isInUse/{roleId}", h.Role.IsInUse)
		})
	})

	return r
}
