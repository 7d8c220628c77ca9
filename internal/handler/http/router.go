package http

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ogrinko/userauth/internal/service"
	"github.com/ogrinko/userauth/pkg/health"
	"github.com/ogrinko/userauth/pkg/middleware"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// RouterConfig collects the router's collaborators.
type RouterConfig struct {
	Service        *service.AuthService
	Health         *health.Handler
	Logger         *slog.Logger
	ServiceName    string
	AllowedOrigins []string
}

// NewRouter assembles the HTTP surface: the /auth and /user endpoints
// plus health and metrics.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(chimw.RequestSize(maxBodyBytes))
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(ContentTypeJSON)

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(cfg.Service)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/verify-email", authHandler.VerifyEmail)
		r.Post("/resend-verification", authHandler.ResendVerification)
		r.Post("/request-password-reset", authHandler.RequestPasswordReset)
		r.Post("/reset-password", authHandler.ResetPassword)
		r.Post("/refresh-token", authHandler.RefreshToken)
	})

	userHandler := NewUserHandler(cfg.Service)
	r.Route("/user", func(r chi.Router) {
		r.Use(RequireUser(cfg.Service))
		r.Get("/account-info", userHandler.AccountInfo)
		r.Get("/profile", userHandler.GetProfile)
		r.Put("/profile", userHandler.UpdateProfile)
		r.Put("/change-password", userHandler.ChangePassword)
	})

	return r
}
