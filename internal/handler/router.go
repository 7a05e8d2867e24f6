package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kondiv/shop/internal/observability/metrics"
	"github.com/kondiv/shop/internal/security"
	"github.com/kondiv/shop/internal/security/audit"
	"github.com/kondiv/shop/internal/security/auth"
	"github.com/kondiv/shop/internal/security/middleware"
	"github.com/kondiv/shop/internal/security/ratelimit"
	"github.com/kondiv/shop/internal/service"
)

// RouterConfig wires services and security components into the HTTP API
type RouterConfig struct {
	Auth      *service.AuthService
	Items     *service.ItemService
	Purchases *service.PurchaseService
	Health    *HealthHandler

	Tokens      *auth.TokenManager
	Authz       *security.AuthorizationService
	Audit       *audit.Logger
	AuthLimiter *ratelimit.Limiter

	SecureCookies   bool
	DefaultPageSize int
	AllowedOrigins  []string
	AuditEnabled    bool
	MetricsEnabled  bool

	Logger *slog.Logger
}

// NewRouter builds the chi router for the shop API
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Authz == nil {
		cfg.Authz = security.NewAuthorizationService(log)
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NewLogger(log)
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthHandler(nil, log)
	}

	authHandler := NewAuthHandler(cfg.Auth, cfg.SecureCookies, log)
	itemHandler := NewItemHandler(cfg.Items, cfg.DefaultPageSize, log)
	purchaseHandler := NewPurchaseHandler(cfg.Purchases, cfg.DefaultPageSize, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(cors(cfg.AllowedOrigins))

	r.Get("/healthz", cfg.Health.Health)
	r.Get("/readyz", cfg.Health.Ready)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Use(middleware.ValidateJSONContentType(log))
		r.Use(middleware.Authenticate(cfg.Tokens, log))
		if cfg.AuditEnabled {
			r.Use(middleware.Audit(cfg.Audit))
		}

		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthLimiter != nil {
				r.Use(middleware.RateLimit(cfg.AuthLimiter, log))
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", itemHandler.List)
			r.Get("/{id:[0-9]+}", itemHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(cfg.Authz, cfg.Audit, security.PermCreateItem))
				r.Post("/", itemHandler.Create)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(cfg.Authz, cfg.Audit, security.PermUpdateItem))
				r.Use(middleware.RequireItemOwner(cfg.Items, cfg.Authz, cfg.Audit, log))
				r.Patch("/{id:[0-9]+}", itemHandler.Update)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(cfg.Authz, cfg.Audit, security.PermDeleteItem))
				r.Use(middleware.RequireItemOwner(cfg.Items, cfg.Authz, cfg.Audit, log))
				r.Delete("/{id:[0-9]+}", itemHandler.Delete)
			})
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/", purchaseHandler.Create)
			r.With(middleware.RequirePermission(cfg.Authz, cfg.Audit, security.PermViewHistory)).
				Get("/history", purchaseHandler.History)
			r.Get("/{id}", purchaseHandler.Get)
		})
	})

	return r
}

// cors answers preflight requests and echoes allowed origins
func cors(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
