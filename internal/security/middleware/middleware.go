package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kondiv/shop/internal/domain"
	"github.com/kondiv/shop/internal/security"
	"github.com/kondiv/shop/internal/security/audit"
	"github.com/kondiv/shop/internal/security/auth"
	"github.com/kondiv/shop/internal/security/ratelimit"
)

type ClaimsContextKey struct{}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Authenticate attaches the caller's claims when the request carries a valid
// token. Requests without one, or with an invalid one, continue anonymously
// so public routes keep working; guarded routes reject them later.
func Authenticate(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := auth.ExtractToken(r)
			if err != nil {
				if !errors.Is(err, auth.ErrNoToken) {
					log.Debug("ignoring malformed authorization", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				log.Debug("ignoring invalid token", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth answers 401 unless Authenticate attached claims
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaimsFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission answers 401 without claims and 403 when the caller's role lacks perm
func RequirePermission(authz *security.AuthorizationService, auditLog *audit.Logger, perm security.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if err := authz.ValidatePermission(claims.Role, perm); err != nil {
				auditLog.LogDenied(r.Context(), claims.Subject, string(perm), "role "+claims.Role.String())
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ItemOwnerLookup resolves the seller of an item; a missing item yields domain.ErrNotFound
type ItemOwnerLookup interface {
	ItemOwner(ctx context.Context, itemID int64) (uuid.UUID, error)
}

// RequireItemOwner answers 403 unless the caller sells the item named by the
// {id} route parameter. Missing items pass through so the handler answers 404.
func RequireItemOwner(items ItemOwnerLookup, authz *security.AuthorizationService, auditLog *audit.Logger, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			raw := chi.URLParam(r, "id")
			itemID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			owner, err := items.ItemOwner(r.Context(), itemID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					next.ServeHTTP(w, r)
					return
				}
				log.Error("ownership lookup failed",
					slog.Int64("item_id", itemID),
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			userID, _ := claims.UserID()
			if err := authz.ValidateOwnership(userID, owner, "item", raw); err != nil {
				auditLog.LogDenied(r.Context(), claims.Subject, "item", "not owner of item "+raw)
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit throttles by client IP. Run chi's RealIP first when behind a proxy.
func RateLimit(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			}

			if !limiter.Allow(key) {
				log.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("path", r.URL.Path),
				)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Audit records every mutating request together with its response status
func Audit(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			userID := ""
			if claims := GetClaimsFromContext(r.Context()); claims != nil {
				userID = claims.Subject
			}

			status := audit.StatusSuccess
			if ww.Status() >= http.StatusBadRequest {
				status = audit.StatusFailure
			}

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			auditLog.LogAction(r.Context(), userID, r.Method+" "+route, resourceOf(route), chi.URLParam(r, "id"), status, strconv.Itoa(ww.Status()))
		})
	}
}

func resourceOf(route string) string {
	switch {
	case strings.HasPrefix(route, "/api/items"):
		return "item"
	case strings.HasPrefix(route, "/api/purchases"):
		return "purchase"
	case strings.HasPrefix(route, "/api/auth"):
		return "user"
	default:
		return "api"
	}
}

// RequestLogger logs one line per request with its chi request id
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(ClaimsContextKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}
