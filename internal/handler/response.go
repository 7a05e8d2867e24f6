package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/kondiv/shop/internal/domain"
	"github.com/kondiv/shop/internal/security/middleware"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error  string              `json:"error"`
	Errors []domain.FieldError `json:"errors,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindBusinessRule:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to its status. Internal errors are logged and hidden from the client.
func writeError(w http.ResponseWriter, log *slog.Logger, r *http.Request, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		respondWithJSON(w, statusOf(de.Kind), ErrorResponse{Error: de.Message, Errors: de.Fields})
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Warn("request abandoned",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		respondWithJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled"})
		return
	}

	log.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	respondWithJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Invalid(domain.FieldError{Field: "body", Message: "request body must be valid JSON"})
	}
	return nil
}

// callerID returns the authenticated user's id. Routes using it sit behind RequireAuth.
func callerID(r *http.Request) (uuid.UUID, error) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return uuid.Nil, domain.Unauthorized("authentication required")
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, domain.Unauthorized("authentication required")
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back to def when absent.
func queryInt(r *http.Request, name string, def int, fields *[]domain.FieldError) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*fields = append(*fields, domain.FieldError{Field: name, Message: name + " must be an integer"})
		return def
	}
	return n
}
