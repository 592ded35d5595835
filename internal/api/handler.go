// Package api exposes the platform over an HTTP JSON API plus a websocket
// progress feed.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chocolingo/server/internal/auth"
	"github.com/chocolingo/server/internal/content"
	"github.com/chocolingo/server/internal/progress"
	"github.com/chocolingo/server/internal/quiz"
)

// errForbidden maps to 403; it is not part of the engine taxonomy because
// role checks live entirely at the API edge.
var errForbidden = errors.New("admin access required")

// Config holds the services the handler routes to.
type Config struct {
	Quiz     *quiz.Service
	Progress *progress.Service
	Auth     *auth.Service
	Store    quiz.Store
	Broker   *progress.Broker
}

// Handler serves the HTTP API.
type Handler struct {
	quiz     *quiz.Service
	progress *progress.Service
	auth     *auth.Service
	store    quiz.Store
	broker   *progress.Broker
}

// New creates the API handler.
func New(cfg Config) *Handler {
	return &Handler{
		quiz:     cfg.Quiz,
		progress: cfg.Progress,
		auth:     cfg.Auth,
		store:    cfg.Store,
		broker:   cfg.Broker,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", quiz.ErrBadRequest)
	}
	return nil
}

// writeError maps engine errors onto HTTP statuses. Unexpected errors are
// logged and reported as an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, quiz.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, quiz.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, quiz.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		status = http.StatusForbidden
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", quiz.ErrBadRequest, r.PathValue("id"))
	}
	return id, nil
}

var _ content.Store = (quiz.Store)(nil) // admin import reuses the content store slice
