// Package api provides the HTTP surface: aggregate stats, health, and the
// admin login that issues bearer tokens.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/whibo/whibo-server/internal/chat"
)

// Handler serves the read-only HTTP endpoints around the chat coordinator.
type Handler struct {
	coord     *chat.Coordinator
	issuer    *TokenIssuer
	startedAt time.Time
}

// NewHandler creates an API handler.
func NewHandler(coord *chat.Coordinator, issuer *TokenIssuer) *Handler {
	return &Handler{
		coord:     coord,
		issuer:    issuer,
		startedAt: time.Now(),
	}
}

// RegisterRoutes mounts the API endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/stats", h.handleStats)
	r.Get("/api/health", h.handleHealth)
	r.Post("/api/admin/login", h.handleAdminLogin)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.coord.Stats())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bearer, ok := h.issuer.Issue(req.Token)
	if !ok {
		slog.Warn("Admin login rejected", "ip", r.RemoteAddr)
		Error(w, http.StatusUnauthorized, "invalid admin token")
		return
	}

	slog.Info("Admin login token issued", "ip", r.RemoteAddr)
	JSON(w, http.StatusOK, map[string]string{"token": bearer})
}
