package ussdhttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kasalabs/ussd-server-go/auth"
)

// requireAuth wraps an admin handler with bearer-token authentication.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			h.challenge(w, r, auth.NewAuthenticationRequired(h.realm))
			return
		}
		tok, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tok == "" {
			h.challenge(w, r, auth.NewInvalidAuthorizationHeader(h.realm))
			return
		}

		ui, err := h.authn.CheckAuthentication(r.Context(), tok)
		if err != nil {
			if errors.Is(err, auth.ErrInsufficientScope) {
				h.challenge(w, r, auth.NewInsufficientScopeResult(h.realm))
				return
			}
			h.challenge(w, r, auth.NewInvalidTokenResult(h.realm, "token validation failed"))
			return
		}

		h.log.DebugContext(r.Context(), "admin request authenticated", slog.String("user", ui.UserID()))
		next(w, r)
	}
}

func (h *Handler) challenge(w http.ResponseWriter, r *http.Request, c *auth.AuthenticationChallenge) {
	h.log.InfoContext(r.Context(), "admin request rejected", slog.Int("status", c.Status))
	c.Apply(w)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	// The directory has no scan operation; the admin view lists by location,
	// so the unscoped endpoint reports the count.
	n, err := h.dir.Count(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "directory count failed", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "directory unavailable")
		return
	}
	writeJSON(r.Context(), h.log, w, http.StatusOK, map[string]any{"registered_users": n})
}

func (h *Handler) handleUsersByLocation(w http.ResponseWriter, r *http.Request) {
	loc := r.PathValue("location")
	users, err := h.dir.ListByLocation(r.Context(), loc)
	if err != nil {
		h.log.ErrorContext(r.Context(), "directory list failed", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "directory unavailable")
		return
	}
	writeJSON(r.Context(), h.log, w, http.StatusOK, map[string]any{
		"location": loc,
		"count":    len(users),
		"users":    users,
	})
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	filed, err := h.reports.List(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "report list failed", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "report store unavailable")
		return
	}
	writeJSON(r.Context(), h.log, w, http.StatusOK, map[string]any{
		"count":   len(filed),
		"reports": filed,
	})
}

type broadcastRequest struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// handleBroadcast sends an operator-composed message to every registered
// user in a location.
func (h *Handler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.Location) == "" || strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "location and message are required")
		return
	}

	users, err := h.dir.ListByLocation(r.Context(), req.Location)
	if err != nil {
		h.log.ErrorContext(r.Context(), "directory list failed", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "directory unavailable")
		return
	}
	if len(users) == 0 {
		writeJSON(r.Context(), h.log, w, http.StatusOK, map[string]any{
			"location":   req.Location,
			"recipients": 0,
		})
		return
	}

	recipients := make([]string, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, u.PhoneNumber)
	}
	rep, err := h.dispatcher.Send(r.Context(), recipients, req.Message)
	if err != nil {
		h.log.ErrorContext(r.Context(), "broadcast send failed", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadGateway, "dispatch failed")
		return
	}

	h.log.InfoContext(r.Context(), "broadcast dispatched",
		slog.String("location", req.Location), slog.Int("recipients", len(recipients)))
	writeJSON(r.Context(), h.log, w, http.StatusOK, map[string]any{
		"location":   req.Location,
		"recipients": len(recipients),
		"queued":     rep.Queued,
		"delivered":  rep.Succeeded(),
	})
}

func writeJSON(ctx context.Context, log *slog.Logger, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WarnContext(ctx, "response encode failed", slog.String("err", err.Error()))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
