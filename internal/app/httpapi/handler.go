// Package httpapi bundles the REST endpoints for the control session core.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stagewire/platform/internal/control"
	"github.com/stagewire/platform/internal/errors"
	"github.com/stagewire/platform/internal/httputil"
	"github.com/stagewire/platform/internal/middleware"
)

// handler bundles the HTTP endpoints over the control core.
type handler struct {
	registry *control.Registry
	gateway  *control.Gateway

	// authEnabled switches the identity source for create/revoke/get from
	// the request body (dev mode) to the authenticated JWT claims.
	authEnabled bool
}

// NewHandler returns a router exposing the control session REST API.
// identityMW, when non-nil, authenticates the session management routes;
// command submission is token-authorized and anonymous, so it is mounted
// outside the identity middleware in either case.
func NewHandler(registry *control.Registry, gateway *control.Gateway, identityMW func(http.Handler) http.Handler) http.Handler {
	h := &handler{registry: registry, gateway: gateway, authEnabled: identityMW != nil}

	r := chi.NewRouter()
	r.Group(func(g chi.Router) {
		if identityMW != nil {
			g.Use(identityMW, middleware.RequireUserID)
		}
		g.Post("/sessions", h.createSession)
		g.Get("/sessions/{sessionID}", h.getSession)
		g.Post("/sessions/{sessionID}/revoke", h.revokeSession)
	})
	r.Post("/sessions/{sessionID}/commands", h.submitCommand)
	return r
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OwnerID      interface{} `json:"ownerId"`
		MaxIntensity *int        `json:"maxIntensity"`
		DurationSec  *int        `json:"durationSec"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, errors.InvalidRequest("malformed request body", err))
		return
	}

	ownerID := h.identity(r, payload.OwnerID)
	if ownerID == "" {
		httputil.WriteError(w, errors.InvalidRequest("ownerId is required", nil))
		return
	}

	desc, err := h.registry.Create(r.Context(), control.CreateParams{
		OwnerID:      ownerID,
		MaxIntensity: payload.MaxIntensity,
		DurationSec:  payload.DurationSec,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, desc)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	requesterID := h.identity(r, r.URL.Query().Get("requesterId"))
	if requesterID == "" {
		httputil.WriteError(w, errors.InvalidRequest("requesterId is required", nil))
		return
	}

	status, err := h.registry.Describe(r.Context(), chi.URLParam(r, "sessionID"), requesterID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RequesterID interface{} `json:"requesterId"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, errors.InvalidRequest("malformed request body", err))
		return
	}

	requesterID := h.identity(r, payload.RequesterID)
	if requesterID == "" {
		httputil.WriteError(w, errors.InvalidRequest("requesterId is required", nil))
		return
	}

	if err := h.registry.Revoke(r.Context(), chi.URLParam(r, "sessionID"), requesterID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handler) submitCommand(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BearerToken string      `json:"bearerToken"`
		Intensity   interface{} `json:"intensity"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, errors.InvalidRequest("malformed request body", err))
		return
	}

	intensity, err := h.gateway.Submit(r.Context(), chi.URLParam(r, "sessionID"), payload.BearerToken, coerceNumber(payload.Intensity))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"intensity": intensity,
	})
}

// identity resolves the acting identity for session management calls. With
// auth enabled it always comes from the verified claims; otherwise the
// request-supplied value is used.
func (h *handler) identity(r *http.Request, fromRequest interface{}) string {
	if h.authEnabled {
		return middleware.GetUserID(r.Context())
	}
	return coerceID(fromRequest)
}

// coerceID renders a request-supplied identity as a string. Numeric ids are
// accepted for compatibility with older clients.
func coerceID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// coerceNumber maps the raw intensity to a float. Anything non-numeric
// counts as zero; range clamping happens in the gateway.
func coerceNumber(v interface{}) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}
