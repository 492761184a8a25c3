// Package ussdhttp serves the telecom gateway callback and the operator
// admin surface over HTTP. The gateway callback (POST /ussd) accepts the
// standard form-encoded fields and always answers 200 with a CON/END
// plain-text body; the admin endpoints speak JSON and require a bearer token.
package ussdhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/kasalabs/ussd-server-go/auth"
	"github.com/kasalabs/ussd-server-go/directory"
	"github.com/kasalabs/ussd-server-go/internal/logctx"
	"github.com/kasalabs/ussd-server-go/notify"
	"github.com/kasalabs/ussd-server-go/reports"
	"github.com/kasalabs/ussd-server-go/ussd"
)

// Engine handles one dialog turn. Satisfied by *engine.Engine.
type Engine interface {
	HandleTurn(ctx context.Context, req ussd.Request) ussd.Response
}

// formMediaType is what the telecom gateway posts.
var formMediaType = contenttype.NewMediaType("application/x-www-form-urlencoded")

// Handler is the HTTP front of the dialog server.
type Handler struct {
	mux *http.ServeMux

	engine      Engine
	log         *slog.Logger
	serviceName string

	authn auth.Authenticator
	realm string

	dir        directory.Directory
	reports    reports.Store
	dispatcher notify.Dispatcher
}

var _ http.Handler = (*Handler)(nil)

// Option customizes a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithServiceName sets the name reported by the health endpoint.
func WithServiceName(name string) Option {
	return func(h *Handler) { h.serviceName = name }
}

// WithAuth protects the admin surface with the given bearer-token
// authenticator. realm appears in WWW-Authenticate challenges.
func WithAuth(a auth.Authenticator, realm string) Option {
	return func(h *Handler) {
		h.authn = a
		h.realm = realm
	}
}

// WithAdmin enables the admin endpoints over the given directory and report
// store. Requires WithAuth.
func WithAdmin(dir directory.Directory, rs reports.Store) Option {
	return func(h *Handler) {
		h.dir = dir
		h.reports = rs
	}
}

// WithDispatcher enables the direct-broadcast admin endpoint.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(h *Handler) { h.dispatcher = d }
}

// New builds the handler. The admin surface is registered only when both
// WithAdmin and WithAuth are supplied; configuring one without the other is
// an error.
func New(ctx context.Context, eng Engine, opts ...Option) (*Handler, error) {
	if eng == nil {
		return nil, errors.New("ussdhttp: engine is required")
	}
	h := &Handler{
		engine:      eng,
		serviceName: "ussd-server",
		realm:       "ussd-server",
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if (h.dir != nil) != (h.authn != nil) {
		return nil, errors.New("ussdhttp: admin surface requires both WithAdmin and WithAuth")
	}

	h.mux = http.NewServeMux()
	h.mux.HandleFunc("POST /ussd", h.handleTurn)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.dir != nil {
		h.mux.HandleFunc("GET /admin/users", h.requireAuth(h.handleListUsers))
		h.mux.HandleFunc("GET /admin/users/{location}", h.requireAuth(h.handleUsersByLocation))
		h.mux.HandleFunc("GET /admin/reports", h.requireAuth(h.handleListReports))
		if h.dispatcher != nil {
			h.mux.HandleFunc("POST /admin/alerts", h.requireAuth(h.handleBroadcast))
		}
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// handleTurn is the gateway callback. Every outcome, including bad input, is
// answered with a well-formed CON/END body so the caller's dialog never hangs.
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	ct, err := contenttype.GetMediaType(r)
	if err != nil || !ct.Matches(formMediaType) {
		http.Error(w, "expected application/x-www-form-urlencoded", http.StatusUnsupportedMediaType)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	req := ussd.Request{
		SessionID:   r.PostFormValue("sessionId"),
		ServiceCode: r.PostFormValue("serviceCode"),
		PhoneNumber: r.PostFormValue("phoneNumber"),
		Text:        r.PostFormValue("text"),
	}
	if req.SessionID == "" || req.PhoneNumber == "" {
		http.Error(w, "sessionId and phoneNumber are required", http.StatusBadRequest)
		return
	}

	resp := h.engine.HandleTurn(r.Context(), req)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, resp.Render()); err != nil {
		h.log.WarnContext(r.Context(), "response write failed", slog.String("err", err.Error()))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"service": h.serviceName,
	}
	if h.dir != nil {
		if n, err := h.dir.Count(r.Context()); err == nil {
			body["registered_users"] = n
		}
	}
	writeJSON(r.Context(), h.log, w, http.StatusOK, body)
}
