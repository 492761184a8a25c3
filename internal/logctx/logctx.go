package logctx

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kasalabs/ussd-server-go/sessions"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if dd, ok := ctx.Value(dialogDataKey{}).(*DialogData); ok {
		r.AddAttrs(slog.Group("dialog",
			slog.String("session_id", dd.SessionID),
			slog.String("phone", MaskPhone(dd.PhoneNumber)),
			slog.String("service_code", dd.ServiceCode),
			slog.String("state", string(dd.State)),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type dialogDataKey struct{}

type DialogData struct {
	SessionID   string
	PhoneNumber string
	ServiceCode string
	State       sessions.State
}

func WithDialogData(ctx context.Context, data *DialogData) context.Context {
	return context.WithValue(ctx, dialogDataKey{}, data)
}

// MaskPhone hides the middle digits of a phone number so caller identities
// don't land verbatim in logs. Short values are masked entirely.
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:5] + strings.Repeat("*", len(phone)-8) + phone[len(phone)-3:]
}
