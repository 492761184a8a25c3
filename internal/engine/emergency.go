package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kasalabs/ussd-server-go/directory"
	"github.com/kasalabs/ussd-server-go/location"
	"github.com/kasalabs/ussd-server-go/reports"
	"github.com/kasalabs/ussd-server-go/sessions"
	"github.com/kasalabs/ussd-server-go/ussd"
)

const unknownLocation = "Unknown"

// dispatchAlert files the emergency report and fans the alert SMS out to
// registered users sharing the caller's location. Fan-out and report-store
// failures are logged; the caller always gets the terminal confirmation.
func (e *Engine) dispatchAlert(ctx context.Context, sess *sessions.Session) ussd.Response {
	alertType := sess.Field(sessions.FieldAlertType)
	if alertType == "" {
		e.log.WarnContext(ctx, "alert confirm with no alert type collected")
		return ussd.End(msgSessionEnded)
	}

	reference := e.newRef()
	locationInfo := e.resolveLocation(ctx, sess.PhoneNumber)

	notified := 0
	if caller, err := e.dir.Find(ctx, sess.PhoneNumber); err == nil {
		notified = e.fanOut(ctx, caller, alertType)
	} else if !errors.Is(err, directory.ErrUserNotFound) {
		e.log.ErrorContext(ctx, "caller lookup failed", slog.String("err", err.Error()))
	}

	if e.reports != nil {
		r := &reports.Report{
			Reference:   reference,
			SessionID:   sess.SessionID,
			PhoneNumber: sess.PhoneNumber,
			AlertType:   alertType,
			Location:    locationInfo,
			Notified:    notified,
			Status:      reports.StatusPending,
			CreatedAt:   time.Now().UTC(),
		}
		if err := e.reports.Put(ctx, r); err != nil {
			e.log.ErrorContext(ctx, "report store write failed",
				slog.String("reference", reference), slog.String("err", err.Error()))
		}
	}

	e.log.InfoContext(ctx, "alert dispatched",
		slog.String("reference", reference),
		slog.String("alert_type", alertType),
		slog.Int("notified", notified))
	return ussd.End(alertSentText(alertType, reference, locationInfo, notified))
}

func (e *Engine) resolveLocation(ctx context.Context, phone string) string {
	if e.resolver == nil {
		return unknownLocation
	}
	desc, err := e.resolver.Resolve(ctx, phone)
	if errors.Is(err, location.ErrUnknownLocation) {
		return unknownLocation
	}
	if err != nil {
		e.log.ErrorContext(ctx, "location resolve failed", slog.String("err", err.Error()))
		return unknownLocation
	}
	return desc
}

// fanOut messages every registered user in the caller's area except the
// caller, returning how many were reached (or queued, for async dispatch).
func (e *Engine) fanOut(ctx context.Context, caller *directory.User, alertType string) int {
	if e.dispatcher == nil {
		return 0
	}
	neighbors, err := e.dir.ListByLocation(ctx, caller.Location)
	if err != nil {
		e.log.ErrorContext(ctx, "location fan-out lookup failed", slog.String("err", err.Error()))
		return 0
	}
	recipients := make([]string, 0, len(neighbors))
	for _, u := range neighbors {
		if u.PhoneNumber == caller.PhoneNumber {
			continue
		}
		recipients = append(recipients, u.PhoneNumber)
	}
	if len(recipients) == 0 {
		return 0
	}

	msg := alertMessage(alertType, caller.Location, caller.Name, caller.PhoneNumber)
	rep, err := e.dispatcher.Send(ctx, recipients, msg)
	if err != nil {
		e.log.ErrorContext(ctx, "alert fan-out failed", slog.String("err", err.Error()))
		return 0
	}
	if rep.Queued {
		return len(recipients)
	}
	return rep.Succeeded()
}
