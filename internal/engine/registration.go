package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kasalabs/ussd-server-go/directory"
	"github.com/kasalabs/ussd-server-go/sessions"
	"github.com/kasalabs/ussd-server-go/ussd"
)

// commitRegistration writes the collected profile to the user directory. A
// duplicate discovered at commit time is reported to the caller and leaves
// the existing record untouched.
func (e *Engine) commitRegistration(ctx context.Context, sess *sessions.Session) ussd.Response {
	name := sess.Field(sessions.FieldName)
	loc := sess.Field(sessions.FieldLocation)
	if name == "" || loc == "" {
		e.log.WarnContext(ctx, "registration confirm with incomplete fields")
		return ussd.End(msgRegistrationError)
	}

	u, err := e.dir.Register(ctx, sess.PhoneNumber, name, loc)
	if errors.Is(err, directory.ErrDuplicateUser) {
		if existing, ferr := e.dir.Find(ctx, sess.PhoneNumber); ferr == nil {
			return ussd.End(alreadyRegisteredText(existing))
		}
		return ussd.End(alreadyRegisteredHeadline)
	}
	if err != nil {
		e.log.ErrorContext(ctx, "registration commit failed", slog.String("err", err.Error()))
		return ussd.End(msgRegistrationError)
	}

	e.log.InfoContext(ctx, "user registered", slog.String("location", u.Location))
	return ussd.End(registrationSuccessText(u.Name, u.Location, u.PhoneNumber))
}
