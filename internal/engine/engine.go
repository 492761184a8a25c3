package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kasalabs/ussd-server-go/directory"
	"github.com/kasalabs/ussd-server-go/internal/logctx"
	"github.com/kasalabs/ussd-server-go/location"
	"github.com/kasalabs/ussd-server-go/notify"
	"github.com/kasalabs/ussd-server-go/reports"
	"github.com/kasalabs/ussd-server-go/sessions"
	"github.com/kasalabs/ussd-server-go/ussd"
)

// DefaultMaxRetries bounds consecutive re-prompts for an empty registration
// field before the dialog is ended.
const DefaultMaxRetries = 3

// Engine is the dialog engine. One Engine serves all dialogs concurrently;
// per-dialog serialization is delegated to the session store.
type Engine struct {
	store      sessions.Store
	dir        directory.Directory
	dispatcher notify.Dispatcher
	resolver   location.Resolver
	reports    reports.Store
	log        *slog.Logger
	maxRetries int
	newRef     func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDispatcher sets the SMS fan-out used on alert dispatch. Without one,
// alerts are filed but nobody is messaged.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithResolver sets the location resolver used to place callers in alert
// messages.
func WithResolver(r location.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithReportStore sets the store that filed emergency reports are written to.
func WithReportStore(s reports.Store) Option {
	return func(e *Engine) { e.reports = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithReferenceFunc overrides how emergency reference codes are generated.
func WithReferenceFunc(fn func() string) Option {
	return func(e *Engine) { e.newRef = fn }
}

// New builds an Engine over the session store and user directory.
func New(store sessions.Store, dir directory.Directory, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		dir:        dir,
		maxRetries: DefaultMaxRetries,
		newRef:     newReference,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

func newReference() string {
	return "EMR-" + strings.ToUpper(uuid.NewString()[:8])
}

// HandleTurn processes one dialog turn. It never returns an error: every
// failure path degrades to a well-formed terminal response.
func (e *Engine) HandleTurn(ctx context.Context, req ussd.Request) ussd.Response {
	sess, err := e.getOrCreate(ctx, req)
	if err != nil {
		e.log.ErrorContext(ctx, "session load failed", slog.String("err", err.Error()))
		return ussd.End(msgSystemError)
	}

	ctx = logctx.WithDialogData(ctx, &logctx.DialogData{
		SessionID:   sess.SessionID,
		PhoneNumber: req.PhoneNumber,
		ServiceCode: req.ServiceCode,
		State:       sess.State,
	})

	token := ussd.Latest(req.Text)
	st := transition(sess.State, token, sess.Collected, sess.Retries, e.maxRetries)

	// Read-only actions resolve into a final step before persistence.
	switch st.action {
	case actionCheckRegistered:
		st = e.checkRegistered(ctx, req.PhoneNumber, st)
	case actionStatus:
		st = e.systemStatus(ctx)
	}

	if st.terminal() {
		return e.finishTerminal(ctx, sess, st)
	}

	if _, err := e.store.Update(ctx, sess.SessionID, func(s *sessions.Session) error {
		s.State = st.next
		s.Retries = st.retries
		for k, v := range st.collect {
			s.SetField(k, v)
		}
		return nil
	}); err != nil {
		// The session may have expired between load and write. The reply is
		// still valid for this turn; the next turn starts a fresh dialog.
		e.log.WarnContext(ctx, "session update failed", slog.String("err", err.Error()))
	}

	e.log.DebugContext(ctx, "dialog advanced", slog.String("next_state", string(st.next)))
	return st.resp
}

func (e *Engine) getOrCreate(ctx context.Context, req ussd.Request) (*sessions.Session, error) {
	sess, err := e.store.Get(ctx, req.SessionID)
	if errors.Is(err, sessions.ErrSessionNotFound) {
		sess, err = e.store.Create(ctx, req.SessionID, req.PhoneNumber)
		if errors.Is(err, sessions.ErrSessionExists) {
			// Lost a create race against a retransmitted first turn.
			return e.store.Get(ctx, req.SessionID)
		}
	}
	return sess, err
}

func (e *Engine) checkRegistered(ctx context.Context, phone string, st step) step {
	u, err := e.dir.Find(ctx, phone)
	switch {
	case err == nil:
		return step{next: sessions.StateTerminated, resp: ussd.End(alreadyRegisteredText(u))}
	case errors.Is(err, directory.ErrUserNotFound):
		st.action = actionNone
		st.resp = ussd.Continue(promptName)
		return st
	default:
		e.log.ErrorContext(ctx, "directory lookup failed", slog.String("err", err.Error()))
		return step{next: sessions.StateTerminated, resp: ussd.End(msgSystemError)}
	}
}

func (e *Engine) systemStatus(ctx context.Context) step {
	n, err := e.dir.Count(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "directory count failed", slog.String("err", err.Error()))
		return step{next: sessions.StateTerminated, resp: ussd.End(msgSystemError)}
	}
	return step{next: sessions.StateTerminated, resp: ussd.End(statusText(n))}
}

var errAlreadyTerminated = errors.New("engine: session already terminated")

// finishTerminal ends the dialog. Commit actions run only when this turn wins
// the claim on the terminal transition, so a retransmitted confirmation never
// registers or dispatches twice. The session is removed either way.
func (e *Engine) finishTerminal(ctx context.Context, sess *sessions.Session, st step) ussd.Response {
	claimed := e.claimTerminal(ctx, sess.SessionID)

	defer func() {
		if err := e.store.Remove(ctx, sess.SessionID); err != nil {
			e.log.WarnContext(ctx, "session remove failed", slog.String("err", err.Error()))
		}
	}()

	if st.action == actionNone {
		return st.resp
	}
	if !claimed {
		e.log.InfoContext(ctx, "duplicate terminal turn suppressed")
		return ussd.End(msgSessionEnded)
	}

	switch st.action {
	case actionCommitRegistration:
		return e.commitRegistration(ctx, sess)
	case actionDispatchAlert:
		return e.dispatchAlert(ctx, sess)
	}
	return st.resp
}

// claimTerminal atomically marks the session terminated. Exactly one of any
// set of concurrent turns for the session observes true.
func (e *Engine) claimTerminal(ctx context.Context, sessionID string) bool {
	_, err := e.store.Update(ctx, sessionID, func(s *sessions.Session) error {
		if s.State == sessions.StateTerminated {
			return errAlreadyTerminated
		}
		s.State = sessions.StateTerminated
		return nil
	})
	if err == nil {
		return true
	}
	if errors.Is(err, errAlreadyTerminated) || errors.Is(err, sessions.ErrSessionNotFound) {
		// Another turn terminated (and possibly removed) the session first.
		return false
	}
	e.log.ErrorContext(ctx, "terminal claim failed", slog.String("err", err.Error()))
	return false
}
