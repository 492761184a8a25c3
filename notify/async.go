package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async wraps a Dispatcher so sends happen off the caller's critical path: a
// dialog turn must return to the gateway whether or not the SMS provider is
// reachable. Send enqueues and returns immediately; a worker delivers with a
// per-attempt timeout and bounded retry, logging failures for out-of-band
// inspection.
type Async struct {
	next Dispatcher
	log  *slog.Logger

	queue    chan job
	attempts int
	timeout  time.Duration
	backoff  time.Duration

	closeOnce sync.Once
	wg        sync.WaitGroup
}

type job struct {
	recipients []string
	message    string
}

// AsyncOption configures an Async dispatcher.
type AsyncOption func(*asyncConfig)

type asyncConfig struct {
	queueSize int
	workers   int
	attempts  int
	timeout   time.Duration
	backoff   time.Duration
}

// WithQueueSize bounds the number of pending sends. When the queue is full
// new sends are dropped (and logged) rather than blocking a dialog turn.
func WithQueueSize(n int) AsyncOption { return func(c *asyncConfig) { c.queueSize = n } }

// WithWorkers sets how many delivery goroutines drain the queue.
func WithWorkers(n int) AsyncOption { return func(c *asyncConfig) { c.workers = n } }

// WithAttempts sets the total delivery attempts per message (first try
// included).
func WithAttempts(n int) AsyncOption { return func(c *asyncConfig) { c.attempts = n } }

// WithAttemptTimeout bounds each delivery attempt.
func WithAttemptTimeout(d time.Duration) AsyncOption { return func(c *asyncConfig) { c.timeout = d } }

// WithRetryBackoff sets the pause between attempts.
func WithRetryBackoff(d time.Duration) AsyncOption { return func(c *asyncConfig) { c.backoff = d } }

// NewAsync starts the worker goroutines. Call Close to drain and stop them.
func NewAsync(next Dispatcher, log *slog.Logger, opts ...AsyncOption) *Async {
	cfg := asyncConfig{
		queueSize: 256,
		workers:   1,
		attempts:  3,
		timeout:   5 * time.Second,
		backoff:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Async{
		next:     next,
		log:      log,
		queue:    make(chan job, cfg.queueSize),
		attempts: cfg.attempts,
		timeout:  cfg.timeout,
		backoff:  cfg.backoff,
	}
	for i := 0; i < cfg.workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

var _ Dispatcher = (*Async)(nil)

// Send enqueues the message and reports it as queued. The caller's context is
// deliberately not carried into delivery: the dialog turn that triggered the
// send finishes long before the attempts do.
func (a *Async) Send(ctx context.Context, recipients []string, message string) (*Report, error) {
	if len(recipients) == 0 {
		return &Report{}, nil
	}
	j := job{recipients: append([]string(nil), recipients...), message: message}
	select {
	case a.queue <- j:
	default:
		a.log.Warn("notification dropped, queue full", slog.Int("recipients", len(recipients)))
	}
	return &Report{Queued: true}, nil
}

// Close stops accepting work, waits for queued sends to drain, and returns.
func (a *Async) Close() error {
	a.closeOnce.Do(func() { close(a.queue) })
	a.wg.Wait()
	return nil
}

func (a *Async) worker() {
	defer a.wg.Done()
	for j := range a.queue {
		a.deliver(j)
	}
}

func (a *Async) deliver(j job) {
	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		report, err := a.next.Send(ctx, j.recipients, j.message)
		cancel()
		if err == nil {
			if failed := report.Failed(); failed > 0 {
				a.log.Warn("notification partially delivered",
					slog.Int("recipients", len(j.recipients)),
					slog.Int("failed", failed))
			} else {
				a.log.Debug("notification delivered", slog.Int("recipients", len(j.recipients)))
			}
			return
		}
		lastErr = err
		if attempt < a.attempts {
			time.Sleep(a.backoff)
		}
	}
	a.log.Error("notification delivery failed",
		slog.Int("recipients", len(j.recipients)),
		slog.Int("attempts", a.attempts),
		slog.String("err", lastErr.Error()))
}
