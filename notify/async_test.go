package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls [][]string
	fail  int // fail this many leading calls
}

func (d *recordingDispatcher) Send(ctx context.Context, recipients []string, message string) (*Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, recipients)
	if len(d.calls) <= d.fail {
		return nil, errors.New("provider down")
	}
	results := make([]DeliveryResult, len(recipients))
	for i, r := range recipients {
		results[i] = DeliveryResult{Recipient: r, Status: StatusSuccess}
	}
	return &Report{Results: results}, nil
}

func (d *recordingDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestAsyncSendReturnsImmediately(t *testing.T) {
	blocked := make(chan struct{})
	slow := Func(func(ctx context.Context, recipients []string, message string) (*Report, error) {
		<-blocked
		return &Report{}, nil
	})
	a := NewAsync(slow, discard())
	defer func() {
		close(blocked)
		_ = a.Close()
	}()

	done := make(chan struct{})
	go func() {
		report, err := a.Send(context.Background(), []string{"+254711000111"}, "hi")
		if err != nil || !report.Queued {
			t.Errorf("Send = %+v, %v", report, err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on delivery")
	}
}

func TestAsyncRetriesUntilSuccess(t *testing.T) {
	d := &recordingDispatcher{fail: 2}
	a := NewAsync(d, discard(), WithAttempts(3), WithRetryBackoff(time.Millisecond))

	if _, err := a.Send(context.Background(), []string{"+254711000111"}, "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := d.callCount(); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}
}

func TestAsyncGivesUpAfterAttempts(t *testing.T) {
	d := &recordingDispatcher{fail: 100}
	a := NewAsync(d, discard(), WithAttempts(2), WithRetryBackoff(time.Millisecond))

	if _, err := a.Send(context.Background(), []string{"+254711000111"}, "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := d.callCount(); n != 2 {
		t.Fatalf("attempts = %d, want 2", n)
	}
}

func TestAsyncDropsWhenQueueFull(t *testing.T) {
	blocked := make(chan struct{})
	slow := Func(func(ctx context.Context, recipients []string, message string) (*Report, error) {
		<-blocked
		return &Report{}, nil
	})
	a := NewAsync(slow, discard(), WithQueueSize(1))

	// First fills the worker, second fills the queue, third must drop without
	// blocking.
	for i := 0; i < 3; i++ {
		done := make(chan struct{})
		go func() {
			_, _ = a.Send(context.Background(), []string{"+254711000111"}, "hi")
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Send #%d blocked", i)
		}
	}
	close(blocked)
	_ = a.Close()
}

func TestAsyncEmptyRecipients(t *testing.T) {
	d := &recordingDispatcher{}
	a := NewAsync(d, discard())
	report, err := a.Send(context.Background(), nil, "hi")
	if err != nil || report.Queued {
		t.Fatalf("Send = %+v, %v", report, err)
	}
	_ = a.Close()
	if d.callCount() != 0 {
		t.Fatal("dispatcher called for empty recipient list")
	}
}
