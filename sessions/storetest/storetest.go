// Package storetest holds a conformance suite for sessions.Store
// implementations. Backend packages call RunStoreTests from their own tests
// so every store honors the same contract: per-key update atomicity,
// non-blocking unrelated dialogs, and expiry that never hands back a stale
// session.
package storetest

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kasalabs/ussd-server-go/sessions"
)

// Factory creates a fresh store for one test. The ttl is the inactivity
// window the store must enforce. Cleanup is the caller's job (t.Cleanup).
type Factory func(t *testing.T, ttl time.Duration) sessions.Store

// RunStoreTests runs the complete Store test suite against the factory.
func RunStoreTests(t *testing.T, factory Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, factory) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, factory) })
	t.Run("UpdateMutates", func(t *testing.T) { testUpdateMutates(t, factory) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, factory) })
	t.Run("UpdateErrorLeavesSessionUnchanged", func(t *testing.T) { testUpdateErrorRollsBack(t, factory) })
	t.Run("UpdateSerializesPerKey", func(t *testing.T) { testUpdateSerializesPerKey(t, factory) })
	t.Run("UnrelatedSessionsDoNotBlock", func(t *testing.T) { testUnrelatedSessionsDoNotBlock(t, factory) })
	t.Run("RemoveThenGet", func(t *testing.T) { testRemoveThenGet(t, factory) })
	t.Run("RemoveAbsentIsNoError", func(t *testing.T) { testRemoveAbsent(t, factory) })
	t.Run("ExpiredSessionIsAbsent", func(t *testing.T) { testExpiredSessionIsAbsent(t, factory) })
	t.Run("UpdateRefreshesExpiry", func(t *testing.T) { testUpdateRefreshesExpiry(t, factory) })
}

const testTTL = 5 * time.Second

func testCreateAndGet(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	ctx := context.Background()

	created, err := s.Create(ctx, "sess-1", "+254711000111")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.State != sessions.StateMain {
		t.Fatalf("new session state = %q, want %q", created.State, sessions.StateMain)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SessionID != "sess-1" || got.PhoneNumber != "+254711000111" {
		t.Fatalf("Get returned %+v", got)
	}
}

func testGetMissing(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	if _, err := s.Get(context.Background(), "nope"); err != sessions.ErrSessionNotFound {
		t.Fatalf("Get(missing) err = %v, want ErrSessionNotFound", err)
	}
}

func testCreateDuplicate(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	ctx := context.Background()
	if _, err := s.Create(ctx, "sess-1", "+254711000111"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, "sess-1", "+254711000111"); err != sessions.ErrSessionExists {
		t.Fatalf("second Create err = %v, want ErrSessionExists", err)
	}
}

func testUpdateMutates(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	ctx := context.Background()
	if _, err := s.Create(ctx, "sess-1", "+254711000111"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := s.Update(ctx, "sess-1", func(sess *sessions.Session) error {
		sess.State = sessions.StateRegName
		sess.SetField(sessions.FieldName, "John Doe")
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.State != sessions.StateRegName {
		t.Fatalf("updated state = %q", updated.State)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != sessions.StateRegName || got.Field(sessions.FieldName) != "John Doe" {
		t.Fatalf("persisted session = %+v", got)
	}
}

func testUpdateMissing(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	_, err := s.Update(context.Background(), "nope", func(sess *sessions.Session) error { return nil })
	if err != sessions.ErrSessionNotFound {
		t.Fatalf("Update(missing) err = %v, want ErrSessionNotFound", err)
	}
}

type sentinelError struct{}

func (sentinelError) Error() string { return "mutator rejected" }

func testUpdateErrorRollsBack(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	ctx := context.Background()
	if _, err := s.Create(ctx, "sess-1", "+254711000111"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := s.Update(ctx, "sess-1", func(sess *sessions.Session) error {
		sess.State = sessions.StateTerminated
		return sentinelError{}
	})
	if _, ok := err.(sentinelError); !ok {
		t.Fatalf("Update err = %v, want mutator error passthrough", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != sessions.StateMain {
		t.Fatalf("state after failed mutator = %q, want MAIN", got.State)
	}
}

// testUpdateSerializesPerKey hammers one session with concurrent increments.
// Lost updates show up as a final count below the goroutine total.
func testUpdateSerializesPerKey(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	ctx := context.Background()
	if _, err := s.Create(ctx, "sess-1", "+254711000111"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "sess-1", func(sess *sessions.Session) error {
				n, _ := strconv.Atoi(sess.Field("count"))
				sess.SetField("count", strconv.Itoa(n+1))
				return nil
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Update: %v", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n, _ := strconv.Atoi(got.Field("count")); n != workers {
		t.Fatalf("count = %d, want %d (updates interleaved)", n, workers)
	}
}

// testUnrelatedSessionsDoNotBlock holds one dialog's update open while
// another dialog's update must still complete promptly.
func testUnrelatedSessionsDoNotBlock(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	ctx := context.Background()
	if _, err := s.Create(ctx, "slow", "+254711000111"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, "fast", "+254711000222"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Update(ctx, "slow", func(sess *sessions.Session) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	fastDone := make(chan error, 1)
	go func() {
		_, err := s.Update(ctx, "fast", func(sess *sessions.Session) error { return nil })
		fastDone <- err
	}()

	select {
	case err := <-fastDone:
		if err != nil {
			t.Fatalf("fast Update: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update of unrelated session blocked behind another dialog")
	}
	close(release)
	<-done
}

func testRemoveThenGet(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	ctx := context.Background()
	if _, err := s.Create(ctx, "sess-1", "+254711000111"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Remove(ctx, "sess-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get(ctx, "sess-1"); err != sessions.ErrSessionNotFound {
		t.Fatalf("Get after Remove err = %v, want ErrSessionNotFound", err)
	}
}

func testRemoveAbsent(t *testing.T, factory Factory) {
	s := factory(t, testTTL)
	if err := s.Remove(context.Background(), "nope"); err != nil {
		t.Fatalf("Remove(absent) = %v, want nil", err)
	}
}

func testExpiredSessionIsAbsent(t *testing.T, factory Factory) {
	s := factory(t, 50*time.Millisecond)
	ctx := context.Background()
	if _, err := s.Create(ctx, "sess-1", "+254711000111"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	if _, err := s.Get(ctx, "sess-1"); err != sessions.ErrSessionNotFound {
		t.Fatalf("Get(expired) err = %v, want ErrSessionNotFound", err)
	}
	// A fresh dialog may reuse the ID once the old session has lapsed.
	if _, err := s.Create(ctx, "sess-1", "+254711000111"); err != nil {
		t.Fatalf("Create after expiry: %v", err)
	}
}

func testUpdateRefreshesExpiry(t *testing.T, factory Factory) {
	s := factory(t, 200*time.Millisecond)
	ctx := context.Background()
	if _, err := s.Create(ctx, "sess-1", "+254711000111"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Keep touching the session past the original window.
	for i := 0; i < 3; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, err := s.Update(ctx, "sess-1", func(sess *sessions.Session) error { return nil }); err != nil {
			t.Fatalf("Update #%d: %v", i, err)
		}
	}
	if _, err := s.Get(ctx, "sess-1"); err != nil {
		t.Fatalf("Get after refreshes: %v", err)
	}
}
