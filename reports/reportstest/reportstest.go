// Package reportstest holds a conformance suite for reports.Store
// implementations.
package reportstest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kasalabs/ussd-server-go/reports"
)

// Factory creates a fresh, empty store for one test.
type Factory func(t *testing.T) reports.Store

// RunReportStoreTests runs the complete Store test suite against the factory.
func RunReportStoreTests(t *testing.T, factory Factory) {
	t.Run("PutAndGet", func(t *testing.T) { testPutAndGet(t, factory) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("ListNewestFirst", func(t *testing.T) { testListNewestFirst(t, factory) })
}

func testPutAndGet(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	in := &reports.Report{
		Reference:   "EMR-DEADBEEF",
		SessionID:   "sess-1",
		PhoneNumber: "+254711000111",
		AlertType:   "Fire Emergency",
		Location:    "Westlands",
		Notified:    3,
		Status:      reports.StatusPending,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.Put(ctx, in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "EMR-DEADBEEF")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AlertType != in.AlertType || got.Notified != 3 || got.Status != reports.StatusPending {
		t.Fatalf("report = %+v", got)
	}
}

func testGetMissing(t *testing.T, factory Factory) {
	s := factory(t)
	if _, err := s.Get(context.Background(), "EMR-NOPE"); err != reports.ErrReportNotFound {
		t.Fatalf("Get(missing) err = %v, want ErrReportNotFound", err)
	}
}

func testListNewestFirst(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		r := &reports.Report{
			Reference: fmt.Sprintf("EMR-%08d", i),
			AlertType: "Medical Emergency",
			Status:    reports.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put #%d: %v", i, err)
		}
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List returned %d reports, want 3", len(got))
	}
	for i := 0; i < len(got)-1; i++ {
		if got[i].CreatedAt.Before(got[i+1].CreatedAt) {
			t.Fatalf("List order not newest-first: %v before %v", got[i].CreatedAt, got[i+1].CreatedAt)
		}
	}
}
