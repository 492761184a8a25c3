// Package dirtest holds a conformance suite for directory.Directory
// implementations.
package dirtest

import (
	"context"
	"testing"

	"github.com/kasalabs/ussd-server-go/directory"
)

// Factory creates a fresh, empty directory for one test.
type Factory func(t *testing.T) directory.Directory

// RunDirectoryTests runs the complete Directory test suite against the factory.
func RunDirectoryTests(t *testing.T, factory Factory) {
	t.Run("RegisterAndFind", func(t *testing.T) { testRegisterAndFind(t, factory) })
	t.Run("FindMissing", func(t *testing.T) { testFindMissing(t, factory) })
	t.Run("DuplicateLeavesRecordUnchanged", func(t *testing.T) { testDuplicate(t, factory) })
	t.Run("ListByLocationIsCaseInsensitive", func(t *testing.T) { testListByLocation(t, factory) })
	t.Run("Count", func(t *testing.T) { testCount(t, factory) })
}

func testRegisterAndFind(t *testing.T, factory Factory) {
	d := factory(t)
	ctx := context.Background()

	u, err := d.Register(ctx, "+254711000111", "John Doe", "Westlands")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Name != "John Doe" || u.RegisteredAt.IsZero() {
		t.Fatalf("registered user = %+v", u)
	}

	got, err := d.Find(ctx, "+254711000111")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Name != "John Doe" || got.Location != "Westlands" {
		t.Fatalf("found user = %+v", got)
	}
}

func testFindMissing(t *testing.T, factory Factory) {
	d := factory(t)
	if _, err := d.Find(context.Background(), "+254700000000"); err != directory.ErrUserNotFound {
		t.Fatalf("Find(missing) err = %v, want ErrUserNotFound", err)
	}
}

func testDuplicate(t *testing.T, factory Factory) {
	d := factory(t)
	ctx := context.Background()

	if _, err := d.Register(ctx, "+254711000111", "John Doe", "Westlands"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := d.Register(ctx, "+254711000111", "Impostor", "Kilimani"); err != directory.ErrDuplicateUser {
		t.Fatalf("second Register err = %v, want ErrDuplicateUser", err)
	}

	got, err := d.Find(ctx, "+254711000111")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Name != "John Doe" || got.Location != "Westlands" {
		t.Fatalf("record mutated by duplicate attempt: %+v", got)
	}
}

func testListByLocation(t *testing.T, factory Factory) {
	d := factory(t)
	ctx := context.Background()

	seed := []struct{ phone, name, loc string }{
		{"+254711000111", "John Doe", "Westlands"},
		{"+254711000222", "Jane Mwangi", "westlands"},
		{"+254711000333", "Ali Hassan", "Kilimani"},
	}
	for _, s := range seed {
		if _, err := d.Register(ctx, s.phone, s.name, s.loc); err != nil {
			t.Fatalf("Register(%s): %v", s.phone, err)
		}
	}

	got, err := d.ListByLocation(ctx, "WESTLANDS")
	if err != nil {
		t.Fatalf("ListByLocation: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByLocation returned %d users, want 2", len(got))
	}

	none, err := d.ListByLocation(ctx, "Lavington")
	if err != nil {
		t.Fatalf("ListByLocation(empty): %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("ListByLocation(empty) returned %d users", len(none))
	}
}

func testCount(t *testing.T, factory Factory) {
	d := factory(t)
	ctx := context.Background()

	if n, err := d.Count(ctx); err != nil || n != 0 {
		t.Fatalf("Count(empty) = %d, %v", n, err)
	}
	if _, err := d.Register(ctx, "+254711000111", "John Doe", "Westlands"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := d.Register(ctx, "+254711000222", "Jane Mwangi", "Kilimani"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n, err := d.Count(ctx); err != nil || n != 2 {
		t.Fatalf("Count = %d, %v, want 2", n, err)
	}
}
