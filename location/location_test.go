package location

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kasalabs/ussd-server-go/directory/memorydir"
)

func TestPrefixResolver(t *testing.T) {
	r := NewPrefixResolver(DefaultAreas())
	ctx := context.Background()

	desc, err := r.Resolve(ctx, "+254712345678")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(desc, "Westlands") || !strings.Contains(desc, "GPS:") {
		t.Errorf("description = %q", desc)
	}

	if _, err := r.Resolve(ctx, "+15551234567"); !errors.Is(err, ErrUnknownLocation) {
		t.Errorf("unmatched prefix err = %v, want ErrUnknownLocation", err)
	}
}

func TestPrefixResolverLongestMatchWins(t *testing.T) {
	r := NewPrefixResolver([]Area{
		{Prefix: "+2547", Address: "Kenya"},
		{Prefix: "+254711", Address: "Nairobi CBD"},
	})
	desc, err := r.Resolve(context.Background(), "+254711999888")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc != "Nairobi CBD" {
		t.Errorf("description = %q, want longest prefix match", desc)
	}
}

func TestDirectoryResolver(t *testing.T) {
	dir := memorydir.New()
	ctx := context.Background()
	if _, err := dir.Register(ctx, "+254799000111", "John Doe", "Westlands"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r := NewDirectoryResolver(dir)
	desc, err := r.Resolve(ctx, "+254799000111")
	if err != nil || desc != "Westlands" {
		t.Fatalf("Resolve = %q, %v", desc, err)
	}
	if _, err := r.Resolve(ctx, "+254799000999"); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("unregistered err = %v, want ErrUnknownLocation", err)
	}
}

func TestChainFallsThrough(t *testing.T) {
	dir := memorydir.New()
	ctx := context.Background()
	if _, err := dir.Register(ctx, "+254799000111", "John Doe", "Westlands"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	chain := Chain{NewPrefixResolver(DefaultAreas()), NewDirectoryResolver(dir)}

	// Prefix table wins when it matches.
	desc, err := chain.Resolve(ctx, "+254711222333")
	if err != nil || !strings.Contains(desc, "Central Business District") {
		t.Fatalf("Resolve = %q, %v", desc, err)
	}

	// Registered profile catches what the prefix table misses.
	desc, err = chain.Resolve(ctx, "+254799000111")
	if err != nil || desc != "Westlands" {
		t.Fatalf("Resolve = %q, %v", desc, err)
	}

	if _, err := chain.Resolve(ctx, "+10000000000"); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("err = %v, want ErrUnknownLocation", err)
	}
}
