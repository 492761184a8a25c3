package directory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// User is one registered subscriber. PhoneNumber is the unique key.
type User struct {
	PhoneNumber  string    `json:"phone_number"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	RegisteredAt time.Time `json:"registered_at"`
}

var (
	// ErrDuplicateUser indicates the phone number is already registered.
	ErrDuplicateUser = errors.New("directory: phone number already registered")
	// ErrUserNotFound indicates no record exists for the phone number.
	ErrUserNotFound = errors.New("directory: user not found")
)

// Directory is the user-directory contract. Implementations MUST be safe for
// concurrent use.
type Directory interface {
	// Find returns the user registered under phone, or ErrUserNotFound.
	Find(ctx context.Context, phone string) (*User, error)

	// Register creates a record for phone. Fails with ErrDuplicateUser if one
	// already exists; the existing record is never mutated.
	Register(ctx context.Context, phone, name, location string) (*User, error)

	// ListByLocation returns every user whose location matches, compared
	// case-insensitively. Order is unspecified.
	ListByLocation(ctx context.Context, loc string) ([]*User, error)

	// Count reports the number of registered users.
	Count(ctx context.Context) (int, error)
}

// LocationKey normalizes a location for index comparisons.
func LocationKey(loc string) string {
	return strings.ToLower(strings.TrimSpace(loc))
}
