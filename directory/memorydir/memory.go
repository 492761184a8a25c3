// Package memorydir is the in-process directory.Directory implementation.
package memorydir

import (
	"context"
	"sync"
	"time"

	"github.com/kasalabs/ussd-server-go/directory"
)

// Directory keeps users in a map keyed by phone number, with a secondary
// index keyed by normalized location.
type Directory struct {
	mu     sync.RWMutex
	users  map[string]directory.User
	byLoc  map[string]map[string]struct{} // location key -> set of phones
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{
		users: make(map[string]directory.User),
		byLoc: make(map[string]map[string]struct{}),
	}
}

var _ directory.Directory = (*Directory)(nil)

func (d *Directory) Find(ctx context.Context, phone string) (*directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[phone]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return &u, nil
}

func (d *Directory) Register(ctx context.Context, phone, name, location string) (*directory.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[phone]; ok {
		return nil, directory.ErrDuplicateUser
	}
	u := directory.User{
		PhoneNumber:  phone,
		Name:         name,
		Location:     location,
		RegisteredAt: time.Now().UTC(),
	}
	d.users[phone] = u

	key := directory.LocationKey(location)
	if d.byLoc[key] == nil {
		d.byLoc[key] = make(map[string]struct{})
	}
	d.byLoc[key][phone] = struct{}{}
	return &u, nil
}

func (d *Directory) ListByLocation(ctx context.Context, loc string) ([]*directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*directory.User
	for phone := range d.byLoc[directory.LocationKey(loc)] {
		u := d.users[phone]
		out = append(out, &u)
	}
	return out, nil
}

func (d *Directory) Count(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users), nil
}
