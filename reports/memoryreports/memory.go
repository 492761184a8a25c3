// Package memoryreports is the in-process reports.Store implementation.
package memoryreports

import (
	"context"
	"sort"
	"sync"

	"github.com/kasalabs/ussd-server-go/reports"
)

// Store keeps reports in a map keyed by reference.
type Store struct {
	mu   sync.RWMutex
	byID map[string]reports.Report
}

// New returns an empty store.
func New() *Store {
	return &Store{byID: make(map[string]reports.Report)}
}

var _ reports.Store = (*Store)(nil)

func (s *Store) Put(ctx context.Context, r *reports.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.Reference] = *r
	return nil
}

func (s *Store) Get(ctx context.Context, reference string) (*reports.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[reference]
	if !ok {
		return nil, reports.ErrReportNotFound
	}
	return &r, nil
}

func (s *Store) List(ctx context.Context) ([]*reports.Report, error) {
	s.mu.RLock()
	out := make([]*reports.Report, 0, len(s.byID))
	for ref := range s.byID {
		r := s.byID[ref]
		out = append(out, &r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
