package memorystore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/kasalabs/ussd-server-go/sessions"
)

const (
	// DefaultTTL matches typical gateway dialog lifetimes.
	DefaultTTL = 120 * time.Second

	defaultSweepInterval = 30 * time.Second
)

// Store is an in-memory implementation of sessions.Store.
type Store struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	stopOnce sync.Once
	stop     chan struct{}
}

// entry holds one session. The entry mutex serializes Update calls for its
// session ID; the map lock above is only held long enough to look entries up.
type entry struct {
	mu   sync.Mutex
	sess sessions.Session
	gone bool // set once removed so a racing Update cannot resurrect it
}

// Option configures a Store.
type Option func(*config)

type config struct {
	ttl           time.Duration
	sweepInterval time.Duration
}

// WithTTL overrides the inactivity window after which a session is treated
// as absent.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) { c.ttl = ttl }
}

// WithSweepInterval overrides how often the background sweeper runs. A
// non-positive interval disables the sweeper; expiry then happens lazily on
// access only.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// New constructs a Store and starts its background sweeper.
func New(opts ...Option) *Store {
	cfg := config{ttl: DefaultTTL, sweepInterval: defaultSweepInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Store{
		ttl:     cfg.ttl,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	if cfg.sweepInterval > 0 {
		go s.sweepLoop(cfg.sweepInterval)
	}
	return s
}

var _ sessions.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone || s.expired(&e.sess, time.Now()) {
		s.evict(sessionID, e)
		return nil, sessions.ErrSessionNotFound
	}
	return cloneSession(&e.sess), nil
}

func (s *Store) Create(ctx context.Context, sessionID, phoneNumber string) (*sessions.Session, error) {
	now := time.Now()
	fresh := &entry{sess: sessions.Session{
		SessionID:    sessionID,
		PhoneNumber:  phoneNumber,
		State:        sessions.StateMain,
		CreatedAt:    now,
		LastActivity: now,
	}}

	// Entry locks are never taken while holding the map lock (evict nests the
	// other way around), so a prior entry is inspected outside s.mu and the
	// insert retried if it raced away.
	for {
		s.mu.Lock()
		e, ok := s.entries[sessionID]
		if !ok {
			s.entries[sessionID] = fresh
			s.mu.Unlock()
			return cloneSession(&fresh.sess), nil
		}
		s.mu.Unlock()

		e.mu.Lock()
		live := !e.gone && !s.expired(&e.sess, now)
		e.gone = true // expired or about to be replaced
		if live {
			e.gone = false
			e.mu.Unlock()
			return nil, sessions.ErrSessionExists
		}
		e.mu.Unlock()

		s.mu.Lock()
		if cur, ok := s.entries[sessionID]; ok && cur == e {
			delete(s.entries, sessionID)
		}
		s.mu.Unlock()
	}
}

func (s *Store) Update(ctx context.Context, sessionID string, fn func(*sessions.Session) error) (*sessions.Session, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	if e.gone || s.expired(&e.sess, now) {
		s.evict(sessionID, e)
		return nil, sessions.ErrSessionNotFound
	}

	// Mutate a scratch copy so a failing fn leaves the stored session intact.
	scratch := cloneSession(&e.sess)
	if err := fn(scratch); err != nil {
		return nil, err
	}
	scratch.LastActivity = now
	e.sess = *scratch
	return cloneSession(scratch), nil
}

func (s *Store) Remove(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if ok {
		delete(s.entries, sessionID)
	}
	s.mu.Unlock()
	if ok {
		e.mu.Lock()
		e.gone = true
		e.mu.Unlock()
	}
	return nil
}

func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now()

	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	swept := 0
	for _, id := range ids {
		s.mu.RLock()
		e, ok := s.entries[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		e.mu.Lock()
		if !e.gone && s.expired(&e.sess, now) {
			s.evict(id, e)
			swept++
		}
		e.mu.Unlock()
	}
	return swept, nil
}

// Close stops the background sweeper. The store remains usable afterwards;
// expiry falls back to lazy eviction.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Len reports the number of resident sessions, counting entries that have
// expired but not yet been evicted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) expired(sess *sessions.Session, now time.Time) bool {
	return now.Sub(sess.LastActivity) > s.ttl
}

// evict removes the map entry for id iff it still points at e. Callers hold
// e.mu. Nesting the map lock inside the entry lock is safe because no code
// path takes an entry lock while holding the map lock.
func (s *Store) evict(id string, e *entry) {
	e.gone = true
	s.mu.Lock()
	if cur, ok := s.entries[id]; ok && cur == e {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_, _ = s.SweepExpired(context.Background())
		}
	}
}

func cloneSession(in *sessions.Session) *sessions.Session {
	out := *in
	if in.Collected != nil {
		out.Collected = maps.Clone(in.Collected)
	}
	return &out
}
