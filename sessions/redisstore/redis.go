package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/kasalabs/ussd-server-go/sessions"
)

// Config for the Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=ussd:sessions:"`
	// TTL is the inactivity window. ENV: SESSIONS_TTL
	TTL time.Duration `env:"SESSIONS_TTL,default=120s"`
}

// Store implements sessions.Store on Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// txRetries bounds how often Update re-runs after a WATCH conflict before
// giving up. Conflicts require two turns for one dialog in flight at once,
// so even a burst of gateway retransmissions resolves well within the bound.
const txRetries = 32

// New constructs a Store and verifies connectivity with a ping.
func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ussd:sessions:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &Store{client: cl, keyPrefix: prefix, ttl: ttl}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

var _ sessions.Store = (*Store)(nil)

func (s *Store) key(sessionID string) string { return s.keyPrefix + "sess:" + sessionID }

func (s *Store) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeSession(data)
}

func (s *Store) Create(ctx context.Context, sessionID, phoneNumber string) (*sessions.Session, error) {
	now := time.Now().UTC()
	sess := &sessions.Session{
		SessionID:    sessionID,
		PhoneNumber:  phoneNumber,
		State:        sessions.StateMain,
		CreatedAt:    now,
		LastActivity: now,
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(sessionID), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, sessions.ErrSessionExists
	}
	return sess, nil
}

func (s *Store) Update(ctx context.Context, sessionID string, fn func(*sessions.Session) error) (*sessions.Session, error) {
	key := s.key(sessionID)
	var updated *sessions.Session

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sessions.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}
		sess, err := decodeSession(data)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.LastActivity = time.Now().UTC()
		out, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = sess
		return nil
	}

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("session %s: update contention not resolved after %d attempts", sessionID, txRetries)
}

func (s *Store) Remove(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SweepExpired is a no-op: Redis expires session keys natively via the TTL
// set on every write.
func (s *Store) SweepExpired(ctx context.Context) (int, error) { return 0, nil }

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func decodeSession(data []byte) (*sessions.Session, error) {
	var sess sessions.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}
