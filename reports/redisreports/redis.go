// Package redisreports is a Redis-backed reports.Store. Reports are JSON
// values indexed by a sorted set keyed on filing time, which makes the
// newest-first listing a single ZREVRANGE.
package redisreports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/kasalabs/ussd-server-go/reports"
)

// Config for the Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: REPORTS_KEY_PREFIX
	KeyPrefix string `env:"REPORTS_KEY_PREFIX,default=ussd:reports:"`
}

// Store implements reports.Store on Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

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
		prefix = "ussd:reports:"
	}
	return &Store{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

var _ reports.Store = (*Store)(nil)

func (s *Store) reportKey(ref string) string { return s.keyPrefix + "report:" + ref }
func (s *Store) indexKey() string            { return s.keyPrefix + "by-time" }

func (s *Store) Put(ctx context.Context, r *reports.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.reportKey(r.Reference), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(r.CreatedAt.UnixNano()),
		Member: r.Reference,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put report: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, reference string) (*reports.Report, error) {
	data, err := s.client.Get(ctx, s.reportKey(reference)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, reports.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var r reports.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

func (s *Store) List(ctx context.Context) ([]*reports.Report, error) {
	refs, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}
	var out []*reports.Report
	for _, ref := range refs {
		r, err := s.Get(ctx, ref)
		if errors.Is(err, reports.ErrReportNotFound) {
			continue // index entry without a record; skip
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
