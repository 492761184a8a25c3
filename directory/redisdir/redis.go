// Package redisdir is a Redis-backed directory.Directory for multi-instance
// deployments. Users are JSON values guarded by SETNX so registration is
// write-once, with a set per normalized location serving the fan-out index.
package redisdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/kasalabs/ussd-server-go/directory"
)

// Config for the Redis-backed directory. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: DIRECTORY_KEY_PREFIX
	KeyPrefix string `env:"DIRECTORY_KEY_PREFIX,default=ussd:directory:"`
}

// Directory implements directory.Directory on Redis.
type Directory struct {
	client    *redis.Client
	keyPrefix string
}

// New constructs a Directory and verifies connectivity with a ping.
func New(cfg Config) (*Directory, error) {
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
		prefix = "ussd:directory:"
	}
	return &Directory{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Directory using envdecode to populate Config.
func NewFromEnv() (*Directory, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (d *Directory) Close() error { return d.client.Close() }

var _ directory.Directory = (*Directory)(nil)

func (d *Directory) userKey(phone string) string { return d.keyPrefix + "user:" + phone }
func (d *Directory) locKey(loc string) string {
	return d.keyPrefix + "loc:" + directory.LocationKey(loc)
}
func (d *Directory) allKey() string { return d.keyPrefix + "phones" }

func (d *Directory) Find(ctx context.Context, phone string) (*directory.User, error) {
	data, err := d.client.Get(ctx, d.userKey(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, directory.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var u directory.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

func (d *Directory) Register(ctx context.Context, phone, name, location string) (*directory.User, error) {
	u := directory.User{
		PhoneNumber:  phone,
		Name:         name,
		Location:     location,
		RegisteredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(&u)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}

	// SETNX is the duplicate guard: the first registration wins and later
	// attempts never touch the stored record.
	ok, err := d.client.SetNX(ctx, d.userKey(phone), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, directory.ErrDuplicateUser
	}

	pipe := d.client.Pipeline()
	pipe.SAdd(ctx, d.locKey(location), phone)
	pipe.SAdd(ctx, d.allKey(), phone)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis index update: %w", err)
	}
	return &u, nil
}

func (d *Directory) ListByLocation(ctx context.Context, loc string) ([]*directory.User, error) {
	phones, err := d.client.SMembers(ctx, d.locKey(loc)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	if len(phones) == 0 {
		return nil, nil
	}
	keys := make([]string, len(phones))
	for i, p := range phones {
		keys[i] = d.userKey(p)
	}
	vals, err := d.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	var out []*directory.User
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // index entry without a record; skip
		}
		var u directory.User
		if err := json.Unmarshal([]byte(s), &u); err != nil {
			continue
		}
		out = append(out, &u)
	}
	return out, nil
}

func (d *Directory) Count(ctx context.Context) (int, error) {
	n, err := d.client.SCard(ctx, d.allKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard: %w", err)
	}
	return int(n), nil
}
