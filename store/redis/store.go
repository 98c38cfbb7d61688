// Package redis implements store.Store on Redis. Entities are stored as
// JSON strings; a sorted set scored by due time indexes claimable runs,
// per-run sorted sets keep checkpoint order, and cron locks and the
// leadership lease are keys with a TTL.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zephraph/sps/actor"
	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/door"
	"github.com/zephraph/sps/workflow"
)

// Compile-time interface checks.
var (
	_ workflow.Store      = (*Store)(nil)
	_ cron.Store          = (*Store)(nil)
	_ cluster.Store       = (*Store)(nil)
	_ actor.SnapshotStore = (*Store)(nil)
	_ door.StateStore     = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithOwnedClient makes Close close the client.
func WithOwnedClient() Option {
	return func(s *Store) { s.owned = true }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	rdb    *goredis.Client
	logger *slog.Logger
	owned  bool
}

// New creates a Redis-backed store. The caller owns the client unless
// WithOwnedClient is given.
func New(client *goredis.Client, opts ...Option) *Store {
	s := &Store{rdb: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() *goredis.Client { return s.rdb }

// Migrate is a no-op for Redis.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client if the store owns it.
func (s *Store) Close() error {
	if s.owned {
		return s.rdb.Close()
	}
	return nil
}

var errNotFound = errors.New("sps/redis: key not found")

func isNotFound(err error) bool { return errors.Is(err, errNotFound) }

func isRedisNil(err error) bool { return errors.Is(err, goredis.Nil) }

// getEntity loads the JSON value at key into v.
func getEntity(ctx context.Context, c goredis.Cmdable, key string, v any) error {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if isRedisNil(err) {
			return errNotFound
		}
		return err
	}
	return json.Unmarshal(raw, v)
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sps/redis: marshal: %w", err)
	}
	return data, nil
}
