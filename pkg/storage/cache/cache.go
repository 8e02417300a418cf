// Package cache wraps a storage.Store with a two level read-through cache
// for single document reads: an in-process expirable LRU in front of Redis.
//
// Writes go to the backing store first and then evict the document from
// both levels. View queries and listings always hit the backing store.
//
// The local level is per process, so another replica's eviction cannot reach
// it and a document may be served stale for up to LocalTTL. IDs matching
// SharedOnlyPrefixes skip the local level whenever Redis is configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/storage"
)

// Config configures the cache levels
type Config struct {
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisPoolSize   int
	RedisMaxRetries int

	// KeyPrefix namespaces redis keys
	KeyPrefix string
	// LocalSize is the number of documents held in process
	LocalSize int
	LocalTTL  time.Duration
	RedisTTL  time.Duration

	// SharedOnlyPrefixes lists document ID prefixes that are never held in
	// process while Redis is available. Nil means the default set; an empty
	// slice caches everything locally.
	SharedOnlyPrefixes []string
}

// DefaultConfig returns sensible defaults for a small deployment
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "httpusers:doc:",
		LocalSize: 1024,
		LocalTTL:  30 * time.Second,
		RedisTTL:  15 * time.Minute,
		// account state (passwords, tokens, status) must not lag behind
		// another replica's write
		SharedOnlyPrefixes: []string{"user/"},
	}
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Store is a caching storage.Store
type Store struct {
	next   storage.Store
	local  *lru.LRU[string, *storage.Document]
	redis  *redis.Client
	cfg    Config
	logger *logrus.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps next. rdb may be nil, in which case only the local level is used.
func New(next storage.Store, rdb *redis.Client, cfg Config, logger *logrus.Logger) *Store {
	defaults := DefaultConfig()
	if cfg.LocalSize <= 0 {
		cfg.LocalSize = defaults.LocalSize
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = defaults.LocalTTL
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = defaults.RedisTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.SharedOnlyPrefixes == nil {
		cfg.SharedOnlyPrefixes = defaults.SharedOnlyPrefixes
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Store{
		next:   next,
		local:  lru.NewLRU[string, *storage.Document](cfg.LocalSize, nil, cfg.LocalTTL),
		redis:  rdb,
		cfg:    cfg,
		logger: logger,
	}
}

// entry is the redis representation; Document hides Keys from JSON
type entry struct {
	ID        string              `json:"id"`
	Kind      string              `json:"kind"`
	Rev       int64               `json:"rev"`
	Body      json.RawMessage     `json:"body"`
	Keys      map[string][]string `json:"keys,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func (s *Store) redisKey(id string) string {
	return s.cfg.KeyPrefix + id
}

// cachesLocally reports whether id may be held in the local level
func (s *Store) cachesLocally(id string) bool {
	if s.redis == nil {
		return true
	}
	for _, prefix := range s.cfg.SharedOnlyPrefixes {
		if strings.HasPrefix(id, prefix) {
			return false
		}
	}
	return true
}

// Get implements storage.DocumentReader
func (s *Store) Get(ctx context.Context, id string) (*storage.Document, error) {
	local := s.cachesLocally(id)
	if local {
		if doc, ok := s.local.Get(id); ok {
			s.hits.Add(1)
			return doc.Clone(), nil
		}
	}

	if doc := s.getRemote(ctx, id); doc != nil {
		s.hits.Add(1)
		if local {
			s.local.Add(id, doc)
			return doc.Clone(), nil
		}
		return doc, nil
	}

	s.misses.Add(1)
	doc, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if local {
		s.local.Add(id, doc.Clone())
	}
	s.setRemote(ctx, doc)
	return doc, nil
}

func (s *Store) getRemote(ctx context.Context, id string) *storage.Document {
	if s.redis == nil {
		return nil
	}
	key := s.redisKey(id)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("document", id).Warn("redis get failed")
		return nil
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// corrupt entry
		s.redis.Del(ctx, key)
		return nil
	}
	return &storage.Document{
		ID: e.ID, Kind: e.Kind, Rev: e.Rev, Body: e.Body, Keys: e.Keys,
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

func (s *Store) setRemote(ctx context.Context, doc *storage.Document) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(entry{
		ID: doc.ID, Kind: doc.Kind, Rev: doc.Rev, Body: doc.Body, Keys: doc.Keys,
		CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.redisKey(doc.ID), data, s.cfg.RedisTTL).Err(); err != nil {
		s.logger.WithError(err).WithField("document", doc.ID).Warn("redis set failed")
	}
}

// Invalidate evicts a document from both levels
func (s *Store) Invalidate(ctx context.Context, id string) {
	s.local.Remove(id)
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, s.redisKey(id)).Err(); err != nil {
		s.logger.WithError(err).WithField("document", id).Warn("redis invalidate failed")
	}
}

// List implements storage.DocumentReader
func (s *Store) List(ctx context.Context, kind string) ([]*storage.Document, error) {
	return s.next.List(ctx, kind)
}

// Create implements storage.DocumentWriter
func (s *Store) Create(ctx context.Context, doc *storage.Document) error {
	if err := s.next.Create(ctx, doc); err != nil {
		return err
	}
	// drop any negative or stale entry left by a previous incarnation
	s.Invalidate(ctx, doc.ID)
	return nil
}

// Update implements storage.DocumentWriter. A conflict also evicts, so the
// caller's retry reads the current revision.
func (s *Store) Update(ctx context.Context, doc *storage.Document) error {
	err := s.next.Update(ctx, doc)
	if err == nil || errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
		s.Invalidate(ctx, doc.ID)
	}
	return err
}

// Destroy implements storage.DocumentWriter
func (s *Store) Destroy(ctx context.Context, id string) error {
	err := s.next.Destroy(ctx, id)
	s.Invalidate(ctx, id)
	return err
}

// Query implements storage.ViewQuerier
func (s *Store) Query(ctx context.Context, kind, view, key string) ([]*storage.Document, error) {
	return s.next.Query(ctx, kind, view, key)
}

// QueryPrefix implements storage.ViewQuerier
func (s *Store) QueryPrefix(ctx context.Context, kind, view, prefix string) ([]*storage.Document, error) {
	return s.next.QueryPrefix(ctx, kind, view, prefix)
}

// HealthCheck checks redis and the backing store when it supports checks
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis health check failed: %w", err)
		}
	}
	if hc, ok := s.next.(storage.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Stats reports hit and miss counts since start
type Stats struct {
	Hits      int64
	Misses    int64
	LocalSize int
}

// Stats returns cache statistics
func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), LocalSize: s.local.Len()}
}

var _ storage.Store = (*Store)(nil)
