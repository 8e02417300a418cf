package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/config"
	"github.com/platinummonkey/httpusers/pkg/observability"
	"github.com/platinummonkey/httpusers/pkg/storage"
	"github.com/platinummonkey/httpusers/pkg/storage/cache"
	"github.com/platinummonkey/httpusers/pkg/storage/filesystem"
	"github.com/platinummonkey/httpusers/pkg/storage/memory"
	"github.com/platinummonkey/httpusers/pkg/storage/s3"
	"github.com/platinummonkey/httpusers/pkg/storage/sqlstore"
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// backend is the storage wiring chosen by configuration
type backend struct {
	store       storage.Store
	attachments storage.AttachmentStore
	closers     []closer
}

func openBackend(ctx context.Context, cfg *config.Config, logger *logrus.Logger, metrics *observability.Metrics, health *observability.HealthChecker) (*backend, error) {
	b := &backend{}

	var base storage.Store
	var sqlStore *sqlstore.Store
	if cfg.Storage.IsSQL() {
		dialect, err := sqlstore.DialectFor(cfg.Storage.Backend)
		if err != nil {
			return nil, err
		}
		db, err := sqlstore.Open(ctx, dialect, sqlstore.Options{
			DSN:          cfg.Storage.DSN,
			MaxOpenConns: cfg.Storage.MaxOpenConns,
			Migrate:      cfg.Storage.Migrate,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, closer{"database", func(context.Context) error { return db.Close() }})
		sqlStore = sqlstore.New(db, dialect)
		health.Register("database", sqlStore.HealthCheck)
		base = sqlStore
	} else {
		logger.Warn("Using in-memory storage; data is lost on restart")
		base = memory.NewStore()
	}

	var store storage.Store = observability.InstrumentStore(base, metrics, cfg.Storage.Backend)

	if cfg.Cache.Enabled {
		cc := cache.DefaultConfig()
		cc.RedisURL = cfg.Cache.RedisURL
		cc.RedisPassword = cfg.Cache.RedisPassword
		cc.RedisDB = cfg.Cache.RedisDB
		if cfg.Cache.LocalSize > 0 {
			cc.LocalSize = cfg.Cache.LocalSize
		}
		if cfg.Cache.LocalTTL > 0 {
			cc.LocalTTL = cfg.Cache.LocalTTL
		}
		if cfg.Cache.RedisTTL > 0 {
			cc.RedisTTL = cfg.Cache.RedisTTL
		}

		rdb, err := cache.NewRedisClient(ctx, cc)
		if err != nil {
			b.close(ctx)
			return nil, err
		}
		b.closers = append(b.closers, closer{"redis", func(context.Context) error { return rdb.Close() }})

		cached := cache.New(store, rdb, cc, logger)
		health.RegisterOptional("cache", cached.HealthCheck)
		metrics.RegisterCacheStats(func() (int64, int64) {
			st := cached.Stats()
			return st.Hits, st.Misses
		})
		store = cached
	}
	b.store = store

	attachments, err := openAttachments(ctx, cfg, sqlStore, health)
	if err != nil {
		b.close(ctx)
		return nil, err
	}
	b.attachments = attachments
	return b, nil
}

func openAttachments(ctx context.Context, cfg *config.Config, sqlStore *sqlstore.Store, health *observability.HealthChecker) (storage.AttachmentStore, error) {
	switch cfg.Attachments.Backend {
	case config.AttachmentsFilesystem:
		return filesystem.New(cfg.Attachments.FilesystemRoot)

	case config.AttachmentsS3:
		sc := cfg.Attachments.S3
		client, err := s3.NewClient(ctx, s3.Config{
			Endpoint:     sc.Endpoint,
			Region:       sc.Region,
			Bucket:       sc.Bucket,
			AccessKey:    sc.AccessKey,
			SecretKey:    sc.SecretKey,
			UsePathStyle: sc.UsePathStyle,
			Prefix:       sc.Prefix,
		})
		if err != nil {
			return nil, err
		}
		att := s3.New(client, sc.Bucket, sc.Prefix)
		if sc.CreateBucket {
			if err := att.EnsureBucket(ctx); err != nil {
				return nil, err
			}
		}
		health.Register("attachments", att.HealthCheck)
		return att, nil

	case config.AttachmentsDatabase, "":
		if sqlStore != nil {
			return sqlstore.NewAttachments(sqlStore), nil
		}
		return memory.NewAttachments(), nil
	}
	return nil, fmt.Errorf("unknown attachments backend %q", cfg.Attachments.Backend)
}

func (b *backend) close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i].fn(ctx)
	}
}
