// Package backend builds the configured counter store and handler.
package backend

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/redis/go-redis/v9"
	"github.com/tckz/gcp-view-counter/internal/config"
	"github.com/tckz/gcp-view-counter/internal/counter"
	"github.com/tckz/gcp-view-counter/internal/store/dsstore"
	"github.com/tckz/gcp-view-counter/internal/store/memstore"
	"github.com/tckz/gcp-view-counter/internal/store/redisstore"
	"github.com/tckz/gcp-view-counter/internal/store/sqlstore"
	"go.uber.org/zap"
)

type Backend struct {
	// Store is the raw store without retries.
	Store   counter.Store
	Handler *counter.Handler
	// Redis is set only for the redis backend.
	Redis   redis.UniversalClient
	closers []func() error
}

func (b *Backend) Close() error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewRedisClient(addr string) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		DialTimeout:  time.Second * 2,
		ReadTimeout:  time.Second * 2,
		WriteTimeout: time.Second * 2,
		PoolSize:     200,
		PoolTimeout:  time.Second * 5,
	})
}

func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{}

	switch cfg.Backend {
	case config.BackendDatastore:
		cl, err := datastore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("datastore.NewClient: %w", err)
		}
		b.closers = append(b.closers, cl.Close)
		b.Store = dsstore.New(cl, dsstore.WithKind(cfg.Kind), dsstore.WithNamespace(cfg.Namespace))
	case config.BackendRedis:
		cl := NewRedisClient(cfg.RedisAddr)
		b.closers = append(b.closers, cl.Close)
		b.Redis = cl
		b.Store = redisstore.New(cl, cfg.RedisPrefix)
	case config.BackendMySQL:
		db, err := sqlstore.Open(cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db.DB: %w", err)
		}
		b.closers = append(b.closers, sqlDB.Close)
		b.Store = sqlstore.New(db)
	case config.BackendMemory:
		// nothing outside this process can seed it
		s := memstore.New()
		if err := s.Create(ctx, counter.NewRecord(counter.FixedID, cfg.MemorySeed)); err != nil {
			return nil, fmt.Errorf("memstore.Create: %w", err)
		}
		b.Store = s
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}

	mode, err := counter.ParseMode(cfg.Mode)
	if err != nil {
		b.Close()
		return nil, err
	}

	h, err := counter.NewHandler(counter.WithRetry(b.Store, cfg.MaxTries, logger),
		counter.WithMode(mode),
		counter.WithLogger(logger),
	)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("counter.NewHandler: %w", err)
	}
	b.Handler = h

	logger.Info("backend opened",
		zap.String("backend", cfg.Backend),
		zap.String("mode", cfg.Mode),
		zap.Uint("maxTries", cfg.MaxTries))

	return b, nil
}
