package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var (
	_ Store       = (*RetryStore)(nil)
	_ Incrementer = (*RetryStore)(nil)
	_ Creator     = (*RetryStore)(nil)
)

// RetryStore retries Get and Put while the wrapped store reports ErrStoreUnavailable.
type RetryStore struct {
	store      Store
	maxTries   uint
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

func WithRetry(store Store, maxTries uint, logger *zap.Logger) *RetryStore {
	if maxTries == 0 {
		maxTries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryStore{
		store:    store,
		maxTries: maxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		logger: logger,
	}
}

func (s *RetryStore) Unwrap() Store {
	return s.store
}

func (s *RetryStore) Get(ctx context.Context, id int64) (*Record, error) {
	return retry(ctx, s, "Get", func() (*Record, error) {
		return s.store.Get(ctx, id)
	})
}

func (s *RetryStore) Put(ctx context.Context, rec *Record) error {
	_, err := retry(ctx, s, "Put", func() (struct{}, error) {
		return struct{}{}, s.store.Put(ctx, rec)
	})
	return err
}

// Increment is passed through once; a retried increment could be applied twice.
func (s *RetryStore) Increment(ctx context.Context, id int64, delta int64) (int64, error) {
	inc, ok := s.store.(Incrementer)
	if !ok {
		return 0, fmt.Errorf("store %T does not support atomic increment", s.store)
	}
	return inc.Increment(ctx, id, delta)
}

func (s *RetryStore) Create(ctx context.Context, rec *Record) error {
	c, ok := s.store.(Creator)
	if !ok {
		return fmt.Errorf("store %T does not support create", s.store)
	}
	return c.Create(ctx, rec)
}

func retry[T any](ctx context.Context, s *RetryStore, op string, fn func() (T, error)) (T, error) {
	if s.maxTries <= 1 {
		return fn()
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !errors.Is(err, ErrStoreUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			s.logger.Warn("retrying", zap.String("op", op), zap.Duration("wait", d), zap.Error(err))
		}),
	)
}

func supportsIncrement(store Store) bool {
	for {
		if r, ok := store.(*RetryStore); ok {
			store = r.Unwrap()
			continue
		}
		_, ok := store.(Incrementer)
		return ok
	}
}
