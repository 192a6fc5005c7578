// Package memstore keeps counter records in process memory.
// Records do not survive a restart, so it is only meant for local runs and tests.
package memstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/tckz/gcp-view-counter/internal/counter"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
	_ counter.Creator     = (*Store)(nil)
)

type Store struct {
	// serializes read-modify-write sequences; plain Get/Set are safe on the cache itself
	mu    sync.Mutex
	cache *cache.Cache
}

func New() *Store {
	return &Store{cache: cache.New(cache.NoExpiration, 0)}
}

func key(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (s *Store) Get(ctx context.Context, id int64) (*counter.Record, error) {
	v, ok := s.cache.Get(key(id))
	if !ok {
		return nil, counter.ErrRecordNotFound
	}
	return clone(v.(counter.Record)), nil
}

func (s *Store) Put(ctx context.Context, rec *counter.Record) error {
	s.cache.Set(key(rec.ID), *clone(*rec), cache.NoExpiration)
	return nil
}

func (s *Store) Create(ctx context.Context, rec *counter.Record) error {
	if err := s.cache.Add(key(rec.ID), *clone(*rec), cache.NoExpiration); err != nil {
		return counter.ErrRecordExists
	}
	return nil
}

func (s *Store) Increment(ctx context.Context, id int64, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if rec.Views == nil {
		return 0, counter.ErrMissingField
	}
	n := *rec.Views + delta
	rec.Views = &n
	return n, s.Put(ctx, rec)
}

func clone(rec counter.Record) *counter.Record {
	if rec.Views != nil {
		v := *rec.Views
		rec.Views = &v
	}
	return &rec
}
