package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/tckz/gcp-view-counter/internal/counter"
)

const (
	fieldID    = "id"
	fieldViews = "views"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
	_ counter.Creator     = (*Store)(nil)
)

// KEYS[1] hash, ARGV[1] delta
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return redis.error_reply('NOTFOUND')
end
if redis.call('HEXISTS', KEYS[1], 'views') == 0 then
  return redis.error_reply('NOFIELD')
end
return redis.call('HINCRBY', KEYS[1], 'views', ARGV[1])
`)

// Store keeps each record in a hash named "<prefix>:{<id>}".
type Store struct {
	prefix string
	client redis.UniversalClient
}

func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{prefix: prefix, client: client}
}

func (s *Store) key(id int64) string {
	return fmt.Sprintf("%s:{%d}", s.prefix, id)
}

func (s *Store) Get(ctx context.Context, id int64) (*counter.Record, error) {
	m, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: HGetAll: %w", counter.ErrStoreUnavailable, err)
	}
	if len(m) == 0 {
		return nil, counter.ErrRecordNotFound
	}

	rec := &counter.Record{ID: id}
	if v, ok := m[fieldViews]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("views=%q is not an integer: %w", v, counter.ErrMissingField)
		}
		rec.Views = &n
	}
	return rec, nil
}

func (s *Store) Put(ctx context.Context, rec *counter.Record) error {
	key := s.key(rec.ID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, values(rec)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: Put: %w", counter.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, rec *counter.Record) error {
	key := s.key(rec.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return counter.ErrRecordExists
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, values(rec)...)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, counter.ErrRecordExists):
		return err
	case errors.Is(err, redis.TxFailedErr):
		// someone else touched the key between EXISTS and EXEC
		return counter.ErrRecordExists
	default:
		return fmt.Errorf("%w: Create: %w", counter.ErrStoreUnavailable, err)
	}
}

func (s *Store) Increment(ctx context.Context, id int64, delta int64) (int64, error) {
	n, err := incrementScript.Run(ctx, s.client, []string{s.key(id)}, delta).Int64()
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "NOTFOUND"):
			return 0, counter.ErrRecordNotFound
		case strings.Contains(msg, "NOFIELD"):
			return 0, counter.ErrMissingField
		case strings.Contains(msg, "not an integer"):
			return 0, fmt.Errorf("%s: %w", msg, counter.ErrMissingField)
		}
		return 0, fmt.Errorf("%w: Increment: %w", counter.ErrStoreUnavailable, err)
	}
	return n, nil
}

func values(rec *counter.Record) []any {
	v := []any{fieldID, rec.ID}
	if rec.Views != nil {
		v = append(v, fieldViews, *rec.Views)
	}
	return v
}
