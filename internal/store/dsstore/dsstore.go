package dsstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/datastore"
	"github.com/tckz/gcp-view-counter/internal/counter"
)

const (
	DefaultKind = "ViewCount"

	propID    = "id"
	propViews = "views"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
	_ counter.Creator     = (*Store)(nil)
)

type options struct {
	kind      string
	namespace string
}

type Option func(o *options)

func WithKind(kind string) Option {
	return Option(func(o *options) {
		o.kind = kind
	})
}

func WithNamespace(ns string) Option {
	return Option(func(o *options) {
		o.namespace = ns
	})
}

// Store keeps the counter as an entity keyed by IDKey(kind, id).
// Entities are loaded as PropertyList so that a missing views property can be told apart from zero.
type Store struct {
	client    *datastore.Client
	kind      string
	namespace string
}

func New(client *datastore.Client, opts ...Option) *Store {
	options := options{
		kind: DefaultKind,
	}

	for _, e := range opts {
		e(&options)
	}

	return &Store{
		client:    client,
		kind:      options.kind,
		namespace: options.namespace,
	}
}

func (s *Store) Key(id int64) *datastore.Key {
	key := datastore.IDKey(s.kind, id, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) Get(ctx context.Context, id int64) (*counter.Record, error) {
	var props datastore.PropertyList
	if err := s.client.Get(ctx, s.Key(id), &props); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, counter.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: datastore.Get: %w", counter.ErrStoreUnavailable, err)
	}
	return recordFromProperties(id, props)
}

func (s *Store) Put(ctx context.Context, rec *counter.Record) error {
	props := propertiesFromRecord(rec)
	if _, err := s.client.Put(ctx, s.Key(rec.ID), &props); err != nil {
		return fmt.Errorf("%w: datastore.Put: %w", counter.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, rec *counter.Record) error {
	key := s.Key(rec.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var props datastore.PropertyList
		err := tx.Get(key, &props)
		if err == nil {
			return counter.ErrRecordExists
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}

		props = propertiesFromRecord(rec)
		_, err = tx.Put(key, &props)
		return err
	})
	return mapTxError("Create", err)
}

func (s *Store) Increment(ctx context.Context, id int64, delta int64) (int64, error) {
	key := s.Key(id)
	var views int64
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		// may run more than once on contention; views must be recomputed every time
		var props datastore.PropertyList
		if err := tx.Get(key, &props); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return counter.ErrRecordNotFound
			}
			return err
		}

		rec, err := recordFromProperties(id, props)
		if err != nil {
			return err
		}
		if rec.Views == nil {
			return counter.ErrMissingField
		}

		views = *rec.Views + delta
		props = propertiesFromRecord(counter.NewRecord(id, views))
		_, err = tx.Put(key, &props)
		return err
	})
	if err := mapTxError("Increment", err); err != nil {
		return 0, err
	}
	return views, nil
}

func mapTxError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, counter.ErrRecordExists),
		errors.Is(err, counter.ErrRecordNotFound),
		errors.Is(err, counter.ErrMissingField):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", counter.ErrStoreUnavailable, op, err)
	}
}

func recordFromProperties(id int64, props datastore.PropertyList) (*counter.Record, error) {
	rec := &counter.Record{ID: id}
	for _, p := range props {
		if p.Name != propViews {
			continue
		}
		n, ok := p.Value.(int64)
		if !ok {
			return nil, fmt.Errorf("views has type %T: %w", p.Value, counter.ErrMissingField)
		}
		rec.Views = &n
	}
	return rec, nil
}

func propertiesFromRecord(rec *counter.Record) datastore.PropertyList {
	props := datastore.PropertyList{
		{Name: propID, Value: rec.ID},
	}
	if rec.Views != nil {
		props = append(props, datastore.Property{Name: propViews, Value: *rec.Views})
	}
	return props
}
