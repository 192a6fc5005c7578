package counter

import (
	"context"
	"errors"
)

// FixedID is the key of the single counter record.
const FixedID int64 = 1

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrMissingField     = errors.New("missing field")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrRecordExists     = errors.New("record already exists")
)

// Record is the counter entity. Views is nil when the stored record has no views attribute.
type Record struct {
	ID    int64
	Views *int64
}

func NewRecord(id, views int64) *Record {
	return &Record{ID: id, Views: &views}
}

type Store interface {
	Get(ctx context.Context, id int64) (*Record, error)
	// Put overwrites the whole record.
	Put(ctx context.Context, rec *Record) error
}

// Incrementer adds delta to views in a single atomic operation and returns the result.
type Incrementer interface {
	Increment(ctx context.Context, id int64, delta int64) (int64, error)
}

// Creator stores rec only if no record with the same id exists.
type Creator interface {
	Create(ctx context.Context, rec *Record) error
}
