package counter

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type Mode string

const (
	// ModeOverwrite reads the record, increments locally and writes it back.
	// Concurrent invocations may lose updates.
	ModeOverwrite Mode = "overwrite"
	ModeAtomic    Mode = "atomic"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOverwrite, ModeAtomic:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode: %s", s)
	}
}

type options struct {
	mode   Mode
	logger *zap.Logger
}

type Option func(o *options)

func WithMode(m Mode) Option {
	return Option(func(o *options) {
		o.mode = m
	})
}

func WithLogger(l *zap.Logger) Option {
	return Option(func(o *options) {
		o.logger = l
	})
}

type Handler struct {
	store  Store
	mode   Mode
	logger *zap.Logger
}

func NewHandler(store Store, opts ...Option) (*Handler, error) {
	options := options{
		mode:   ModeOverwrite,
		logger: zap.NewNop(),
	}

	for _, e := range opts {
		e(&options)
	}

	if options.mode == ModeAtomic {
		if !supportsIncrement(store) {
			return nil, fmt.Errorf("store %T does not support atomic increment", store)
		}
	}

	return &Handler{
		store:  store,
		mode:   options.mode,
		logger: options.logger,
	}, nil
}

// Handle increments the views of the fixed record and returns the new value.
// event is the trigger payload and is never inspected.
func (h *Handler) Handle(ctx context.Context, event any) (int64, error) {
	if h.mode == ModeAtomic {
		n, err := h.store.(Incrementer).Increment(ctx, FixedID, 1)
		if err != nil {
			return 0, fmt.Errorf("Increment: %w", err)
		}
		h.logger.Debug("incremented", zap.Int64("views", n))
		return n, nil
	}

	rec, err := h.store.Get(ctx, FixedID)
	if err != nil {
		return 0, fmt.Errorf("Get: %w", err)
	}
	if rec.Views == nil {
		return 0, fmt.Errorf("id=%d: views: %w", FixedID, ErrMissingField)
	}

	views := *rec.Views + 1
	if err := h.store.Put(ctx, NewRecord(FixedID, views)); err != nil {
		return 0, fmt.Errorf("Put: %w", err)
	}
	h.logger.Debug("overwritten", zap.Int64("views", views))

	return views, nil
}
