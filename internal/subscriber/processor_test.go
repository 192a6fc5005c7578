package subscriber

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tckz/gcp-view-counter/internal/counter"
	"github.com/tckz/gcp-view-counter/internal/marker"
	"github.com/tckz/gcp-view-counter/internal/store/memstore"
	"go.uber.org/zap"
)

func newProcessor(t *testing.T, s counter.Store) *Processor {
	t.Helper()
	h, err := counter.NewHandler(s)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return NewProcessor(h, marker.NewLocalMarker(time.Minute), zap.NewNop())
}

func TestProcessDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	if err := s.Create(ctx, counter.NewRecord(counter.FixedID, 0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	p := newProcessor(t, s)

	views, handled, err := p.Process(ctx, "a", nil)
	if err != nil || !handled || views != 1 {
		t.Fatalf("first delivery: views=%d handled=%t err=%v", views, handled, err)
	}
	_, handled, err = p.Process(ctx, "a", nil)
	if err != nil || handled {
		t.Fatalf("redelivery: handled=%t err=%v", handled, err)
	}
	views, handled, err = p.Process(ctx, "b", nil)
	if err != nil || !handled || views != 2 {
		t.Fatalf("second message: views=%d handled=%t err=%v", views, handled, err)
	}
}

func TestProcessReleasesOnFailure(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newProcessor(t, s)

	if _, _, err := p.Process(ctx, "a", nil); !errors.Is(err, counter.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	if err := s.Create(ctx, counter.NewRecord(counter.FixedID, 5)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	views, handled, err := p.Process(ctx, "a", nil)
	if err != nil || !handled || views != 6 {
		t.Fatalf("retry after failure: views=%d handled=%t err=%v", views, handled, err)
	}
}
