package subscriber

import (
	"context"

	"github.com/tckz/gcp-view-counter/internal/counter"
	"github.com/tckz/gcp-view-counter/internal/marker"
	"go.uber.org/zap"
)

// Processor invokes the counter handler at most once per message id.
type Processor struct {
	handler *counter.Handler
	marker  marker.ProcessMarker
	logger  *zap.Logger
}

func NewProcessor(h *counter.Handler, m marker.ProcessMarker, logger *zap.Logger) *Processor {
	return &Processor{handler: h, marker: m, logger: logger}
}

// Process returns handled=false when another delivery of the same message already claimed it.
// On a handler failure the claim is released so the redelivery can try again.
func (p *Processor) Process(ctx context.Context, msgID string, event any) (views int64, handled bool, err error) {
	got, err := p.marker.Acquire(ctx, msgID)
	if err != nil {
		return 0, false, err
	}
	if !got {
		return 0, false, nil
	}

	views, err = p.handler.Handle(ctx, event)
	if err != nil {
		if rerr := p.marker.Release(ctx, msgID); rerr != nil {
			p.logger.Warn("Release", zap.String("msgID", msgID), zap.Error(rerr))
		}
		return 0, false, err
	}
	return views, true, nil
}
