// Package viewcounter is the Cloud Functions entry point of the view counter.
//
// Two functions are registered: CountView for HTTP triggers and CountViewEvent for
// CloudEvent triggers such as Pub/Sub. Both increment the counter record and ignore
// the trigger payload.
package viewcounter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
	"github.com/tckz/gcp-view-counter/internal/backend"
	"github.com/tckz/gcp-view-counter/internal/config"
	"github.com/tckz/gcp-view-counter/internal/counter"
	"github.com/tckz/gcp-view-counter/internal/log"
	"go.uber.org/zap"
)

func init() {
	functions.HTTP("CountView", CountView)
	functions.CloudEvent("CountViewEvent", CountViewEvent)
}

var (
	mu      sync.Mutex
	handler *counter.Handler
	logger  = log.Must(log.NewLogger(log.WithCloudLogging()))

	// openHandler is swapped in tests.
	openHandler = openFromEnv
)

func openFromEnv(ctx context.Context) (*counter.Handler, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	zl, err := log.NewLogger(log.WithLogLevel(cfg.LogLevel), log.WithCloudLogging())
	if err != nil {
		return nil, nil, err
	}

	// clients outlive the invocation that happens to create them
	b, err := backend.Open(context.WithoutCancel(ctx), cfg, zl)
	if err != nil {
		return nil, nil, err
	}
	return b.Handler, zl, nil
}

// getHandler opens the backend on first use and keeps it for the lifetime of the instance.
// A failed open is retried on the next invocation.
func getHandler(ctx context.Context) (*counter.Handler, *zap.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if handler != nil {
		return handler, logger, nil
	}

	h, zl, err := openHandler(ctx)
	if err != nil {
		return nil, logger, fmt.Errorf("open handler: %w", err)
	}
	handler, logger = h, zl
	return handler, logger, nil
}

func invoke(ctx context.Context, trigger string, event any) (int64, *zap.Logger, error) {
	h, zl, err := getHandler(ctx)
	zl = zl.With(zap.String("invocationID", uuid.New().String()), zap.String("trigger", trigger))
	if err != nil {
		zl.Error("invocation failed", zap.Error(err))
		return 0, zl, err
	}

	views, err := h.Handle(ctx, event)
	if err != nil {
		zl.Error("invocation failed", zap.Error(err))
		return 0, zl, err
	}
	zl.Info("view counted", zap.Int64("views", views))
	return views, zl, nil
}

func CountView(w http.ResponseWriter, r *http.Request) {
	views, zl, err := invoke(r.Context(), "http", r)
	if err != nil {
		http.Error(w, "failed to count view", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		// the increment is already stored
		zl.Warn("write response", zap.Int64("views", views), zap.Error(err))
	}
}

func CountViewEvent(ctx context.Context, e event.Event) error {
	_, _, err := invoke(ctx, "event:"+e.Type(), e)
	return err
}
