package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"github.com/tckz/gcp-view-counter/internal/backend"
	"github.com/tckz/gcp-view-counter/internal/config"
	"github.com/tckz/gcp-view-counter/internal/log"
	"github.com/tckz/gcp-view-counter/internal/marker"
	"github.com/tckz/gcp-view-counter/internal/subscriber"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optWorkers      = flag.Uint64("workers", 4, "Number of workers")
	optLogLevel     = flag.String("log-level", "info", "info|warn|error")
	optSubscription = flag.String("subscription", "", "subscription name")
	optRedis        = flag.String("redis", "", "addr:port of redis for the process marker [default: REDIS_ADDR with the redis backend, else in-process]")
	optMarkerTTL    = flag.Duration("marker-ttl", 10*time.Minute, "how long a processed message id is remembered")
)

func init() {
	godotenv.Load()

	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)
	defer logger.Infof("done")

	if *optSubscription == "" {
		logger.Fatalf("*** --subscription must be specified.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("*** config.Load: %v", err)
	}

	b, err := backend.Open(ctx, cfg, logger.Desugar())
	if err != nil {
		logger.Fatalf("*** backend.Open: %v", err)
	}
	defer b.Close()

	cl, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Fatalf("*** pubsub.NewClient: %v", err)
	}
	defer cl.Close()

	// the redis backend's client doubles as the marker store unless --redis points elsewhere
	markerClient := b.Redis
	if *optRedis != "" {
		rc := backend.NewRedisClient(*optRedis)
		defer rc.Close()
		markerClient = rc
	}
	processMarker := marker.New(markerClient, "view-counter-processed:", *optMarkerTTL)

	proc := subscriber.NewProcessor(b.Handler, processMarker, logger.Desugar())

	var lastViews int64
	eg, ctx := errgroup.WithContext(ctx)
	for i := uint64(0); i < *optWorkers; i++ {
		eg.Go(func() error {
			subs := cl.Subscription(*optSubscription)
			return subs.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
				views, handled, err := proc.Process(ctx, msg.ID, msg)
				if err != nil {
					logger.Errorf("msgID=%s: %v", msg.ID, err)
					msg.Nack()
					return
				}
				if !handled {
					logger.Infof("msgID=%s already marked to be processed by other", msg.ID)
					msg.Ack()
					return
				}
				atomic.StoreInt64(&lastViews, views)
				if views%1000 == 0 {
					logger.Infof("views=%d", views)
				}
				msg.Ack()
			})
		})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Infof("Received signal: %v", s)
	case <-ctx.Done():
	}
	cancel()

	logger.Infof("Waiting goroutines exit")
	if err := eg.Wait(); err != nil {
		logger.Errorf("Wait: %v", err)
	}
	logger.Infof("last views=%d", atomic.LoadInt64(&lastViews))
}
