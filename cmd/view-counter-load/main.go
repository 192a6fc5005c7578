package main

// Counts views at a rate and reports how many of them the stored counter lost.
// --via=direct calls the handler in-process; --via=pubsub publishes one message per view to the topic
// feeding CountViewEvent or view-counter-subscriber, then waits for the counter to settle.

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tckz/gcp-view-counter/internal/backend"
	"github.com/tckz/gcp-view-counter/internal/config"
	"github.com/tckz/gcp-view-counter/internal/counter"
	"github.com/tckz/gcp-view-counter/internal/loadreport"
	"github.com/tckz/gcp-view-counter/internal/log"
	vh "github.com/tckz/vegetahelper"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optRate = &vh.RateFlag{
		Rate: &vegeta.Rate{
			Freq: 30,
			Per:  1 * time.Second,
		}}
	optDuration       = flag.Duration("duration", 10*time.Second, "Duration of the test [0 = forever]")
	optOutput         = flag.String("output", "", "/path/to/results.bin or 'stdout'")
	optWorkers        = flag.Uint64("workers", vegeta.DefaultWorkers, "Number of workers")
	optLogLevel       = flag.String("log-level", "info", "info|warn|error")
	optVia            = flag.String("via", "direct", "direct|pubsub")
	optTopic          = flag.String("topic", "", "topic name (--via=pubsub)")
	optSettle         = flag.Duration("settle", time.Minute, "how long to wait for published views to be counted (--via=pubsub)")
	optSettleInterval = flag.Duration("settle-interval", 2*time.Second, "interval of reading the counter while settling")
)

func init() {
	godotenv.Load()

	flag.Var(optRate, "rate", "Number of requests per time unit")
	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

func readViews(ctx context.Context, s counter.Store) (int64, error) {
	rec, err := s.Get(ctx, counter.FixedID)
	if err != nil {
		return 0, err
	}
	if rec.Views == nil {
		return 0, counter.ErrMissingField
	}
	return *rec.Views, nil
}

type hitFunc func(ctx context.Context) (*vh.HitResult, error)

func directHit(h *counter.Handler, rec *loadreport.Recorder) hitFunc {
	return func(ctx context.Context) (*vh.HitResult, error) {
		views, err := h.Handle(ctx, nil)
		rec.Record(views, err)
		if err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// pubsubHit blocks until the message is accepted so that the hit latency includes the publish.
func pubsubHit(topic *pubsub.Topic, rec *loadreport.Recorder) hitFunc {
	return func(ctx context.Context) (*vh.HitResult, error) {
		msg := &pubsub.Message{
			Data:       []byte("view"),
			Attributes: map[string]string{"viewID": uuid.New().String()},
		}
		_, err := topic.Publish(ctx, msg).Get(ctx)
		rec.RecordAccepted(err)
		if err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	if *optOutput == "" {
		logger.Fatalf("*** --output must be specified.")
	}
	switch *optVia {
	case "direct":
	case "pubsub":
		if *optTopic == "" {
			logger.Fatalf("*** --topic must be specified with --via=pubsub.")
		}
		if *optSettle <= 0 {
			logger.Fatalf("*** --settle must be positive with --via=pubsub.")
		}
	default:
		logger.Fatalf("*** unknown --via: %s", *optVia)
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

	initial, err := readViews(ctx, b.Store)
	if err != nil {
		logger.Fatalf("*** readViews: %v", err)
	}

	var rec loadreport.Recorder
	var hit hitFunc
	var topic *pubsub.Topic
	if *optVia == "pubsub" {
		cl, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Fatalf("*** pubsub.NewClient: %v", err)
		}
		defer cl.Close()

		topic = cl.Topic(*optTopic)
		defer topic.Stop()
		hit = pubsubHit(topic, &rec)
	} else {
		hit = directHit(b.Handler, &rec)
	}

	atk := vh.NewAttacker(func(ctx context.Context) (result *vh.HitResult, retErr error) {
		return hit(ctx)
	}, vh.WithWorkers(*optWorkers))
	res := atk.Attack(ctx, *optRate.Rate, *optDuration, "view-counter-"+*optVia)

	out, err := loadreport.OpenResults(*optOutput)
	if err != nil {
		logger.Fatal(err)
	}
	defer out.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)

	written, err := loadreport.WriteResults(res, out, sig, func() {
		logger.Infof("Stopping the attack")
		cancel()
	})
	if err != nil {
		logger.Errorf("*** WriteResults: %v", err)
	}
	logger.Infof("results written=%d", written)

	// reads below must survive a cancelled attack
	readCtx := context.Background()
	var final int64
	if topic != nil {
		topic.Stop()
		want := initial + rec.Successes()
		logger.Infof("waiting up to %s for views=%d", *optSettle, want)
		final, err = loadreport.WaitSettled(readCtx, func(ctx context.Context) (int64, error) {
			return readViews(ctx, b.Store)
		}, want, *optSettleInterval, *optSettle)
	} else {
		final, err = readViews(readCtx, b.Store)
	}
	if err != nil {
		logger.Fatalf("*** final views: %v", err)
	}

	report := rec.Report(initial, final)
	logger.With(zap.Any("duplicates", report.Duplicates)).Infof("via=%s, mode=%s, %s", *optVia, cfg.Mode, report)
}
