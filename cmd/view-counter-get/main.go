package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/tckz/gcp-view-counter/internal/backend"
	"github.com/tckz/gcp-view-counter/internal/config"
	"github.com/tckz/gcp-view-counter/internal/counter"
	"github.com/tckz/gcp-view-counter/internal/log"
	"go.uber.org/zap"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel = flag.String("log-level", "warn", "info|warn|error")
	optTimeout  = flag.Duration("timeout", 10*time.Second, "timeout")
)

func init() {
	godotenv.Load()

	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	ctx, cancel := context.WithTimeout(context.Background(), *optTimeout)
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

	rec, err := b.Store.Get(ctx, counter.FixedID)
	if err != nil {
		logger.Errorf("Get: %v", err)
		return
	}

	if rec.Views == nil {
		fmt.Fprintf(os.Stdout, "id=%d views=<missing>\n", rec.ID)
		return
	}
	fmt.Fprintf(os.Stdout, "id=%d views=%d\n", rec.ID, *rec.Views)
}
