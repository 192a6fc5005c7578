package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/tckz/gcp-view-counter/internal/backend"
	"github.com/tckz/gcp-view-counter/internal/config"
	"github.com/tckz/gcp-view-counter/internal/counter"
	"github.com/tckz/gcp-view-counter/internal/log"
	"github.com/tckz/gcp-view-counter/internal/store/sqlstore"
	"go.uber.org/zap"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
	optViews    = flag.Int64("views", 0, "initial views")
	optForce    = flag.Bool("force", false, "overwrite the record if it already exists")
	optMigrate  = flag.Bool("migrate", false, "create the view_counts table first (mysql backend only)")
	optTimeout  = flag.Duration("timeout", 30*time.Second, "timeout")
)

func init() {
	godotenv.Load()

	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	if *optViews < 0 {
		logger.Fatalf("*** --views must not be negative")
	}

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

	if *optMigrate {
		s, ok := b.Store.(*sqlstore.Store)
		if !ok {
			logger.Fatalf("*** --migrate is only supported by the mysql backend")
		}
		if err := s.Migrate(ctx); err != nil {
			logger.Fatalf("*** Migrate: %v", err)
		}
	}

	rec := counter.NewRecord(counter.FixedID, *optViews)
	if *optForce {
		if err := b.Store.Put(ctx, rec); err != nil {
			logger.Fatalf("*** Put: %v", err)
		}
		logger.Infof("overwritten: id=%d, views=%d", rec.ID, *rec.Views)
		return
	}

	c, ok := b.Store.(counter.Creator)
	if !ok {
		logger.Fatalf("*** %s backend cannot create records, use --force", cfg.Backend)
	}
	err = c.Create(ctx, rec)
	if errors.Is(err, counter.ErrRecordExists) {
		logger.Infof("id=%d already exists, use --force to overwrite", rec.ID)
		return
	} else if err != nil {
		logger.Fatalf("*** Create: %v", err)
	}
	logger.Infof("created: id=%d, views=%d", rec.ID, *rec.Views)
}
