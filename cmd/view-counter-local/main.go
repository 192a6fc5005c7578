package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/joho/godotenv"
	_ "github.com/tckz/gcp-view-counter"
	"github.com/tckz/gcp-view-counter/internal/config"
	"github.com/tckz/gcp-view-counter/internal/log"
	"go.uber.org/zap"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel = flag.String("log-level", "info", "info|warn|error; when given, or when LOG_LEVEL is unset, also becomes LOG_LEVEL of the served functions")
	optPort     = flag.String("port", "8080", "port to listen")
)

func init() {
	godotenv.Load()

	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

// Serves CountView at /CountView and CountViewEvent at /CountViewEvent unless FUNCTION_TARGET selects one.
func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "log-level" {
			explicit = true
		}
	})
	if explicit || os.Getenv("LOG_LEVEL") == "" {
		if err := config.SetLogLevel(*optLogLevel); err != nil {
			logger.Fatalf("*** SetLogLevel: %v", err)
		}
	}

	port := *optPort
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	logger.Infof("listening on :%s", port)
	if err := funcframework.Start(port); err != nil {
		logger.Fatalf("*** funcframework.Start: %v", err)
	}
}
