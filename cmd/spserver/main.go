// Command spserver runs the SAML SP flow handler as a standalone server.
// Usage: spserver -config sp.yaml -listen :9080
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	samlspflow "github.com/philiph/samlspflow"
)

func main() {
	configPath := flag.String("config", "sp.yaml", "Path to the YAML configuration file")
	listen := flag.String("listen", ":9080", "Address to listen on")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := samlspflow.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	handler, err := samlspflow.New(cfg,
		samlspflow.WithLogger(logger),
		samlspflow.WithMetrics(samlspflow.NewPrometheusMetrics()),
	)
	if err != nil {
		logger.Fatal("failed to build SP handler", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.BasePath+"/", handler)
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("SP server listening",
		zap.String("addr", *listen),
		zap.String("entity_id", cfg.EntityID),
		zap.String("base_path", cfg.BasePath))
	if err := http.ListenAndServe(*listen, mux); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
