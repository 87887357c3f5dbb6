// Package main wires and runs the exporter binary.
// It owns CLI flag parsing, logging setup, and the HTTP server with timeouts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/collector"
	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/config"
	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/discovery"
	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/logger"
	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/rpcclient"
	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/server"
)

const (
	// DefaultScrapeInterval documents the pull system's schedule; the health
	// staleness window is derived from it.
	DefaultScrapeInterval = 30 * time.Second

	// Operability constants.
	httpShutdownTimeout = 10 * time.Second
	healthTickInterval  = 5 * time.Second
)

var (
	// CLI flags. Deployment-injected values (service name, namespace,
	// credentials) come from the environment instead, see internal/config.
	listenAddr = flag.String("listen-addr", config.DefaultListenAddr, "IP address and port to bind")
	configPath = flag.String("config", "", "Optional YAML config file")
	rpcTimeout = flag.Duration(
		"rpc-timeout",
		config.DefaultRPCTimeout,
		"Per-target time limit for the RPC query set. Keep well below the scrape interval.",
	)
	minCollectInterval = flag.Duration(
		"min-collect-interval",
		config.DefaultMinCollectInterval,
		"Shortest period between collection passes; earlier scrapes get the cached snapshot.",
	)
	scrapeInterval = flag.Duration(
		"scrape-interval",
		DefaultScrapeInterval,
		"Scrape interval the pull system is configured with (drives the health window).",
	)
	logFormat = flag.String("log-format", "plain", "Either json, text or plain")
	logLevel  = flag.String("log-level", "info", "Either debug, info, warn, error")
	logTime   = flag.Bool("log-time", false, "Include timestamp in logs")
	help      = flag.Bool("help", false, "Display help message")
)

// usage prints flag usage to stdout.
func usage() {
	outWriter := os.Stdout
	_, _ = fmt.Fprintf(outWriter, "Usage of %s:\n", os.Args[0])
	flag.CommandLine.SetOutput(outWriter)
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

// run contains the full program logic and returns an exit code, so that
// defers inside it always execute.
func run() int {
	flag.Parse()

	if *help {
		usage()

		return 0
	}

	_ = logger.Configure(*logFormat, *logLevel, *logTime)
	loggerInstance := logger.L()

	loggerInstance.Info("bitcoin-exporter starting",
		"version", version,
		"commit", commit,
		"date", date,
	)

	cfg, loadErr := config.Load(*configPath)
	if loadErr != nil {
		loggerInstance.Error("config load failed", "err", loadErr)

		return 1
	}

	applyFlagOverrides(&cfg)

	if validateErr := cfg.Validate(); validateErr != nil {
		loggerInstance.Error("invalid configuration", "err", validateErr)

		return 1
	}

	// Root context canceled on SIGINT/SIGTERM; it also cancels any pass
	// still in flight during shutdown.
	rootContext, cancelRoot := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancelRoot()

	// Dedicated registry: the scrape output carries exactly the node
	// metrics and the exporter's own series, nothing else.
	registry := prometheus.NewRegistry()
	collector.ConfigureSelfMetrics(registry, version, commit, date)

	rpcClient := rpcclient.New(cfg.Credentials.Username, cfg.Credentials.Password, cfg.RPCTimeout)
	discoverer := discovery.New(cfg.ServiceName, cfg.ServiceDomain(), cfg.RPCPort, cfg.MaxReplicas, nil)

	nodeCollector := collector.NewNodeCollector(
		discoverer,
		rpcClient,
		cfg.RPCTimeout,
		cfg.MinCollectInterval,
		rootContext,
	)
	registry.MustRegister(nodeCollector)

	loggerInstance.Info("watching node pool",
		"service_domain", cfg.ServiceDomain(),
		"rpc_port", cfg.RPCPort,
		"max_replicas", cfg.MaxReplicas,
	)

	var workerGroup sync.WaitGroup

	startHealthUpdater(rootContext, &workerGroup, *scrapeInterval)

	isHealthy := func() (bool, string) {
		return collector.HealthSnapshot(*scrapeInterval, time.Now())
	}
	httpMux := server.NewMux(registry, isHealthy)

	runError := runHTTPServer(rootContext, cfg.ListenAddr, httpMux)

	workerGroup.Wait()

	if runError != nil && !errors.Is(runError, http.ErrServerClosed) &&
		!errors.Is(runError, context.Canceled) {
		loggerInstance.Error("http server error", "err", runError)

		return 1
	}

	return 0
}

// applyFlagOverrides lets explicitly passed flags win over file/env config.
func applyFlagOverrides(cfg *config.Config) {
	flag.Visit(func(flagValue *flag.Flag) {
		switch flagValue.Name {
		case "listen-addr":
			cfg.ListenAddr = *listenAddr
		case "rpc-timeout":
			cfg.RPCTimeout = *rpcTimeout
		case "min-collect-interval":
			cfg.MinCollectInterval = *minCollectInterval
		}
	})
}

func startHealthUpdater(
	parentContext context.Context,
	waitGroup *sync.WaitGroup,
	interval time.Duration,
) {
	waitGroup.Add(1)

	go func() {
		defer waitGroup.Done()

		ticker := time.NewTicker(healthTickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-parentContext.Done():
				return
			case <-ticker.C:
				healthy, _ := collector.HealthSnapshot(interval, time.Now())
				collector.SetExporterHealth(healthy)
			}
		}
	}()
}

func runHTTPServer(parentContext context.Context, address string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errorChannel := make(chan error, 1)

	go func() {
		errorChannel <- httpServer.ListenAndServe()
	}()

	var resultError error

	select {
	case resultError = <-errorChannel:
		// fallthrough to shutdown path
	case <-parentContext.Done():
		// context canceled: proceed to shutdown
	}

	// Graceful HTTP shutdown.
	shutdownContext, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer shutdownCancel()

	shutdownErr := httpServer.Shutdown(shutdownContext)
	if shutdownErr != nil {
		logger.L().Warn("HTTP server shutdown", "err", shutdownErr)
	}

	return resultError
}
