package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/npk-mixer/internal/application"
	"github.com/eugenenazirov/npk-mixer/internal/config"
	"github.com/eugenenazirov/npk-mixer/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	overrides, err := parseFlags(os.Args[1:])
	kingpin.FatalIfError(err, "parse flags")

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger, app.Close)
}

// parseFlags maps command-line flags onto config overrides. Flags left at
// their sentinel defaults do not override lower-precedence sources.
func parseFlags(args []string) (*config.CLIOverrides, error) {
	kingpinApp := kingpin.New("npk-mixer", "NPK Mixer - finds the cheapest fertilizer blend for nitrogen, phosphorus and potassium targets")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	logLevel := kingpinApp.Flag("log-level", "Log level: debug, info, warn or error").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	catalogDriver := kingpinApp.Flag("catalog-driver", "Catalog storage driver").Enum("", config.DriverMemory, config.DriverSQLite)
	catalogPath := kingpinApp.Flag("catalog-path", "Path to the SQLite catalog database").String()
	catalogSeed := kingpinApp.Flag("catalog-seed-file", "JSON catalog document used to seed an empty catalog").String()
	solverTimeout := kingpinApp.Flag("solver-timeout", "Time budget for a single mixture calculation").Default("-1ns").Duration()
	solverMaxNodes := kingpinApp.Flag("solver-max-nodes", "Branch-and-bound node budget for a single calculation").Default("-1").Int()

	if _, err := kingpinApp.Parse(args); err != nil {
		return nil, err
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *port != "" {
		overrides.Port = port
	}
	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}
	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}
	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}
	if *catalogDriver != "" {
		overrides.CatalogDriver = catalogDriver
	}
	if *catalogPath != "" {
		overrides.CatalogPath = catalogPath
	}
	if *catalogSeed != "" {
		overrides.CatalogSeedFile = catalogSeed
	}
	if *solverTimeout >= 0 {
		overrides.SolverTimeout = solverTimeout
	}
	if *solverMaxNodes >= 0 {
		overrides.SolverMaxNodes = solverMaxNodes
	}

	return overrides, nil
}

// shutdown waits for a termination signal, drains the server and then calls
// release, so the catalog stays open while requests are in flight.
func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger, release func() error) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}

	if release == nil {
		return
	}
	if err := release(); err != nil {
		logger.Warn("failed to close catalog", zap.Error(err))
	}
}
