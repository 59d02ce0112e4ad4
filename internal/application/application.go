package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/npk-mixer/internal/api"
	"github.com/eugenenazirov/npk-mixer/internal/catalog"
	"github.com/eugenenazirov/npk-mixer/internal/config"
	"github.com/eugenenazirov/npk-mixer/internal/mixture"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	catalog      catalog.Store
	closeCatalog func() error
	optimizer    *mixture.Optimizer
	handler      *api.Handler
	router       http.Handler
	logger       *zap.Logger
	server       *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, closeStore, err := OpenCatalog(ctx, cfg.Catalog, logger)
	if err != nil {
		return nil, err
	}

	optimizer := mixture.New(store,
		mixture.WithLogger(logger.Named("mixture")),
		mixture.WithMaxNodes(cfg.Solver.MaxNodes),
	)
	handler := api.NewHandler(optimizer, store,
		api.WithHandlerLogger(logger),
		api.WithSolverTimeout(cfg.Solver.Timeout),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		catalog:      store,
		closeCatalog: closeStore,
		optimizer:    optimizer,
		handler:      handler,
		router:       apiRouter,
		logger:       logger,
		server:       NewServer(cfg, apiRouter),
	}, nil
}

// OpenCatalog opens the configured catalog store and seeds it when empty,
// from the seed file if one is configured and from the built-in product
// list otherwise. The returned func releases the store.
func OpenCatalog(ctx context.Context, cfg config.CatalogConfig, logger *zap.Logger) (catalog.Store, func() error, error) {
	var store catalog.Store
	closeStore := func() error { return nil }
	switch cfg.Driver {
	case config.DriverSQLite:
		sqlStore, err := catalog.OpenSQLite(cfg.Path, catalog.WithLogger(logger.Named("catalog")))
		if err != nil {
			return nil, nil, fmt.Errorf("open catalog: %w", err)
		}
		store, closeStore = sqlStore, sqlStore.Close
	case config.DriverMemory, "":
		store = catalog.NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unsupported catalog driver %q", cfg.Driver)
	}

	seed := catalog.DefaultProducts()
	if cfg.SeedFile != "" {
		products, err := catalog.LoadFile(cfg.SeedFile)
		if err != nil {
			_ = closeStore()
			return nil, nil, fmt.Errorf("load catalog seed: %w", err)
		}
		seed = products
	}

	seeded, err := catalog.EnsureSeeded(ctx, store, seed)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	if seeded {
		logger.Info("catalog seeded",
			zap.String("driver", cfg.Driver),
			zap.Int("products", len(seed)),
		)
	}
	return store, closeStore, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the API router, for in-process use and tests.
func (a *App) Handler() http.Handler {
	return a.router
}

// Close releases the catalog store. Call it after the server has shut down.
func (a *App) Close() error {
	if a.closeCatalog == nil {
		return nil
	}
	return a.closeCatalog()
}
