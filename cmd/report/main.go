package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/npk-mixer/internal/application"
	"github.com/eugenenazirov/npk-mixer/internal/config"
	"github.com/eugenenazirov/npk-mixer/internal/logging"
	"github.com/eugenenazirov/npk-mixer/internal/plan"
	"github.com/eugenenazirov/npk-mixer/internal/report"
)

type options struct {
	planFile    string
	out         string
	concurrency int
	overrides   *config.CLIOverrides
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := parseFlags(os.Args[1:])
	kingpin.FatalIfError(err, "parse flags")

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "npk-report: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	app := kingpin.New("npk-report", "Builds a feeding report with the cheapest mixture for every episode of a plan")
	planFile := app.Flag("plan", "Path to the YAML feeding plan").Required().ExistingFile()
	out := app.Flag("out", "Output file; .xlsx writes a spreadsheet, anything else plain text. Defaults to stdout").Short('o').String()
	configFile := app.Flag("config", "Path to YAML configuration file").String()
	catalogDriver := app.Flag("catalog-driver", "Catalog storage driver").Enum("", config.DriverMemory, config.DriverSQLite)
	catalogPath := app.Flag("catalog-path", "Path to the SQLite catalog database").String()
	concurrency := app.Flag("concurrency", "Episodes solved in parallel").Default("4").Int()

	if _, err := app.Parse(args); err != nil {
		return options{}, err
	}
	if *concurrency < 1 {
		return options{}, fmt.Errorf("--concurrency must be at least 1, got %d", *concurrency)
	}

	overrides := &config.CLIOverrides{ConfigFile: *configFile}
	if *catalogDriver != "" {
		overrides.CatalogDriver = catalogDriver
	}
	if *catalogPath != "" {
		overrides.CatalogPath = catalogPath
	}

	return options{
		planFile:    *planFile,
		out:         *out,
		concurrency: *concurrency,
		overrides:   overrides,
	}, nil
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg, err := config.Load(opts.overrides)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	p, err := plan.Load(opts.planFile)
	if err != nil {
		return err
	}

	store, closeStore, err := application.OpenCatalog(ctx, cfg.Catalog, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close catalog", zap.Error(err))
		}
	}()

	gen := report.NewGenerator(store,
		report.WithLogger(logger.Named("report")),
		report.WithConcurrency(opts.concurrency),
		report.WithSolverTimeout(cfg.Solver.Timeout),
		report.WithSolverMaxNodes(cfg.Solver.MaxNodes),
	)
	rep, err := gen.Generate(ctx, p)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if opts.out == "" || opts.out == "-" {
		return report.Render(rep, stdout)
	}
	return writeFile(rep, opts.out, logger)
}

func writeFile(rep *report.Report, path string, logger *zap.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	write := report.Render
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		write = report.WriteXLSX
	}
	if err := write(rep, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	logger.Info("report written",
		zap.String("path", path),
		zap.String("report_id", rep.ID.String()),
	)
	return nil
}
