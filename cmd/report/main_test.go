package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const gardenPlan = "../../internal/plan/testdata/garden.yaml"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CATALOG_DRIVER", "CATALOG_PATH", "CATALOG_SEED_FILE",
		"SOLVER_TIMEOUT", "SOLVER_MAX_NODES",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--plan", gardenPlan, "-o", "out.xlsx", "--concurrency", "2", "--catalog-driver", "sqlite", "--catalog-path", "c.db"})
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}
	if opts.planFile != gardenPlan || opts.out != "out.xlsx" || opts.concurrency != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if *opts.overrides.CatalogDriver != "sqlite" || *opts.overrides.CatalogPath != "c.db" {
		t.Fatalf("unexpected catalog overrides: %+v", opts.overrides)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	tests := map[string][]string{
		"MissingPlan":     {},
		"AbsentPlan":      {"--plan", "does-not-exist.yaml"},
		"ZeroConcurrency": {"--plan", gardenPlan, "--concurrency", "0"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := parseFlags(args); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRunWritesTextToStdout(t *testing.T) {
	clearEnv(t)

	opts, err := parseFlags([]string{"--plan", gardenPlan})
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}

	var buf bytes.Buffer
	if err := run(context.Background(), opts, &buf); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Spring garden", "== Flowers ==", "== Vegetables ==", "Tomato", "#2 flowering"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "== Empty ==") {
		t.Fatalf("expected empty category to be skipped:\n%s", out)
	}
}

func TestRunWritesSpreadsheet(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	out := filepath.Join(dir, "garden.xlsx")
	opts, err := parseFlags([]string{
		"--plan", gardenPlan,
		"--out", out,
		"--catalog-driver", "sqlite",
		"--catalog-path", filepath.Join(dir, "catalog.db"),
	})
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}
	if err := run(context.Background(), opts, &bytes.Buffer{}); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open spreadsheet: %v", err)
	}
	defer f.Close()

	title, err := f.GetCellValue("Report", "A1")
	if err != nil {
		t.Fatalf("read A1: %v", err)
	}
	if title != "Spring garden" {
		t.Fatalf("expected title in A1, got %q", title)
	}
}
