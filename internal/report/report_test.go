package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/eugenenazirov/npk-mixer/internal/catalog"
	"github.com/eugenenazirov/npk-mixer/internal/mixture"
	"github.com/eugenenazirov/npk-mixer/internal/plan"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

const gardenPlan = `
title: Allotment
categories:
  - name: Legumes
    plants:
      - name: Pea
        episodes:
          - life_stage: sprouting
            masses: {n: 5, p: 0, k: 0}
      - name: Bean
        episodes:
          - life_stage: flowering
            repetitions: 3
            masses: {n: 1.6, p: 1.6, k: 1.6}
            magnesium_sulfate_mass: 2
  - name: Nothing here
`

func product(name, n, p, k, price string) catalog.Product {
	return catalog.Product{
		Name:         name,
		Nitrogen:     decimal.RequireFromString(n),
		Phosphorus:   decimal.RequireFromString(p),
		Potassium:    decimal.RequireFromString(k),
		PricePerGram: decimal.RequireFromString(price),
	}
}

func testCatalog(withMagnesium bool) catalog.Snapshot {
	s := catalog.Snapshot{
		product("Azofoska 16:16:16", "16", "16", "16", "0.05"),
		product("Potassium sulfate", "0", "0", "21", "0.23"),
	}
	if withMagnesium {
		s = append(s, product(catalog.MagnesiumSulfate, "0", "0", "0", "0.10"))
	}
	return s
}

func generate(t *testing.T, cat catalog.Reader, opts ...Option) *Report {
	t.Helper()
	p, err := plan.Parse(strings.NewReader(gardenPlan))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	opts = append(opts, WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }))
	rep, err := NewGenerator(cat, opts...).Generate(context.Background(), p)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	return rep
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	rep := generate(t, testCatalog(true))

	if len(rep.Categories) != 1 || rep.Categories[0].Name != "Legumes" {
		t.Fatalf("expected only the Legumes category, got %+v", rep.Categories)
	}
	plants := rep.Categories[0].Plants
	if len(plants) != 2 || plants[0].Name != "Bean" || plants[1].Name != "Pea" {
		t.Fatalf("expected plants Bean, Pea, got %+v", plants)
	}
	if len(rep.Prices) != 3 {
		t.Fatalf("expected 3 price rows, got %d", len(rep.Prices))
	}

	bean := plants[0].Episodes[0]
	if !bean.Result.Succeeded {
		t.Fatalf("expected bean episode to succeed, got %q", bean.Result.Error)
	}
	if bean.Repetitions != 3 {
		t.Fatalf("expected 3 repetitions, got %d", bean.Repetitions)
	}
	// 42 units of 0.24 g: 10.08 g at 0.05 is 0.50; MgSO4 adds 2 g at 0.10.
	if len(bean.Lines) != 2 {
		t.Fatalf("expected fertilizer and magnesium lines, got %+v", bean.Lines)
	}
	if bean.Lines[0].Name != "Azofoska 16:16:16" || !bean.Lines[0].Mass.Equal(decimal.RequireFromString("10.08")) {
		t.Fatalf("unexpected first line %+v", bean.Lines[0])
	}
	mg := bean.Lines[1]
	if mg.Name != catalog.MagnesiumSulfate || !mg.Priced || !mg.Cost.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("unexpected magnesium line %+v", mg)
	}
	if !bean.CostKnown || !bean.TotalCost.Equal(decimal.RequireFromString("0.7")) {
		t.Fatalf("expected total cost 0.70, got %s (known=%v)", bean.TotalCost, bean.CostKnown)
	}
	if len(bean.Overruns) != 3 || !bean.Overruns[0].Mass.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("expected 0.01 g overrun on every nutrient, got %+v", bean.Overruns)
	}

	pea := plants[1].Episodes[0]
	if pea.Result.Succeeded || pea.Result.Error != mixture.MsgNoComposition {
		t.Fatalf("expected pea episode to fail with %q, got %+v", mixture.MsgNoComposition, pea.Result)
	}
}

func TestGenerateWithoutMagnesiumPrice(t *testing.T) {
	t.Parallel()

	rep := generate(t, testCatalog(false), WithConcurrency(1))
	bean := rep.Categories[0].Plants[0].Episodes[0]
	if bean.CostKnown {
		t.Fatalf("expected unknown total cost without a magnesium sulfate price")
	}
	last := bean.Lines[len(bean.Lines)-1]
	if last.Name != catalog.MagnesiumSulfate || last.Priced {
		t.Fatalf("expected trailing unpriced magnesium line, got %+v", last)
	}
}

func TestGenerateCatalogFailure(t *testing.T) {
	t.Parallel()

	p, err := plan.Parse(strings.NewReader(gardenPlan))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	boom := errors.New("catalog offline")
	_, err = NewGenerator(failingReader{err: boom}).Generate(context.Background(), p)
	if !errors.Is(err, boom) {
		t.Fatalf("expected catalog error, got %v", err)
	}
}

func TestGenerateCancelled(t *testing.T) {
	t.Parallel()

	p, err := plan.Parse(strings.NewReader(gardenPlan))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := NewGenerator(testCatalog(true), WithLogger(zaptest.NewLogger(t))).Generate(ctx, p)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rep != nil {
		t.Fatalf("expected no report from a cancelled run, got %+v", rep)
	}
}

func TestGenerateCancelledMidRun(t *testing.T) {
	t.Parallel()

	p, err := plan.Parse(strings.NewReader(gardenPlan))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The catalog read succeeds, then the run is cancelled before any episode is solved.
	reader := cancellingReader{products: []catalog.Product(testCatalog(true)), cancel: cancel}
	_, err = NewGenerator(reader, WithConcurrency(1)).Generate(ctx, p)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type cancellingReader struct {
	products []catalog.Product
	cancel   context.CancelFunc
}

func (r cancellingReader) Products(context.Context) ([]catalog.Product, error) {
	r.cancel()
	out := make([]catalog.Product, len(r.products))
	copy(out, r.products)
	return out, nil
}

type failingReader struct{ err error }

func (r failingReader) Products(context.Context) ([]catalog.Product, error) {
	return nil, r.err
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	rep := generate(t, testCatalog(false))
	var buf bytes.Buffer
	if err := WriteXLSX(rep, &buf); err != nil {
		t.Fatalf("WriteXLSX returned error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader returned error: %v", err)
	}
	defer f.Close()

	if title, _ := f.GetCellValue(sheetName, "A1"); title != "Allotment" {
		t.Fatalf("expected title in A1, got %q", title)
	}
	width, err := f.GetColWidth(sheetName, "A")
	if err != nil || width != 32 {
		t.Fatalf("expected column A width 32, got %v (%v)", width, err)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows returned error: %v", err)
	}
	var sawMixture, sawUnpriced, sawFailure bool
	for _, row := range rows {
		joined := strings.Join(row, "|")
		switch {
		case joined == "Azofoska 16:16:16|10.08 g|0.50":
			sawMixture = true
		case joined == catalog.MagnesiumSulfate+"|2.00 g|?":
			sawUnpriced = true
		case joined == mixture.MsgNoComposition:
			sawFailure = true
		}
	}
	if !sawMixture || !sawUnpriced || !sawFailure {
		t.Fatalf("missing rows (mixture=%v unpriced=%v failure=%v):\n%v", sawMixture, sawUnpriced, sawFailure, rows)
	}
}

func TestWriteXLSXEmptyReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteXLSX(&Report{}, &buf); err != nil {
		t.Fatalf("WriteXLSX returned error: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader returned error: %v", err)
	}
	defer f.Close()
	if got, _ := f.GetCellValue(sheetName, "A5"); got != "No data found." {
		t.Fatalf("expected empty report marker in A5, got %q", got)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	rep := generate(t, testCatalog(true))
	var buf bytes.Buffer
	if err := Render(rep, &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Allotment", "== Legumes ==", "#1 flowering x3", "10.08 g", mixture.MsgNoComposition, "0.70"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
