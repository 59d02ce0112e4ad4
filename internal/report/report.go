// Package report solves every episode of a feeding plan against one catalog
// snapshot and renders the outcome as a spreadsheet or plain text.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/eugenenazirov/npk-mixer/internal/catalog"
	"github.com/eugenenazirov/npk-mixer/internal/mixture"
	"github.com/eugenenazirov/npk-mixer/internal/nutrient"
	"github.com/eugenenazirov/npk-mixer/internal/plan"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Line is one product row of an episode mixture. Priced is false when the
// product price is unknown.
type Line struct {
	Name   string
	Mass   decimal.Decimal
	Cost   decimal.Decimal
	Priced bool
}

// Overrun is the amount an achieved nutrient mass exceeds its target.
type Overrun struct {
	Element nutrient.Element
	Mass    decimal.Decimal
}

// Episode is a resolved feeding together with its solved mixture.
type Episode struct {
	plan.Feeding
	Result    mixture.Result
	Lines     []Line
	Overruns  []Overrun
	TotalCost decimal.Decimal
	CostKnown bool
}

// Plant groups the episodes of one plant.
type Plant struct {
	Name     string
	Episodes []Episode
}

// Category groups plants.
type Category struct {
	Name   string
	Plants []Plant
}

// Report is the full outcome of a plan.
type Report struct {
	ID          uuid.UUID
	Title       string
	GeneratedAt time.Time
	Categories  []Category
	Prices      []catalog.Product
}

// Generator builds reports.
type Generator struct {
	catalog       catalog.Reader
	logger        *zap.Logger
	concurrency   int
	maxNodes      int
	solverTimeout time.Duration
	now           func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the generator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithConcurrency limits how many episodes are solved at once.
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithSolverMaxNodes caps the search of each episode.
func WithSolverMaxNodes(n int) Option {
	return func(g *Generator) {
		g.maxNodes = n
	}
}

// WithSolverTimeout bounds each episode solve. Zero disables the bound.
func WithSolverTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.solverTimeout = d
	}
}

// WithClock overrides the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator creates a Generator reading products from r.
func NewGenerator(r catalog.Reader, opts ...Option) *Generator {
	g := &Generator{
		catalog:     r,
		logger:      zap.NewNop(),
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate reads the catalog once and solves every episode of p. Episodes are
// solved concurrently; the report keeps plan order.
func (g *Generator) Generate(ctx context.Context, p *plan.Plan) (*Report, error) {
	snapshot, err := catalog.TakeSnapshot(ctx, g.catalog)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	feedings, err := p.Resolve(snapshot)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}

	rep := &Report{
		ID:          uuid.New(),
		Title:       p.Title,
		GeneratedAt: g.now(),
		Prices:      []catalog.Product(snapshot),
	}
	logger := g.logger.With(zap.String("report_id", rep.ID.String()))
	logger.Info("generating report", zap.Int("episodes", len(feedings)), zap.Int("products", len(snapshot)))

	optimizer := mixture.New(snapshot, mixture.WithLogger(logger), mixture.WithMaxNodes(g.maxNodes))
	episodes := make([]Episode, len(feedings))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, f := range feedings {
		eg.Go(func() error {
			ep, err := g.solve(egCtx, optimizer, snapshot, f)
			if err != nil {
				return fmt.Errorf("%s / %s episode %d: %w", f.Category, f.Plant, f.Number, err)
			}
			episodes[i] = ep
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	rep.Categories = group(episodes)
	logger.Info("report generated", zap.Int("categories", len(rep.Categories)))
	return rep, nil
}

// solve reports an episode that ran out of its own solver time as a failed
// mixture, but a cancelled parent context aborts the whole report.
func (g *Generator) solve(ctx context.Context, optimizer mixture.Calculator, snapshot catalog.Snapshot, f plan.Feeding) (Episode, error) {
	if err := ctx.Err(); err != nil {
		return Episode{}, err
	}
	solveCtx := ctx
	if g.solverTimeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, g.solverTimeout)
		defer cancel()
	}

	t := f.Targets
	res, err := optimizer.CalculateBestMixture(solveCtx, t.N, t.P, t.K, t.Total())
	if err != nil {
		return Episode{}, err
	}
	if err := ctx.Err(); err != nil {
		return Episode{}, err
	}
	ep := Episode{Feeding: f, Result: res}
	if !res.Succeeded {
		return ep, nil
	}

	ep.CostKnown = true
	ep.TotalCost = res.TotalCost
	for _, c := range res.Components {
		ep.Lines = append(ep.Lines, Line{Name: c.ProductName, Mass: c.MassInGrams, Cost: c.Cost, Priced: true})
	}

	if f.MagnesiumSulfate.IsPositive() {
		line := Line{Name: catalog.MagnesiumSulfate, Mass: f.MagnesiumSulfate}
		if product, ok := snapshot.Find(catalog.MagnesiumSulfate); ok {
			line.Cost = nutrient.Round2(product.PricePerGram.Mul(f.MagnesiumSulfate))
			line.Priced = true
			ep.TotalCost = nutrient.Round2(ep.TotalCost.Add(line.Cost))
		} else {
			ep.CostKnown = false
		}
		ep.Lines = append(ep.Lines, line)
	}

	for _, e := range nutrient.Elements {
		over := nutrient.Round2(res.ActualComposition.Get(e).Sub(t.Get(e)))
		if !over.IsZero() {
			ep.Overruns = append(ep.Overruns, Overrun{Element: e, Mass: over})
		}
	}
	return ep, nil
}

// group folds the ordered episode list into categories and plants.
func group(episodes []Episode) []Category {
	var out []Category
	for _, ep := range episodes {
		if len(out) == 0 || out[len(out)-1].Name != ep.Category {
			out = append(out, Category{Name: ep.Category})
		}
		c := &out[len(out)-1]
		if len(c.Plants) == 0 || c.Plants[len(c.Plants)-1].Name != ep.Plant {
			c.Plants = append(c.Plants, Plant{Name: ep.Plant})
		}
		pl := &c.Plants[len(c.Plants)-1]
		pl.Episodes = append(pl.Episodes, ep)
	}
	return out
}
