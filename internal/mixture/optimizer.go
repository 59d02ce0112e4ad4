// Package mixture selects the cheapest blend of catalog fertilizers that
// covers N, P and K targets within a fixed overshoot band.
package mixture

import (
	"context"
	"fmt"

	"github.com/eugenenazirov/npk-mixer/internal/catalog"
	"github.com/eugenenazirov/npk-mixer/internal/mixture/ilp"
	"github.com/eugenenazirov/npk-mixer/internal/nutrient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	unitStep = decimal.RequireFromString("0.05")
	hundred  = decimal.NewFromInt(100)
)

// Optimizer formulates each request as an integer program over a catalog snapshot.
type Optimizer struct {
	catalog  catalog.Reader
	logger   *zap.Logger
	maxNodes int
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger used for solver diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxNodes caps the branch-and-bound search. Values <= 0 keep the solver default.
func WithMaxNodes(n int) Option {
	return func(o *Optimizer) {
		o.maxNodes = n
	}
}

// New creates an Optimizer reading products from r.
func New(r catalog.Reader, opts ...Option) *Optimizer {
	o := &Optimizer{catalog: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ Calculator = (*Optimizer)(nil)

// CalculateBestMixture coerces the inputs and solves. A non-numeric input is a
// contract violation and is returned as an error wrapping ErrInvalidArgument;
// a non-positive mass or an unreachable target is a failed Result.
func (o *Optimizer) CalculateBestMixture(ctx context.Context, nitrogen, phosphorus, potassium, totalMass any) (Result, error) {
	req, err := NewRequest(nitrogen, phosphorus, potassium, totalMass)
	if err != nil {
		return Result{}, err
	}
	return o.Solve(ctx, req)
}

// Solve reads the catalog once and returns the cheapest mixture for req.
// The context deadline, if any, bounds the search; running out of time is
// reported like an infeasible request.
func (o *Optimizer) Solve(ctx context.Context, req Request) (Result, error) {
	if req.TotalMass <= 0 {
		return failure(ReasonNonPositiveMass), nil
	}

	products, err := o.catalog.Products(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("catalog read: %w", err)
	}
	catalog.SortByName(products)

	problem := formulate(req, products)
	sol, err := ilp.Solve(ctx, problem, ilp.WithMaxNodes(o.maxNodes))
	if err != nil {
		return Result{}, fmt.Errorf("formulate mixture problem: %w", err)
	}
	if sol.Status != ilp.StatusOptimal {
		o.logger.Debug("no optimal mixture",
			zap.String("status", sol.Status.String()),
			zap.Int("nodes", sol.Nodes),
			zap.Int("products", len(products)),
		)
		return failure(ReasonNoComposition), nil
	}

	o.logger.Debug("mixture solved",
		zap.Int("nodes", sol.Nodes),
		zap.Float64("objective", sol.Objective),
	)
	return extract(req, products, sol.X), nil
}

// formulate builds one integer column per product counting unit steps, and
// for every nutrient the band target <= supplied <= target + Tolerance.
func formulate(req Request, products []catalog.Product) ilp.Problem {
	p := ilp.Problem{
		Cost:  make([]float64, len(products)),
		Rows:  make([][]float64, len(nutrient.Elements)),
		Lower: make([]float64, len(nutrient.Elements)),
		Upper: make([]float64, len(nutrient.Elements)),
	}
	for j, product := range products {
		p.Cost[j] = product.PricePerGram.InexactFloat64() * UnitStep
	}
	for i, e := range nutrient.Elements {
		row := make([]float64, len(products))
		for j, product := range products {
			row[j] = product.Percentage(string(e)).InexactFloat64() * UnitStep * req.TotalMass / 100
		}
		p.Rows[i] = row
		p.Lower[i] = req.target(e)
		p.Upper[i] = req.target(e) + Tolerance
	}
	return p
}

// extract converts unit counts into the reported mixture. Costs and achieved
// composition are computed from exact grams and rounded once.
func extract(req Request, products []catalog.Product, units []int) Result {
	total := decimal.NewFromFloat(req.TotalMass)
	res := Result{Succeeded: true, Components: make([]Component, 0)}

	var (
		totalCost = decimal.Zero
		supplied  = map[nutrient.Element]decimal.Decimal{}
	)
	for j, product := range products {
		if units[j] <= 0 {
			continue
		}
		grams := decimal.NewFromInt(int64(units[j])).Mul(unitStep).Mul(total)
		cost := nutrient.Round2(grams.Mul(product.PricePerGram))
		res.Components = append(res.Components, Component{
			ProductName: product.Name,
			MassInGrams: nutrient.Round2(grams),
			Cost:        cost,
		})
		totalCost = totalCost.Add(cost)
		for _, e := range nutrient.Elements {
			supplied[e] = supplied[e].Add(grams.Mul(product.Percentage(string(e))).Div(hundred))
		}
	}

	res.TotalCost = nutrient.Round2(totalCost)
	res.ActualComposition = nutrient.Masses{
		N: nutrient.Round2(supplied[nutrient.Nitrogen]),
		P: nutrient.Round2(supplied[nutrient.Phosphorus]),
		K: nutrient.Round2(supplied[nutrient.Potassium]),
	}
	return res
}
