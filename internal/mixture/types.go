package mixture

import (
	"context"

	"github.com/eugenenazirov/npk-mixer/internal/nutrient"
	"github.com/shopspring/decimal"
)

const (
	// UnitStep is the share of the total mixture mass a product can be added in.
	UnitStep = 0.05
	// Tolerance is the overshoot in grams allowed above every nutrient target.
	Tolerance = 0.5
)

// Reason classifies an unsuccessful Result.
type Reason string

const (
	ReasonNonPositiveMass Reason = "non_positive_mass"
	ReasonNoComposition   Reason = "no_composition"
)

// Calculator finds the cheapest mixture for nutrient targets.
type Calculator interface {
	CalculateBestMixture(ctx context.Context, nitrogen, phosphorus, potassium, totalMass any) (Result, error)
	Solve(ctx context.Context, req Request) (Result, error)
}

// Request holds target nutrient masses and the total mixture mass, in grams.
type Request struct {
	Nitrogen   float64 `json:"nitrogen"`
	Phosphorus float64 `json:"phosphorus"`
	Potassium  float64 `json:"potassium"`
	TotalMass  float64 `json:"totalMass"`
}

func (r Request) target(e nutrient.Element) float64 {
	switch e {
	case nutrient.Nitrogen:
		return r.Nitrogen
	case nutrient.Phosphorus:
		return r.Phosphorus
	case nutrient.Potassium:
		return r.Potassium
	}
	return 0
}

// Component is one product included in a mixture.
type Component struct {
	ProductName string          `json:"productName"`
	MassInGrams decimal.Decimal `json:"massInGrams"`
	Cost        decimal.Decimal `json:"cost"`
}

// Result is the outcome of a single optimization. Failures carry one of the
// fixed messages in Error and leave the remaining fields empty.
type Result struct {
	Succeeded         bool            `json:"succeeded"`
	Error             string          `json:"error,omitempty"`
	Reason            Reason          `json:"reason,omitempty"`
	Components        []Component     `json:"components,omitempty"`
	TotalCost         decimal.Decimal `json:"totalCost"`
	ActualComposition nutrient.Masses `json:"actualComposition"`
}

func failure(reason Reason) Result {
	msg := MsgNoComposition
	if reason == ReasonNonPositiveMass {
		msg = MsgNonPositiveMass
	}
	return Result{Error: msg, Reason: reason}
}
