package nutrient

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Element is one of the tracked macro-nutrients.
type Element string

const (
	Nitrogen   Element = "N"
	Phosphorus Element = "P"
	Potassium  Element = "K"
)

// Elements lists the tracked nutrients in their canonical order.
var Elements = []Element{Nitrogen, Phosphorus, Potassium}

const decimalPlaces = 2

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Masses holds absolute nutrient masses in grams.
type Masses struct {
	N decimal.Decimal `json:"N"`
	P decimal.Decimal `json:"P"`
	K decimal.Decimal `json:"K"`
}

// Get returns the mass of a single element.
func (m Masses) Get(e Element) decimal.Decimal {
	switch e {
	case Nitrogen:
		return m.N
	case Phosphorus:
		return m.P
	case Potassium:
		return m.K
	}
	return decimal.Zero
}

// Total returns N+P+K.
func (m Masses) Total() decimal.Decimal {
	return m.N.Add(m.P).Add(m.K)
}

// Coefficients are availability fractions applied per element.
type Coefficients struct {
	N decimal.Decimal `json:"N"`
	P decimal.Decimal `json:"P"`
	K decimal.Decimal `json:"K"`
}

// DefaultCoefficients returns the fractions of a conventional fertilizer dose
// that remain bio-available in the nano-encapsulated equivalent.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		N: decimal.RequireFromString("0.5"),
		P: decimal.RequireFromString("0.2"),
		K: decimal.RequireFromString("0.4"),
	}
}

// Round2 rounds to hundredths, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(decimalPlaces)
}

// ParseDecimal parses textual input such as form fields or YAML scalars.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty decimal value", ErrInvalidArgument)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidArgument, raw)
	}
	return d, nil
}

// ResolveAbsoluteMasses converts N/P/K percentages of a mixture into grams.
// Each mass is rounded to hundredths.
func ResolveAbsoluteMasses(nPercent, pPercent, kPercent, totalMass decimal.Decimal) (Masses, error) {
	percents := []struct {
		name  string
		value decimal.Decimal
	}{
		{"nitrogen percentage", nPercent},
		{"phosphorus percentage", pPercent},
		{"potassium percentage", kPercent},
	}
	for _, p := range percents {
		if p.value.IsNegative() || p.value.GreaterThan(hundred) {
			return Masses{}, fmt.Errorf("%w: %s must be between 0 and 100, got %s", ErrInvalidArgument, p.name, p.value)
		}
	}
	if !totalMass.IsPositive() {
		return Masses{}, fmt.Errorf("%w: total mass must be greater than zero, got %s", ErrInvalidArgument, totalMass)
	}

	return Masses{
		N: Round2(nPercent.Mul(totalMass).Div(hundred)),
		P: Round2(pPercent.Mul(totalMass).Div(hundred)),
		K: Round2(kPercent.Mul(totalMass).Div(hundred)),
	}, nil
}

// ApplyAvailabilityDiscount scales each mass by its coefficient and rounds the
// result to hundredths. The input value is not modified; a new Masses is
// returned.
func ApplyAvailabilityDiscount(masses Masses, c Coefficients) (Masses, error) {
	for _, e := range Elements {
		if masses.Get(e).IsNegative() {
			return Masses{}, fmt.Errorf("%w: mass for %q must be non-negative", ErrInvalidArgument, e)
		}
	}

	coefficients := []struct {
		name  string
		value decimal.Decimal
	}{
		{"nitrogen coefficient", c.N},
		{"phosphorus coefficient", c.P},
		{"potassium coefficient", c.K},
	}
	for _, coef := range coefficients {
		if coef.value.IsNegative() || coef.value.GreaterThan(one) {
			return Masses{}, fmt.Errorf("%w: %s must be between 0 and 1, got %s", ErrInvalidArgument, coef.name, coef.value)
		}
	}

	return Masses{
		N: Round2(masses.N.Mul(c.N)),
		P: Round2(masses.P.Mul(c.P)),
		K: Round2(masses.K.Mul(c.K)),
	}, nil
}

// MassesFromMap builds Masses from a keyed mapping. Keys other than N, P and
// K are ignored.
func MassesFromMap(values map[string]decimal.Decimal) (Masses, error) {
	n, p, k, err := elementsFromMap(values, "mass")
	if err != nil {
		return Masses{}, err
	}
	return Masses{N: n, P: p, K: k}, nil
}

// CoefficientsFromMap builds Coefficients from a keyed mapping, with the same
// key rules as MassesFromMap. Ranges are checked by ApplyAvailabilityDiscount.
func CoefficientsFromMap(values map[string]decimal.Decimal) (Coefficients, error) {
	n, p, k, err := elementsFromMap(values, "coefficient")
	if err != nil {
		return Coefficients{}, err
	}
	return Coefficients{N: n, P: p, K: k}, nil
}

func elementsFromMap(values map[string]decimal.Decimal, what string) (n, p, k decimal.Decimal, err error) {
	for _, e := range Elements {
		v, ok := values[string(e)]
		if !ok {
			return n, p, k, fmt.Errorf("%w: %s for %q is absent", ErrMissingElement, what, e)
		}
		switch e {
		case Nitrogen:
			n = v
		case Phosphorus:
			p = v
		case Potassium:
			k = v
		}
	}
	return n, p, k, nil
}
