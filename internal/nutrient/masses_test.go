package nutrient

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMasses(t *testing.T, got Masses, n, p, k string) {
	t.Helper()
	if !got.N.Equal(d(n)) || !got.P.Equal(d(p)) || !got.K.Equal(d(k)) {
		t.Fatalf("unexpected masses: got N=%s P=%s K=%s want N=%s P=%s K=%s", got.N, got.P, got.K, n, p, k)
	}
}

func TestResolveAbsoluteMasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                string
		n, p, k, total      string
		wantN, wantP, wantK string
	}{
		{name: "WholePercentages", n: "10.0", p: "20.0", k: "30.0", total: "100.0", wantN: "10.00", wantP: "20.00", wantK: "30.00"},
		{name: "HalfUpNotBankers", n: "33.33", p: "33.33", k: "33.34", total: "300.00", wantN: "99.99", wantP: "99.99", wantK: "100.02"},
		{name: "RoundsThirdDecimal", n: "33.333", p: "99.999", k: "10.999", total: "300.0", wantN: "100.00", wantP: "300.00", wantK: "33.00"},
		{name: "HalfCentRoundsUp", n: "12.5", p: "0", k: "100", total: "1", wantN: "0.13", wantP: "0.00", wantK: "1.00"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveAbsoluteMasses(d(tc.n), d(tc.p), d(tc.k), d(tc.total))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertMasses(t, got, tc.wantN, tc.wantP, tc.wantK)
		})
	}
}

func TestResolveAbsoluteMassesRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	cases := map[string][4]string{
		"NegativeNitrogen":     {"-1.0", "20.0", "30.0", "100.0"},
		"NitrogenAboveHundred": {"110.0", "20.0", "30.0", "100.0"},
		"PhosphorusAbove":      {"10", "100.01", "30", "100"},
		"NegativePotassium":    {"10", "20", "-0.01", "100"},
		"ZeroTotal":            {"10", "20", "30", "0"},
		"NegativeTotal":        {"10", "20", "30", "-5"},
	}

	for name, in := range cases {
		in := in
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ResolveAbsoluteMasses(d(in[0]), d(in[1]), d(in[2]), d(in[3]))
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestApplyAvailabilityDiscount(t *testing.T) {
	t.Parallel()

	t.Run("DefaultCoefficients", func(t *testing.T) {
		in := Masses{N: d("100.00"), P: d("50.00"), K: d("150.00")}
		got, err := ApplyAvailabilityDiscount(in, DefaultCoefficients())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertMasses(t, got, "50.00", "10.00", "60.00")
	})

	t.Run("Rounding", func(t *testing.T) {
		in := Masses{N: d("100.555"), P: d("50.333"), K: d("150.777")}
		got, err := ApplyAvailabilityDiscount(in, DefaultCoefficients())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertMasses(t, got, "50.28", "10.07", "60.31")
	})

	t.Run("DoesNotMutateInput", func(t *testing.T) {
		in := Masses{N: d("100"), P: d("50"), K: d("150")}
		if _, err := ApplyAvailabilityDiscount(in, DefaultCoefficients()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertMasses(t, in, "100", "50", "150")
	})

	t.Run("IdentityCoefficients", func(t *testing.T) {
		in := Masses{N: d("1.234"), P: d("0"), K: d("7")}
		got, err := ApplyAvailabilityDiscount(in, Coefficients{N: d("1"), P: d("1"), K: d("1")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertMasses(t, got, "1.23", "0", "7")
	})
}

func TestApplyAvailabilityDiscountRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	valid := Masses{N: d("100"), P: d("50"), K: d("150")}
	tests := []struct {
		name   string
		masses Masses
		coef   Coefficients
	}{
		{name: "NegativeMass", masses: Masses{N: d("-1"), P: d("1"), K: d("1")}, coef: DefaultCoefficients()},
		{name: "CoefficientAboveOne", masses: valid, coef: Coefficients{N: d("1.5"), P: d("0.2"), K: d("0.4")}},
		{name: "NegativeCoefficient", masses: valid, coef: Coefficients{N: d("0.5"), P: d("-0.2"), K: d("0.4")}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ApplyAvailabilityDiscount(tc.masses, tc.coef); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestMassesFromMap(t *testing.T) {
	t.Parallel()

	if _, err := MassesFromMap(map[string]decimal.Decimal{"N": d("100"), "P": d("50")}); !errors.Is(err, ErrMissingElement) {
		t.Fatalf("expected ErrMissingElement, got %v", err)
	}

	got, err := MassesFromMap(map[string]decimal.Decimal{"N": d("1"), "P": d("2"), "K": d("3"), "Mg": d("4")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertMasses(t, got, "1", "2", "3")
	if !got.Total().Equal(d("6")) {
		t.Fatalf("expected total 6, got %s", got.Total())
	}
}

func TestCoefficientsFromMap(t *testing.T) {
	t.Parallel()

	_, err := CoefficientsFromMap(map[string]decimal.Decimal{"N": d("0.5"), "K": d("0.4")})
	if !errors.Is(err, ErrMissingElement) {
		t.Fatalf("expected ErrMissingElement, got %v", err)
	}
	if !strings.Contains(err.Error(), `coefficient for "P" is absent`) {
		t.Fatalf("unexpected wording: %q", err.Error())
	}

	got, err := CoefficientsFromMap(map[string]decimal.Decimal{"N": d("0.5"), "P": d("0.2"), "K": d("0.4")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := DefaultCoefficients()
	if !got.N.Equal(want.N) || !got.P.Equal(want.P) || !got.K.Equal(want.K) {
		t.Fatalf("expected default coefficients, got %+v", got)
	}
}

func TestParseDecimal(t *testing.T) {
	t.Parallel()

	if got, err := ParseDecimal(" 12.50 "); err != nil || !got.Equal(d("12.5")) {
		t.Fatalf("expected 12.5, got %s (%v)", got, err)
	}
	for _, raw := range []string{"", "abc", "1,5", "12.5g"} {
		if _, err := ParseDecimal(raw); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for %q, got %v", raw, err)
		}
	}
}
