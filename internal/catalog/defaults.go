package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

var defaultProducts = []struct {
	name    string
	n, p, k string
	price   string
}{
	{"Ammonium nitrate", "33", "0", "0", "0.10"},
	{"Azofoska 15:15:15", "15", "15", "15", "0.04"},
	{"Azofoska 16:16:16", "16", "16", "16", "0.05"},
	{"Borofoska", "0", "10", "16", "0.10"},
	{"Calcium nitrate", "15.5", "0", "0", "0.12"},
	{"Double superphosphate", "9", "42", "0", "0.15"},
	{MagnesiumSulfate, "0", "0", "0", "0.10"},
	{"Monopotassium phosphate", "0", "50", "33", "0.45"},
	{"Potassium chloride", "0", "0", "57", "0.10"},
	{"Potassium nitrate", "13.5", "0", "45.8", "0.34"},
	{"Potassium sulfate", "0", "0", "21", "0.23"},
	{"Superphosphate", "6", "21", "0", "0.15"},
}

// DefaultProducts returns the catalog a fresh installation starts with.
func DefaultProducts() []Product {
	out := make([]Product, 0, len(defaultProducts))
	for _, row := range defaultProducts {
		out = append(out, Product{
			Name:         row.name,
			Nitrogen:     decimal.RequireFromString(row.n),
			Phosphorus:   decimal.RequireFromString(row.p),
			Potassium:    decimal.RequireFromString(row.k),
			PricePerGram: decimal.RequireFromString(row.price),
		})
	}
	return out
}

// EnsureSeeded fills an empty store with the given products. It reports
// whether seeding happened.
func EnsureSeeded(ctx context.Context, store Store, products []Product) (bool, error) {
	existing, err := store.Products(ctx)
	if err != nil {
		return false, fmt.Errorf("read catalog: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}
	if err := store.Replace(ctx, products); err != nil {
		return false, fmt.Errorf("seed catalog: %w", err)
	}
	return true, nil
}
