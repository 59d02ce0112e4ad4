package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/eugenenazirov/npk-mixer/internal/validation"
	"github.com/shopspring/decimal"
)

// MagnesiumSulfate is the catalog name used to price magnesium sulfate
// additions in feeding reports.
const MagnesiumSulfate = "Magnesium sulfate"

// Product is a commercially available fertilizer with a fixed composition.
// Percentages and price carry two decimal places.
type Product struct {
	Name         string          `json:"name" yaml:"name" validate:"required,max=150"`
	Nitrogen     decimal.Decimal `json:"nitrogen_percentage" yaml:"nitrogen_percentage" validate:"gte=0,lte=100,dp2"`
	Phosphorus   decimal.Decimal `json:"phosphorus_percentage" yaml:"phosphorus_percentage" validate:"gte=0,lte=100,dp2"`
	Potassium    decimal.Decimal `json:"potassium_percentage" yaml:"potassium_percentage" validate:"gte=0,lte=100,dp2"`
	PricePerGram decimal.Decimal `json:"price_per_gram" yaml:"price_per_gram" validate:"gt=0,dp2"`
}

// Reader exposes a name-ordered view of the catalog.
type Reader interface {
	Products(ctx context.Context) ([]Product, error)
}

// Store is a Reader that also supports maintenance operations.
type Store interface {
	Reader
	Get(ctx context.Context, name string) (Product, error)
	Create(ctx context.Context, p Product) error
	Update(ctx context.Context, name string, p Product) error
	Delete(ctx context.Context, name string) error
	Replace(ctx context.Context, products []Product) error
}

var validate = validation.New()

// Validate checks name, composition and price constraints.
func (p Product) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProduct, validation.Describe(err))
	}
	return nil
}

// Percentage returns the composition percentage for the element symbol N, P or K.
func (p Product) Percentage(symbol string) decimal.Decimal {
	switch symbol {
	case "N":
		return p.Nitrogen
	case "P":
		return p.Phosphorus
	case "K":
		return p.Potassium
	}
	return decimal.Zero
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func normalizeProduct(p Product) (Product, error) {
	p.Name = normalizeName(p.Name)
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}

// normalizeProducts validates every product, rejects duplicate names and
// returns a name-sorted copy.
func normalizeProducts(products []Product) ([]Product, error) {
	out := make([]Product, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		normalized, err := normalizeProduct(p)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[normalized.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, normalized.Name)
		}
		seen[normalized.Name] = struct{}{}
		out = append(out, normalized)
	}
	SortByName(out)
	return out, nil
}

// SortByName orders products lexicographically by name, in place.
func SortByName(products []Product) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
}

func cloneAndSort(src []Product) []Product {
	out := make([]Product, len(src))
	copy(out, src)
	SortByName(out)
	return out
}

// Snapshot is an immutable, in-memory Reader over a fixed product list.
type Snapshot []Product

// Products returns a name-sorted copy of the snapshot.
func (s Snapshot) Products(context.Context) ([]Product, error) {
	return cloneAndSort(s), nil
}

// Find returns the product with the given name.
func (s Snapshot) Find(name string) (Product, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}

// TakeSnapshot reads the catalog once so that several computations can share
// a consistent view.
func TakeSnapshot(ctx context.Context, r Reader) (Snapshot, error) {
	products, err := r.Products(ctx)
	if err != nil {
		return nil, err
	}
	return Snapshot(cloneAndSort(products)), nil
}
