package catalog

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

func product(name, n, p, k, price string) Product {
	return Product{
		Name:         name,
		Nitrogen:     decimal.RequireFromString(n),
		Phosphorus:   decimal.RequireFromString(p),
		Potassium:    decimal.RequireFromString(k),
		PricePerGram: decimal.RequireFromString(price),
	}
}

func names(products []Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return out
}

func TestProductValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		product Product
		wantErr bool
	}{
		{name: "Valid", product: product("FertCheap", "10", "5", "5", "0.01")},
		{name: "InertOnly", product: product("Filler", "0", "0", "0", "0.10")},
		{name: "FullPercent", product: product("Pure", "100", "0", "0", "1")},
		{name: "EmptyName", product: product("", "10", "5", "5", "0.01"), wantErr: true},
		{name: "NegativePercent", product: product("Bad", "-1", "5", "5", "0.01"), wantErr: true},
		{name: "PercentAboveHundred", product: product("Bad", "10", "100.5", "5", "0.01"), wantErr: true},
		{name: "ZeroPrice", product: product("Bad", "10", "5", "5", "0"), wantErr: true},
		{name: "ThreeDecimalPrice", product: product("Bad", "10", "5", "5", "0.015"), wantErr: true},
		{name: "ThreeDecimalPercent", product: product("Bad", "10.125", "5", "5", "0.01"), wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.product.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidProduct) {
					t.Fatalf("expected ErrInvalidProduct, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultProductsAreValidAndSorted(t *testing.T) {
	t.Parallel()

	products := DefaultProducts()
	if len(products) != 12 {
		t.Fatalf("expected 12 default products, got %d", len(products))
	}
	normalized, err := normalizeProducts(products)
	if err != nil {
		t.Fatalf("default products failed validation: %v", err)
	}
	for i, p := range normalized {
		if p.Name != products[i].Name {
			t.Fatalf("default products are not sorted by name: %v", names(products))
		}
	}
	if _, ok := Snapshot(products).Find(MagnesiumSulfate); !ok {
		t.Fatalf("expected %q in default products", MagnesiumSulfate)
	}
}

// storeContract runs the same behavioural checks against every Store.
func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.Replace(ctx, []Product{
		product("Zeta", "1", "1", "1", "0.10"),
		product("Alpha", "10", "5", "5", "0.01"),
	}); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	products, err := store.Products(ctx)
	if err != nil {
		t.Fatalf("Products returned error: %v", err)
	}
	if got := strings.Join(names(products), ","); got != "Alpha,Zeta" {
		t.Fatalf("expected name order Alpha,Zeta, got %s", got)
	}

	if err := store.Create(ctx, product("  Mid   dle ", "2", "2", "2", "0.20")); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	got, err := store.Get(ctx, "Mid dle")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !got.PricePerGram.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("unexpected price %s", got.PricePerGram)
	}

	if err := store.Create(ctx, product("Alpha", "1", "1", "1", "1")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := store.Create(ctx, product("Broken", "101", "1", "1", "1")); !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct, got %v", err)
	}

	if err := store.Update(ctx, "Zeta", product("Beta", "3", "3", "3", "0.30")); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if _, err := store.Get(ctx, "Zeta"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected renamed product to be gone, got %v", err)
	}
	if err := store.Update(ctx, "Beta", product("Alpha", "3", "3", "3", "0.30")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on rename collision, got %v", err)
	}
	if err := store.Update(ctx, "Missing", product("Missing", "3", "3", "3", "0.30")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Delete(ctx, "Alpha"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := store.Delete(ctx, "Alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	products, err = store.Products(ctx)
	if err != nil {
		t.Fatalf("Products returned error: %v", err)
	}
	if got := strings.Join(names(products), ","); got != "Beta,Mid dle" {
		t.Fatalf("unexpected catalog after edits: %s", got)
	}

	if err := store.Replace(ctx, []Product{
		product("Dup", "1", "1", "1", "1"),
		product("Dup", "2", "2", "2", "2"),
	}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate from Replace, got %v", err)
	}
	products, _ = store.Products(ctx)
	if len(products) != 2 {
		t.Fatalf("failed Replace must leave catalog untouched, got %v", names(products))
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	storeContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsDefensiveCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Replace(ctx, []Product{product("A", "1", "1", "1", "1")}); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	products, _ := store.Products(ctx)
	products[0].Name = "mutated"

	again, _ := store.Products(ctx)
	if again[0].Name != "A" {
		t.Fatalf("expected stored catalog to be unaffected, got %s", again[0].Name)
	}
}

func TestSQLStore(t *testing.T) {
	t.Parallel()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"), WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	defer store.Close()

	storeContract(t, store)
}

func TestSQLStoreMigrationsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate returned error: %v", err)
	}
	if err := store.Create(ctx, product("Kept", "1", "2", "3", "0.50")); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	_ = store.Close()

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer reopened.Close()

	var count int
	if err := reopened.db.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d migration rows, got %d", len(migrations), count)
	}
	got, err := reopened.Get(ctx, "Kept")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !got.Potassium.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected potassium %s", got.Potassium)
	}
}

func TestEnsureSeeded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	seeded, err := EnsureSeeded(ctx, store, DefaultProducts())
	if err != nil || !seeded {
		t.Fatalf("expected empty store to be seeded, got %v (%v)", seeded, err)
	}
	seeded, err = EnsureSeeded(ctx, store, []Product{product("Other", "1", "1", "1", "1")})
	if err != nil || seeded {
		t.Fatalf("expected populated store to be left alone, got %v (%v)", seeded, err)
	}
	products, _ := store.Products(ctx)
	if len(products) != len(DefaultProducts()) {
		t.Fatalf("expected %d products, got %d", len(DefaultProducts()), len(products))
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := NewMemoryStore()
	if err := src.Replace(ctx, DefaultProducts()); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	var buf bytes.Buffer
	if err := Export(ctx, src, &buf, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if !strings.Contains(buf.String(), `"price_per_gram": "0.45"`) {
		t.Fatalf("expected decimal strings in export, got %s", buf.String())
	}

	dst := NewMemoryStore()
	n, err := Import(ctx, dst, &buf)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if n != 12 {
		t.Fatalf("expected 12 imported products, got %d", n)
	}
	got, _ := dst.Get(ctx, "Potassium nitrate")
	if !got.Potassium.Equal(decimal.RequireFromString("45.8")) {
		t.Fatalf("unexpected potassium after round trip: %s", got.Potassium)
	}
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	t.Parallel()

	docs := map[string]string{
		"WrongVersion":  `{"version":2,"products":[]}`,
		"UnknownField":  `{"version":1,"products":[],"plants":[]}`,
		"InvalidJSON":   `{"version":1,`,
		"InvalidRecord": `{"version":1,"products":[{"name":"X","nitrogen_percentage":"120","phosphorus_percentage":"0","potassium_percentage":"0","price_per_gram":"1"}]}`,
	}
	for name, doc := range docs {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(strings.NewReader(doc)); !errors.Is(err, ErrInvalidProduct) {
				t.Fatalf("expected ErrInvalidProduct, got %v", err)
			}
		})
	}
}

func TestTakeSnapshotIsIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Replace(ctx, []Product{product("B", "1", "1", "1", "1"), product("A", "1", "1", "1", "1")})

	snap, err := TakeSnapshot(ctx, store)
	if err != nil {
		t.Fatalf("TakeSnapshot returned error: %v", err)
	}
	_ = store.Delete(ctx, "A")

	products, _ := snap.Products(ctx)
	if got := strings.Join(names(products), ","); got != "A,B" {
		t.Fatalf("expected snapshot to keep A,B, got %s", got)
	}
}
