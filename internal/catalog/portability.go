package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

const exportVersion = 1

// Document is the JSON interchange format of the catalog.
type Document struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Products   []Product `json:"products"`
}

// Export writes the catalog as an indented JSON document.
func Export(ctx context.Context, r Reader, w io.Writer, now time.Time) error {
	products, err := r.Products(ctx)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	doc := Document{
		Version:    exportVersion,
		ExportedAt: now.UTC(),
		Products:   products,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return nil
}

// Decode parses and validates a catalog document.
func Decode(r io.Reader) ([]Product, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode catalog document: %v", ErrInvalidProduct, err)
	}
	if doc.Version != exportVersion {
		return nil, fmt.Errorf("%w: unsupported catalog document version %d", ErrInvalidProduct, doc.Version)
	}
	return normalizeProducts(doc.Products)
}

// Import decodes a catalog document and replaces the store contents with it.
// It returns the number of imported products.
func Import(ctx context.Context, store Store, r io.Reader) (int, error) {
	products, err := Decode(r)
	if err != nil {
		return 0, err
	}
	if err := store.Replace(ctx, products); err != nil {
		return 0, err
	}
	return len(products), nil
}

// LoadFile reads a catalog document from disk; used for seed files.
func LoadFile(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
