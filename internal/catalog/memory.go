package catalog

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps the catalog in-memory and guards access with a RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	products []Product
}

// NewMemoryStore initialises an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: []Product{}}
}

// Products returns a defensive, name-sorted copy of the catalog.
func (s *MemoryStore) Products(context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneAndSort(s.products), nil
}

// Get returns the product with the given name.
func (s *MemoryStore) Get(_ context.Context, name string) (Product, error) {
	name = normalizeName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(name); i >= 0 {
		return s.products[i], nil
	}
	return Product{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Create validates and adds a new product.
func (s *MemoryStore) Create(_ context.Context, p Product) error {
	normalized, err := normalizeProduct(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(normalized.Name) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicate, normalized.Name)
	}
	s.products = append(s.products, normalized)
	SortByName(s.products)
	return nil
}

// Update replaces the product stored under name. The product may be renamed.
func (s *MemoryStore) Update(_ context.Context, name string, p Product) error {
	name = normalizeName(name)
	normalized, err := normalizeProduct(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if normalized.Name != name && s.indexOf(normalized.Name) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicate, normalized.Name)
	}
	s.products[i] = normalized
	SortByName(s.products)
	return nil
}

// Delete removes the product with the given name.
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	name = normalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s.products = append(s.products[:i], s.products[i+1:]...)
	return nil
}

// Replace validates, normalises, and stores the provided catalog.
func (s *MemoryStore) Replace(_ context.Context, products []Product) error {
	normalized, err := normalizeProducts(products)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.products = normalized
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) indexOf(name string) int {
	for i, p := range s.products {
		if p.Name == name {
			return i
		}
	}
	return -1
}
