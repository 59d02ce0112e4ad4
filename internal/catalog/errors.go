package catalog

import "errors"

var (
	// ErrNotFound is returned when a product with the requested name does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicate is returned when a product name is already taken.
	ErrDuplicate = errors.New("product with this name already exists")
	// ErrInvalidProduct is returned when a product violates composition or price rules.
	ErrInvalidProduct = errors.New("invalid product")
)
