package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "fertilizer_products",
		sql: `
CREATE TABLE IF NOT EXISTS fertilizer_products (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  nitrogen_percentage TEXT NOT NULL CHECK(CAST(nitrogen_percentage AS REAL) BETWEEN 0 AND 100),
  phosphorus_percentage TEXT NOT NULL CHECK(CAST(phosphorus_percentage AS REAL) BETWEEN 0 AND 100),
  potassium_percentage TEXT NOT NULL CHECK(CAST(potassium_percentage AS REAL) BETWEEN 0 AND 100),
  price_per_gram TEXT NOT NULL CHECK(CAST(price_per_gram AS REAL) > 0),
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
}

// SQLStore persists the catalog in a SQLite database.
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// SQLOption configures an SQLStore.
type SQLOption func(*SQLStore)

// WithLogger attaches a logger to the store.
func WithLogger(logger *zap.Logger) SQLOption {
	return func(s *SQLStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(path string, opts ...SQLOption) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := NewSQLStore(db, opts...)
	if err := store.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an already opened database. Call Migrate before use.
func NewSQLStore(db *sql.DB, opts ...SQLOption) *SQLStore {
	s := &SQLStore{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate applies pending schema migrations.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration version %d: %w", m.version, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration version %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES(?, ?)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration version %d: %w", m.version, err)
		}
		s.logger.Info("catalog migration applied", zap.Int("version", m.version), zap.String("name", m.name))
	}
	return nil
}

// Products returns all products ordered by name.
func (s *SQLStore) Products(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, nitrogen_percentage, phosphorus_percentage, potassium_percentage, price_per_gram
FROM fertilizer_products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Get returns the product with the given name.
func (s *SQLStore) Get(ctx context.Context, name string) (Product, error) {
	name = normalizeName(name)
	row := s.db.QueryRowContext(ctx, `
SELECT name, nitrogen_percentage, phosphorus_percentage, potassium_percentage, price_per_gram
FROM fertilizer_products WHERE name = ?`, name)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, err
}

// Create validates and inserts a new product.
func (s *SQLStore) Create(ctx context.Context, p Product) error {
	normalized, err := normalizeProduct(p)
	if err != nil {
		return err
	}
	return insertProduct(ctx, s.db, normalized)
}

// Update replaces the product stored under name. The product may be renamed.
func (s *SQLStore) Update(ctx context.Context, name string, p Product) error {
	name = normalizeName(name)
	normalized, err := normalizeProduct(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE fertilizer_products
SET name = ?, nitrogen_percentage = ?, phosphorus_percentage = ?, potassium_percentage = ?, price_per_gram = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE name = ?`,
		normalized.Name, normalized.Nitrogen.String(), normalized.Phosphorus.String(),
		normalized.Potassium.String(), normalized.PricePerGram.String(), name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrDuplicate, normalized.Name)
		}
		return fmt.Errorf("update product %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// Delete removes the product with the given name.
func (s *SQLStore) Delete(ctx context.Context, name string) error {
	name = normalizeName(name)
	res, err := s.db.ExecContext(ctx, `DELETE FROM fertilizer_products WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete product %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// Replace swaps the whole catalog in a single transaction.
func (s *SQLStore) Replace(ctx context.Context, products []Product) error {
	normalized, err := normalizeProducts(products)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fertilizer_products`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear products: %w", err)
	}
	for _, p := range normalized {
		if err := insertProduct(ctx, tx, p); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	s.logger.Info("catalog replaced", zap.Int("products", len(normalized)))
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func insertProduct(ctx context.Context, db execer, p Product) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO fertilizer_products(name, nitrogen_percentage, phosphorus_percentage, potassium_percentage, price_per_gram)
VALUES(?, ?, ?, ?, ?)`,
		p.Name, p.Nitrogen.String(), p.Phosphorus.String(), p.Potassium.String(), p.PricePerGram.String())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrDuplicate, p.Name)
		}
		return fmt.Errorf("insert product %q: %w", p.Name, err)
	}
	return nil
}

func scanProduct(row scanner) (Product, error) {
	var (
		p                   Product
		n, ph, k, priceText string
	)
	if err := row.Scan(&p.Name, &n, &ph, &k, &priceText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, err
		}
		return Product{}, fmt.Errorf("scan product: %w", err)
	}

	fields := []struct {
		raw  string
		dest *decimal.Decimal
	}{
		{n, &p.Nitrogen},
		{ph, &p.Phosphorus},
		{k, &p.Potassium},
		{priceText, &p.PricePerGram},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return Product{}, fmt.Errorf("decode product %q: %w", p.Name, err)
		}
		*f.dest = v
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
