package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kvelder/shopcore/internal/product"
)

const (
	listProductsSQL = `SELECT id, name, price, carrying_fee, shipping_fee, stock, status, variations
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, carrying_fee, shipping_fee, stock, status, variations
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, price, carrying_fee, shipping_fee, stock, status, variations
		FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (id, name, price, carrying_fee, shipping_fee, stock, status, variations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price,
			carrying_fee = EXCLUDED.carrying_fee, shipping_fee = EXCLUDED.shipping_fee,
			stock = EXCLUDED.stock, status = EXCLUDED.status, variations = EXCLUDED.variations`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the full catalog ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Save upserts a product, variations included.
func (r *ProductRepository) Save(ctx context.Context, p *product.Product) error {
	variations, err := json.Marshal(p.Variations)
	if err != nil {
		return errors.Wrapf(err, "marshal variations for %q", p.ID)
	}
	_, err = r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Price, p.CarryingFee, p.ShippingFee,
		p.Stock, string(p.Status), variations)
	if err != nil {
		return errors.Wrapf(err, "save product %q", p.ID)
	}
	return nil
}

// Delete removes a product from the catalog.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteProductSQL, id); err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p          product.Product
		variations []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.CarryingFee, &p.ShippingFee,
		&p.Stock, &p.Status, &variations)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(variations, &p.Variations); err != nil {
		return p, errors.Wrapf(err, "decode variations for %q", p.ID)
	}
	return p, nil
}
