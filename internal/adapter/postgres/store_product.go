package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/entgrid/entitled/internal/domain"
	"github.com/entgrid/entitled/internal/domain/product"
)

func (s *Store) ListProducts(ctx context.Context) ([]product.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, variant, version, arch, multiplier, category, created_at, updated_at
		 FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []product.Product
	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Variant, &p.Version, &p.Arch, &p.Multiplier,
			&p.Category, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, variant, version, arch, multiplier, category, created_at, updated_at
		 FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Variant, &p.Version, &p.Arch, &p.Multiplier, &p.Category,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get product %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}

	if err := s.loadProductChildren(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByName(ctx context.Context, name string) (*product.Product, error) {
	// Name is not guaranteed unique by this contract; prefer the most
	// recently updated match if storage ever holds duplicates.
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM products WHERE name = $1 ORDER BY updated_at DESC LIMIT 1`, name,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get product by name %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get product by name %q: %w", name, err)
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) CreateProduct(ctx context.Context, p *product.Product) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO products (id, name, variant, version, arch, multiplier, category)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Variant, p.Version, p.Arch, p.Multiplier, p.Category,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create product %s: %w", p.ID, domain.ErrConflict)
		}
		return fmt.Errorf("create product %s: %w", p.ID, err)
	}

	if err := insertProductChildren(ctx, tx, p); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ReplaceProduct swaps the entire stored record for p: the product row is
// updated and all attribute and content rows are rewritten. Callers supply
// the complete desired state; nothing is patched field by field.
func (s *Store) ReplaceProduct(ctx context.Context, p *product.Product) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE products SET name = $2, variant = $3, version = $4, arch = $5,
		     multiplier = $6, category = $7, updated_at = now()
		 WHERE id = $1`,
		p.ID, p.Name, p.Variant, p.Version, p.Arch, p.Multiplier, p.Category)
	if err != nil {
		return fmt.Errorf("replace product %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("replace product %s: %w", p.ID, domain.ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_attributes WHERE product_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clear attributes for %s: %w", p.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM product_content WHERE product_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clear content for %s: %w", p.ID, err)
	}
	if err := insertProductChildren(ctx, tx, p); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete product %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ProductHasSubscriptions(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pools WHERE product_id = $1)`, productID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("product has subscriptions %s: %w", productID, err)
	}
	return exists, nil
}

func insertProductChildren(ctx context.Context, tx pgx.Tx, p *product.Product) error {
	for i := range p.Attributes {
		a := &p.Attributes[i]
		if _, err := tx.Exec(ctx,
			`INSERT INTO product_attributes (product_id, position, name, value)
			 VALUES ($1, $2, $3, $4)`,
			p.ID, i, a.Name, a.Value); err != nil {
			return fmt.Errorf("insert attribute %s/%s: %w", p.ID, a.Name, err)
		}
	}
	for i := range p.Content {
		c := &p.Content[i]
		if _, err := tx.Exec(ctx,
			`INSERT INTO product_content (product_id, content_id, enabled)
			 VALUES ($1, $2, $3)`,
			p.ID, c.ContentID, c.Enabled); err != nil {
			return fmt.Errorf("insert content %s/%s: %w", p.ID, c.ContentID, err)
		}
	}
	return nil
}

func (s *Store) loadProductChildren(ctx context.Context, p *product.Product) error {
	rows, err := s.pool.Query(ctx,
		`SELECT name, value FROM product_attributes
		 WHERE product_id = $1 ORDER BY position ASC`, p.ID)
	if err != nil {
		return fmt.Errorf("load attributes %s: %w", p.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		a := product.Attribute{ProductID: p.ID}
		if err := rows.Scan(&a.Name, &a.Value); err != nil {
			return fmt.Errorf("scan attribute: %w", err)
		}
		p.Attributes = append(p.Attributes, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	crows, err := s.pool.Query(ctx,
		`SELECT content_id, enabled FROM product_content
		 WHERE product_id = $1 ORDER BY content_id ASC`, p.ID)
	if err != nil {
		return fmt.Errorf("load content %s: %w", p.ID, err)
	}
	defer crows.Close()

	for crows.Next() {
		var c product.ProductContent
		if err := crows.Scan(&c.ContentID, &c.Enabled); err != nil {
			return fmt.Errorf("scan content: %w", err)
		}
		p.Content = append(p.Content, c)
	}
	return crows.Err()
}
