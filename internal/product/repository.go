package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const selectColumns = `
	id, identifier, name, description, price, size, color, image_url, category,
	in_stock, is_discounted, discounted_price, frozen, created_at, updated_at
`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Identifier, &p.Name, &p.Description, &p.Price, &p.Size, &p.Color, &p.ImageURL, &p.Category,
		&p.InStock, &p.IsDiscounted, &p.DiscountedPrice, &p.Frozen, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// List returns products newest first. Frozen products are skipped unless
// includeFrozen is set.
func (r *Repository) List(ctx context.Context, includeFrozen bool) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM products
		WHERE $1 OR frozen = FALSE
		ORDER BY created_at DESC
	`, includeFrozen)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, input Input) (Product, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Product{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	p := Product{
		ID:              id,
		Identifier:      "PROD-" + uuid.NewString(),
		Name:            input.Name,
		Description:     input.Description,
		Price:           input.Price,
		Size:            input.Size,
		Color:           input.Color,
		ImageURL:        input.ImageURL,
		Category:        input.Category,
		InStock:         input.InStock,
		IsDiscounted:    input.IsDiscounted,
		DiscountedPrice: input.DiscountedPrice,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (
			id, identifier, name, description, price, size, color, image_url, category,
			in_stock, is_discounted, discounted_price, frozen, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE, $13, $14)
	`, p.ID, p.Identifier, p.Name, p.Description, p.Price, p.Size, p.Color, p.ImageURL, p.Category,
		p.InStock, p.IsDiscounted, p.DiscountedPrice, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}

	return p, nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, patch Patch) (Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = COALESCE($2, name),
			description = COALESCE($3, description),
			price = COALESCE($4, price),
			size = COALESCE($5, size),
			color = COALESCE($6, color),
			image_url = COALESCE($7, image_url),
			category = COALESCE($8, category),
			in_stock = COALESCE($9, in_stock),
			is_discounted = COALESCE($10, is_discounted),
			discounted_price = COALESCE($11, discounted_price),
			updated_at = $12
		WHERE id = $1
		RETURNING `+selectColumns,
		id, patch.Name, patch.Description, patch.Price, patch.Size, patch.Color, patch.ImageURL, patch.Category,
		patch.InStock, patch.IsDiscounted, patch.DiscountedPrice, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}

	return p, nil
}

func (r *Repository) SetFrozen(ctx context.Context, id uuid.UUID, frozen bool) (Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products
		SET frozen = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+selectColumns,
		id, frozen, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("set product frozen: %w", err)
	}

	return p, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
