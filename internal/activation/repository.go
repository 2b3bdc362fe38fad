package activation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const foreignKeyViolation = "23503"

const selectColumns = `
	id, key, product_id, duration_days, is_redeemed, created_at,
	generated_by, redeemed_by, is_free, price_paid, order_id, replaced_by
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

func scanKey(row rowScanner) (Key, error) {
	var k Key
	err := row.Scan(
		&k.ID, &k.Key, &k.ProductID, &k.DurationDays, &k.IsRedeemed, &k.CreatedAt,
		&k.GeneratedBy, &k.RedeemedBy, &k.IsFree, &k.PricePaid, &k.OrderID, &k.ReplacedBy,
	)
	return k, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertKey(ctx context.Context, q queryRower, k Key) (Key, error) {
	created, err := scanKey(q.QueryRowContext(ctx, `
		INSERT INTO activation_keys (
			id, key, product_id, duration_days, is_redeemed, created_at,
			generated_by, is_free, price_paid, order_id
		)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7, $8, $9)
		RETURNING `+selectColumns,
		k.ID, k.Key, k.ProductID, k.DurationDays, k.CreatedAt, k.GeneratedBy, k.IsFree, k.PricePaid, k.OrderID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return Key{}, ErrProductNotFound
		}
		return Key{}, fmt.Errorf("insert activation key: %w", err)
	}
	return created, nil
}

func newKey(productID uuid.UUID, durationDays int, generatedBy *uuid.UUID) Key {
	k := Key{
		ID:           uuid.New(),
		Key:          uuid.NewString(),
		ProductID:    productID,
		DurationDays: durationDays,
		CreatedAt:    time.Now().UTC(),
	}
	if generatedBy != nil {
		k.GeneratedBy = uuid.NullUUID{UUID: *generatedBy, Valid: true}
	}
	return k
}

// Create issues a fresh unredeemed key for the product.
func (r *Repository) Create(ctx context.Context, req IssueRequest, generatedBy *uuid.UUID) (Key, error) {
	duration := DefaultDurationDays
	if req.DurationDays != nil {
		duration = *req.DurationDays
	}

	k := newKey(req.ProductID, duration, generatedBy)
	k.IsFree = req.IsFree
	return insertKey(ctx, r.db, k)
}

func (r *Repository) List(ctx context.Context) ([]Key, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM activation_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query activation keys: %w", err)
	}
	defer rows.Close()

	keys := make([]Key, 0)
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activation key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activation keys: %w", err)
	}

	return keys, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activation_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete activation key: %w", err)
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

// Replace supersedes the key with a fresh clone. The old row is locked for
// the duration of the transaction, so concurrent replacements of the same key
// serialize and the loser sees ErrAlreadyReplaced.
func (r *Repository) Replace(ctx context.Context, id uuid.UUID, generatedBy *uuid.UUID) (Key, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Key{}, fmt.Errorf("begin replace transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	old, err := scanKey(tx.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM activation_keys
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Key{}, ErrNotFound
		}
		return Key{}, fmt.Errorf("lock activation key: %w", err)
	}
	if old.ReplacedBy.Valid {
		return Key{}, ErrAlreadyReplaced
	}

	replacement := newKey(old.ProductID, old.DurationDays, generatedBy)
	replacement.IsFree = old.IsFree
	replacement.PricePaid = old.PricePaid
	replacement.OrderID = old.OrderID

	created, err := insertKey(ctx, tx, replacement)
	if err != nil {
		return Key{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE activation_keys
		SET is_redeemed = TRUE, replaced_by = $2
		WHERE id = $1
	`, old.ID, created.ID); err != nil {
		return Key{}, fmt.Errorf("supersede activation key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Key{}, fmt.Errorf("commit replace transaction: %w", err)
	}

	return created, nil
}

// Redeem marks the key redeemed by userID in a single conditional update.
// Exactly one of any number of concurrent callers for the same code wins.
func (r *Repository) Redeem(ctx context.Context, code string, userID uuid.UUID) (Key, error) {
	k, err := scanKey(r.db.QueryRowContext(ctx, `
		UPDATE activation_keys
		SET is_redeemed = TRUE, redeemed_by = $2
		WHERE key = $1 AND is_redeemed = FALSE
		RETURNING `+selectColumns,
		code, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Key{}, ErrInvalidKey
		}
		return Key{}, fmt.Errorf("redeem activation key: %w", err)
	}
	return k, nil
}
