package loginhistory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one login attempt. UserID is null when the username matched no
// account.
type Entry struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.NullUUID `json:"user_id"`
	Success   bool          `json:"success"`
	IPAddress *string       `json:"ip_address"`
	LoginTime time.Time     `json:"login_time"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, userID *uuid.UUID, success bool, ip *string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	var owner uuid.NullUUID
	if userID != nil {
		owner = uuid.NullUUID{UUID: *userID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO login_history (id, user_id, success, ip_address, login_time)
		VALUES ($1, $2, $3, $4, $5)
	`, id, owner, success, ip, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert login history: %w", err)
	}

	return nil
}

// List returns entries newest first, optionally for a single user.
func (r *Repository) List(ctx context.Context, userID *uuid.UUID, limit int) ([]Entry, error) {
	var filter uuid.NullUUID
	if userID != nil {
		filter = uuid.NullUUID{UUID: *userID, Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, success, ip_address, login_time
		FROM login_history
		WHERE $1::uuid IS NULL OR user_id = $1::uuid
		ORDER BY login_time DESC
		LIMIT $2
	`, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("query login history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Success, &entry.IPAddress, &entry.LoginTime); err != nil {
			return nil, fmt.Errorf("scan login history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login history: %w", err)
	}

	return entries, nil
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM login_history
			WHERE login_time < $1
			ORDER BY login_time ASC
			LIMIT $2
		)
		DELETE FROM login_history t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login history: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login history rows affected: %w", err)
	}

	return affected, nil
}
