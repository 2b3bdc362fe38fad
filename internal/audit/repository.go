package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.NullUUID   `json:"user_id"`
	ActionData json.RawMessage `json:"action_data"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert checks out a dedicated connection from the pool so an entry is
// never written inside a caller's transaction.
func (r *Repository) Insert(ctx context.Context, actor *uuid.UUID, payload json.RawMessage) (Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	entry := Entry{ID: id, ActionData: payload, CreatedAt: time.Now().UTC()}
	if actor != nil {
		entry.UserID = uuid.NullUUID{UUID: *actor, Valid: true}
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("acquire audit connection: %w", err)
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO action_logs (id, user_id, action_data, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
	`, entry.ID, entry.UserID, string(payload), entry.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert action log: %w", err)
	}

	return entry, nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, action_data, created_at
		FROM action_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query action logs: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var data []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &data, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		entry.ActionData = json.RawMessage(data)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action logs: %w", err)
	}

	return entries, nil
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM action_logs
			WHERE created_at < $1
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM action_logs t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale action logs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale action logs rows affected: %w", err)
	}

	return affected, nil
}
