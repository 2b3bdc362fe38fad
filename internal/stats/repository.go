package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RegistrationsSince counts users created at or after since, grouped by UTC
// calendar day, oldest day first. Days without registrations are omitted.
func (r *Repository) RegistrationsSince(ctx context.Context, since time.Time) ([]DailyCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM users
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day ASC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query registration stats: %w", err)
	}
	defer rows.Close()

	counts := make([]DailyCount, 0)
	for rows.Next() {
		var c DailyCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("scan registration stats: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registration stats: %w", err)
	}

	return counts, nil
}
