package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"coraza-store/internal/auth"
)

const uniqueViolation = "23505"

const selectColumns = `
	id, username, email, password_hash, role, created_at, last_login, is_active, ip_address, banned, ban_reason
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

func scanUser(row rowScanner) (User, error) {
	var u User
	var role string
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt,
		&u.LastLogin, &u.IsActive, &u.IPAddress, &u.Banned, &u.BanReason,
	); err != nil {
		return User{}, err
	}

	parsed, err := auth.ParseRole(role)
	if err != nil {
		return User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Role = parsed

	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by username: %w", err)
	}
	return u, nil
}

// LoadIdentity satisfies auth.IdentityLoader with a single indexed read.
func (r *Repository) LoadIdentity(ctx context.Context, id uuid.UUID) (auth.Identity, error) {
	var identity auth.Identity
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, role
		FROM users
		WHERE id = $1
	`, id).Scan(&identity.ID, &identity.Username, &identity.Email, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Identity{}, auth.ErrUnknownSubject
		}
		return auth.Identity{}, fmt.Errorf("query identity: %w", err)
	}

	identity.Role, err = auth.ParseRole(role)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("identity %s: %w", id, err)
	}
	return identity, nil
}

func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Create inserts u. ID and CreatedAt are filled in when zero.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	if u.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return User{}, fmt.Errorf("generate uuid v7: %w", err)
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at, is_active, ip_address, banned, ban_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.IsActive, u.IPAddress, u.Banned, u.BanReason)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, update Update) (User, error) {
	var role *string
	if update.Role != nil {
		value := string(*update.Role)
		role = &value
	}

	u, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET username = COALESCE($2, username),
			email = COALESCE($3, email),
			role = COALESCE($4, role),
			is_active = COALESCE($5, is_active),
			banned = COALESCE($6, banned),
			ban_reason = COALESCE($7, ban_reason),
			password_hash = COALESCE($8, password_hash)
		WHERE id = $1
		RETURNING `+selectColumns,
		id, update.Username, update.Email, role, update.IsActive, update.Banned, update.BanReason, update.PasswordHash,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}

	return u, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
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

func (r *Repository) RecordLogin(ctx context.Context, id uuid.UUID, ip *string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET last_login = $2, ip_address = COALESCE($3, ip_address)
		WHERE id = $1
	`, id, at.UTC(), ip)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// Ban flips the banned flag only when it is not already set, so two
// concurrent bans produce one success and one ErrAlreadyBanned.
func (r *Repository) Ban(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET banned = TRUE, ban_reason = $2
		WHERE id = $1 AND banned = FALSE
	`, id, reason)
	if err != nil {
		return fmt.Errorf("ban user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var banned bool
	if err := r.db.QueryRowContext(ctx, `SELECT banned FROM users WHERE id = $1`, id).Scan(&banned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read ban state: %w", err)
	}
	return ErrAlreadyBanned
}

// UpsertAdmin creates or resets the bootstrap administrator account.
func (r *Repository) UpsertAdmin(ctx context.Context, username, email, passwordHash string) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	u, err := scanUser(r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at, is_active, banned)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, FALSE)
		ON CONFLICT (username) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			is_active = TRUE,
			banned = FALSE,
			ban_reason = NULL
		RETURNING `+selectColumns,
		id, username, email, passwordHash, string(auth.RoleAdmin), time.Now().UTC(),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("upsert admin user: %w", err)
	}

	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
