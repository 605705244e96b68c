package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores users in the users table.
type PostgresRepository struct {
	db pgxQuerier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("identity: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(db pgxQuerier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, COALESCE(unique_id, ''), email, COALESCE(phone, ''), first_name, last_name, role, password_hash, COALESCE(push_token, ''), active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.UniqueID, &u.Email, &u.Phone, &u.FirstName, &u.LastName,
		&role, &u.PasswordHash, &u.PushToken, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	query := `
		INSERT INTO users (id, unique_id, email, phone, first_name, last_name, role, password_hash, active, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $10)
	`
	_, err := r.db.Exec(ctx, query, u.ID, u.UniqueID, u.Email, u.Phone, u.FirstName, u.LastName,
		string(u.Role), u.PasswordHash, u.Active, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "unique_id") {
				return errUniqueIDTaken
			}
			return ErrEmailTaken
		}
		return fmt.Errorf("identity: insert user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("identity: select user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	return r.getOne(ctx, "id = $1", id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, "lower(email) = lower($1)", email)
}

func (r *PostgresRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*User, error) {
	return r.getOne(ctx, "unique_id = $1", uniqueID)
}

func (r *PostgresRepository) GetMany(ctx context.Context, ids []string) ([]*User, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	return r.list(ctx, "SELECT "+userColumns+" FROM users WHERE id = ANY($1::uuid[])", valid)
}

func (r *PostgresRepository) ListByRole(ctx context.Context, role Role) ([]*User, error) {
	return r.list(ctx, "SELECT "+userColumns+" FROM users WHERE role = $1 ORDER BY created_at", string(role))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("identity: list users: %w", err)
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("identity: scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, `UPDATE users SET active = $2, updated_at = now() WHERE id = $1`, id, active)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.update(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

func (r *PostgresRepository) SetPushToken(ctx context.Context, id, token string) error {
	return r.update(ctx, `UPDATE users SET push_token = NULLIF($2, ''), updated_at = now() WHERE id = $1`, id, token)
}

func (r *PostgresRepository) update(ctx context.Context, query, id string, arg any) error {
	tag, err := r.db.Exec(ctx, query, id, arg)
	if err != nil {
		return fmt.Errorf("identity: update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
