package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/lms-backend/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// notFound maps pgx.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const userColumns = `id, name, email, password_hash, role, avatar, created_at, updated_at`

// UserRepository handles learner and admin accounts.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Avatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// GetByID retrieves an account by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail retrieves an account by its unique email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

// Create inserts a new account.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, role, avatar)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		u.Name, u.Email, u.PasswordHash, u.Role, u.Avatar,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// UpsertByEmail creates the account or refreshes its name, role and password.
func (r *UserRepository) UpsertByEmail(ctx context.Context, u *model.User) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE
		 SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash,
		     role = EXCLUDED.role, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		u.Name, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// CreateLearners inserts learners in one COPY. Existing emails must be filtered by the caller.
func (r *UserRepository) CreateLearners(ctx context.Context, users []model.User) (int64, error) {
	rows := make([][]interface{}, len(users))
	for i, u := range users {
		rows[i] = []interface{}{u.Name, u.Email, u.PasswordHash, model.RoleLearner}
	}
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"users"},
		[]string{"name", "email", "password_hash", "role"},
		pgx.CopyFromRows(rows),
	)
}

// ExistingEmails returns which of emails are already registered.
func (r *UserRepository) ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT email FROM users WHERE email = ANY($1)`, emails)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out[e] = true
	}
	return out, rows.Err()
}
