package identity

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskit/authgate/internal/shared/errors"
)

// pgUniqueViolation is the postgres error code for unique_violation.
const pgUniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL
)
`

// Postgres implements Resolver backed by PostgreSQL.
//
// The get-or-create runs inside a single transaction. The SELECT-then-INSERT
// sequence alone does not exclude two concurrent first-time logins for the
// same email under default isolation; the UNIQUE constraint on email closes
// that race, and a losing insert falls back to reading the winner's row.
type Postgres struct {
	pool     *pgxpool.Pool
	onCreate func()
}

// PostgresOption configures the Postgres resolver.
type PostgresOption func(*Postgres)

// WithCreateHook registers a callback invoked when a user record is created.
func WithCreateHook(fn func()) PostgresOption {
	return func(p *Postgres) {
		p.onCreate = fn
	}
}

// NewPostgres creates a PostgreSQL-backed resolver.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *Postgres {
	p := &Postgres{pool: pool}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureSchema creates the users table if it does not exist.
func (r *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring users schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (r *Postgres) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Resolve returns the user id for email, inserting a new record on first login.
func (r *Postgres) Resolve(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", errors.InvalidInput("email is required")
	}

	id, created, err := r.resolveTx(ctx, email)
	if isUniqueViolation(err) {
		// Lost a first-login race; the row exists now.
		return r.lookup(ctx, email)
	}
	if err != nil {
		return "", errors.IdentityResolutionWrap("resolving user", err)
	}

	if created && r.onCreate != nil {
		r.onCreate()
	}
	return id, nil
}

func (r *Postgres) resolveTx(ctx context.Context, email string) (string, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&id)
	switch {
	case err == nil:
		if err := tx.Commit(ctx); err != nil {
			return "", false, fmt.Errorf("committing read: %w", err)
		}
		return id.String(), false, nil

	case stderrors.Is(err, pgx.ErrNoRows):
		id = uuid.New()
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)`,
			id, email, time.Now().UTC(),
		)
		if err != nil {
			return "", false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return "", false, fmt.Errorf("committing insert: %w", err)
		}
		return id.String(), true, nil

	default:
		return "", false, fmt.Errorf("selecting user: %w", err)
	}
}

func (r *Postgres) lookup(ctx context.Context, email string) (string, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&id)
	if err != nil {
		return "", errors.IdentityResolutionWrap("reading user after insert conflict", err)
	}
	return id.String(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
