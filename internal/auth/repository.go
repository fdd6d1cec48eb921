package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"store-core/internal/apperr"
)

const uniqueViolation = "23505"

// Repository is the Postgres identity store. Passwords are stored as bcrypt
// hashes and never leave this type.
type Repository struct {
	db   *sql.DB
	cost int
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, cost: bcrypt.DefaultCost}
}

const identityColumns = `id, username, email, role, security_stamp, created_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*Identity, error) {
	var identity Identity
	var role string
	var lastLogin sql.NullTime
	if err := row.Scan(&identity.ID, &identity.Username, &identity.Email, &role, &identity.Stamp, &identity.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	identity.Role = Role(role)
	if lastLogin.Valid {
		value := lastLogin.Time.UTC()
		identity.LastLoginAt = &value
	}
	return &identity, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM users
		WHERE email = $1
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Storage("query user by email", err)
	}

	return identity, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	identity, err := scanIdentity(r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Storage("query user by id", err)
	}

	return identity, nil
}

func (r *Repository) Create(ctx context.Context, input NewIdentity) (*Identity, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), r.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	stamp, err := randomStamp()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, security_stamp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, id.String(), input.Username, input.Email, string(hash), string(input.Role), stamp, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.New(apperr.DuplicateEmail, "email is already registered")
		}
		return nil, apperr.Storage("insert user", err)
	}

	return &Identity{
		ID:        id.String(),
		Username:  input.Username,
		Email:     input.Email,
		Role:      input.Role,
		Stamp:     stamp,
		CreatedAt: now,
	}, nil
}

func (r *Repository) CheckPassword(ctx context.Context, id, password string) (bool, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, apperr.Storage("query password hash", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("compare password: %w", err)
	}

	return true, nil
}

func (r *Repository) RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage("begin failed attempt tx", err)
	}
	defer tx.Rollback()

	var failed int
	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&failed, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "user not found")
		}
		return nil, apperr.Storage("lock user row", err)
	}

	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		until := lockedUntil.Time.UTC()
		return &until, nil
	}

	failed++
	var nextLock *time.Time
	var nextLockValue any
	if failed >= maxAttempts {
		until := now.UTC().Add(lockFor)
		nextLock = &until
		nextLockValue = until
		failed = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET failed_attempts = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, id, failed, nextLockValue, now.UTC())
	if err != nil {
		return nil, apperr.Storage("update failed attempts", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("commit failed attempt tx", err)
	}

	return nextLock, nil
}

func (r *Repository) ResetFailedAttempts(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_attempts = 0, locked_until = NULL
		WHERE id = $1 AND (failed_attempts <> 0 OR locked_until IS NOT NULL)
	`, id)
	if err != nil {
		return apperr.Storage("reset failed attempts", err)
	}

	return nil
}

func (r *Repository) IsLockedOut(ctx context.Context, id string, now time.Time) (*time.Time, error) {
	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT locked_until FROM users WHERE id = $1`, id).Scan(&lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Storage("query lockout", err)
	}

	if !lockedUntil.Valid || !now.Before(lockedUntil.Time) {
		return nil, nil
	}
	until := lockedUntil.Time.UTC()
	return &until, nil
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET last_login_at = $2, updated_at = $2
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return apperr.Storage("update last login", err)
	}

	return nil
}

func (r *Repository) RotateStamp(ctx context.Context, id string) (string, error) {
	stamp, err := randomStamp()
	if err != nil {
		return "", err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET security_stamp = $2, updated_at = $3
		WHERE id = $1
	`, id, stamp, time.Now().UTC())
	if err != nil {
		return "", apperr.Storage("rotate security stamp", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", apperr.Storage("rotate security stamp rows affected", err)
	}
	if affected == 0 {
		return "", apperr.New(apperr.NotFound, "user not found")
	}

	return stamp, nil
}

func (r *Repository) List(ctx context.Context) ([]Identity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+identityColumns+`
		FROM users
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, apperr.Storage("query users", err)
	}
	defer rows.Close()

	identities := make([]Identity, 0)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, apperr.Storage("scan user", err)
		}
		identities = append(identities, *identity)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate users", err)
	}

	return identities, nil
}

// ClearExpiredLockouts drops lockouts that have elapsed, in batches of at
// most batchSize rows.
func (r *Repository) ClearExpiredLockouts(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH expired AS (
			SELECT id
			FROM users
			WHERE locked_until IS NOT NULL AND locked_until <= $1
			ORDER BY locked_until ASC
			LIMIT $2
		)
		UPDATE users u
		SET locked_until = NULL, failed_attempts = 0
		FROM expired
		WHERE u.id = expired.id
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, apperr.Storage("clear expired lockouts", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Storage("expired lockouts rows affected", err)
	}

	return affected, nil
}

func randomStamp() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate security stamp: %w", err)
	}
	return hex.EncodeToString(b), nil
}
