package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/idvault/authserver/types"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, first_name, last_name, username, password_hash,
		reset_password_token_hash, reset_password_expires_at, avatar_key,
		created_at, updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

// Create inserts a new user. A racing insert with the same username loses
// against the unique constraint and surfaces as ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (first_name, last_name, username, password_hash, avatar_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.FirstName,
		user.LastName,
		user.Username,
		user.PasswordHash,
		user.AvatarKey,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

// Save persists mutable user fields by id.
func (r *UserRepository) Save(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET first_name = $1,
			last_name = $2,
			password_hash = $3,
			reset_password_token_hash = $4,
			reset_password_expires_at = $5,
			avatar_key = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.ResetPasswordTokenHash,
		nullTime(user.ResetPasswordExpiresAt),
		user.AvatarKey,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// SetResetToken records an outstanding password-reset request. Both reset
// fields are written together so they are never observed half-set.
func (r *UserRepository) SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET reset_password_token_hash = $1,
			reset_password_expires_at = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, tokenHash, expiresAt, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeResetToken applies the new password hash and clears both reset
// fields in one statement, guarded on the stored token hash. If a racing
// request already consumed the token the guard fails and ErrNotFound is
// returned, which keeps reset tokens single-use.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, id int64, expectedTokenHash, newPasswordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			reset_password_token_hash = '',
			reset_password_expires_at = NULL,
			updated_at = $2
		WHERE id = $3 AND reset_password_token_hash = $4`
	result, err := r.db.ExecContext(ctx, query, newPasswordHash, time.Now(), id, expectedTokenHash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	var expiresAt sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Username,
		&user.PasswordHash,
		&user.ResetPasswordTokenHash,
		&expiresAt,
		&user.AvatarKey,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if expiresAt.Valid {
		user.ResetPasswordExpiresAt = &expiresAt.Time
	}
	return user, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
