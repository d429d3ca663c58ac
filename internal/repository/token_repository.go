package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo stores refresh token hashes.  Raw tokens never reach the
// database.
type TokenRepo struct {
	db *sql.DB
}

// NewTokenRepo returns a TokenRepo bound to db.
func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// Store records a freshly issued refresh token.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, hash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		userID, hash, expiresAt)
	return err
}

// Consume revokes a live token and returns its owner.  The revoke is a
// conditional update, so of two concurrent refreshes with the same token
// exactly one succeeds.  Unknown, revoked and expired tokens yield
// ErrNotFound.
func (r *TokenRepo) Consume(ctx context.Context, hash string, now time.Time) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		now, hash, now)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, ErrNotFound
	}
	var userID uint64
	if err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM refresh_tokens WHERE token_hash = ?`, hash).Scan(&userID); err != nil {
		return 0, notFound(err)
	}
	return userID, nil
}

// RevokeAll ends every open session of a user.
func (r *TokenRepo) RevokeAll(ctx context.Context, userID uint64, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		now, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
