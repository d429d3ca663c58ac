package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

// ErrEmailExists is returned when registering an email twice.
var ErrEmailExists = errors.New("email already exists")

// UserRepo reads and writes accounts.  Reservation and check-in flows only
// read it, to check that the caller holds the right role.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a UserRepo bound to db.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, full_name, password_hash, role, is_active, created_at, updated_at`

// Create hashes password and inserts an active account with role.
func (r *UserRepo) Create(ctx context.Context, email, fullName, password, role string, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, full_name, password_hash, role) VALUES (?, ?, ?, ?)`,
		normalizeEmail(email), strings.TrimSpace(fullName), hash, role)
	if isDuplicateKey(err, "") {
		return 0, ErrEmailExists
	}
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail returns ErrNotFound for unknown addresses.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.one(ctx, `email = ?`, normalizeEmail(email))
}

// GetByID returns ErrNotFound for unknown ids.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.one(ctx, `id = ?`, id)
}

func (r *UserRepo) one(ctx context.Context, where string, arg any) (model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err)
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
