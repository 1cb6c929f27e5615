package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/motorbid/vehicle-auction/internal/model"
	"github.com/motorbid/vehicle-auction/internal/utils"
)

// UserRepo manages persistence for users.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, name, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, name, password_hash, role) VALUES (?,?,?,?)",
		email, nullStr(strings.TrimSpace(name)), hash, role)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.get(ctx, "SELECT id,email,COALESCE(name,''),password_hash,role,is_active,created_at,updated_at FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by id. Returns model.ErrUserNotFound when absent.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.get(ctx, "SELECT id,email,COALESCE(name,''),password_hash,role,is_active,created_at,updated_at FROM users WHERE id=? LIMIT 1", id)
}

// RefTx fetches the displayable identity subset of a user within the
// caller's transaction. The bid engine uses this both as an existence check
// and to attach bidder identity to the created bid.
func (r *UserRepo) RefTx(ctx context.Context, tx *sql.Tx, id uint64) (model.UserRef, error) {
	var ref model.UserRef
	err := tx.QueryRowContext(ctx,
		"SELECT id, email, COALESCE(name,'') FROM users WHERE id=? LIMIT 1", id).
		Scan(&ref.ID, &ref.Email, &ref.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserRef{}, model.ErrUserNotFound
	}
	return ref, err
}

func (r *UserRepo) get(ctx context.Context, q string, arg any) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, q, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	return u, err
}
