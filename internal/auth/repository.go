package auth

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ueexam/backend/internal/models"
)

// Repository handles account lookups for login and role resolution.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetStaffByEmail returns the staff account for an email or nil.
func (r *Repository) GetStaffByEmail(ctx context.Context, email string) (*models.StaffAccount, error) {
	q := `SELECT id, uid, name, email, password_hash, role, created_at FROM staff WHERE email = $1`
	var acc models.StaffAccount
	err := r.pool.QueryRow(ctx, q, email).Scan(
		&acc.ID, &acc.UID, &acc.Name, &acc.Email, &acc.PasswordHash, &acc.Role, &acc.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

// GetRoleByUID resolves a participant UID to its role, checking students
// first and staff second. Returns "" when the UID is unknown.
func (r *Repository) GetRoleByUID(ctx context.Context, uid string) (string, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM students WHERE uid = $1)`, uid).Scan(&exists)
	if err != nil {
		return "", err
	}
	if exists {
		return models.RoleStudent, nil
	}
	var role string
	err = r.pool.QueryRow(ctx, `SELECT role FROM staff WHERE uid = $1`, uid).Scan(&role)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return role, nil
}
