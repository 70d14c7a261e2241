package models

import (
	"time"

	"github.com/google/uuid"
)

// StaffAccount is a staff/admin login account for the management API.
// Students never log in here; they are addressed by UID on the ingest path.
type StaffAccount struct {
	ID           uuid.UUID `json:"id"`
	UID          string    `json:"uid"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
