package models

import "github.com/google/uuid"

// Participant roles.
const (
	RoleStudent = "student"
	RoleStaff   = "staff"
	RoleAdmin   = "admin"
)

// Participant is one directory entry for an exam: a student or staff member
// assigned to the exam's class. UID is the external identity used on the
// streaming endpoints; ID is the database row id.
type Participant struct {
	ID    uuid.UUID `json:"id"`
	UID   string    `json:"uid"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}
