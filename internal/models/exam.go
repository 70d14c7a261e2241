package models

import (
	"time"

	"github.com/google/uuid"
)

// Exam is a scheduled exam attached to a class.
type Exam struct {
	ID        uuid.UUID `json:"id"`
	ClassID   uuid.UUID `json:"class_id"`
	Title     string    `json:"title"`
	Duration  int       `json:"duration"` // minutes
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Class groups students and staff; exams are scheduled against a class.
type Class struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
