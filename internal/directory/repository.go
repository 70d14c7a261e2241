package directory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ueexam/backend/internal/models"
)

// Repository resolves the participant directory for an exam: the students
// and staff assigned to the exam's class.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participant directory repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetClassName returns the display name of a class.
func (r *Repository) GetClassName(ctx context.Context, classID uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM classes WHERE id = $1`, classID).Scan(&name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return name, nil
}

// GetParticipantDirectory returns every student and staff member assigned to
// the exam's class. Membership rows without a matching profile row still
// produce an entry with a fallback display name, so a half-provisioned
// roster never hides a participant from monitoring.
func (r *Repository) GetParticipantDirectory(ctx context.Context, examID uuid.UUID) ([]models.Participant, error) {
	students, err := r.members(ctx, examID, "class_students", "student_uid", "students", models.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	staff, err := r.members(ctx, examID, "class_staff", "staff_uid", "staff", models.RoleStaff)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	return append(students, staff...), nil
}

func (r *Repository) members(ctx context.Context, examID uuid.UUID, joinTable, uidColumn, profileTable, role string) ([]models.Participant, error) {
	q := fmt.Sprintf(`
		SELECT m.%s, p.id, p.name, p.email
		FROM exams e
		JOIN %s m ON m.class_id = e.class_id
		LEFT JOIN %s p ON p.uid = m.%s
		WHERE e.id = $1
		ORDER BY m.%s`,
		uidColumn, joinTable, profileTable, uidColumn, uidColumn)

	rows, err := r.pool.Query(ctx, q, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var (
			uid   string
			id    *uuid.UUID
			name  *string
			email *string
		)
		if err := rows.Scan(&uid, &id, &name, &email); err != nil {
			return nil, err
		}
		p := models.Participant{UID: uid, Role: role}
		if id != nil {
			p.ID = *id
		}
		if name != nil && *name != "" {
			p.Name = *name
		} else {
			p.Name = fallbackName(role, uid)
		}
		if email != nil && *email != "" {
			p.Email = *email
		} else {
			p.Email = "No email"
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// fallbackName labels a participant whose profile row is missing.
func fallbackName(role, uid string) string {
	short := uid
	if len(short) > 8 {
		short = short[:8]
	}
	if role == models.RoleStaff {
		return "Staff_" + short
	}
	return "Student_" + short
}
