package exams

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ueexam/backend/internal/models"
)

// Repository handles exam persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an exam repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const examColumns = `id, class_id, title, duration, start_date, end_date, created_at, updated_at`

func scanExam(row pgx.Row) (*models.Exam, error) {
	var e models.Exam
	err := row.Scan(&e.ID, &e.ClassID, &e.Title, &e.Duration, &e.StartDate, &e.EndDate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Create inserts an exam for a class.
func (r *Repository) Create(ctx context.Context, e *models.Exam) (*models.Exam, error) {
	q := `INSERT INTO exams (id, class_id, title, duration, start_date, end_date)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING ` + examColumns
	return scanExam(r.pool.QueryRow(ctx, q, e.ClassID, e.Title, e.Duration, e.StartDate, e.EndDate))
}

// GetByID returns an exam or nil when not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Exam, error) {
	q := `SELECT ` + examColumns + ` FROM exams WHERE id = $1`
	return scanExam(r.pool.QueryRow(ctx, q, id))
}

// List returns all exams, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Exam, error) {
	q := `SELECT ` + examColumns + ` FROM exams ORDER BY start_date DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Exam
	for rows.Next() {
		var e models.Exam
		if err := rows.Scan(&e.ID, &e.ClassID, &e.Title, &e.Duration, &e.StartDate, &e.EndDate, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Update rewrites the mutable exam fields.
func (r *Repository) Update(ctx context.Context, e *models.Exam) (*models.Exam, error) {
	q := `UPDATE exams SET title = $1, duration = $2, start_date = $3, end_date = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING ` + examColumns
	return scanExam(r.pool.QueryRow(ctx, q, e.Title, e.Duration, e.StartDate, e.EndDate, e.ID))
}

// Delete removes an exam and, via cascade, its reports and submissions.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
