package submissions

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ueexam/backend/internal/models"
)

// Repository handles submissions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a submission repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const submissionColumns = `id, exam_id, uid, file_name, content_type, size_bytes, file_url, s3_key, uploaded_at`

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var s models.Submission
	err := row.Scan(&s.ID, &s.ExamID, &s.UID, &s.FileName, &s.ContentType,
		&s.SizeBytes, &s.FileURL, &s.S3Key, &s.UploadedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a submission row.
func (r *Repository) Create(ctx context.Context, sub *models.Submission) (*models.Submission, error) {
	q := `INSERT INTO submissions (id, exam_id, uid, file_name, content_type, size_bytes, file_url, s3_key)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + submissionColumns
	return scanSubmission(r.pool.QueryRow(ctx, q,
		sub.ExamID, sub.UID, sub.FileName, sub.ContentType, sub.SizeBytes, sub.FileURL, sub.S3Key))
}

// ListByExamAndUID returns one participant's submissions, newest first.
func (r *Repository) ListByExamAndUID(ctx context.Context, examID uuid.UUID, uid string) ([]models.Submission, error) {
	q := `SELECT ` + submissionColumns + ` FROM submissions
		WHERE exam_id = $1 AND uid = $2 ORDER BY uploaded_at DESC`
	rows, err := r.pool.Query(ctx, q, examID, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}
