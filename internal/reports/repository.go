package reports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ueexam/backend/internal/models"
)

// Repository handles exam_reports persistence — the violation/attendance
// record store consumed by the status aggregator.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a report repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reportColumns = `id, exam_id, uid, report_url, archive_url, violations, total_violations,
	exam_start_time, exam_end_time, completed, created_at, updated_at`

func scanReport(row pgx.Row) (*models.ExamReport, error) {
	var (
		r          models.ExamReport
		violations []byte
	)
	err := row.Scan(&r.ID, &r.ExamID, &r.UID, &r.ReportURL, &r.ArchiveURL, &violations, &r.TotalViolations,
		&r.ExamStartTime, &r.ExamEndTime, &r.Completed, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &r.Violations); err != nil {
			return nil, fmt.Errorf("decode violations: %w", err)
		}
	}
	if r.Violations == nil {
		r.Violations = map[string]int{}
	}
	return &r, nil
}

// Upsert creates or replaces the report for (examID, uid).
func (r *Repository) Upsert(ctx context.Context, report *models.ExamReport) (*models.ExamReport, error) {
	violations, err := json.Marshal(report.Violations)
	if err != nil {
		return nil, fmt.Errorf("encode violations: %w", err)
	}
	q := `INSERT INTO exam_reports
			(id, exam_id, uid, report_url, violations, total_violations, exam_start_time, exam_end_time, completed)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (exam_id, uid) DO UPDATE SET
			report_url = EXCLUDED.report_url,
			violations = EXCLUDED.violations,
			total_violations = EXCLUDED.total_violations,
			exam_start_time = EXCLUDED.exam_start_time,
			exam_end_time = EXCLUDED.exam_end_time,
			completed = EXCLUDED.completed,
			updated_at = NOW()
		RETURNING ` + reportColumns
	return scanReport(r.pool.QueryRow(ctx, q,
		report.ExamID, report.UID, report.ReportURL, violations, report.TotalViolations,
		report.ExamStartTime, report.ExamEndTime, report.Completed))
}

// GetByExamAndUID returns one participant's report or nil.
func (r *Repository) GetByExamAndUID(ctx context.Context, examID uuid.UUID, uid string) (*models.ExamReport, error) {
	q := `SELECT ` + reportColumns + ` FROM exam_reports WHERE exam_id = $1 AND uid = $2`
	return scanReport(r.pool.QueryRow(ctx, q, examID, uid))
}

// GetByID returns a report by row id or nil.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExamReport, error) {
	q := `SELECT ` + reportColumns + ` FROM exam_reports WHERE id = $1`
	return scanReport(r.pool.QueryRow(ctx, q, id))
}

// GetReports returns every report for an exam.
func (r *Repository) GetReports(ctx context.Context, examID uuid.UUID) ([]models.ExamReport, error) {
	q := `SELECT ` + reportColumns + ` FROM exam_reports WHERE exam_id = $1 ORDER BY uid`
	rows, err := r.pool.Query(ctx, q, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ExamReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *report)
	}
	return out, rows.Err()
}

// SetArchiveURL records where the export worker archived the report.
func (r *Repository) SetArchiveURL(ctx context.Context, id uuid.UUID, url string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_reports SET archive_url = $1, updated_at = NOW() WHERE id = $2`, url, id)
	return err
}
