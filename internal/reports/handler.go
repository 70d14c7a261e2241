package reports

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ueexam/backend/internal/models"
	"github.com/ueexam/backend/pkg/queue"
	"github.com/ueexam/backend/pkg/response"
	"github.com/ueexam/backend/pkg/storage"
)

// Handler serves violation report upload and retrieval endpoints.
type Handler struct {
	repo   *Repository
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewHandler creates a report handler. s3 and q may be nil when the
// deployment has no object storage or job queue configured.
func NewHandler(repo *Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, s3: s3, queue: q, logger: logger}
}

// Upload handles POST /api/exams/:examId/report/upload. Multipart form:
// reportFile (PDF), uid, violations (JSON object), totalViolations,
// examStartTime, examEndTime (RFC3339), completed.
func (h *Handler) Upload(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("examId"))
	if err != nil {
		response.BadRequest(c, "invalid exam id")
		return
	}
	uid := strings.TrimSpace(c.PostForm("uid"))
	if uid == "" {
		response.BadRequest(c, "uid is required")
		return
	}

	existing, err := h.repo.GetByExamAndUID(c.Request.Context(), examID, uid)
	if err != nil {
		h.logger.Error("fetch existing report failed", zap.Error(err))
		response.Internal(c, "failed to check existing report")
		return
	}
	if existing != nil && existing.Completed {
		response.Forbidden(c, "report already finalized for this participant")
		return
	}

	report := &models.ExamReport{
		ExamID:     examID,
		UID:        uid,
		Violations: map[string]int{},
	}
	if raw := c.PostForm("violations"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &report.Violations); err != nil {
			response.BadRequest(c, "violations must be a JSON object of counts")
			return
		}
	}
	if raw := c.PostForm("totalViolations"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "totalViolations must be a non-negative integer")
			return
		}
		report.TotalViolations = n
	} else {
		for _, n := range report.Violations {
			report.TotalViolations += n
		}
	}
	if t, ok := parseFormTime(c.PostForm("examStartTime")); ok {
		report.ExamStartTime = t
	}
	if t, ok := parseFormTime(c.PostForm("examEndTime")); ok {
		report.ExamEndTime = t
	}
	report.Completed = c.PostForm("completed") == "true"

	file, header, err := c.Request.FormFile("reportFile")
	if err == nil {
		defer file.Close()
		if header.Size > storage.MaxReportSize {
			response.BadRequest(c, "report file exceeds 5MB limit")
			return
		}
		contentType := header.Header.Get("Content-Type")
		if contentType != "application/pdf" && !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
			response.BadRequest(c, "report file must be a PDF")
			return
		}
		if h.s3 == nil {
			response.Internal(c, "object storage is not configured")
			return
		}
		key := storage.ReportKey(examID.String(), uid, time.Now())
		url, err := h.s3.Upload(c.Request.Context(), h.s3.ReportsBucket(), key, "application/pdf", file, header.Size)
		if err != nil {
			h.logger.Error("report upload failed", zap.Error(err),
				zap.String("exam_id", examID.String()), zap.String("uid", uid))
			response.Internal(c, "failed to store report file")
			return
		}
		report.ReportURL = url
	}

	saved, err := h.repo.Upsert(c.Request.Context(), report)
	if err != nil {
		h.logger.Error("report upsert failed", zap.Error(err),
			zap.String("exam_id", examID.String()), zap.String("uid", uid))
		response.Internal(c, "failed to save report")
		return
	}

	if saved.Completed && h.queue != nil {
		payload := queue.ReportExportPayload{ReportID: saved.ID, ExamID: saved.ExamID, UID: saved.UID}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.queue.EnqueueReportExport(ctx, payload); err != nil {
			// Export is best-effort; the report itself is already saved.
			h.logger.Warn("report export enqueue failed", zap.Error(err),
				zap.String("report_id", saved.ID.String()))
		}
	}

	response.Created(c, saved)
}

// Get handles GET /api/exams/:examId/report/:uid.
func (h *Handler) Get(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("examId"))
	if err != nil {
		response.BadRequest(c, "invalid exam id")
		return
	}
	uid := c.Param("uid")
	report, err := h.repo.GetByExamAndUID(c.Request.Context(), examID, uid)
	if err != nil {
		h.logger.Error("fetch report failed", zap.Error(err))
		response.Internal(c, "failed to fetch report")
		return
	}
	if report == nil {
		response.NotFound(c, "report not found")
		return
	}
	response.OK(c, report)
}

// List handles GET /api/exams/:examId/reports.
func (h *Handler) List(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("examId"))
	if err != nil {
		response.BadRequest(c, "invalid exam id")
		return
	}
	list, err := h.repo.GetReports(c.Request.Context(), examID)
	if err != nil {
		h.logger.Error("list reports failed", zap.Error(err))
		response.Internal(c, "failed to list reports")
		return
	}
	if list == nil {
		list = []models.ExamReport{}
	}
	response.OK(c, list)
}

func parseFormTime(raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms)
		return &t, true
	}
	return nil, false
}
