package submissions

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ueexam/backend/internal/models"
	"github.com/ueexam/backend/pkg/response"
	"github.com/ueexam/backend/pkg/storage"
)

// Handler serves student answer file upload and retrieval.
type Handler struct {
	repo   *Repository
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates a submission handler.
func NewHandler(repo *Repository, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, s3: s3, logger: logger}
}

// Upload handles POST /api/exams/upload-file. Multipart form: file, examId, uid.
func (h *Handler) Upload(c *gin.Context) {
	examID, err := uuid.Parse(c.PostForm("examId"))
	if err != nil {
		response.BadRequest(c, "invalid exam id")
		return
	}
	uid := strings.TrimSpace(c.PostForm("uid"))
	if uid == "" {
		response.BadRequest(c, "uid is required")
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	defer file.Close()

	if header.Size > storage.MaxSubmissionSize {
		response.BadRequest(c, "file exceeds 10MB limit")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !storage.ValidateSubmissionFileType(contentType, header.Filename) {
		response.BadRequest(c, "file type not allowed (PDF, JPG, PNG, DOC, DOCX)")
		return
	}
	if h.s3 == nil {
		response.Internal(c, "object storage is not configured")
		return
	}

	key := storage.SubmissionKey(examID.String(), uid, header.Filename)
	url, err := h.s3.Upload(c.Request.Context(), h.s3.SubmissionsBucket(), key, contentType, file, header.Size)
	if err != nil {
		h.logger.Error("submission upload failed", zap.Error(err),
			zap.String("exam_id", examID.String()), zap.String("uid", uid))
		response.Internal(c, "failed to store file")
		return
	}

	saved, err := h.repo.Create(c.Request.Context(), &models.Submission{
		ExamID:      examID,
		UID:         uid,
		FileName:    header.Filename,
		ContentType: contentType,
		SizeBytes:   header.Size,
		FileURL:     url,
		S3Key:       key,
	})
	if err != nil {
		h.logger.Error("submission insert failed", zap.Error(err),
			zap.String("exam_id", examID.String()), zap.String("uid", uid))
		response.Internal(c, "failed to save submission")
		return
	}
	response.Created(c, saved)
}

// List handles GET /api/exams/:examId/submissions/:uid. Each entry carries a
// pre-signed download URL alongside the stored metadata.
func (h *Handler) List(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("examId"))
	if err != nil {
		response.BadRequest(c, "invalid exam id")
		return
	}
	uid := c.Param("uid")
	list, err := h.repo.ListByExamAndUID(c.Request.Context(), examID, uid)
	if err != nil {
		h.logger.Error("list submissions failed", zap.Error(err))
		response.Internal(c, "failed to list submissions")
		return
	}

	type entry struct {
		models.Submission
		DownloadURL string `json:"download_url,omitempty"`
	}
	out := make([]entry, 0, len(list))
	for _, sub := range list {
		e := entry{Submission: sub}
		if h.s3 != nil {
			url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(),
				h.s3.SubmissionsBucket(), sub.S3Key, h.s3.PresignExpire())
			if err != nil {
				h.logger.Warn("presign failed", zap.Error(err), zap.String("key", sub.S3Key))
			} else {
				e.DownloadURL = url
			}
		}
		out = append(out, e)
	}
	response.OK(c, out)
}
