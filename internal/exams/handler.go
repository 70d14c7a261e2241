package exams

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ueexam/backend/internal/models"
	"github.com/ueexam/backend/pkg/response"
)

// Handler serves exam CRUD.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an exam handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

type examRequest struct {
	ClassID   uuid.UUID `json:"class_id" binding:"required"`
	Title     string    `json:"title" binding:"required"`
	Duration  int       `json:"duration"`
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
}

// List handles GET /api/exams.
func (h *Handler) List(c *gin.Context) {
	exams, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list exams", zap.Error(err))
		response.Internal(c, "failed to list exams")
		return
	}
	response.OK(c, exams)
}

// GetByID handles GET /api/exams/:examId.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("examId"))
	if err != nil {
		response.BadRequest(c, "invalid exam id")
		return
	}
	exam, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get exam", zap.Error(err))
		response.Internal(c, "failed to fetch exam")
		return
	}
	if exam == nil {
		response.NotFound(c, "exam not found")
		return
	}
	response.OK(c, exam)
}

// Create handles POST /api/exams.
func (h *Handler) Create(c *gin.Context) {
	var req examRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	exam, err := h.repo.Create(c.Request.Context(), &models.Exam{
		ClassID:   req.ClassID,
		Title:     req.Title,
		Duration:  req.Duration,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		h.logger.Error("create exam", zap.Error(err))
		response.Internal(c, "failed to create exam")
		return
	}
	response.Created(c, exam)
}

// Update handles PUT /api/exams/:examId.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("examId"))
	if err != nil {
		response.BadRequest(c, "invalid exam id")
		return
	}
	var req examRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	exam, err := h.repo.Update(c.Request.Context(), &models.Exam{
		ID:        id,
		Title:     req.Title,
		Duration:  req.Duration,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		h.logger.Error("update exam", zap.Error(err))
		response.Internal(c, "failed to update exam")
		return
	}
	if exam == nil {
		response.NotFound(c, "exam not found")
		return
	}
	response.OK(c, exam)
}

// Delete handles DELETE /api/exams/:examId.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("examId"))
	if err != nil {
		response.BadRequest(c, "invalid exam id")
		return
	}
	deleted, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("delete exam", zap.Error(err))
		response.Internal(c, "failed to delete exam")
		return
	}
	if !deleted {
		response.NotFound(c, "exam not found")
		return
	}
	response.NoContent(c)
}
