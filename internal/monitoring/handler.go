package monitoring

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ueexam/backend/internal/realtime"
	"github.com/ueexam/backend/pkg/response"
)

// Handler serves the monitoring REST surface: the aggregated live snapshot,
// the single-chunk pull fallback and the stream diagnostics endpoint.
type Handler struct {
	aggregator *Aggregator
	registry   *realtime.Registry
	logger     *zap.Logger
}

// NewHandler creates a monitoring handler.
func NewHandler(aggregator *Aggregator, registry *realtime.Registry, logger *zap.Logger) *Handler {
	return &Handler{aggregator: aggregator, registry: registry, logger: logger}
}

// GetLiveMonitoring handles GET /api/exams/:examId/live-monitoring.
func (h *Handler) GetLiveMonitoring(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("examId"))
	if err != nil {
		response.BadRequest(c, "invalid exam id")
		return
	}
	view, err := h.aggregator.LiveStatus(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, ErrExamNotFound) {
			response.NotFound(c, "exam not found")
			return
		}
		h.logger.Error("live monitoring snapshot failed", zap.String("exam_id", examID.String()), zap.Error(err))
		response.Internal(c, "failed to fetch monitoring data")
		return
	}
	response.OK(c, view)
}

// GetVideoChunk handles GET /api/exams/:examId/video-chunk/:uid — the
// single-chunk pull fallback for monitors without a socket.
func (h *Handler) GetVideoChunk(c *gin.Context) {
	examID := c.Param("examId")
	uid := c.Param("uid")
	chunk, ok := h.registry.LastChunk(examID, uid)
	if !ok {
		response.NotFound(c, "no video stream available")
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "video/webm", chunk)
}

// streamDiagnostics is one exam row of the websocket status endpoint.
type streamDiagnostics struct {
	ExamID       string   `json:"examId"`
	StudentCount int      `json:"studentCount"`
	Students     []string `json:"students"`
}

// WebSocketStatus handles GET /api/websocket/status — an active-stream
// snapshot across all exams, read straight from the registry.
func (h *Handler) WebSocketStatus(c *gin.Context) {
	examIDs := h.registry.ActiveExamIDs()
	streams := make([]streamDiagnostics, 0, len(examIDs))
	total := 0
	for _, examID := range examIDs {
		sessions := h.registry.ListSessions(examID)
		uids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			uids = append(uids, s.UID)
		}
		streams = append(streams, streamDiagnostics{
			ExamID:       examID,
			StudentCount: len(uids),
			Students:     uids,
		})
		total += len(uids)
	}
	response.OK(c, gin.H{
		"status":        "active",
		"totalExams":    len(examIDs),
		"totalStudents": total,
		"streams":       streams,
	})
}
