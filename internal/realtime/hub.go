package realtime

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub maintains examID -> set of monitor subscriptions and fans chunks out
// to them. Delivery is best-effort: a monitor that cannot keep up misses
// intermediate chunks, and a monitor whose socket write fails is evicted
// without affecting the others.
type Hub struct {
	registry *Registry
	logger   *zap.Logger

	mu       sync.RWMutex
	monitors map[string]map[string]*MonitorClient
}

// NewHub creates a hub bound to the stream registry.
func NewHub(registry *Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		registry: registry,
		logger:   logger,
		monitors: make(map[string]map[string]*MonitorClient),
	}
}

// Subscribe adds a monitor connection to its exam's subscription set.
func (h *Hub) Subscribe(c *MonitorClient) {
	h.mu.Lock()
	if h.monitors[c.examID] == nil {
		h.monitors[c.examID] = make(map[string]*MonitorClient)
	}
	h.monitors[c.examID][c.id] = c
	h.mu.Unlock()
	h.logger.Debug("monitor subscribed",
		zap.String("exam_id", c.examID), zap.String("subscription_id", c.id))
}

// Unsubscribe removes a monitor connection. Safe to call twice.
func (h *Hub) Unsubscribe(c *MonitorClient) {
	h.mu.Lock()
	if m, ok := h.monitors[c.examID]; ok {
		delete(m, c.id)
		if len(m) == 0 {
			delete(h.monitors, c.examID)
		}
	}
	h.mu.Unlock()
	h.logger.Debug("monitor unsubscribed",
		zap.String("exam_id", c.examID), zap.String("subscription_id", c.id))
}

// MonitorCount returns the number of monitors subscribed to an exam.
func (h *Hub) MonitorCount(examID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.monitors[examID])
}

// BroadcastChunk delivers a chunk to every monitor currently scoped to the
// exam as a metadata message followed by the raw bytes. Returns the number
// of monitors the chunk was handed to. Called from the ingest read loop, so
// chunks of one participant reach each monitor in arrival order.
func (h *Hub) BroadcastChunk(examID, uid string, chunk []byte) int {
	h.mu.RLock()
	targets := make([]*MonitorClient, 0, len(h.monitors[examID]))
	for _, c := range h.monitors[examID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}
	meta := ChunkMetadata{
		Type:      TypeImageChunk,
		ExamID:    examID,
		UID:       uid,
		Timestamp: time.Now().UnixMilli(),
		ChunkSize: len(chunk),
	}
	delivered := 0
	for _, c := range targets {
		if c.trySend(outbound{control: meta, chunk: chunk}) {
			delivered++
		}
	}
	return delivered
}

// ForwardCommand routes an admin command to the first live ingest connection
// of the target participant. Reports false when the participant has no open
// connection or its send buffer is full; commands are never queued.
func (h *Hub) ForwardCommand(examID, targetUID, command string) bool {
	sender, ok := h.registry.FirstSender(examID, targetUID)
	if !ok {
		h.logger.Debug("command target has no connection",
			zap.String("exam_id", examID), zap.String("target_uid", targetUID), zap.String("command", command))
		return false
	}
	return sender.TrySend(AdminCommandMessage{
		Type:      TypeAdminCommand,
		Command:   command,
		Timestamp: time.Now().UnixMilli(),
		FromAdmin: true,
	})
}
