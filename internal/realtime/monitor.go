package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatusSource builds the aggregated participant view embedded in
// initial_status pushes. Implementations may read external stores; a failure
// degrades the push to a registry-only summary instead of failing it.
type StatusSource interface {
	ExamStatus(ctx context.Context, examID string) (interface{}, error)
}

// MonitorOptions tunes monitor connections.
type MonitorOptions struct {
	StatusInterval  time.Duration // period of the full-refresh status push
	AttendingWindow time.Duration // recency window for the isActive flag
	SendDepth       int           // outbound buffer size in messages
}

func (o MonitorOptions) withDefaults() MonitorOptions {
	if o.StatusInterval <= 0 {
		o.StatusInterval = 10 * time.Second
	}
	if o.AttendingWindow <= 0 {
		o.AttendingWindow = 30 * time.Second
	}
	if o.SendDepth <= 0 {
		o.SendDepth = 256
	}
	return o
}

// outbound is one queued monitor write: a control message, optionally
// followed by a raw binary frame (chunk delivery is a two-part message).
type outbound struct {
	control interface{}
	chunk   []byte
}

// MonitorClient is one admin viewer connection scoped to a single exam.
type MonitorClient struct {
	id       string
	examID   string
	registry *Registry
	hub      *Hub
	status   StatusSource
	opts     MonitorOptions
	conn     *websocket.Conn
	send     chan outbound
	done     chan struct{}
	logger   *zap.Logger
}

// ServeMonitor handles `/admin-stream/{examId}`. Invalid paths get a 1008
// close after the upgrade, mirroring the ingest endpoint.
func ServeMonitor(registry *Registry, hub *Hub, status StatusSource, opts MonitorOptions, logger *zap.Logger) gin.HandlerFunc {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(g *gin.Context) {
		conn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
		if err != nil {
			logger.Warn("monitor upgrade failed", zap.Error(err))
			return
		}

		examID, _, ok := splitStreamPath(g.Param("stream"), 1)
		if !ok {
			logger.Warn("invalid admin stream path", zap.String("path", g.Request.URL.Path))
			closeWithPolicyViolation(conn, "Invalid admin stream URL")
			return
		}

		client := &MonitorClient{
			id:       uuid.New().String(),
			examID:   examID,
			registry: registry,
			hub:      hub,
			status:   status,
			opts:     opts,
			conn:     conn,
			send:     make(chan outbound, opts.SendDepth),
			done:     make(chan struct{}),
			logger:   logger,
		}
		hub.Subscribe(client)
		client.trySend(outbound{control: ConnectedMessage{
			Type:      TypeConnected,
			ExamID:    examID,
			Timestamp: time.Now().UnixMilli(),
			Message:   "Admin monitoring connected",
		}})
		client.pushStatus()
		go client.writePump()
		go client.statusLoop()
		client.readPump()
	}
}

// trySend enqueues one write without blocking. A full buffer means this
// monitor is not keeping up; the message is dropped rather than buffered
// without bound.
func (c *MonitorClient) trySend(msg outbound) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *MonitorClient) readPump() {
	defer func() {
		c.hub.Unsubscribe(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))

		var msg inboundControl
		if err := json.Unmarshal(data, &msg); err != nil {
			// Non-JSON inbound from a monitor is treated as a heartbeat
			// equivalent and ignored.
			continue
		}
		if msg.Type != TypeAdminCommand {
			continue
		}
		ok := c.hub.ForwardCommand(c.examID, msg.TargetUID, msg.Command)
		c.trySend(outbound{control: CommandResponseMessage{
			Type:      TypeCommandResponse,
			TargetUID: msg.TargetUID,
			Command:   msg.Command,
			Success:   ok,
			Timestamp: time.Now().UnixMilli(),
		}})
	}
}

// statusLoop re-sends the full status snapshot on a fixed interval until the
// connection goes away. One timer per subscription keeps teardown local to
// this connection.
func (c *MonitorClient) statusLoop() {
	ticker := time.NewTicker(c.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.pushStatus()
		}
	}
}

// pushStatus builds and enqueues an initial_status message. The registry
// summary is always present; the aggregated view is attached when the status
// source answers in time.
func (c *MonitorClient) pushStatus() {
	snapshots := c.registry.ListSessions(c.examID)
	now := time.Now()
	streams := make([]StreamStatus, 0, len(snapshots))
	active := 0
	for _, s := range snapshots {
		isActive := s.IsStreaming && now.Sub(s.LastUpdate) < c.opts.AttendingWindow
		if isActive {
			active++
		}
		streams = append(streams, StreamStatus{
			UID:        s.UID,
			IsActive:   isActive,
			LastUpdate: s.LastUpdate.UnixMilli(),
			ChunkCount: s.HeartbeatCount,
			HasVideo:   s.HasChunk,
		})
	}
	msg := InitialStatusMessage{
		Type:           TypeInitialStatus,
		ExamID:         c.examID,
		Timestamp:      now.UnixMilli(),
		ActiveStudents: active,
		TotalStudents:  len(streams),
		Streams:        streams,
	}
	if c.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		view, err := c.status.ExamStatus(ctx, c.examID)
		cancel()
		if err != nil {
			c.logger.Debug("status source unavailable, sending registry summary only",
				zap.String("exam_id", c.examID), zap.Error(err))
		} else {
			msg.Status = view
		}
	}
	c.trySend(outbound{control: msg})
}

func (c *MonitorClient) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg.control); err != nil {
				return
			}
			if msg.chunk != nil {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.BinaryMessage, msg.chunk); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
