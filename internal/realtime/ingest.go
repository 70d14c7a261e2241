package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for socket-level heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// IngestClient is one participant connection on the video ingest endpoint.
type IngestClient struct {
	examID   string
	uid      string
	registry *Registry
	hub      *Hub
	conn     *websocket.Conn
	send     chan interface{}
	maxChunk int64
	logger   *zap.Logger
}

// TrySend enqueues a control message without blocking. Returns false when
// the outbound buffer is full or closed for writing.
func (c *IngestClient) TrySend(msg interface{}) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ServeIngest handles `/video-stream/{examId}/{uid}`. The path remainder is
// passed in via a gin wildcard; a path that does not split into exactly two
// non-empty components gets a policy-violation close after the upgrade so
// the client sees a protocol-level rejection rather than a plain HTTP error.
func ServeIngest(registry *Registry, hub *Hub, maxChunkBytes int, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(g *gin.Context) {
		conn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
		if err != nil {
			logger.Warn("ingest upgrade failed", zap.Error(err))
			return
		}

		examID, uid, ok := splitStreamPath(g.Param("stream"), 2)
		if !ok {
			logger.Warn("invalid video stream path", zap.String("path", g.Request.URL.Path))
			closeWithPolicyViolation(conn, "Invalid video stream URL")
			return
		}

		client := &IngestClient{
			examID:   examID,
			uid:      uid,
			registry: registry,
			hub:      hub,
			conn:     conn,
			send:     make(chan interface{}, 64),
			maxChunk: int64(maxChunkBytes),
			logger:   logger,
		}
		registry.OpenIngest(examID, uid, client)
		client.TrySend(ConnectedMessage{
			Type:      TypeConnected,
			UID:       uid,
			ExamID:    examID,
			Timestamp: time.Now().UnixMilli(),
			Message:   "Video stream connected successfully",
		})
		go client.writePump()
		client.readPump()
	}
}

func (c *IngestClient) readPump() {
	defer func() {
		c.registry.CloseIngest(c.examID, c.uid, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxChunk)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))

		if messageType == websocket.BinaryMessage {
			c.registry.RecordChunk(c.examID, c.uid, data)
			c.hub.BroadcastChunk(c.examID, c.uid, data)
			continue
		}
		c.handleControl(data)
	}
}

// handleControl classifies a text frame from the participant. Unparsable
// frames are logged and ignored; the connection stays open.
func (c *IngestClient) handleControl(data []byte) {
	var msg inboundControl
	if err := json.Unmarshal(data, &msg); err != nil {
		c.registry.Touch(c.examID, c.uid)
		c.logger.Debug("unparsable control frame from participant",
			zap.String("exam_id", c.examID), zap.String("uid", c.uid), zap.Error(err))
		return
	}

	now := time.Now().UnixMilli()
	switch msg.Type {
	case TypeHeartbeat:
		c.registry.RecordHeartbeat(c.examID, c.uid)
		c.TrySend(PongMessage{
			Type:       TypePong,
			Timestamp:  now,
			UID:        c.uid,
			Message:    "Heartbeat acknowledged",
			ChunkCount: msg.ChunkCount,
		})
	case TypePing:
		c.registry.Touch(c.examID, c.uid)
		c.TrySend(PongMessage{
			Type:      TypePong,
			Timestamp: now,
			UID:       c.uid,
			Message:   "Client heartbeat response",
		})
	case TypeAdminCommand:
		// Only actionable when it arrives through a monitor connection;
		// here it is acknowledged without effect.
		c.registry.Touch(c.examID, c.uid)
		c.TrySend(AdminCommandMessage{
			Type:      TypeAdminCommand,
			Command:   msg.Command,
			Timestamp: now,
			FromAdmin: true,
		})
	default:
		c.registry.Touch(c.examID, c.uid)
		c.logger.Debug("unknown control type from participant",
			zap.String("exam_id", c.examID), zap.String("uid", c.uid), zap.String("type", msg.Type))
	}
}

func (c *IngestClient) writePump() {
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
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// splitStreamPath splits a wildcard path remainder like "/examA/student1"
// into exactly want non-empty segments.
func splitStreamPath(remainder string, want int) (string, string, bool) {
	parts := strings.Split(strings.Trim(remainder, "/"), "/")
	if len(parts) != want {
		return "", "", false
	}
	for _, p := range parts {
		if p == "" {
			return "", "", false
		}
	}
	if want == 1 {
		return parts[0], "", true
	}
	return parts[0], parts[1], true
}

// closeWithPolicyViolation sends a 1008 close frame with a reason, then
// drops the connection.
func closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}
