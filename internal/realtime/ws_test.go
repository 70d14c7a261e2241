package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*httptest.Server, *Registry, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := NewRegistry(nil)
	hub := NewHub(registry, nil)
	opts := MonitorOptions{
		StatusInterval:  time.Hour, // periodic refresh is out of scope here
		AttendingWindow: 30 * time.Second,
		SendDepth:       64,
	}
	router := gin.New()
	router.GET("/video-stream/*stream", ServeIngest(registry, hub, 1<<20, nil))
	router.GET("/admin-stream/*stream", ServeMonitor(registry, hub, nil, opts, nil))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, registry, hub
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readText reads frames until the next text frame and decodes it.
func readText(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		return msg
	}
}

// readUntil reads text frames until one carries the wanted type.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg := readText(t, conn)
		if msg["type"] == msgType {
			return msg
		}
	}
	t.Fatalf("no %q message before deadline", msgType)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestIngestConnectAndHeartbeat(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	conn := dial(t, srv, "/video-stream/examA/student1")

	hello := readText(t, conn)
	if hello["type"] != TypeConnected || hello["uid"] != "student1" || hello["examId"] != "examA" {
		t.Fatalf("connected message = %v", hello)
	}
	waitFor(t, func() bool { return registry.SessionCount("examA") == 1 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat","chunkCount":7}`)); err != nil {
		t.Fatal(err)
	}
	pong := readUntil(t, conn, TypePong)
	if pong["uid"] != "student1" || pong["chunkCount"] != float64(7) {
		t.Fatalf("pong = %v", pong)
	}
	waitFor(t, func() bool {
		s := registry.ListSessions("examA")
		return len(s) == 1 && s[0].HeartbeatCount == 1
	})

	// Bare ping gets a pong without chunkCount; garbage is tolerated.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	pong = readUntil(t, conn, TypePong)
	if _, ok := pong["chunkCount"]; ok {
		t.Fatalf("plain ping pong should omit chunkCount: %v", pong)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}

	conn.Close()
	waitFor(t, func() bool { return registry.SessionCount("examA") == 0 })
}

func TestInvalidStreamPathsClosedWithPolicyViolation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{
		"/video-stream/onlyexam",
		"/video-stream/examA/student1/extra",
		"/admin-stream/examA/extra",
	} {
		conn := dial(t, srv, path)
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, _, err := conn.ReadMessage()
		closeErr, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("%s: err = %v, want close error", path, err)
		}
		if closeErr.Code != websocket.ClosePolicyViolation {
			t.Fatalf("%s: close code = %d, want 1008", path, closeErr.Code)
		}
	}
}

func TestChunkRelayToMonitors(t *testing.T) {
	srv, registry, hub := newTestServer(t)

	monitor := dial(t, srv, "/admin-stream/examA")
	readUntil(t, monitor, TypeConnected)
	readUntil(t, monitor, TypeInitialStatus)
	waitFor(t, func() bool { return hub.MonitorCount("examA") == 1 })

	otherExam := dial(t, srv, "/admin-stream/examB")
	readUntil(t, otherExam, TypeConnected)
	waitFor(t, func() bool { return hub.MonitorCount("examB") == 1 })

	student := dial(t, srv, "/video-stream/examA/student1")
	readUntil(t, student, TypeConnected)

	chunks := [][]byte{{1, 1}, {2, 2, 2}, {3}}
	for _, chunk := range chunks {
		if err := student.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			t.Fatal(err)
		}
	}

	// Each chunk arrives as metadata followed by the raw bytes, in order.
	for _, want := range chunks {
		meta := readUntil(t, monitor, TypeImageChunk)
		if meta["uid"] != "student1" || meta["chunkSize"] != float64(len(want)) {
			t.Fatalf("metadata = %v, want size %d", meta, len(want))
		}
		_ = monitor.SetReadDeadline(time.Now().Add(3 * time.Second))
		mt, data, err := monitor.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if mt != websocket.BinaryMessage || len(data) != len(want) {
			t.Fatalf("binary frame = type %d len %d, want len %d", mt, len(data), len(want))
		}
	}

	waitFor(t, func() bool {
		chunk, ok := registry.LastChunk("examA", "student1")
		return ok && len(chunk) == 1 && chunk[0] == 3
	})

	// The monitor on another exam saw none of it.
	_ = otherExam.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		mt, data, err := otherExam.ReadMessage()
		if err != nil {
			break // timeout: nothing leaked
		}
		if mt == websocket.BinaryMessage {
			t.Fatal("binary chunk leaked to a monitor on another exam")
		}
		var msg map[string]interface{}
		if json.Unmarshal(data, &msg) == nil && msg["type"] == TypeImageChunk {
			t.Fatal("chunk metadata leaked to a monitor on another exam")
		}
	}
}

func TestAdminCommandRouting(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	monitor := dial(t, srv, "/admin-stream/examA")
	readUntil(t, monitor, TypeConnected)

	// Target not connected: the response reports failure.
	if err := monitor.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"admin_command","command":"terminate_exam","targetUid":"ghost"}`)); err != nil {
		t.Fatal(err)
	}
	resp := readUntil(t, monitor, TypeCommandResponse)
	if resp["success"] != false || resp["targetUid"] != "ghost" {
		t.Fatalf("response for absent target = %v", resp)
	}

	student := dial(t, srv, "/video-stream/examA/student1")
	readUntil(t, student, TypeConnected)
	waitFor(t, func() bool { return registry.SessionCount("examA") == 1 })

	if err := monitor.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"admin_command","command":"terminate_exam","targetUid":"student1"}`)); err != nil {
		t.Fatal(err)
	}
	resp = readUntil(t, monitor, TypeCommandResponse)
	if resp["success"] != true || resp["command"] != "terminate_exam" {
		t.Fatalf("response for live target = %v", resp)
	}

	cmd := readUntil(t, student, TypeAdminCommand)
	if cmd["command"] != "terminate_exam" || cmd["fromAdmin"] != true {
		t.Fatalf("forwarded command = %v", cmd)
	}
}

func TestMonitorPeriodicStatusAndTeardown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := NewRegistry(nil)
	hub := NewHub(registry, nil)
	registry.OpenIngest("examA", "student1", &fakeSender{})

	opts := MonitorOptions{
		StatusInterval:  50 * time.Millisecond,
		AttendingWindow: 30 * time.Second,
		SendDepth:       64,
	}
	router := gin.New()
	router.GET("/admin-stream/*stream", ServeMonitor(registry, hub, nil, opts, nil))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	monitor := dial(t, srv, "/admin-stream/examA")
	readUntil(t, monitor, TypeConnected)

	// One push on accept, then the ticker keeps refreshing.
	first := readUntil(t, monitor, TypeInitialStatus)
	second := readUntil(t, monitor, TypeInitialStatus)
	third := readUntil(t, monitor, TypeInitialStatus)
	for _, status := range []map[string]interface{}{first, second, third} {
		if status["totalStudents"] != float64(1) {
			t.Fatalf("status = %v", status)
		}
	}
	if second["timestamp"] == first["timestamp"] && third["timestamp"] == first["timestamp"] {
		t.Fatal("periodic pushes should carry fresh timestamps")
	}

	waitFor(t, func() bool { return hub.MonitorCount("examA") == 1 })
	monitor.Close()

	// The socket close tears down the subscription and the status ticker.
	waitFor(t, func() bool { return hub.MonitorCount("examA") == 0 })
	if got := hub.BroadcastChunk("examA", "student1", []byte{1}); got != 0 {
		t.Fatalf("chunk delivered to %d monitors after close", got)
	}
}

// statusProbe is a StatusSource stub returning a fixed payload.
type statusProbe struct{ payload interface{} }

func (s statusProbe) ExamStatus(_ context.Context, _ string) (interface{}, error) {
	return s.payload, nil
}

func TestInitialStatusCarriesAggregatedView(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := NewRegistry(nil)
	hub := NewHub(registry, nil)
	registry.OpenIngest("examA", "student1", &fakeSender{})
	registry.RecordChunk("examA", "student1", []byte{1})

	opts := MonitorOptions{StatusInterval: time.Hour, AttendingWindow: 30 * time.Second, SendDepth: 64}
	router := gin.New()
	router.GET("/admin-stream/*stream",
		ServeMonitor(registry, hub, statusProbe{payload: map[string]string{"marker": "aggregated"}}, opts, nil))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	monitor := dial(t, srv, "/admin-stream/examA")
	readUntil(t, monitor, TypeConnected)
	status := readUntil(t, monitor, TypeInitialStatus)

	if status["totalStudents"] != float64(1) || status["activeStudents"] != float64(1) {
		t.Fatalf("status counters = %v", status)
	}
	streams, ok := status["streams"].([]interface{})
	if !ok || len(streams) != 1 {
		t.Fatalf("streams = %v", status["streams"])
	}
	entry := streams[0].(map[string]interface{})
	if entry["uid"] != "student1" || entry["hasVideo"] != true {
		t.Fatalf("stream entry = %v", entry)
	}
	agg, ok := status["status"].(map[string]interface{})
	if !ok || agg["marker"] != "aggregated" {
		t.Fatalf("aggregated view = %v", status["status"])
	}
}
