package realtime

import (
	"testing"
)

func newTestMonitor(examID, id string, depth int) *MonitorClient {
	return &MonitorClient{
		id:     id,
		examID: examID,
		send:   make(chan outbound, depth),
		done:   make(chan struct{}),
	}
}

func drain(c *MonitorClient) []outbound {
	var out []outbound
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHubBroadcastScopedToExam(t *testing.T) {
	r := NewRegistry(nil)
	h := NewHub(r, nil)

	m1 := newTestMonitor("exam-1", "m1", 8)
	m2 := newTestMonitor("exam-1", "m2", 8)
	other := newTestMonitor("exam-2", "m3", 8)
	h.Subscribe(m1)
	h.Subscribe(m2)
	h.Subscribe(other)

	if got := h.BroadcastChunk("exam-1", "stu-1", []byte{1, 2}); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}

	for _, m := range []*MonitorClient{m1, m2} {
		msgs := drain(m)
		if len(msgs) != 1 {
			t.Fatalf("%s received %d messages, want 1", m.id, len(msgs))
		}
		meta, ok := msgs[0].control.(ChunkMetadata)
		if !ok {
			t.Fatalf("%s control = %T, want ChunkMetadata", m.id, msgs[0].control)
		}
		if meta.Type != TypeImageChunk || meta.ExamID != "exam-1" || meta.UID != "stu-1" || meta.ChunkSize != 2 {
			t.Errorf("%s metadata = %+v", m.id, meta)
		}
		if len(msgs[0].chunk) != 2 {
			t.Errorf("%s chunk len = %d, want 2", m.id, len(msgs[0].chunk))
		}
	}
	if msgs := drain(other); len(msgs) != 0 {
		t.Fatalf("monitor on another exam received %d messages, want 0", len(msgs))
	}
}

func TestHubBroadcastDropsWhenMonitorBufferFull(t *testing.T) {
	r := NewRegistry(nil)
	h := NewHub(r, nil)

	slow := newTestMonitor("exam-1", "slow", 1)
	h.Subscribe(slow)

	if got := h.BroadcastChunk("exam-1", "stu-1", []byte{1}); got != 1 {
		t.Fatalf("first chunk delivered = %d, want 1", got)
	}
	// Buffer is full now; the next chunk is dropped for this monitor only.
	if got := h.BroadcastChunk("exam-1", "stu-1", []byte{2}); got != 0 {
		t.Fatalf("second chunk delivered = %d, want 0", got)
	}

	msgs := drain(slow)
	if len(msgs) != 1 || msgs[0].chunk[0] != 1 {
		t.Fatalf("slow monitor msgs = %+v, want only the first chunk", msgs)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry(nil)
	h := NewHub(r, nil)

	m := newTestMonitor("exam-1", "m1", 8)
	h.Subscribe(m)
	if got := h.MonitorCount("exam-1"); got != 1 {
		t.Fatalf("MonitorCount = %d, want 1", got)
	}
	h.Unsubscribe(m)
	h.Unsubscribe(m) // idempotent
	if got := h.MonitorCount("exam-1"); got != 0 {
		t.Fatalf("MonitorCount after unsubscribe = %d, want 0", got)
	}
	if got := h.BroadcastChunk("exam-1", "stu-1", []byte{1}); got != 0 {
		t.Fatalf("delivered after unsubscribe = %d, want 0", got)
	}
}

func TestHubForwardCommand(t *testing.T) {
	r := NewRegistry(nil)
	h := NewHub(r, nil)

	if h.ForwardCommand("exam-1", "stu-1", "terminate_exam") {
		t.Fatal("command to absent participant should fail")
	}

	first := &fakeSender{}
	second := &fakeSender{}
	r.OpenIngest("exam-1", "stu-1", first)
	r.OpenIngest("exam-1", "stu-1", second)

	if !h.ForwardCommand("exam-1", "stu-1", "terminate_exam") {
		t.Fatal("command to live participant should succeed")
	}
	msgs := first.received()
	if len(msgs) != 1 {
		t.Fatalf("first connection received %d messages, want 1", len(msgs))
	}
	cmd, ok := msgs[0].(AdminCommandMessage)
	if !ok || cmd.Command != "terminate_exam" || !cmd.FromAdmin {
		t.Fatalf("forwarded command = %+v", msgs[0])
	}
	if len(second.received()) != 0 {
		t.Error("command must go to the first connection only")
	}

	// A full send buffer on the target reports failure, never queues.
	full := &fakeSender{full: true}
	r.OpenIngest("exam-1", "stu-2", full)
	if h.ForwardCommand("exam-1", "stu-2", "warn") {
		t.Fatal("command into a full buffer should fail")
	}
}
