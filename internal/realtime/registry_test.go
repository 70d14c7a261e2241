package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []interface{}
	full bool
}

func (f *fakeSender) TrySend(msg interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.msgs = append(f.msgs, msg)
	return true
}

func (f *fakeSender) received() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]interface{}, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func TestRegistryOpenCloseLifecycle(t *testing.T) {
	r := NewRegistry(nil)
	conn := &fakeSender{}

	snap := r.OpenIngest("exam-1", "stu-1", conn)
	if snap.ConnectionCount != 1 {
		t.Fatalf("ConnectionCount = %d, want 1", snap.ConnectionCount)
	}
	if snap.IsStreaming {
		t.Error("new session should not be streaming before any chunk")
	}
	if got := r.SessionCount("exam-1"); got != 1 {
		t.Fatalf("SessionCount = %d, want 1", got)
	}

	r.CloseIngest("exam-1", "stu-1", conn)
	if got := r.SessionCount("exam-1"); got != 0 {
		t.Fatalf("SessionCount after close = %d, want 0", got)
	}
	if ids := r.ActiveExamIDs(); len(ids) != 0 {
		t.Fatalf("ActiveExamIDs after close = %v, want empty", ids)
	}
}

func TestRegistrySessionSurvivesWhileOneConnRemains(t *testing.T) {
	r := NewRegistry(nil)
	a, b := &fakeSender{}, &fakeSender{}

	r.OpenIngest("exam-1", "stu-1", a)
	snap := r.OpenIngest("exam-1", "stu-1", b)
	if snap.ConnectionCount != 2 {
		t.Fatalf("ConnectionCount = %d, want 2", snap.ConnectionCount)
	}

	r.CloseIngest("exam-1", "stu-1", a)
	if got := r.SessionCount("exam-1"); got != 1 {
		t.Fatalf("session should survive while one connection remains, SessionCount = %d", got)
	}
	if _, ok := r.FirstSender("exam-1", "stu-1"); !ok {
		t.Error("FirstSender should still find the remaining connection")
	}

	r.CloseIngest("exam-1", "stu-1", b)
	if _, ok := r.FirstSender("exam-1", "stu-1"); ok {
		t.Error("FirstSender should fail after last connection closed")
	}
}

func TestRegistryRecordChunk(t *testing.T) {
	r := NewRegistry(nil)
	conn := &fakeSender{}
	r.OpenIngest("exam-1", "stu-1", conn)

	if _, ok := r.LastChunk("exam-1", "stu-1"); ok {
		t.Error("LastChunk should be absent before any chunk")
	}

	if !r.RecordChunk("exam-1", "stu-1", []byte{1, 2, 3}) {
		t.Fatal("RecordChunk on live session should succeed")
	}
	chunk, ok := r.LastChunk("exam-1", "stu-1")
	if !ok || len(chunk) != 3 {
		t.Fatalf("LastChunk = %v, %v; want 3 bytes", chunk, ok)
	}

	sessions := r.ListSessions("exam-1")
	if len(sessions) != 1 || !sessions[0].IsStreaming || !sessions[0].HasChunk {
		t.Fatalf("session after chunk = %+v, want streaming with chunk", sessions)
	}

	// A newer chunk replaces the old one.
	r.RecordChunk("exam-1", "stu-1", []byte{9})
	chunk, _ = r.LastChunk("exam-1", "stu-1")
	if len(chunk) != 1 || chunk[0] != 9 {
		t.Fatalf("LastChunk = %v, want [9]", chunk)
	}
}

func TestRegistryDropsTrafficForClosedSession(t *testing.T) {
	r := NewRegistry(nil)
	conn := &fakeSender{}
	r.OpenIngest("exam-1", "stu-1", conn)
	r.CloseIngest("exam-1", "stu-1", conn)

	if r.RecordChunk("exam-1", "stu-1", []byte{1}) {
		t.Error("RecordChunk after teardown should report a drop")
	}
	if r.RecordHeartbeat("exam-1", "stu-1") {
		t.Error("RecordHeartbeat after teardown should report a drop")
	}
	if r.RecordChunk("exam-x", "stu-1", []byte{1}) {
		t.Error("RecordChunk for unknown exam should report a drop")
	}
	// Touch must be a silent no-op.
	r.Touch("exam-1", "stu-1")
}

func TestRegistryHeartbeatCount(t *testing.T) {
	r := NewRegistry(nil)
	conn := &fakeSender{}
	r.OpenIngest("exam-1", "stu-1", conn)

	for i := 0; i < 5; i++ {
		if !r.RecordHeartbeat("exam-1", "stu-1") {
			t.Fatalf("heartbeat %d rejected", i)
		}
	}
	sessions := r.ListSessions("exam-1")
	if sessions[0].HeartbeatCount != 5 {
		t.Fatalf("HeartbeatCount = %d, want 5", sessions[0].HeartbeatCount)
	}
	if sessions[0].IsStreaming {
		t.Error("heartbeats alone must not mark the session streaming")
	}
}

func TestRegistryListSessionsSortedAndIsolatedPerExam(t *testing.T) {
	r := NewRegistry(nil)
	for _, uid := range []string{"c", "a", "b"} {
		r.OpenIngest("exam-1", uid, &fakeSender{})
	}
	r.OpenIngest("exam-2", "z", &fakeSender{})

	sessions := r.ListSessions("exam-1")
	if len(sessions) != 3 {
		t.Fatalf("len = %d, want 3", len(sessions))
	}
	for i, want := range []string{"a", "b", "c"} {
		if sessions[i].UID != want {
			t.Fatalf("sessions[%d].UID = %q, want %q", i, sessions[i].UID, want)
		}
	}
	if got := r.SessionCount("exam-2"); got != 1 {
		t.Fatalf("exam-2 SessionCount = %d, want 1", got)
	}
	ids := r.ActiveExamIDs()
	if len(ids) != 2 || ids[0] != "exam-1" || ids[1] != "exam-2" {
		t.Fatalf("ActiveExamIDs = %v", ids)
	}
}

func TestRegistryRetiredTableIsNotRevived(t *testing.T) {
	r := NewRegistry(nil)
	c1 := &fakeSender{}
	r.OpenIngest("exam-1", "stu-1", c1)

	// Resolve the table the way a concurrent opener would, before the last
	// session goes away.
	r.mu.RLock()
	table := r.exams["exam-1"]
	r.mu.RUnlock()

	r.CloseIngest("exam-1", "stu-1", c1)

	table.mu.Lock()
	dead := table.dead
	table.mu.Unlock()
	if !dead {
		t.Fatal("table removed from the exam map must be marked dead")
	}

	// An open racing the close must land in a table the registry knows
	// about, so the new session is visible to every read path.
	c2 := &fakeSender{}
	r.OpenIngest("exam-1", "stu-2", c2)
	if _, ok := r.FirstSender("exam-1", "stu-2"); !ok {
		t.Fatal("session opened after table retirement is invisible to FirstSender")
	}
	if !r.RecordChunk("exam-1", "stu-2", []byte{1}) {
		t.Fatal("chunk for freshly opened session dropped")
	}
	if got := r.SessionCount("exam-1"); got != 1 {
		t.Fatalf("SessionCount = %d, want 1", got)
	}

	// The stale pointer must stay empty.
	table.mu.Lock()
	leaked := len(table.sessions)
	table.mu.Unlock()
	if leaked != 0 {
		t.Fatalf("retired table holds %d sessions", leaked)
	}
}

func TestRegistryOpenRacingLastClose(t *testing.T) {
	r := NewRegistry(nil)
	const rounds = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			c := &fakeSender{}
			r.OpenIngest("exam-1", "churn", c)
			r.CloseIngest("exam-1", "churn", c)
		}
	}()

	for i := 0; i < rounds; i++ {
		c := &fakeSender{}
		r.OpenIngest("exam-1", "stable", c)
		if _, ok := r.FirstSender("exam-1", "stable"); !ok {
			t.Fatalf("round %d: open session invisible while its connection is live", i)
		}
		if !r.RecordHeartbeat("exam-1", "stable") {
			t.Fatalf("round %d: heartbeat for open session dropped", i)
		}
		r.CloseIngest("exam-1", "stable", c)
	}
	wg.Wait()

	if got := r.SessionCount("exam-1"); got != 0 {
		t.Fatalf("SessionCount after churn = %d, want 0", got)
	}
	if ids := r.ActiveExamIDs(); len(ids) != 0 {
		t.Fatalf("ActiveExamIDs after churn = %v, want empty", ids)
	}
}

func TestRegistryConcurrentTraffic(t *testing.T) {
	r := NewRegistry(nil)
	const students = 8
	const chunks = 50

	var wg sync.WaitGroup
	for i := 0; i < students; i++ {
		uid := fmt.Sprintf("stu-%d", i)
		conn := &fakeSender{}
		r.OpenIngest("exam-1", uid, conn)
		wg.Add(1)
		go func(uid string, conn ControlSender) {
			defer wg.Done()
			for j := 0; j < chunks; j++ {
				r.RecordChunk("exam-1", uid, []byte{byte(j)})
				r.RecordHeartbeat("exam-1", uid)
			}
			r.CloseIngest("exam-1", uid, conn)
		}(uid, conn)
	}

	// Readers race against the writers above.
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			r.ListSessions("exam-1")
			r.ActiveExamIDs()
			if r.SessionCount("exam-1") == 0 && len(r.ActiveExamIDs()) == 0 {
				return
			}
		}
	}()

	wg.Wait()
	<-done
	if got := r.SessionCount("exam-1"); got != 0 {
		t.Fatalf("SessionCount after all closed = %d, want 0", got)
	}
}
