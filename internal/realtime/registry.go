package realtime

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ControlSender delivers one control message to a participant connection
// without blocking. Implemented by ingest clients; the registry never writes
// to a socket itself.
type ControlSender interface {
	TrySend(msg interface{}) bool
}

// Session is the live state for one participant's stream within one exam.
// It exists exactly while at least one ingest connection is open. All fields
// are owned by the registry and mutated only under the exam's lock.
type Session struct {
	examID         string
	uid            string
	lastChunk      []byte
	lastUpdate     time.Time
	isStreaming    bool
	heartbeatCount int
	conns          []ControlSender
}

// SessionSnapshot is a point-in-time copy of a session, safe to use after the
// registry has moved on.
type SessionSnapshot struct {
	ExamID          string
	UID             string
	IsStreaming     bool
	HasChunk        bool
	LastUpdate      time.Time
	HeartbeatCount  int
	ConnectionCount int
}

// examTable holds one exam's sessions. dead is set, under both locks, when
// the table is removed from the exam map; anyone who resolved the table
// before the removal must treat it as gone once they see the flag.
type examTable struct {
	mu       sync.Mutex
	dead     bool
	sessions map[string]*Session
}

// Registry owns all live stream sessions, keyed by exam then participant.
// The outer lock guards the exam map; each exam carries its own lock so
// traffic on one exam never serializes against another. A table pointer
// obtained under the outer lock can go stale before the inner lock is taken:
// the dead flag closes that window.
type Registry struct {
	mu     sync.RWMutex
	exams  map[string]*examTable
	logger *zap.Logger
}

// NewRegistry creates an empty stream registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		exams:  make(map[string]*examTable),
		logger: logger,
	}
}

// OpenIngest registers a new ingest connection for (examID, uid), creating
// the exam table and session as needed, and returns a snapshot of the
// session. Duplicate connections for the same participant are appended.
// A concurrent CloseIngest may retire the table between the two lock
// acquisitions; the dead check restarts the resolution so the new connection
// never lands in a table the registry no longer knows about.
func (r *Registry) OpenIngest(examID, uid string, conn ControlSender) SessionSnapshot {
	for {
		r.mu.Lock()
		table, ok := r.exams[examID]
		if !ok {
			table = &examTable{sessions: make(map[string]*Session)}
			r.exams[examID] = table
		}
		r.mu.Unlock()

		table.mu.Lock()
		if table.dead {
			table.mu.Unlock()
			continue
		}
		s, ok := table.sessions[uid]
		if !ok {
			s = &Session{examID: examID, uid: uid}
			table.sessions[uid] = s
		}
		s.conns = append(s.conns, conn)
		s.lastUpdate = time.Now()
		snap := snapshotOf(s)
		table.mu.Unlock()
		r.logger.Debug("ingest opened",
			zap.String("exam_id", examID), zap.String("uid", uid), zap.Int("connections", snap.ConnectionCount))
		return snap
	}
}

// CloseIngest removes one connection from the session. When the last
// connection goes, the session is deleted; when the last session goes, the
// exam table is deleted. Unknown connections and sessions are a no-op.
func (r *Registry) CloseIngest(examID, uid string, conn ControlSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, ok := r.exams[examID]
	if !ok {
		return
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	s, ok := table.sessions[uid]
	if !ok {
		return
	}
	for i, c := range s.conns {
		if c == conn {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			break
		}
	}
	if len(s.conns) == 0 {
		delete(table.sessions, uid)
		if len(table.sessions) == 0 {
			table.dead = true
			delete(r.exams, examID)
		}
	}
	r.logger.Debug("ingest closed",
		zap.String("exam_id", examID), zap.String("uid", uid), zap.Int("connections", len(s.conns)))
}

// RecordChunk stores the latest chunk for the session, marks it streaming
// and refreshes lastUpdate. A chunk arriving after teardown is dropped;
// that is a benign race with disconnect, not an error.
func (r *Registry) RecordChunk(examID, uid string, chunk []byte) bool {
	s, table := r.lookup(examID)
	if table == nil {
		r.logger.Debug("chunk for unknown exam dropped", zap.String("exam_id", examID))
		return false
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	sess, ok := s(uid)
	if !ok {
		r.logger.Debug("chunk for closed session dropped",
			zap.String("exam_id", examID), zap.String("uid", uid))
		return false
	}
	sess.lastChunk = chunk
	sess.isStreaming = true
	sess.lastUpdate = time.Now()
	return true
}

// RecordHeartbeat increments the session heartbeat counter and refreshes
// lastUpdate. Dropped silently when the session is gone.
func (r *Registry) RecordHeartbeat(examID, uid string) bool {
	s, table := r.lookup(examID)
	if table == nil {
		return false
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	sess, ok := s(uid)
	if !ok {
		return false
	}
	sess.heartbeatCount++
	sess.lastUpdate = time.Now()
	return true
}

// Touch refreshes lastUpdate for any other inbound message kind (ping,
// echoed commands, unparsable text).
func (r *Registry) Touch(examID, uid string) {
	s, table := r.lookup(examID)
	if table == nil {
		return
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	if sess, ok := s(uid); ok {
		sess.lastUpdate = time.Now()
	}
}

// ListSessions returns point-in-time copies of every session for the exam,
// ordered by participant uid. Safe to call concurrently with writers.
func (r *Registry) ListSessions(examID string) []SessionSnapshot {
	_, table := r.lookup(examID)
	if table == nil {
		return nil
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	if table.dead {
		return nil
	}
	out := make([]SessionSnapshot, 0, len(table.sessions))
	for _, sess := range table.sessions {
		out = append(out, snapshotOf(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// ActiveExamIDs returns the ids of exams with at least one live session.
func (r *Registry) ActiveExamIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.exams))
	for id := range r.exams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SessionCount returns the number of live sessions for an exam.
func (r *Registry) SessionCount(examID string) int {
	_, table := r.lookup(examID)
	if table == nil {
		return 0
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	if table.dead {
		return 0
	}
	return len(table.sessions)
}

// LastChunk returns the most recent chunk for a participant, or false when
// no session exists or no chunk has arrived yet.
func (r *Registry) LastChunk(examID, uid string) ([]byte, bool) {
	s, table := r.lookup(examID)
	if table == nil {
		return nil, false
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	sess, ok := s(uid)
	if !ok || sess.lastChunk == nil {
		return nil, false
	}
	return sess.lastChunk, true
}

// FirstSender returns the first live connection of a participant for command
// forwarding, or false when the participant has no open connection.
func (r *Registry) FirstSender(examID, uid string) (ControlSender, bool) {
	s, table := r.lookup(examID)
	if table == nil {
		return nil, false
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	sess, ok := s(uid)
	if !ok || len(sess.conns) == 0 {
		return nil, false
	}
	return sess.conns[0], true
}

// lookup resolves an exam table under the outer read lock and returns a
// session accessor bound to it. The accessor must only be called while the
// table's lock is held; it reports no session when the table was retired
// after resolution.
func (r *Registry) lookup(examID string) (func(uid string) (*Session, bool), *examTable) {
	r.mu.RLock()
	table, ok := r.exams[examID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return func(uid string) (*Session, bool) {
		if table.dead {
			return nil, false
		}
		s, ok := table.sessions[uid]
		return s, ok
	}, table
}

func snapshotOf(s *Session) SessionSnapshot {
	return SessionSnapshot{
		ExamID:          s.examID,
		UID:             s.uid,
		IsStreaming:     s.isStreaming,
		HasChunk:        s.lastChunk != nil,
		LastUpdate:      s.lastUpdate,
		HeartbeatCount:  s.heartbeatCount,
		ConnectionCount: len(s.conns),
	}
}
