package monitoring

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ueexam/backend/internal/models"
	"github.com/ueexam/backend/internal/realtime"
)

// ErrExamNotFound is returned when the exam does not exist.
var ErrExamNotFound = errors.New("exam not found")

// Participant status tags.
const (
	StatusCompleted    = "completed"
	StatusAttending    = "attending"
	StatusNotAttending = "not-attending"
)

// ExamStore looks up exam metadata.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Exam, error)
}

// DirectoryStore provides the participant directory for an exam's class.
type DirectoryStore interface {
	GetParticipantDirectory(ctx context.Context, examID uuid.UUID) ([]models.Participant, error)
	GetClassName(ctx context.Context, classID uuid.UUID) (string, error)
}

// ReportStore provides persisted violation/attendance records for an exam.
type ReportStore interface {
	GetReports(ctx context.Context, examID uuid.UUID) ([]models.ExamReport, error)
}

// LiveStreams reads the in-memory stream registry.
type LiveStreams interface {
	ListSessions(examID string) []realtime.SessionSnapshot
}

// ViolationEntry is one violation type with a positive count, annotated with
// a display label and an observed time.
type ViolationEntry struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
	Time  string `json:"time"`
}

// ParticipantStatus is the derived per-participant monitoring row. Computed
// on demand and never cached.
type ParticipantStatus struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Email           string           `json:"email"`
	UID             string           `json:"uid"`
	Role            string           `json:"role"`
	Status          string           `json:"status"`
	Violations      []ViolationEntry `json:"violations"`
	IsStreaming     bool             `json:"isStreaming"`
	LastUpdate      string           `json:"lastUpdate,omitempty"`
	ConnectionCount int              `json:"connectionCount"`
}

// ExamSummary carries exam metadata plus exam-level counters.
type ExamSummary struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Duration          int       `json:"duration"`
	StartDate         time.Time `json:"startDate"`
	EndDate           time.Time `json:"endDate"`
	ClassName         string    `json:"className"`
	TotalParticipants int       `json:"totalParticipants"`
	TotalStudents     int       `json:"totalStudents"`
	TotalStaff        int       `json:"totalStaff"`
	AttendingCount    int       `json:"attendingCount"`
	CompletedCount    int       `json:"completedCount"`
	NotAttendingCount int       `json:"notAttendingCount"`
	IsStreamingCount  int       `json:"isStreamingCount"`
}

// StatusView is the full monitoring snapshot for one exam.
type StatusView struct {
	Exam         ExamSummary         `json:"exam"`
	Participants []ParticipantStatus `json:"participants"`
}

// Aggregator fuses the participant directory, the persisted report store and
// live registry sessions into a monitoring snapshot. Collaborator failures
// degrade to empty data rather than failing the snapshot; only a missing
// exam is an error.
type Aggregator struct {
	exams           ExamStore
	directory       DirectoryStore
	reports         ReportStore
	live            LiveStreams
	attendingWindow time.Duration
	logger          *zap.Logger
}

// NewAggregator creates a status aggregator. attendingWindow is the recency
// window within which a live session counts as attending.
func NewAggregator(exams ExamStore, directory DirectoryStore, reports ReportStore, live LiveStreams, attendingWindow time.Duration, logger *zap.Logger) *Aggregator {
	if attendingWindow <= 0 {
		attendingWindow = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		exams:           exams,
		directory:       directory,
		reports:         reports,
		live:            live,
		attendingWindow: attendingWindow,
		logger:          logger,
	}
}

// LiveStatus computes the monitoring snapshot for an exam.
func (a *Aggregator) LiveStatus(ctx context.Context, examID uuid.UUID) (*StatusView, error) {
	exam, err := a.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, ErrExamNotFound
	}

	className := ""
	if name, err := a.directory.GetClassName(ctx, exam.ClassID); err == nil {
		className = name
	}

	participants, err := a.directory.GetParticipantDirectory(ctx, examID)
	if err != nil {
		a.logger.Warn("participant directory unavailable", zap.String("exam_id", examID.String()), zap.Error(err))
		participants = nil
	}
	reports, err := a.reports.GetReports(ctx, examID)
	if err != nil {
		a.logger.Warn("report store unavailable", zap.String("exam_id", examID.String()), zap.Error(err))
		reports = nil
	}

	reportByUID := make(map[string]*models.ExamReport, len(reports))
	for i := range reports {
		reportByUID[reports[i].UID] = &reports[i]
	}
	sessionByUID := make(map[string]realtime.SessionSnapshot)
	for _, s := range a.live.ListSessions(examID.String()) {
		sessionByUID[s.UID] = s
	}

	now := time.Now()
	rows := make([]ParticipantStatus, 0, len(participants))
	seen := make(map[string]bool, len(participants))
	summary := ExamSummary{
		ID:        exam.ID.String(),
		Title:     exam.Title,
		Duration:  exam.Duration,
		StartDate: exam.StartDate,
		EndDate:   exam.EndDate,
		ClassName: className,
	}

	for _, p := range participants {
		if seen[p.UID] {
			// Directory entries may arrive duplicated (full record plus a
			// bare membership id); first one wins.
			continue
		}
		seen[p.UID] = true

		report := reportByUID[p.UID]
		session, hasSession := sessionByUID[p.UID]

		row := ParticipantStatus{
			ID:         p.ID.String(),
			Name:       p.Name,
			Email:      p.Email,
			UID:        p.UID,
			Role:       p.Role,
			Violations: []ViolationEntry{},
		}
		switch {
		case report != nil && report.Completed:
			row.Status = StatusCompleted
		case hasSession && now.Sub(session.LastUpdate) < a.attendingWindow:
			row.Status = StatusAttending
		default:
			row.Status = StatusNotAttending
		}
		if report != nil {
			row.Violations = violationEntries(report)
		}
		if hasSession {
			row.IsStreaming = session.IsStreaming
			row.LastUpdate = session.LastUpdate.Format("15:04:05")
			row.ConnectionCount = session.ConnectionCount
		}

		rows = append(rows, row)
		switch p.Role {
		case models.RoleStaff:
			summary.TotalStaff++
		default:
			summary.TotalStudents++
		}
		switch row.Status {
		case StatusCompleted:
			summary.CompletedCount++
		case StatusAttending:
			summary.AttendingCount++
		default:
			summary.NotAttendingCount++
		}
		if row.IsStreaming {
			summary.IsStreamingCount++
		}
	}
	summary.TotalParticipants = len(rows)

	return &StatusView{Exam: summary, Participants: rows}, nil
}

// ExamStatus implements realtime.StatusSource for the monitor endpoint's
// periodic pushes.
func (a *Aggregator) ExamStatus(ctx context.Context, examID string) (interface{}, error) {
	id, err := uuid.Parse(examID)
	if err != nil {
		return nil, err
	}
	return a.LiveStatus(ctx, id)
}

// violationEntries converts a report's violation counts into display rows,
// keeping only positive counts.
func violationEntries(report *models.ExamReport) []ViolationEntry {
	observed := time.Now()
	if report.ExamStartTime != nil {
		observed = *report.ExamStartTime
	}
	entries := make([]ViolationEntry, 0, len(report.Violations))
	for kind, count := range report.Violations {
		if count <= 0 {
			continue
		}
		entries = append(entries, ViolationEntry{
			Type:  violationLabel(kind),
			Count: count,
			Time:  observed.Format("15:04:05"),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Type < entries[j].Type })
	return entries
}

// violationLabel renders a camelCase violation kind as a human-readable
// label: "tabSwitch" -> "Tab Switch".
func violationLabel(kind string) string {
	var b strings.Builder
	for i, r := range kind {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
