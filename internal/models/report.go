package models

import (
	"time"

	"github.com/google/uuid"
)

// ExamReport is the persisted attendance/violation record for one participant
// in one exam. Violations maps a violation kind (e.g. "tabSwitch") to its
// observed count.
type ExamReport struct {
	ID              uuid.UUID      `json:"id"`
	ExamID          uuid.UUID      `json:"exam_id"`
	UID             string         `json:"uid"`
	ReportURL       string         `json:"report_url,omitempty"`
	ArchiveURL      string         `json:"archive_url,omitempty"`
	Violations      map[string]int `json:"violations"`
	TotalViolations int            `json:"total_violations"`
	ExamStartTime   *time.Time     `json:"exam_start_time,omitempty"`
	ExamEndTime     *time.Time     `json:"exam_end_time,omitempty"`
	Completed       bool           `json:"completed"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
