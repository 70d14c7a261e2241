package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission is an answer file a student uploaded for an exam.
type Submission struct {
	ID          uuid.UUID `json:"id"`
	ExamID      uuid.UUID `json:"exam_id"`
	UID         string    `json:"uid"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	FileURL     string    `json:"file_url"`
	S3Key       string    `json:"-"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
