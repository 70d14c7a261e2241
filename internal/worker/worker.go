package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ueexam/backend/internal/reports"
	"github.com/ueexam/backend/pkg/queue"
	"github.com/ueexam/backend/pkg/storage"
)

// ReportExportProcessor archives finalized violation reports: serialize the
// DB record to JSON, upload to S3, and record the archive URL.
type ReportExportProcessor struct {
	repRepo *reports.Repository
	s3      *storage.S3
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewReportExportProcessor creates a report export processor.
func NewReportExportProcessor(repRepo *reports.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ReportExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportExportProcessor{repRepo: repRepo, s3: s3, queue: q, logger: logger}
}

// Process executes one report export job.
func (p *ReportExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeReportExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ReportExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	report, err := p.repRepo.GetByID(ctx, payload.ReportID)
	if err != nil {
		return fmt.Errorf("fetch report: %w", err)
	}
	if report == nil {
		return fmt.Errorf("report not found: %s", payload.ReportID)
	}
	if report.ArchiveURL != "" {
		p.logger.Info("report already archived", zap.String("report_id", report.ID.String()))
		return nil
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	key := storage.ExportKey(report.ExamID.String(), report.UID)
	url, err := p.s3.Upload(ctx, p.s3.ReportsBucket(), key, "application/json",
		bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.repRepo.SetArchiveURL(ctx, report.ID, url); err != nil {
		p.logger.Error("record archive url failed", zap.Error(err),
			zap.String("report_id", report.ID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("report export completed",
		zap.String("report_id", report.ID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ReportExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("report export worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
