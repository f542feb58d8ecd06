package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/proteamcare/access-engine/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditWrite persists audit records for routine reads.
	TaskTypeAuditWrite = "audit:write"
)

// NewAuditWriteTask constructs an Asynq task carrying one audit record.
func NewAuditWriteTask(rec audit.Record) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditWrite, data), nil
}

// AuditWriteHandler returns the handler processing TaskTypeAuditWrite tasks.
// Malformed payloads are dropped; insert failures are retried by asynq.
func AuditWriteHandler(repo audit.Repository, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var rec audit.Record
		if err := json.Unmarshal(t.Payload(), &rec); err != nil {
			if logger != nil {
				logger.Error("audit task payload", slog.Any("error", err))
			}
			return asynq.SkipRetry
		}
		return repo.Insert(ctx, rec)
	}
}
