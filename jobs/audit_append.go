package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/helpdesk/internal/audit"
	jobmetrics "github.com/noah-isme/helpdesk/internal/jobs"
)

// AuditAppendJob writes queued audit records to the durable sink.
type AuditAppendJob struct {
	Sink    audit.Sink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditAppendJob initialises the audit append handler.
func NewAuditAppendJob(sink audit.Sink, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditAppendJob {
	return &AuditAppendJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle decodes the record and appends it. Undecodable payloads are dropped without retry.
func (j *AuditAppendJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sink == nil {
		return errors.New("audit append: handler not configured")
	}
	var record audit.Record
	if err := json.Unmarshal(t.Payload(), &record); err != nil || record.ActorID == "" || !record.Action.Valid() {
		j.Metrics.Skipped(TaskAuditAppend)
		j.logger().Error("drop audit payload", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskAuditAppend)
	err := j.Sink.Append(ctx, record)
	if err != nil {
		j.logger().Warn("append failed",
			slog.String("id", record.ID.String()),
			slog.Any("error", err),
		)
	}
	return tracker.End(err)
}

func (j *AuditAppendJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditAppend))
	}
	return slog.Default().With(slog.String("job", TaskAuditAppend))
}
