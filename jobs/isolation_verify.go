package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/helpdesk/internal/isolation"
	jobmetrics "github.com/noah-isme/helpdesk/internal/jobs"
)

// VerificationObserver receives the outcome of each verification run.
type VerificationObserver interface {
	IsolationVerified(failing int, at time.Time)
}

// IsolationVerifyJob periodically confirms every tenant table still fails closed.
type IsolationVerifyJob struct {
	Inspector isolation.Inspector
	Observer  VerificationObserver
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewIsolationVerifyJob initialises the verification handler.
func NewIsolationVerifyJob(inspector isolation.Inspector, observer VerificationObserver, logger *slog.Logger, metrics *jobmetrics.Metrics) *IsolationVerifyJob {
	return &IsolationVerifyJob{
		Inspector: inspector,
		Observer:  observer,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs the verification. A disabled policy is reported at Error level and returned so
// the run is marked failed; it is not retried since nothing but an operator can fix it.
func (j *IsolationVerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inspector == nil {
		return errors.New("isolation verify: handler not configured")
	}
	var payload IsolationVerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			j.Metrics.Skipped(TaskIsolationVerify)
			return asynq.SkipRetry
		}
	}
	tables := payload.Tables
	if len(tables) == 0 {
		tables = isolation.TenantTables
	}

	tracker := j.Metrics.Track(TaskIsolationVerify)
	report, err := isolation.Verify(ctx, j.Inspector, tables)
	if errors.Is(err, isolation.ErrPolicyDisabled) {
		j.observe(len(report.Failing))
		j.logger().Error("tenant isolation policy disabled",
			slog.String("tables", strings.Join(report.Failing, ",")),
			slog.Any("error", err),
		)
		_ = tracker.End(err)
		return errors.Join(err, asynq.SkipRetry)
	}
	if err != nil {
		j.logger().Warn("verification incomplete", slog.Any("error", err))
		return tracker.End(err)
	}
	j.observe(0)
	j.logger().Info("tenant isolation verified", slog.Int("tables", len(report.Tables)))
	return tracker.End(nil)
}

func (j *IsolationVerifyJob) observe(failing int) {
	if j.Observer == nil {
		return
	}
	now := time.Now().UTC()
	if j.clock != nil {
		now = j.clock()
	}
	j.Observer.IsolationVerified(failing, now)
}

func (j *IsolationVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIsolationVerify))
	}
	return slog.Default().With(slog.String("job", TaskIsolationVerify))
}
