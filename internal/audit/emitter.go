package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// FailureObserver is notified when a record is dropped.
type FailureObserver interface {
	AuditWriteFailed(sink string)
}

// RequestMeta carries the request attributes stamped onto audit records.
type RequestMeta struct {
	SourceIP  string
	UserAgent string
}

// MetaFromRequest extracts the audit attributes of r. RemoteAddr is expected to be rewritten
// by the RealIP middleware when the server sits behind a proxy.
func MetaFromRequest(r *http.Request) RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return RequestMeta{SourceIP: ip, UserAgent: r.UserAgent()}
}

// Emitter records state changes without ever failing the operation that produced them.
type Emitter struct {
	sink     Sink
	sinkName string
	logger   *slog.Logger
	observer FailureObserver
	timeout  time.Duration
	now      func() time.Time
}

// EmitterConfig groups Emitter dependencies.
type EmitterConfig struct {
	Sink     Sink
	SinkName string
	Logger   *slog.Logger
	Observer FailureObserver
	Timeout  time.Duration
}

// NewEmitter constructs an Emitter.
func NewEmitter(cfg EmitterConfig) *Emitter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	name := cfg.SinkName
	if name == "" {
		name = "default"
	}
	return &Emitter{
		sink:     cfg.Sink,
		sinkName: name,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Record appends the entry. Failures are logged and counted; the caller's context being
// cancelled after the state change committed does not drop the record.
func (e *Emitter) Record(ctx context.Context, record Record) {
	if e == nil || e.sink == nil {
		return
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.At.IsZero() {
		record.At = e.now().UTC()
	}
	if err := record.validate(); err != nil {
		e.fail(ctx, record, err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	if err := e.sink.Append(writeCtx, record); err != nil {
		e.fail(ctx, record, fmt.Errorf("%w: %w", ErrAuditWrite, err))
	}
}

func (e *Emitter) fail(ctx context.Context, record Record, err error) {
	if e.observer != nil {
		e.observer.AuditWriteFailed(e.sinkName)
	}
	if e.logger != nil {
		e.logger.ErrorContext(ctx, "audit append",
			slog.String("id", record.ID.String()),
			slog.String("action", string(record.Action)),
			slog.String("kind", record.ResourceKind),
			slog.String("resource", record.ResourceID),
			slog.Any("error", err),
		)
	}
}
