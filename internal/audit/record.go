package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAuditWrite wraps failures to persist a record. It is logged, never returned to users.
var ErrAuditWrite = errors.New("audit: write failure")

// Action classifies the state change being recorded.
type Action string

// Audit actions.
const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Valid reports whether a is a recordable action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// Record is one append-only audit entry.
type Record struct {
	ID           uuid.UUID      `json:"id"`
	TenantID     *string        `json:"tenantId,omitempty"`
	ActorID      string         `json:"actorId"`
	Action       Action         `json:"action"`
	ResourceKind string         `json:"resourceKind"`
	ResourceID   string         `json:"resourceId"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	SourceIP     string         `json:"sourceIp,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	At           time.Time      `json:"at"`
}

func (r Record) validate() error {
	if r.ActorID == "" || !r.Action.Valid() || r.ResourceKind == "" || r.ResourceID == "" {
		return errors.New("audit: record requires actor/action/resource kind/resource id")
	}
	return nil
}

// Sink persists records.
type Sink interface {
	Append(ctx context.Context, record Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, record Record) error

// Append implements Sink.
func (f SinkFunc) Append(ctx context.Context, record Record) error {
	return f(ctx, record)
}
