package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/helpdesk/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit receives audit appends so a slow audit store never stalls other jobs.
	QueueAudit = "audit"
	// TaskAuditAppend persists one audit record.
	TaskAuditAppend = "audit:append"
	// TaskIsolationVerify re-checks the row level security policies of tenant tables.
	TaskIsolationVerify = "isolation:verify"
)

// NewAuditAppendTask constructs an Asynq task carrying the record as JSON.
func NewAuditAppendTask(record audit.Record) (*asynq.Task, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditAppend, data, asynq.Queue(QueueAudit)), nil
}

// IsolationVerifyPayload selects the tables to verify; empty means every tenant table.
type IsolationVerifyPayload struct {
	Tables []string `json:"tables,omitempty"`
}

// NewIsolationVerifyTask constructs the verification task.
func NewIsolationVerifyTask(tables []string) (*asynq.Task, error) {
	data, err := json.Marshal(IsolationVerifyPayload{Tables: tables})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIsolationVerify, data), nil
}
