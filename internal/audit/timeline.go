package audit

import "time"

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Kind     string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow mewakili satu baris audit timeline.
type TimelineRow struct {
	At         time.Time      `json:"at"`
	TenantID   string         `json:"tenantId,omitempty"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	Kind       string         `json:"kind"`
	ResourceID string         `json:"resourceId"`
	SourceIP   string         `json:"sourceIp,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PagingInfo describes the returned page.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"hasNext"`
	PageSize int  `json:"pageSize"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// WindowQuery is the repository-level form of TimelineFilters. Limit zero means unbounded.
type WindowQuery struct {
	From   time.Time
	To     time.Time
	Actor  string
	Kind   string
	Action string
	Offset int
	Limit  int
}
