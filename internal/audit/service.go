package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/helpdesk/internal/authz"
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/tenancy"
)

// Repository reads timeline windows.
type Repository interface {
	TimelineWindow(ctx context.Context, scope tenancy.Predicate, q WindowQuery) ([]TimelineRow, error)
}

// Authorizer decides whether claims may perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, claims identity.Claims, action authz.Action, resource authz.Resource) error
}

// Result is one timeline page plus its paging info.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service authorizes and pages audit timeline reads.
type Service struct {
	repo  Repository
	authz Authorizer
}

// NewService constructs the timeline service.
func NewService(repo Repository, authorizer Authorizer) *Service {
	return &Service{repo: repo, authz: authorizer}
}

// Timeline returns one page of audit rows, limited to the caller's tenant.
func (s *Service) Timeline(ctx context.Context, claims identity.Claims, filters TimelineFilters) (Result, error) {
	scope, err := s.prepare(ctx, claims)
	if err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.TimelineWindow(ctx, scope, WindowQuery{
		From:   filters.From,
		To:     filters.To,
		Actor:  strings.TrimSpace(filters.Actor),
		Kind:   strings.TrimSpace(filters.Kind),
		Action: strings.ToUpper(strings.TrimSpace(filters.Action)),
		Offset: offset,
		Limit:  pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row without paging.
func (s *Service) Export(ctx context.Context, claims identity.Claims, filters TimelineFilters) ([]TimelineRow, error) {
	scope, err := s.prepare(ctx, claims)
	if err != nil {
		return nil, err
	}
	return s.repo.TimelineWindow(ctx, scope, WindowQuery{
		From:   filters.From,
		To:     filters.To,
		Actor:  strings.TrimSpace(filters.Actor),
		Kind:   strings.TrimSpace(filters.Kind),
		Action: strings.ToUpper(strings.TrimSpace(filters.Action)),
	})
}

func (s *Service) prepare(ctx context.Context, claims identity.Claims) (tenancy.Predicate, error) {
	if s.repo == nil || s.authz == nil {
		return tenancy.Predicate{}, fmt.Errorf("audit: service not configured")
	}
	if err := s.authz.Authorize(ctx, claims, authz.ActionAuditView, authz.Resource{Kind: "audit_log"}); err != nil {
		return tenancy.Predicate{}, err
	}
	return tenancy.ScopeForRead(claims)
}
