package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/helpdesk/internal/audit"
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/platform/httpx"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 50
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, claims identity.Claims, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, claims identity.Claims, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler constructs the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		now:     time.Now,
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), claims, filters)
	if err != nil {
		h.respond(w, "load audit timeline", err)
		return
	}
	if result.Rows == nil {
		result.Rows = []audit.TimelineRow{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), claims, filters)
	if err != nil {
		h.respond(w, "export audit timeline", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if err := audit.WriteTimelineCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	query := r.URL.Query()
	now := h.now().UTC()
	toTime := now
	if toStr := strings.TrimSpace(query.Get("to")); toStr != "" {
		parsed, err := parseTime(toStr)
		if err != nil {
			return audit.TimelineFilters{}, invalid("to")
		}
		toTime = parsed
	}
	fromTime := toTime.Add(-defaultDateRange)
	if fromStr := strings.TrimSpace(query.Get("from")); fromStr != "" {
		parsed, err := parseTime(fromStr)
		if err != nil {
			return audit.TimelineFilters{}, invalid("from")
		}
		fromTime = parsed
	}
	if fromTime.After(toTime) {
		return audit.TimelineFilters{}, invalid("range")
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, invalid("range")
	}

	page := 1
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, invalid("page")
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(query.Get("pageSize")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, invalid("pageSize")
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		pageSize = parsed
	}
	action := strings.ToUpper(strings.TrimSpace(query.Get("action")))
	if action != "" && !audit.Action(action).Valid() {
		return audit.TimelineFilters{}, invalid("action")
	}

	return audit.TimelineFilters{
		From:     fromTime,
		To:       toTime,
		Actor:    strings.TrimSpace(query.Get("actor")),
		Kind:     strings.TrimSpace(query.Get("kind")),
		Action:   action,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// parseTime accepts either a full RFC3339 timestamp or a bare date.
func parseTime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) respond(w http.ResponseWriter, message string, err error) {
	httpx.RespondError(w, err)
	if h.logger != nil && httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(message, slog.Any("error", err))
	}
}

func invalid(field string) error {
	return fmt.Errorf("%w: %s", httpx.ErrValidation, field)
}
