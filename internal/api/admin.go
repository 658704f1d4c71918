package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/leads"
)

const (
	defaultRecentLeads = 10
	maxRecentLeads     = 100
)

// LeadSyncer pushes pending leads to the lead sink.
type LeadSyncer interface {
	SyncOnce(ctx context.Context) (int, error)
}

// LeadWorkbook is the read side of the lead workbook.
type LeadWorkbook interface {
	Recent(limit int) ([]leads.Row, error)
	Status() leads.WorkbookStatus
}

// SessionCounter summarizes stored sessions.
type SessionCounter interface {
	Counts(ctx context.Context) (domain.Counts, error)
}

// LeadsHandler exposes lead sync and the lead dashboard.
type LeadsHandler struct {
	syncer   LeadSyncer
	workbook LeadWorkbook
	counts   SessionCounter
	log      *slog.Logger
}

// NewLeadsHandler creates a leads handler. Nil syncer and workbook mean
// the lead sink is disabled.
func NewLeadsHandler(syncer LeadSyncer, workbook LeadWorkbook, counts SessionCounter, logger *slog.Logger) *LeadsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadsHandler{syncer: syncer, workbook: workbook, counts: counts, log: logger}
}

// RegisterRoutes registers lead admin routes.
func (h *LeadsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/admin/dashboard", h.Dashboard)
	r.Get("/api/admin/leads/status", h.Status)
	r.Get("/api/admin/leads/recent", h.Recent)
	r.Post("/api/admin/leads/sync", h.Sync)
}

// Sync writes every pending lead now.
func (h *LeadsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		Error(w, http.StatusServiceUnavailable, "lead sink disabled")
		return
	}
	n, err := h.syncer.SyncOnce(r.Context())
	if err != nil {
		h.log.Error("Manual lead sync incomplete", "error", err, "synced", n)
		JSON(w, http.StatusBadGateway, map[string]interface{}{
			"synced": n,
			"error":  "lead sync incomplete",
		})
		return
	}
	JSON(w, http.StatusOK, map[string]int{"synced": n})
}

// Dashboard returns session and lead counts.
func (h *LeadsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.counts.Counts(r.Context())
	if err != nil {
		h.log.Error("Failed to count sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	JSON(w, http.StatusOK, counts)
}

type leadStatusResponse struct {
	Enabled  bool                  `json:"enabled"`
	Workbook *leads.WorkbookStatus `json:"workbook,omitempty"`
	Unsynced int64                 `json:"unsynced_leads"`
}

// Status reports the workbook state and how many leads wait for sync.
func (h *LeadsHandler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.counts.Counts(r.Context())
	if err != nil {
		h.log.Error("Failed to count unsynced leads", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load lead status")
		return
	}
	resp := leadStatusResponse{Enabled: h.workbook != nil, Unsynced: counts.UnsyncedLeads}
	if h.workbook != nil {
		st := h.workbook.Status()
		resp.Workbook = &st
	}
	JSON(w, http.StatusOK, resp)
}

// Recent returns the newest workbook rows.
func (h *LeadsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.workbook == nil {
		Error(w, http.StatusServiceUnavailable, "lead sink disabled")
		return
	}
	limit := defaultRecentLeads
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLeads)
	}
	rows, err := h.workbook.Recent(limit)
	if err != nil {
		h.log.Error("Failed to read lead workbook", "error", err)
		Error(w, http.StatusInternalServerError, "failed to read lead workbook")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"rows":  rows,
		"count": len(rows),
	})
}
