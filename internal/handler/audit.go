package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/VanceHud/VanceNodeWarden/internal/store"
)

const defaultAuditLimit = 50

// AuditHandler serves the recent audit trail for the admin console.
type AuditHandler struct {
	audit  *store.AuditStore
	logger *slog.Logger
}

func NewAuditHandler(audit *store.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

func (h *AuditHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	entries, err := h.audit.ListRecent(limit)
	if err != nil {
		h.logger.Error("list audit entries", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load audit log"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
