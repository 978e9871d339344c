package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/VanceHud/VanceNodeWarden/internal/backup"
	"github.com/VanceHud/VanceNodeWarden/internal/middleware"
)

// maxPatchBody bounds the settings patch payload.
const maxPatchBody = 16 << 10

// BackupHandler exposes the backup admin operations: overview, settings patch,
// and run-now.
type BackupHandler struct {
	runner *backup.Runner
	limits backup.Limits
	logger *slog.Logger
}

func NewBackupHandler(runner *backup.Runner, limits backup.Limits, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{runner: runner, limits: limits, logger: logger}
}

// GetOverview returns settings, last-run state, and live status.
func (h *BackupHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.runner.Overview(r.Context())
	if err != nil {
		h.logger.Error("backup overview", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load backup overview"})
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// UpdateSettings applies a partial settings update. Unknown fields and invalid
// values are rejected before anything is persisted.
func (h *BackupHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPatchBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	patch, err := backup.ParseSettingsPatch(body, h.limits)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	overview, err := h.runner.UpdateSettings(r.Context(), patch, middleware.RealIP(r))
	if err != nil {
		h.logger.Error("update backup settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save backup settings"})
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// RunNow triggers an immediate run, bypassing the schedule gate. A concurrent
// run answers 409; a failed run answers 500 with the structured result either way.
func (h *BackupHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.RunNow(r.Context(), middleware.RealIP(r))
	if err != nil {
		h.logger.Error("backup run now", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to start backup run"})
		return
	}

	status := http.StatusOK
	switch result.Status {
	case "skipped":
		status = http.StatusConflict
	case "failure":
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
