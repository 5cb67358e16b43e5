package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/accountable/internal/engine"
)

// AdminHandler exposes the privileged operations. Routes are expected to
// sit behind middleware.RequireAdminToken.
type AdminHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewAdminHandler(e *engine.Engine, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: e, logger: logger}
}

func (h *AdminHandler) ResetPoints(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.ResetAllPoints(r.Context())
	if err != nil {
		h.logger.Error("failed to reset points", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset points")
		return
	}
	h.logger.Info("points reset by admin", "changed", n)
	writeJSON(w, http.StatusOK, map[string]int{"changed": n})
}

func (h *AdminHandler) ResetWeekly(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.ResetWeeklyPoints(r.Context())
	if err != nil {
		h.logger.Error("failed to reset weekly points", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset weekly points")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"changed": n})
}

func (h *AdminHandler) Settle(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunDailySettlement(r.Context())
	if err != nil {
		h.logger.Error("manual settlement failed", "run_id", report.RunID, "error", err)
		writeError(w, http.StatusInternalServerError, "settlement failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunInactivityPass(r.Context())
	if err != nil {
		h.logger.Error("manual inactivity pass failed", "run_id", report.RunID, "error", err)
		writeError(w, http.StatusInternalServerError, "inactivity pass failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
