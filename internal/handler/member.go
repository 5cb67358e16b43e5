package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/accountable/internal/engine"
	"github.com/dukerupert/accountable/internal/model"
)

type MemberHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewMemberHandler(e *engine.Engine, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{engine: e, logger: logger}
}

type joinRequest struct {
	Community string     `json:"community"`
	JoinedAt  *time.Time `json:"joined_at"`
}

func (h *MemberHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "member id is required")
		return
	}
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var joinedAt time.Time
	if req.JoinedAt != nil {
		joinedAt = *req.JoinedAt
	}
	if err := h.engine.Join(r.Context(), id, strings.TrimSpace(req.Community), joinedAt); err != nil {
		h.logger.Error("failed to record join", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record join")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type metricsRequest struct {
	Reps      *int     `json:"reps"`
	Steps     *int     `json:"steps"`
	WorkHours *float64 `json:"work_hours"`
	Meditated bool     `json:"meditated"`
}

type logRequest struct {
	Community string          `json:"community"`
	Text      string          `json:"text"`
	Metrics   *metricsRequest `json:"metrics"`
}

// SubmitLog accepts either free text or already structured metrics.
// Rejections are reported in the body with a 200.
func (h *MemberHandler) SubmitLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "member id is required")
		return
	}
	var req logRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Metrics == nil && strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text or metrics is required")
		return
	}

	var (
		res engine.SubmissionResult
		err error
	)
	community := strings.TrimSpace(req.Community)
	if req.Metrics != nil {
		res, err = h.engine.ProcessMetrics(r.Context(), id, community, model.Metrics{
			Reps:      req.Metrics.Reps,
			Steps:     req.Metrics.Steps,
			WorkHours: req.Metrics.WorkHours,
			Meditated: req.Metrics.Meditated,
		})
	} else {
		res, err = h.engine.ProcessSubmission(r.Context(), engine.Submission{
			MemberID:  id,
			Community: community,
			Text:      req.Text,
		})
	}
	if err != nil {
		h.logger.Error("failed to process log", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type leaveRequest struct {
	Community string `json:"community"`
	Reason    string `json:"reason"`
}

func (h *MemberHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "member id is required")
		return
	}
	var req leaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := h.engine.GrantLeave(r.Context(), id, strings.TrimSpace(req.Community), req.Reason)
	if err != nil {
		h.logger.Error("failed to grant leave", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to grant leave")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MemberHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "member id is required")
		return
	}

	stats, err := h.engine.Stats(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load stats", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
