package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/accountable/internal/engine"
	"github.com/dukerupert/accountable/internal/leaderboard"
)

type LeaderboardHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewLeaderboardHandler(e *engine.Engine, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{engine: e, logger: logger}
}

type leaderboardResponse struct {
	Community string              `json:"community"`
	Entries   []leaderboard.Entry `json:"entries"`
	Text      string              `json:"text"`
}

func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	community, ok := pathID(r, "community")
	if !ok {
		writeError(w, http.StatusBadRequest, "community is required")
		return
	}

	entries, err := h.engine.Leaderboard(r.Context(), community)
	if err != nil {
		h.logger.Error("failed to compute leaderboard", "community", community, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute leaderboard")
		return
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(leaderboard.Render(entries)))
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Community: community,
		Entries:   entries,
		Text:      leaderboard.Render(entries),
	})
}
