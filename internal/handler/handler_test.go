package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/accountable/internal/database"
	"github.com/dukerupert/accountable/internal/engine"
	"github.com/dukerupert/accountable/internal/store"
)

type testServer struct {
	mux *http.ServeMux
	db  *sql.DB
	now time.Time
}

func setupHandlers(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ts := &testServer{db: db, now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	e := engine.New(engine.DefaultConfig(), store.NewMemberStore(db), store.NewStateStore(db),
		engine.WithClock(engine.ClockFunc(func() time.Time { return ts.now })))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	members := NewMemberHandler(e, logger)
	boards := NewLeaderboardHandler(e, logger)
	admin := NewAdminHandler(e, logger)
	health := NewHealthHandler(db)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/members/{id}/join", members.Join)
	mux.HandleFunc("POST /api/members/{id}/logs", members.SubmitLog)
	mux.HandleFunc("POST /api/members/{id}/leave", members.Leave)
	mux.HandleFunc("GET /api/members/{id}/stats", members.Stats)
	mux.HandleFunc("GET /api/communities/{community}/leaderboard", boards.Get)
	mux.HandleFunc("POST /api/admin/reset-points", admin.ResetPoints)
	mux.HandleFunc("POST /api/admin/reset-weekly", admin.ResetWeekly)
	mux.HandleFunc("POST /api/admin/settle", admin.Settle)
	mux.HandleFunc("POST /api/admin/sweep", admin.Sweep)
	mux.HandleFunc("GET /health", health.Check)
	ts.mux = mux
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestSubmitLogText(t *testing.T) {
	ts := setupHandlers(t)

	rec := ts.do(t, http.MethodPost, "/api/members/42/logs",
		`{"community":"g1","text":"Workout: 200\nSteps: 16k\nWork: 6 hrs\nmeditated"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	res := decode[engine.SubmissionResult](t, rec)
	if !res.Accepted || res.Score != 11 {
		t.Errorf("result = %+v, want accepted with 11", res)
	}

	rec = ts.do(t, http.MethodPost, "/api/members/42/logs", `{"community":"g1","text":"again"}`)
	res = decode[engine.SubmissionResult](t, rec)
	if res.Accepted || res.Reason != engine.ReasonAlreadyLogged {
		t.Errorf("second result = %+v, want already logged", res)
	}
}

func TestSubmitLogMetrics(t *testing.T) {
	ts := setupHandlers(t)

	rec := ts.do(t, http.MethodPost, "/api/members/42/logs",
		`{"community":"g1","metrics":{"reps":100,"steps":20000,"work_hours":2,"meditated":true}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	res := decode[engine.SubmissionResult](t, rec)
	// steps +3, meditation +2, reps -3, work -3
	if res.Score != -1 {
		t.Errorf("score = %d, want -1", res.Score)
	}
	if len(res.Breakdown) != 4 {
		t.Errorf("breakdown has %d criteria, want 4", len(res.Breakdown))
	}
}

func TestSubmitLogValidation(t *testing.T) {
	ts := setupHandlers(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"text":`},
		{"empty", `{}`},
		{"unknown field", `{"text":"x","bogus":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/members/42/logs", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestLeaveAndStats(t *testing.T) {
	ts := setupHandlers(t)

	rec := ts.do(t, http.MethodGet, "/api/members/42/stats", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown member status = %d, want 404", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/members/42/leave", `{"community":"g1","reason":"sick"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("leave status = %d: %s", rec.Code, rec.Body)
	}
	leave := decode[engine.LeaveResult](t, rec)
	if !leave.Granted || leave.ProtectedUntil == nil || *leave.ProtectedUntil != "2026-03-11" {
		t.Errorf("leave = %+v", leave)
	}

	rec = ts.do(t, http.MethodGet, "/api/members/42/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	stats := decode[engine.Stats](t, rec)
	if stats.LeaveRemaining != 2 || stats.Community != "g1" {
		t.Errorf("stats = %+v", stats)
	}
}

func TestJoin(t *testing.T) {
	ts := setupHandlers(t)

	rec := ts.do(t, http.MethodPost, "/api/members/7/join", `{"community":"g1","joined_at":"2026-03-09T10:00:00Z"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body)
	}
	stats := decode[engine.Stats](t, ts.do(t, http.MethodGet, "/api/members/7/stats", ""))
	if stats.Community != "g1" {
		t.Errorf("community = %q, want g1", stats.Community)
	}
}

func TestJoinDefaultsToEngineClock(t *testing.T) {
	ts := setupHandlers(t)

	rec := ts.do(t, http.MethodPost, "/api/members/8/join", `{"community":"g1"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body)
	}
	m, err := store.NewMemberStore(ts.db).Get(context.Background(), "8")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m == nil || m.JoinedAt == nil {
		t.Fatal("member 8 has no join time")
	}
	if !m.JoinedAt.Equal(ts.now) {
		t.Errorf("joined at = %v, want %v", m.JoinedAt, ts.now)
	}
}

func TestLeaderboard(t *testing.T) {
	ts := setupHandlers(t)

	ts.do(t, http.MethodPost, "/api/members/1/logs", `{"community":"g1","text":"rest"}`)
	ts.do(t, http.MethodPost, "/api/members/2/logs", `{"community":"g1","metrics":{"reps":200,"steps":20000,"work_hours":8,"meditated":true}}`)

	rec := ts.do(t, http.MethodGet, "/api/communities/g1/leaderboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[leaderboardResponse](t, rec)
	if len(got.Entries) != 2 || got.Entries[0].MemberID != "2" || got.Entries[0].Rank != 1 {
		t.Errorf("entries = %+v", got.Entries)
	}

	rec = ts.do(t, http.MethodGet, "/api/communities/empty/leaderboard?format=text", "")
	if body := rec.Body.String(); !strings.Contains(body, "No entries yet.") {
		t.Errorf("text body = %q", body)
	}
}

func TestAdminSettleAndReset(t *testing.T) {
	ts := setupHandlers(t)

	ts.do(t, http.MethodPost, "/api/members/1/join", `{"community":"g1"}`)

	rec := ts.do(t, http.MethodPost, "/api/admin/settle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("settle status = %d: %s", rec.Code, rec.Body)
	}
	report := decode[engine.SettlementReport](t, rec)
	if report.Penalized != 1 || report.RunID == "" {
		t.Errorf("report = %+v", report)
	}

	rec = ts.do(t, http.MethodPost, "/api/admin/settle", "")
	if again := decode[engine.SettlementReport](t, rec); !again.Skipped {
		t.Error("expected second settlement skipped")
	}

	rec = ts.do(t, http.MethodPost, "/api/admin/reset-weekly", "")
	if got := decode[map[string]int](t, rec); got["changed"] != 1 {
		t.Errorf("reset weekly = %v", got)
	}
	rec = ts.do(t, http.MethodPost, "/api/admin/reset-points", "")
	if got := decode[map[string]int](t, rec); got["changed"] != 1 {
		t.Errorf("reset points = %v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/admin/sweep", "")
	if rec.Code != http.StatusOK {
		t.Errorf("sweep status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	ts := setupHandlers(t)

	rec := ts.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	ts.db.Close()
	rec = ts.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after close = %d, want 503", rec.Code)
	}
}
