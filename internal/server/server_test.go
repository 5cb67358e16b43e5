package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/accountable/internal/database"
	"github.com/dukerupert/accountable/internal/engine"
	"github.com/dukerupert/accountable/internal/metrics"
	"github.com/dukerupert/accountable/internal/store"
	ws "github.com/dukerupert/accountable/internal/websocket"
)

func setupServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	hub := ws.NewHub(logger)
	eng := engine.New(engine.DefaultConfig(), store.NewMemberStore(db), store.NewStateStore(db),
		engine.WithMetrics(metrics.New(reg)),
		engine.WithBroadcaster(hub),
	)

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	srv := New(db, eng, hub, reg, Options{AdminTokenHash: string(hash), LogsPerMinute: 1}, logger)
	return srv.Router()
}

func serve(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := setupServer(t)

	if rec := serve(h, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}

	serve(h, http.MethodPost, "/api/members/1/logs", `{"text":"rest day"}`, "")

	rec := serve(h, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `accountable_submissions_total{result="accepted"} 1`) {
		t.Errorf("metrics output missing submission counter:\n%s", rec.Body)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	h := setupServer(t)

	if rec := serve(h, http.MethodPost, "/api/admin/settle", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/api/admin/settle", "", "wrong"); rec.Code != http.StatusForbidden {
		t.Errorf("wrong token status = %d, want 403", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/api/admin/settle", "", "admin-token"); rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", rec.Code)
	}
}

func TestLogSubmissionsRateLimitedPerMember(t *testing.T) {
	h := setupServer(t)

	for i := 0; i < 3; i++ {
		if rec := serve(h, http.MethodPost, "/api/members/1/logs", `{"text":"x"}`, ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}
	if rec := serve(h, http.MethodPost, "/api/members/1/logs", `{"text":"x"}`, ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/api/members/2/logs", `{"text":"x"}`, ""); rec.Code != http.StatusOK {
		t.Errorf("other member status = %d, want 200", rec.Code)
	}
}
