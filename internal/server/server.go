package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/accountable/internal/engine"
	"github.com/dukerupert/accountable/internal/handler"
	"github.com/dukerupert/accountable/internal/middleware"
	ws "github.com/dukerupert/accountable/internal/websocket"
)

// Options are the HTTP-facing settings.
type Options struct {
	AdminTokenHash string
	AllowedOrigins []string
	// LogsPerMinute caps log submissions per member.
	LogsPerMinute int
}

type Server struct {
	hub          *ws.Hub
	gatherer     prometheus.Gatherer
	memberH      *handler.MemberHandler
	leaderboardH *handler.LeaderboardHandler
	adminH       *handler.AdminHandler
	healthH      *handler.HealthHandler
	rateLimiter  *middleware.RateLimiter
	opts         Options
	logger       *slog.Logger
}

func New(db *sql.DB, eng *engine.Engine, hub *ws.Hub, gatherer prometheus.Gatherer, opts Options, logger *slog.Logger) *Server {
	if opts.LogsPerMinute <= 0 {
		opts.LogsPerMinute = 6
	}
	return &Server{
		hub:          hub,
		gatherer:     gatherer,
		memberH:      handler.NewMemberHandler(eng, logger.With("component", "member")),
		leaderboardH: handler.NewLeaderboardHandler(eng, logger.With("component", "leaderboard")),
		adminH:       handler.NewAdminHandler(eng, logger.With("component", "admin")),
		healthH:      handler.NewHealthHandler(db),
		rateLimiter:  middleware.NewRateLimiter(opts.LogsPerMinute, 3),
		opts:         opts,
		logger:       logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	apiMux := http.NewServeMux()
	s.registerRoutes(apiMux)
	outerMux.Handle("/", middleware.RequestLogger(s.logger.With("component", "http"))(apiMux))

	// The upgrade needs the raw ResponseWriter, so the dashboard feed skips
	// the request logger.
	outerMux.Handle("GET /ws", ws.Handler(s.hub, s.opts.AllowedOrigins, s.logger.With("component", "websocket")))

	return middleware.Recoverer(s.logger)(outerMux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.healthH.Check)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /api/members/{id}/join", s.memberH.Join)
	mux.HandleFunc("POST /api/members/{id}/logs", s.perMember(s.memberH.SubmitLog))
	mux.HandleFunc("POST /api/members/{id}/leave", s.memberH.Leave)
	mux.HandleFunc("GET /api/members/{id}/stats", s.memberH.Stats)
	mux.HandleFunc("GET /api/communities/{community}/leaderboard", s.leaderboardH.Get)

	admin := middleware.RequireAdminToken(s.opts.AdminTokenHash)
	mux.Handle("POST /api/admin/reset-points", admin(http.HandlerFunc(s.adminH.ResetPoints)))
	mux.Handle("POST /api/admin/reset-weekly", admin(http.HandlerFunc(s.adminH.ResetWeekly)))
	mux.Handle("POST /api/admin/settle", admin(http.HandlerFunc(s.adminH.Settle)))
	mux.Handle("POST /api/admin/sweep", admin(http.HandlerFunc(s.adminH.Sweep)))
}

func (s *Server) perMember(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return "member:" + r.PathValue("id")
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc)(h)
	return rl.ServeHTTP
}
