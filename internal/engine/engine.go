package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/accountable/internal/leaderboard"
	"github.com/dukerupert/accountable/internal/metrics"
	"github.com/dukerupert/accountable/internal/model"
	"github.com/dukerupert/accountable/internal/scoring"
	"github.com/dukerupert/accountable/internal/websocket"
)

// ErrNoGateway is returned for notifications when no community gateway is
// configured.
var ErrNoGateway = errors.New("no community gateway configured")

// ErrNotify wraps every failed gateway call.
var ErrNotify = errors.New("gateway call failed")

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Members is the durable member record store.
type Members interface {
	Get(ctx context.Context, id string) (*model.MemberRecord, error)
	GetOrCreate(ctx context.Context, id string) (*model.MemberRecord, error)
	Put(ctx context.Context, m *model.MemberRecord) error
	ListIDs(ctx context.Context) ([]string, error)
	ListByCommunity(ctx context.Context, community string) ([]*model.MemberRecord, error)
}

// State is the process-wide state store.
type State interface {
	LastSettlementDate(ctx context.Context) (model.Date, error)
	SetLastSettlementDate(ctx context.Context, d model.Date) error
	LeaderboardHandle(ctx context.Context, community string) (string, error)
	SetLeaderboardHandle(ctx context.Context, community, handle string) error
}

// Gateway reaches members of the community.
type Gateway interface {
	Notify(ctx context.Context, memberID, text string) error
	Remove(ctx context.Context, community, memberID, reason string) error
}

// Display publishes leaderboard content and returns a handle that later
// updates refer to.
type Display interface {
	Publish(ctx context.Context, community, content string) (string, error)
	Update(ctx context.Context, community, handle, content string) error
}

// Broadcaster pushes live updates to connected dashboards.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type Config struct {
	Location         *time.Location
	Rules            scoring.Rules
	LeaveQuota       int
	ProtectDays      int
	WarnAfter        time.Duration
	KickAfter        time.Duration
	LeaderboardSize  int
	SweepConcurrency int
	// Communities always get a leaderboard after settlement, even when none
	// of their members was touched.
	Communities []string
}

// DefaultConfig returns the standard policy in UTC.
func DefaultConfig() Config {
	return Config{
		Location:         time.UTC,
		Rules:            scoring.DefaultRules(),
		LeaveQuota:       3,
		ProtectDays:      2,
		WarnAfter:        36 * time.Hour,
		KickAfter:        48 * time.Hour,
		LeaderboardSize:  leaderboard.DefaultSize,
		SweepConcurrency: 4,
	}
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithGateway(g Gateway) Option {
	return func(e *Engine) { e.gateway = g }
}

func WithDisplay(d Display) Option {
	return func(e *Engine) { e.display = d }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(e *Engine) { e.hub = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine applies the accountability rules to member records. Every mutation
// of a member runs under that member's lock and is persisted before the
// call returns.
type Engine struct {
	cfg     Config
	members Members
	state   State
	gateway Gateway
	display Display
	hub     Broadcaster
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	locks    *memberLocks
	settleMu sync.Mutex
	sweepMu  sync.Mutex
}

func New(cfg Config, members Members, state State, opts ...Option) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = leaderboard.DefaultSize
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 1
	}

	e := &Engine{
		cfg:     cfg,
		members: members,
		state:   state,
		clock:   ClockFunc(time.Now),
		locks:   newMemberLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	return e
}

// Config returns the engine's policy settings.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) now() time.Time {
	return e.clock.Now().In(e.cfg.Location)
}

func (e *Engine) notify(ctx context.Context, memberID, text string) error {
	if e.gateway == nil {
		return ErrNoGateway
	}
	if err := e.gateway.Notify(ctx, memberID, text); err != nil {
		return fmt.Errorf("%w: notify %s: %w", ErrNotify, memberID, err)
	}
	return nil
}

func (e *Engine) remove(ctx context.Context, community, memberID, reason string) error {
	if e.gateway == nil {
		return ErrNoGateway
	}
	if err := e.gateway.Remove(ctx, community, memberID, reason); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrNotify, memberID, err)
	}
	return nil
}

// Leaderboard returns the current ranking for community.
func (e *Engine) Leaderboard(ctx context.Context, community string) ([]leaderboard.Entry, error) {
	members, err := e.members.ListByCommunity(ctx, community)
	if err != nil {
		return nil, err
	}
	return leaderboard.Rank(members, e.cfg.LeaderboardSize), nil
}

// publishLeaderboard recomputes the ranking for community and pushes it to
// the display and dashboards. Failures are logged, not returned.
func (e *Engine) publishLeaderboard(ctx context.Context, community string) {
	if community == "" {
		return
	}
	log := e.logger.With("community", community)

	entries, err := e.Leaderboard(ctx, community)
	if err != nil {
		log.Error("compute leaderboard", "error", err)
		return
	}

	if e.hub != nil {
		e.hub.Broadcast(websocket.NewMessage("leaderboard", "updated", community, map[string]any{
			"entries": entries,
		}))
	}

	if e.display == nil {
		return
	}
	content := leaderboard.Render(entries)

	handle, err := e.state.LeaderboardHandle(ctx, community)
	if err != nil {
		log.Error("get leaderboard handle", "error", err)
	}
	if handle != "" {
		err := e.display.Update(ctx, community, handle, content)
		if err == nil {
			return
		}
		log.Warn("update leaderboard, publishing a new one", "handle", handle, "error", err)
	}

	newHandle, err := e.display.Publish(ctx, community, content)
	if err != nil {
		e.metrics.PublishFailures.Inc()
		log.Error("publish leaderboard", "error", err)
		return
	}
	if err := e.state.SetLeaderboardHandle(ctx, community, newHandle); err != nil {
		log.Error("save leaderboard handle", "handle", newHandle, "error", err)
	}
}

func (e *Engine) broadcastMember(action, community, memberID string) {
	if e.hub == nil {
		return
	}
	e.hub.Broadcast(websocket.NewMessage("member", action, community, map[string]any{"member_id": memberID}))
}
