package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/accountable/internal/model"
)

// Stats is a member's standing as shown to the member.
type Stats struct {
	MemberID       string      `json:"member_id"`
	Community      string      `json:"community"`
	WeeklyPoints   int         `json:"weekly_points"`
	TotalPoints    int         `json:"total_points"`
	LeaveUsed      int         `json:"leave_used"`
	LeaveRemaining int         `json:"leave_remaining"`
	ProtectedUntil *model.Date `json:"protected_until,omitempty"`
	LastValidLogAt *time.Time  `json:"last_valid_log_at,omitempty"`
	Removed        bool        `json:"removed"`
}

// Join records that memberID entered community at joinedAt; a zero joinedAt
// means now. The join time is the inactivity baseline until the first valid
// log. Repeated joins keep the first join time. A member rejoining after
// removal starts a fresh silence episode.
func (e *Engine) Join(ctx context.Context, memberID, community string, joinedAt time.Time) error {
	if joinedAt.IsZero() {
		joinedAt = e.now()
	}

	unlock := e.locks.lock(memberID)
	defer unlock()

	m, err := e.members.GetOrCreate(ctx, memberID)
	if err != nil {
		return fmt.Errorf("load member %s: %w", memberID, err)
	}

	rejoin := m.IsRemoved()
	if community != "" {
		m.Community = community
	}
	if rejoin || m.JoinedAt == nil {
		m.JoinedAt = &joinedAt
	}
	if rejoin {
		m.RemovedAt = nil
		m.LastValidLogAt = nil
		m.WarnedAt = nil
	}

	if err := e.members.Put(ctx, m); err != nil {
		return fmt.Errorf("put member %s: %w", memberID, err)
	}

	e.logger.Info("member joined", "member_id", memberID, "community", community, "rejoin", rejoin)
	e.broadcastMember("joined", m.Community, memberID)
	return nil
}

// Stats returns the standing of memberID, or nil if the member has never
// been seen. It never creates a record.
func (e *Engine) Stats(ctx context.Context, memberID string) (*Stats, error) {
	m, err := e.members.Get(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", memberID, err)
	}
	if m == nil {
		return nil, nil
	}

	used := m.LeaveUsed[model.MonthKey(e.now())]
	remaining := e.cfg.LeaveQuota - used
	if remaining < 0 {
		remaining = 0
	}
	return &Stats{
		MemberID:       m.ID,
		Community:      m.Community,
		WeeklyPoints:   m.WeeklyPoints,
		TotalPoints:    m.TotalPoints,
		LeaveUsed:      used,
		LeaveRemaining: remaining,
		ProtectedUntil: m.ProtectedUntil,
		LastValidLogAt: m.LastValidLogAt,
		Removed:        m.IsRemoved(),
	}, nil
}

// ResetAllPoints zeroes weekly and total points and clears every ledger.
// Leave counters and protection windows are kept. It returns the number of
// records changed.
func (e *Engine) ResetAllPoints(ctx context.Context) (int, error) {
	return e.resetEach(ctx, "reset_all", func(m *model.MemberRecord) bool {
		if m.WeeklyPoints == 0 && m.TotalPoints == 0 && len(m.DailyPoints) == 0 {
			return false
		}
		m.WeeklyPoints = 0
		m.TotalPoints = 0
		m.DailyPoints = model.Ledger{}
		return true
	})
}

// ResetWeeklyPoints zeroes the weekly accumulator only.
func (e *Engine) ResetWeeklyPoints(ctx context.Context) (int, error) {
	return e.resetEach(ctx, "reset_weekly", func(m *model.MemberRecord) bool {
		if m.WeeklyPoints == 0 {
			return false
		}
		m.WeeklyPoints = 0
		return true
	})
}

func (e *Engine) resetEach(ctx context.Context, action string, apply func(*model.MemberRecord) bool) (int, error) {
	ids, err := e.members.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list members: %w", err)
	}

	communities := make(map[string]struct{})
	for _, c := range e.cfg.Communities {
		communities[c] = struct{}{}
	}

	changed := 0
	for _, id := range ids {
		community, ok, err := e.resetMember(ctx, id, apply)
		if err != nil {
			return changed, err
		}
		if community != "" {
			communities[community] = struct{}{}
		}
		if ok {
			changed++
		}
	}

	for _, c := range sortedKeys(communities) {
		e.publishLeaderboard(ctx, c)
	}

	e.logger.Info("points reset", "action", action, "changed", changed)
	return changed, nil
}

func (e *Engine) resetMember(ctx context.Context, id string, apply func(*model.MemberRecord) bool) (string, bool, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	m, err := e.members.Get(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("get member %s: %w", id, err)
	}
	if m == nil || !apply(m) {
		return "", false, nil
	}
	if err := e.members.Put(ctx, m); err != nil {
		return "", false, fmt.Errorf("put member %s: %w", id, err)
	}
	return m.Community, true, nil
}
