package engine

import (
	"context"
	"fmt"

	"github.com/dukerupert/accountable/internal/model"
)

type LeaveResult struct {
	Granted        bool        `json:"granted"`
	ProtectedUntil *model.Date `json:"protected_until,omitempty"`
	Remaining      int         `json:"remaining"`
	Reason         Reason      `json:"reason,omitempty"`
	Message        string      `json:"message,omitempty"`
}

// GrantLeave spends one of the member's monthly leave grants and protects
// today plus the following ProtectDays-1 days. A new grant replaces the
// current window rather than extending it.
func (e *Engine) GrantLeave(ctx context.Context, memberID, community, note string) (LeaveResult, error) {
	now := e.now()
	today := model.DateOf(now)
	monthKey := model.MonthKey(now)
	log := e.logger.With("member_id", memberID, "day", today)

	unlock := e.locks.lock(memberID)
	m, err := e.members.GetOrCreate(ctx, memberID)
	if err != nil {
		unlock()
		return LeaveResult{}, fmt.Errorf("load member %s: %w", memberID, err)
	}

	used := m.LeaveUsed[monthKey]
	if used >= e.cfg.LeaveQuota {
		unlock()
		e.metrics.LeaveRequests.WithLabelValues(string(ReasonQuotaExhausted)).Inc()
		log.Info("leave refused", "month", monthKey, "used", used)
		return LeaveResult{
			Reason:  ReasonQuotaExhausted,
			Message: ReasonQuotaExhausted.Message(),
		}, nil
	}

	until := today.AddDays(e.cfg.ProtectDays - 1)

	m.LeaveUsed[monthKey] = used + 1
	m.ProtectedUntil = &until
	// A log accepted earlier today keeps its score.
	m.DailyPoints.Record(today, model.Protected())
	m.LastValidLogAt = &now
	m.WarnedAt = nil
	if community != "" {
		m.Community = community
	}

	if err := e.members.Put(ctx, m); err != nil {
		unlock()
		return LeaveResult{}, fmt.Errorf("put member %s: %w", memberID, err)
	}
	unlock()

	e.metrics.LeaveRequests.WithLabelValues("granted").Inc()
	log.Info("leave granted", "protected_until", until, "note", note, "used", used+1)

	e.broadcastMember("leave", m.Community, memberID)

	return LeaveResult{
		Granted:        true,
		ProtectedUntil: &until,
		Remaining:      e.cfg.LeaveQuota - (used + 1),
	}, nil
}
