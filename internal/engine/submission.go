package engine

import (
	"context"
	"fmt"

	"github.com/dukerupert/accountable/internal/model"
	"github.com/dukerupert/accountable/internal/parse"
	"github.com/dukerupert/accountable/internal/scoring"
)

// Submission is one daily log as posted by a member.
type Submission struct {
	MemberID  string
	Community string
	Text      string
}

type SubmissionResult struct {
	Accepted  bool                `json:"accepted"`
	Score     int                 `json:"score"`
	Breakdown []scoring.Criterion `json:"breakdown,omitempty"`
	Reason    Reason              `json:"reason,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// ProcessSubmission parses the log text and applies it.
func (e *Engine) ProcessSubmission(ctx context.Context, sub Submission) (SubmissionResult, error) {
	return e.ProcessMetrics(ctx, sub.MemberID, sub.Community, parse.Metrics(sub.Text))
}

// ProcessMetrics applies an already-parsed daily log. A log is rejected when
// the member is under protection or has already logged on this calendar
// day; rejections leave the record untouched.
func (e *Engine) ProcessMetrics(ctx context.Context, memberID, community string, metrics model.Metrics) (SubmissionResult, error) {
	now := e.now()
	today := model.DateOf(now)
	log := e.logger.With("member_id", memberID, "day", today)

	unlock := e.locks.lock(memberID)
	m, err := e.members.GetOrCreate(ctx, memberID)
	if err != nil {
		unlock()
		return SubmissionResult{}, fmt.Errorf("load member %s: %w", memberID, err)
	}

	reason := e.rejectReason(m, today)
	if reason != "" {
		unlock()
		e.metrics.Submissions.WithLabelValues(string(reason)).Inc()
		log.Info("submission rejected", "reason", reason)
		return SubmissionResult{Reason: reason, Message: reason.Message()}, nil
	}

	res := scoring.Score(metrics, e.cfg.Rules)

	m.LastValidLogAt = &now
	m.DailyPoints.Record(today, model.Score(res.Total))
	m.AddPoints(res.Total)
	m.WarnedAt = nil
	if community != "" {
		m.Community = community
	}

	if err := e.members.Put(ctx, m); err != nil {
		unlock()
		return SubmissionResult{}, fmt.Errorf("put member %s: %w", memberID, err)
	}
	unlock()

	e.metrics.Submissions.WithLabelValues("accepted").Inc()
	e.metrics.SubmissionPoints.Observe(float64(res.Total))
	log.Info("submission accepted", "score", res.Total, "weekly_points", m.WeeklyPoints)

	e.broadcastMember("logged", m.Community, memberID)
	e.publishLeaderboard(ctx, m.Community)

	return SubmissionResult{
		Accepted:  true,
		Score:     res.Total,
		Breakdown: res.Breakdown,
	}, nil
}

func (e *Engine) rejectReason(m *model.MemberRecord, today model.Date) Reason {
	if m.IsProtected(today) {
		return ReasonProtected
	}
	if m.LastValidLogAt != nil && model.DateOf(m.LastValidLogAt.In(e.cfg.Location)) == today {
		return ReasonAlreadyLogged
	}
	// Settlement already closed today for this member.
	if m.DailyPoints.Has(today) {
		return ReasonDaySettled
	}
	return ""
}
