package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/accountable/internal/model"
)

type SettlementReport struct {
	RunID     string     `json:"run_id"`
	Date      model.Date `json:"date"`
	Skipped   bool       `json:"skipped"`
	Penalized int        `json:"penalized"`
	Protected int        `json:"protected"`
	Recorded  int        `json:"recorded"`
}

type settleOutcome int

const (
	settleRecorded settleOutcome = iota
	settleProtected
	settlePenalized
	settleMissing
)

// RunDailySettlement closes out today: every member without an entry for
// today is either marked protected (inside a leave window) or charged the
// maximum penalty. It runs at most once per calendar day; later calls the
// same day return a report with Skipped set. Concurrent calls run one after
// the other.
//
// The settlement date is saved only after every member has been written, so
// a run that fails part way is resumed by the next call.
func (e *Engine) RunDailySettlement(ctx context.Context) (SettlementReport, error) {
	e.settleMu.Lock()
	defer e.settleMu.Unlock()

	start := time.Now()
	defer func() {
		e.metrics.JobDuration.WithLabelValues("settlement").Observe(time.Since(start).Seconds())
	}()

	now := e.now()
	today := model.DateOf(now)
	report := SettlementReport{RunID: uuid.NewString(), Date: today}
	log := e.logger.With("job", "settlement", "run_id", report.RunID, "day", today)

	last, err := e.state.LastSettlementDate(ctx)
	if err != nil {
		e.metrics.SettlementRuns.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("get last settlement date: %w", err)
	}
	if last == today {
		report.Skipped = true
		e.metrics.SettlementRuns.WithLabelValues("skipped").Inc()
		log.Debug("settlement already ran today")
		return report, nil
	}

	rollover := now.Day() == 1 || (last != "" && last.MonthKey() != today.MonthKey())

	ids, err := e.members.ListIDs(ctx)
	if err != nil {
		e.metrics.SettlementRuns.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("list members: %w", err)
	}

	communities := make(map[string]struct{})
	for _, c := range e.cfg.Communities {
		communities[c] = struct{}{}
	}

	for _, id := range ids {
		outcome, community, err := e.settleMember(ctx, id, today, rollover)
		if err != nil {
			e.metrics.SettlementRuns.WithLabelValues("failed").Inc()
			log.Error("settlement aborted", "member_id", id, "error", err)
			return report, fmt.Errorf("settle member %s: %w", id, err)
		}
		switch outcome {
		case settleRecorded:
			report.Recorded++
			e.metrics.SettlementOutcomes.WithLabelValues("recorded").Inc()
		case settleProtected:
			report.Protected++
			e.metrics.SettlementOutcomes.WithLabelValues("protected").Inc()
		case settlePenalized:
			report.Penalized++
			e.metrics.SettlementOutcomes.WithLabelValues("penalized").Inc()
		}
		if community != "" {
			communities[community] = struct{}{}
		}
	}

	for _, c := range sortedKeys(communities) {
		e.publishLeaderboard(ctx, c)
	}

	if err := e.state.SetLastSettlementDate(ctx, today); err != nil {
		e.metrics.SettlementRuns.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("set last settlement date: %w", err)
	}

	e.metrics.SettlementRuns.WithLabelValues("completed").Inc()
	log.Info("settlement completed",
		"penalized", report.Penalized,
		"protected", report.Protected,
		"recorded", report.Recorded,
		"rollover", rollover,
	)
	return report, nil
}

func (e *Engine) settleMember(ctx context.Context, id string, today model.Date, rollover bool) (settleOutcome, string, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	m, err := e.members.Get(ctx, id)
	if err != nil {
		return 0, "", fmt.Errorf("get member: %w", err)
	}
	if m == nil {
		return settleMissing, "", nil
	}

	changed := false
	if rollover {
		changed = dropStaleLeave(m, today.MonthKey())
	}

	var outcome settleOutcome
	switch {
	case m.DailyPoints.Has(today):
		outcome = settleRecorded
	case m.LastValidLogAt != nil && model.DateOf(m.LastValidLogAt.In(e.cfg.Location)) == today:
		// Logged today, ledger cleared by a reset since.
		outcome = settleRecorded
	case m.IsProtected(today):
		m.DailyPoints.Record(today, model.Protected())
		outcome = settleProtected
		changed = true
	default:
		penalty := -e.cfg.Rules.MaxPenalty()
		m.AddPoints(penalty)
		m.DailyPoints.Record(today, model.Score(penalty))
		outcome = settlePenalized
		changed = true
	}

	if !changed {
		return outcome, m.Community, nil
	}
	if err := e.members.Put(ctx, m); err != nil {
		return 0, "", fmt.Errorf("put member: %w", err)
	}
	return outcome, m.Community, nil
}

// dropStaleLeave removes leave counters for months other than current. The
// current month's counter is left alone so grants already made today count.
func dropStaleLeave(m *model.MemberRecord, current string) bool {
	changed := false
	for month := range m.LeaveUsed {
		if month != current {
			delete(m.LeaveUsed, month)
			changed = true
		}
	}
	return changed
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
