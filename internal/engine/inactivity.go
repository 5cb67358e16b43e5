package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type SweepReport struct {
	RunID         string `json:"run_id"`
	Checked       int    `json:"checked"`
	Warned        int    `json:"warned"`
	Removed       int    `json:"removed"`
	WarnFailed    int    `json:"warn_failed"`
	RemoveFailed  int    `json:"remove_failed"`
	PersistFailed int    `json:"persist_failed"`
}

type escalation int

const (
	escalateNone escalation = iota
	escalateWarned
	escalateWarnFailed
	escalateRemoved
	escalateRemoveFailed
)

// RunInactivityPass warns members who have been silent longer than WarnAfter
// (once per silence episode) and removes those silent longer than KickAfter.
// Silence is measured from the last valid log, falling back to the join
// time; members with neither are treated as just active.
//
// Gateway failures are logged and counted. A failed warning is retried on
// the next pass; a failed removal is not retried within this pass. The
// returned error only reports failures to persist state.
func (e *Engine) RunInactivityPass(ctx context.Context) (SweepReport, error) {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	start := time.Now()
	defer func() {
		e.metrics.JobDuration.WithLabelValues("inactivity").Observe(time.Since(start).Seconds())
	}()

	now := e.now()
	report := SweepReport{RunID: uuid.NewString()}
	log := e.logger.With("job", "inactivity", "run_id", report.RunID)

	ids, err := e.members.ListIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list members: %w", err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.cfg.SweepConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			action, err := e.escalateMember(ctx, id, now)

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if err != nil {
				report.PersistFailed++
				log.Error("escalation not saved", "member_id", id, "error", err)
				return fmt.Errorf("member %s: %w", id, err)
			}
			switch action {
			case escalateWarned:
				report.Warned++
			case escalateWarnFailed:
				report.WarnFailed++
			case escalateRemoved:
				report.Removed++
			case escalateRemoveFailed:
				report.RemoveFailed++
			}
			return nil
		})
	}
	err = g.Wait()

	log.Info("inactivity pass completed",
		"checked", report.Checked,
		"warned", report.Warned,
		"removed", report.Removed,
		"warn_failed", report.WarnFailed,
		"remove_failed", report.RemoveFailed,
	)
	if err != nil {
		return report, fmt.Errorf("inactivity pass: %w", err)
	}
	return report, nil
}

func (e *Engine) escalateMember(ctx context.Context, id string, now time.Time) (escalation, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	m, err := e.members.Get(ctx, id)
	if err != nil {
		return escalateNone, fmt.Errorf("get member: %w", err)
	}
	if m == nil || m.IsRemoved() {
		return escalateNone, nil
	}

	baseline := now
	switch {
	case m.LastValidLogAt != nil:
		baseline = *m.LastValidLogAt
	case m.JoinedAt != nil:
		baseline = *m.JoinedAt
	}
	silence := now.Sub(baseline)
	log := e.logger.With("member_id", id, "silence", silence.Round(time.Minute))

	switch {
	case silence > e.cfg.KickAfter:
		hours := e.cfg.KickAfter.Hours()
		if err := e.notify(ctx, id, removalText(hours)); err != nil {
			e.metrics.NotificationFailures.WithLabelValues("removal_notice").Inc()
			log.Warn("removal notice not delivered", "error", err)
		}
		if err := e.remove(ctx, m.Community, id, removalReason(hours)); err != nil {
			e.metrics.NotificationFailures.WithLabelValues("remove").Inc()
			log.Error("failed to remove member", "community", m.Community, "error", err)
			return escalateRemoveFailed, nil
		}

		m.RemovedAt = &now
		if err := e.members.Put(ctx, m); err != nil {
			return escalateRemoved, fmt.Errorf("put member: %w", err)
		}
		e.metrics.Escalations.WithLabelValues("removed").Inc()
		log.Info("member removed", "community", m.Community)
		e.broadcastMember("removed", m.Community, id)
		return escalateRemoved, nil

	case silence > e.cfg.WarnAfter && m.WarnedAt == nil:
		if err := e.notify(ctx, id, warningText(e.cfg.WarnAfter.Hours())); err != nil {
			e.metrics.NotificationFailures.WithLabelValues("warning").Inc()
			log.Warn("warning not delivered, will retry next pass", "error", err)
			return escalateWarnFailed, nil
		}

		m.WarnedAt = &now
		if err := e.members.Put(ctx, m); err != nil {
			return escalateWarned, fmt.Errorf("put member: %w", err)
		}
		e.metrics.Escalations.WithLabelValues("warned").Inc()
		log.Info("member warned")
		return escalateWarned, nil
	}

	return escalateNone, nil
}
