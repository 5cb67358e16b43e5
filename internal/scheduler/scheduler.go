package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/accountable/internal/engine"
)

// Jobs are the periodic operations the scheduler drives.
type Jobs interface {
	RunDailySettlement(ctx context.Context) (engine.SettlementReport, error)
	RunInactivityPass(ctx context.Context) (engine.SweepReport, error)
}

type Option func(*Scheduler)

// WithNow overrides the wall clock used to compute the settlement time.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler fires the daily settlement at a fixed time of day in loc and the
// inactivity pass on a fixed interval. A tick is skipped while the previous
// run of the same job is still going.
type Scheduler struct {
	jobs          Jobs
	loc           *time.Location
	settleAt      time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger

	settling sync.Mutex
	sweeping sync.Mutex
	running  sync.WaitGroup

	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a scheduler. settleAt is the offset from local midnight.
func New(jobs Jobs, loc *time.Location, settleAt, sweepInterval time.Duration, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		jobs:          jobs,
		loc:           loc,
		settleAt:      settleAt,
		sweepInterval: sweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// NextSettlement returns the first instant at or after now when the
// settlement should fire.
func NextSettlement(now time.Time, loc *time.Location, settleAt time.Duration) time.Time {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	next := midnight.Add(settleAt)
	if next.Before(local) {
		midnight = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
		next = midnight.Add(settleAt)
	}
	return next
}

// Start begins the scheduler loop. An inactivity pass runs right away.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		next := NextSettlement(s.now(), s.loc, s.settleAt)
		timer := time.NewTimer(next.Sub(s.now()))
		defer timer.Stop()
		s.logger.Info("scheduler started", "next_settlement", next, "sweep_interval", s.sweepInterval)

		s.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			case <-timer.C:
				s.settle(ctx)
				// Step past the instant just fired so a fast clock does not
				// fire twice for the same day.
				next = NextSettlement(s.now().Add(time.Second), s.loc, s.settleAt)
				timer.Reset(next.Sub(s.now()))
				s.logger.Debug("next settlement scheduled", "at", next)
			}
		}
	}()
}

// Stop cancels the loop and waits for any running job to return.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.running.Wait()
}

func (s *Scheduler) settle(ctx context.Context) {
	if !s.settling.TryLock() {
		s.logger.Warn("settlement still running, skipping tick")
		return
	}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer s.settling.Unlock()

		report, err := s.jobs.RunDailySettlement(ctx)
		if err != nil {
			s.logger.Error("daily settlement", "run_id", report.RunID, "error", err)
		}
	}()
}

func (s *Scheduler) sweep(ctx context.Context) {
	if !s.sweeping.TryLock() {
		s.logger.Warn("inactivity pass still running, skipping tick")
		return
	}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer s.sweeping.Unlock()

		report, err := s.jobs.RunInactivityPass(ctx)
		if err != nil {
			s.logger.Error("inactivity pass", "run_id", report.RunID, "error", err)
		}
	}()
}
