package pdca

import (
	"context"
	"log"
	"time"

	domain "github.com/bryanwahyu/quorum-comply/internal/domain/pdca"
)

// Trigger starts a re-assessment for a due cycle. Wired to the assessment
// orchestrator in main; kept as a local interface so this package never
// imports it.
type Trigger interface {
	TriggerReassessment(tenant, systemID, frameworkID string)
}

// Scheduler scans for due cycles and re-triggers assessment. act -> plan
// happens here; plan -> do happens when the triggered run starts.
type Scheduler struct {
	Cycles   *Service
	Runner   Trigger
	Interval time.Duration
	Batch    int
}

func (s *Scheduler) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return time.Minute
}

func (s *Scheduler) batch() int {
	if s.Batch > 0 {
		return s.Batch
	}
	return 50
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.Cycles.clock().Now()
	due, err := s.Cycles.Repo.Due(ctx, now, s.batch())
	if err != nil {
		log.Printf("pdca scheduler: due lookup error: %v", err)
		return
	}
	for _, c := range due {
		if c.Phase == domain.PhaseAct {
			c.Phase = domain.PhasePlan
			c.CycleStartedAt = now
		}
		// push next_due_at forward before triggering so a slow run can't
		// double-fire on the next tick
		c.NextDueAt = now.Add(s.Cycles.cadence())
		if err := s.Cycles.Repo.Save(ctx, c); err != nil {
			log.Printf("pdca scheduler: save error: key=%s err=%v", c.Key(), err)
			continue
		}
		log.Printf("pdca scheduler: reassessment due: key=%s phase=%s", c.Key(), c.Phase)
		s.Runner.TriggerReassessment(c.TenantID, c.SystemID, c.FrameworkID)
	}
}
