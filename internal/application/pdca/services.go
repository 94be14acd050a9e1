package pdca

import (
	"context"
	"errors"
	"time"

	"github.com/bryanwahyu/quorum-comply/internal/application"
	"github.com/bryanwahyu/quorum-comply/internal/domain/assessments"
	domain "github.com/bryanwahyu/quorum-comply/internal/domain/pdca"
)

// Service implements the PDCA cycle state machine over persisted cycles.
// All current state is reconstructed from storage; nothing is held in
// process memory across requests.
type Service struct {
	Repo    domain.Repository
	Clock   application.Clock
	Cadence time.Duration // re-assessment cadence, e.g. quarterly
}

func (s *Service) clock() application.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return application.SystemClock{}
}

func (s *Service) cadence() time.Duration {
	if s.Cadence > 0 {
		return s.Cadence
	}
	return 90 * 24 * time.Hour
}

// Status returns the current cycle for the pair.
func (s *Service) Status(ctx context.Context, tenant, systemID, frameworkID string) (*domain.Cycle, error) {
	return s.Repo.Get(ctx, tenant, systemID, frameworkID)
}

// OnRunStarted creates the cycle on first assessment and moves plan -> do.
func (s *Service) OnRunStarted(ctx context.Context, tenant, systemID, frameworkID string, at time.Time) error {
	c, err := s.Repo.Get(ctx, tenant, systemID, frameworkID)
	if errors.Is(err, domain.ErrCycleNotFound) {
		c = &domain.Cycle{
			TenantID:       tenant,
			SystemID:       systemID,
			FrameworkID:    frameworkID,
			Phase:          domain.PhasePlan,
			CycleStartedAt: at,
			NextDueAt:      at.Add(s.cadence()),
		}
	} else if err != nil {
		return err
	}
	if c.Phase == domain.PhasePlan {
		c.Phase = domain.PhaseDo
	}
	return s.Repo.Save(ctx, c)
}

// OnAssessmentFinished advances do -> check on a completed run. Failed and
// indeterminate runs leave the phase untouched so the pair stays eligible
// for retry.
func (s *Service) OnAssessmentFinished(ctx context.Context, a *assessments.Assessment) error {
	c, err := s.Repo.Get(ctx, a.TenantID, a.SystemID, string(a.FrameworkID))
	if err != nil {
		return err
	}
	c.LastAssessmentID = string(a.ID)
	if a.Status == assessments.StatusCompleted && c.Phase == domain.PhaseDo {
		c.Phase = domain.PhaseCheck
		c.NextDueAt = s.clock().Now().Add(s.cadence())
	}
	return s.Repo.Save(ctx, c)
}

// Advance moves the cycle one phase forward on operator request
// (typically check -> act once improvement actions are planned).
func (s *Service) Advance(ctx context.Context, tenant, systemID, frameworkID string) (*domain.Cycle, error) {
	c, err := s.Repo.Get(ctx, tenant, systemID, frameworkID)
	if err != nil {
		return nil, err
	}
	c.Phase = c.Phase.Next()
	if c.Phase == domain.PhasePlan {
		// wrapped around: a fresh cycle begins
		c.CycleStartedAt = s.clock().Now()
	}
	if err := s.Repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
