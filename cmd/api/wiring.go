package main

import (
	"log"

	appassess "github.com/bryanwahyu/quorum-comply/internal/application/assessments"
	"github.com/bryanwahyu/quorum-comply/internal/config"
	"github.com/bryanwahyu/quorum-comply/internal/domain/agents"
	"github.com/bryanwahyu/quorum-comply/internal/domain/consensus"
)

// consensusPolicy derives the quorum policy from config. Roster size always
// comes from the configured roster, never from the policy defaults.
func consensusPolicy(cfg *config.Config, roster agents.Roster) consensus.Policy {
	p := consensus.DefaultPolicy()
	p.RosterSize = len(roster.Active())
	p.Threshold = cfg.Quorum.Threshold
	if cfg.Quorum.ProviderCapFraction > 0 {
		p.ProviderCapFraction = cfg.Quorum.ProviderCapFraction
	}
	if cfg.Quorum.MaxIndeterminateFraction > 0 {
		p.MaxIndeterminateFraction = cfg.Quorum.MaxIndeterminateFraction
	}
	return p
}

// reassessTrigger lets the pdca scheduler kick off a new run without the
// scheduler importing the assessment service.
type reassessTrigger struct {
	svc *appassess.Service
}

func (t reassessTrigger) TriggerReassessment(tenantID, systemID, frameworkID string) {
	go func() {
		_, err := t.svc.RunUntilDone(appassess.RunCommand{
			TenantID:     tenantID,
			SystemID:     systemID,
			FrameworkIDs: []string{frameworkID},
		})
		if err != nil {
			log.Printf("scheduled reassessment error tenant=%s system=%s framework=%s err=%v",
				tenantID, systemID, frameworkID, err)
		}
	}()
}
