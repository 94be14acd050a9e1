package pdca

import (
	"fmt"
	"time"
)

// Phase enum: plan -> do -> check -> act -> plan (next cycle). Cycles have
// no terminal phase; they repeat until the system is deregistered.
type Phase string

const (
	PhasePlan  Phase = "plan"
	PhaseDo    Phase = "do"
	PhaseCheck Phase = "check"
	PhaseAct   Phase = "act"
)

// Next returns the successor phase.
func (p Phase) Next() Phase {
	switch p {
	case PhasePlan:
		return PhaseDo
	case PhaseDo:
		return PhaseCheck
	case PhaseCheck:
		return PhaseAct
	default:
		return PhasePlan
	}
}

// Cycle tracks the recurring improvement loop for one (system, framework)
// pair. Exactly one active cycle exists per pair.
type Cycle struct {
	TenantID         string    `json:"tenant_id"`
	SystemID         string    `json:"system_id"`
	FrameworkID      string    `json:"framework_id"`
	Phase            Phase     `json:"phase"`
	CycleStartedAt   time.Time `json:"cycle_started_at"`
	LastAssessmentID string    `json:"last_assessment_id,omitempty"`
	NextDueAt        time.Time `json:"next_due_at"`
}

// Key identifies the pair the cycle belongs to.
func (c Cycle) Key() string {
	return fmt.Sprintf("%s/%s/%s", c.TenantID, c.SystemID, c.FrameworkID)
}
