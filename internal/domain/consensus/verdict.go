package consensus

// Verdict enum
type Verdict string

const (
	VerdictCompliant    Verdict = "compliant"
	VerdictPartial      Verdict = "partial"
	VerdictNonCompliant Verdict = "non_compliant"
	VerdictAbstain      Verdict = "abstain"
)

// IsCountable reports whether the verdict counts toward quorum.
func (v Verdict) IsCountable() bool {
	return v == VerdictCompliant || v == VerdictPartial || v == VerdictNonCompliant
}

// Vote is the minimal view of an agent vote the aggregator needs.
type Vote struct {
	AgentID  string
	Provider string
	Verdict  Verdict
}

// Result of resolving one question across the roster.
type Result struct {
	QuestionID          string  `json:"question_id"`
	Verdict             Verdict `json:"verdict"`
	Confidence          float64 `json:"confidence"`
	QuorumReached       bool    `json:"quorum_reached"`
	DissentingProviders int     `json:"dissenting_providers"`
}
