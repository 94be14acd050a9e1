package agents

import (
	"github.com/bryanwahyu/quorum-comply/internal/domain/consensus"
)

// AgentID tipe untuk Agent
type AgentID string

// Agent is one evaluator in the roster. Agents belong to exactly one
// provider; providers exist to bound how much influence a single vendor
// carries in quorum math.
type Agent struct {
	ID       AgentID `json:"id" yaml:"id"`
	Provider string  `json:"provider" yaml:"provider"`
	Model    string  `json:"model,omitempty" yaml:"model,omitempty"`
	Active   bool    `json:"active" yaml:"active"`
}

// AgentVote is one agent's answer to one question in one run. Created once,
// never mutated; a new run supersedes it.
type AgentVote struct {
	QuestionID string            `json:"question_id"`
	AgentID    AgentID           `json:"agent_id"`
	Provider   string            `json:"provider"`
	Verdict    consensus.Verdict `json:"verdict"`
	Rationale  string            `json:"rationale,omitempty"`
	LatencyMS  int64             `json:"latency_ms"`
}

// ConsensusVote converts the vote to the aggregator's minimal view.
func (v AgentVote) ConsensusVote() consensus.Vote {
	return consensus.Vote{
		AgentID:  string(v.AgentID),
		Provider: v.Provider,
		Verdict:  v.Verdict,
	}
}

// Roster is the configured set of agents, grouped by provider.
type Roster struct {
	Agents []Agent `json:"agents" yaml:"agents"`
}

// Active returns the agents that may be polled.
func (r Roster) Active() []Agent {
	out := make([]Agent, 0, len(r.Agents))
	for _, a := range r.Agents {
		if a.Active {
			out = append(out, a)
		}
	}
	return out
}

// Providers returns the distinct provider count across active agents.
func (r Roster) Providers() int {
	seen := map[string]bool{}
	for _, a := range r.Active() {
		seen[a.Provider] = true
	}
	return len(seen)
}
