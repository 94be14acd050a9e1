package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/quorum-comply/internal/domain/agents"
	"github.com/bryanwahyu/quorum-comply/internal/domain/consensus"
	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
)

// PoolConfig bounds the fan-out so providers are not hammered with the
// whole roster at once.
type PoolConfig struct {
	MaxConcurrent        int
	CallTimeout          time.Duration
	PollTimeout          time.Duration
	MinReachableFraction float64
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 20 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 90 * time.Second
	}
	if c.MinReachableFraction <= 0 {
		c.MinReachableFraction = 0.5
	}
	return c
}

// Pool fans one question out to every active agent concurrently and
// collects votes. Holds no cross-run state; safe for reentrant use.
type Pool struct {
	evaluators map[string]domain.Evaluator
	cfg        PoolConfig
}

// NewPool binds provider names to their evaluator implementations.
func NewPool(evaluators map[string]domain.Evaluator, cfg PoolConfig) *Pool {
	return &Pool{evaluators: evaluators, cfg: cfg.withDefaults()}
}

// Poll asks every agent the same question. A failing or slow agent never
// blocks the others: it is recorded as an abstain vote with an explicit
// rationale, so the quorum denominator is always the full roster. When the
// reachable fraction drops below the configured minimum, the whole poll is
// surfaced as a quorum infrastructure failure.
func (p *Pool) Poll(ctx context.Context, q frameworks.Question, roster []domain.Agent) ([]domain.AgentVote, error) {
	if len(roster) == 0 {
		return nil, fmt.Errorf("%w: empty roster", domain.ErrQuorumInfrastructure)
	}

	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	votes := make([]domain.AgentVote, len(roster))
	reachable := 0
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxConcurrent)

	for i, agent := range roster {
		i, agent := i, agent
		g.Go(func() error {
			vote, ok := p.askOne(pollCtx, agent, q)
			mu.Lock()
			votes[i] = vote
			if ok {
				reachable++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if frac := float64(reachable) / float64(len(roster)); frac < p.cfg.MinReachableFraction {
		return votes, fmt.Errorf("%w: %d of %d agents reachable", domain.ErrQuorumInfrastructure, reachable, len(roster))
	}
	return votes, nil
}

// askOne runs a single agent call under the per-call timeout and flattens
// every failure mode into an abstain vote. The bool reports whether the
// agent was reachable at all (a deliberate abstain still counts).
func (p *Pool) askOne(ctx context.Context, agent domain.Agent, q frameworks.Question) (domain.AgentVote, bool) {
	ev, ok := p.evaluators[agent.Provider]
	if !ok {
		return abstain(q.ID, agent, domain.ErrUnknownProvider.Error()), false
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	vote, err := ev.Ask(callCtx, agent, q)
	if err != nil {
		rationale := "timeout"
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			rationale = err.Error()
		}
		return abstain(q.ID, agent, rationale), false
	}

	// normalize: the pool owns identity fields, evaluators own the verdict
	vote.QuestionID = q.ID
	vote.AgentID = agent.ID
	vote.Provider = agent.Provider
	if vote.LatencyMS == 0 {
		vote.LatencyMS = time.Since(start).Milliseconds()
	}
	if !vote.Verdict.IsCountable() && vote.Verdict != consensus.VerdictAbstain {
		vote = abstain(q.ID, agent, fmt.Sprintf("unrecognized verdict %q", vote.Verdict))
	}
	return vote, true
}

func abstain(questionID string, agent domain.Agent, rationale string) domain.AgentVote {
	return domain.AgentVote{
		QuestionID: questionID,
		AgentID:    agent.ID,
		Provider:   agent.Provider,
		Verdict:    consensus.VerdictAbstain,
		Rationale:  rationale,
	}
}
