package agents

import (
	"context"

	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
)

// Evaluator port: one external evaluator provider behind a request/response
// contract. Implementations enforce a bounded per-call timeout and never
// retry internally; retry policy belongs to the pool.
type Evaluator interface {
	Ask(ctx context.Context, agent Agent, q frameworks.Question) (AgentVote, error)
}
