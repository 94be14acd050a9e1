package agents

import "errors"

// ErrAgentUnreachable indicates a single agent call failed or timed out.
// The pool absorbs it as an abstain vote; it never fails a run on its own.
var ErrAgentUnreachable = errors.New("agent unreachable")

// ErrQuorumInfrastructure indicates too few agents were reachable to even
// attempt quorum. Surfaced so the orchestrator marks the run failed instead
// of scoring on a crippled roster.
var ErrQuorumInfrastructure = errors.New("quorum infrastructure failure")

// ErrQuotaExceeded indicates the provider returned a quota/limit error
// (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("evaluator quota exceeded")

// ErrUnknownProvider indicates an agent references a provider with no
// registered evaluator.
var ErrUnknownProvider = errors.New("unknown evaluator provider")
