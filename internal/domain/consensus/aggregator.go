package consensus

import (
	"math"
)

// Policy holds the tunable quorum parameters. Roster size, threshold and
// provider cap vary by deployment, so none of these are constants.
type Policy struct {
	RosterSize               int
	Threshold                int     // 0 = derive ceil(2n/3)+1 from roster size
	ProviderCapFraction      float64 // max share of a winning block one provider may contribute
	MaxIndeterminateFraction float64 // over this fraction of unresolved questions the whole run is indeterminate
}

// DefaultPolicy mirrors the documented 33-agent / 23-vote deployment.
func DefaultPolicy() Policy {
	return Policy{
		RosterSize:               33,
		Threshold:                23,
		ProviderCapFraction:      1.0 / 3.0,
		MaxIndeterminateFraction: 0.25,
	}
}

// QuorumThreshold returns the vote count needed for quorum.
// When no explicit threshold is configured, use ceil(2n/3)+1.
func (p Policy) QuorumThreshold() int {
	if p.Threshold > 0 {
		if p.Threshold > p.RosterSize {
			return p.RosterSize
		}
		return p.Threshold
	}
	return (2*p.RosterSize+2)/3 + 1
}

// providerCapVotes is how many votes a single provider may contribute to a
// winning block of the given size before the block is considered captured.
func (p Policy) providerCapVotes(blockSize int) int {
	frac := p.ProviderCapFraction
	if frac <= 0 {
		frac = 1.0 / 3.0
	}
	return int(math.Ceil(frac * float64(blockSize)))
}

// Resolve applies the Byzantine quorum rules to the votes for one question.
// The denominator is always the full roster: callers must pass one vote per
// agent, with unreachable agents recorded as abstain.
func Resolve(questionID string, policy Policy, votes []Vote) Result {
	threshold := policy.QuorumThreshold()

	counts := map[Verdict]int{}
	providers := map[Verdict]map[string]int{}
	rosterProviders := map[string]bool{}
	nonAbstain := 0

	for _, v := range votes {
		rosterProviders[v.Provider] = true
		if !v.Verdict.IsCountable() {
			continue
		}
		nonAbstain++
		counts[v.Verdict]++
		if providers[v.Verdict] == nil {
			providers[v.Verdict] = map[string]int{}
		}
		providers[v.Verdict][v.Provider]++
	}

	if nonAbstain == 0 {
		return Result{QuestionID: questionID, Verdict: VerdictAbstain}
	}

	// 1) single verdict at or above threshold
	if winner, ok := blockAtThreshold(counts, threshold); ok {
		if blockDiverse(policy, providers[winner], len(rosterProviders)) {
			return Result{
				QuestionID:          questionID,
				Verdict:             winner,
				Confidence:          clamp01(float64(counts[winner]) / float64(nonAbstain)),
				QuorumReached:       true,
				DissentingProviders: dissenters(providers, winner),
			}
		}
		// captured block: treat as no quorum, fall through to plurality
	}

	// 2) compliant+partial jointly at threshold degrade to partial
	joint := counts[VerdictCompliant] + counts[VerdictPartial]
	if joint >= threshold {
		merged := mergeProviders(providers[VerdictCompliant], providers[VerdictPartial])
		if blockDiverse(policy, merged, len(rosterProviders)) {
			return Result{
				QuestionID:          questionID,
				Verdict:             VerdictPartial,
				Confidence:          clamp01(float64(joint) / float64(nonAbstain)),
				QuorumReached:       true,
				DissentingProviders: dissenters(providers, VerdictCompliant, VerdictPartial),
			}
		}
	}

	// 3) no quorum: plurality verdict, confidence scaled by the largest
	// block's share of the total roster
	winner := plurality(counts)
	largest := counts[winner]
	conf := float64(largest) / float64(nonAbstain) * float64(largest) / float64(len(votes))
	return Result{
		QuestionID:          questionID,
		Verdict:             winner,
		Confidence:          clamp01(conf),
		QuorumReached:       false,
		DissentingProviders: dissenters(providers, winner),
	}
}

func blockAtThreshold(counts map[Verdict]int, threshold int) (Verdict, bool) {
	for _, v := range []Verdict{VerdictCompliant, VerdictPartial, VerdictNonCompliant} {
		if counts[v] >= threshold {
			return v, true
		}
	}
	return "", false
}

// blockDiverse enforces the provider-diversity rule: a winning block must
// span at least two providers (when the roster does) and no single provider
// may contribute more than the configured fraction of the block's votes.
func blockDiverse(policy Policy, block map[string]int, rosterProviders int) bool {
	if rosterProviders < 2 {
		return true
	}
	if len(block) < 2 {
		return false
	}
	blockSize := 0
	for _, n := range block {
		blockSize += n
	}
	capVotes := policy.providerCapVotes(blockSize)
	for _, n := range block {
		if n > capVotes {
			return false
		}
	}
	return true
}

// plurality picks the largest countable block; ties resolve toward the more
// conservative verdict so disagreement never inflates compliance.
func plurality(counts map[Verdict]int) Verdict {
	winner := VerdictNonCompliant
	best := counts[VerdictNonCompliant]
	for _, v := range []Verdict{VerdictPartial, VerdictCompliant} {
		if counts[v] > best {
			winner = v
			best = counts[v]
		}
	}
	return winner
}

func dissenters(providers map[Verdict]map[string]int, winners ...Verdict) int {
	winning := map[Verdict]bool{}
	for _, w := range winners {
		winning[w] = true
	}
	seen := map[string]bool{}
	for verdict, byProvider := range providers {
		if winning[verdict] {
			continue
		}
		for p := range byProvider {
			seen[p] = true
		}
	}
	return len(seen)
}

func mergeProviders(a, b map[string]int) map[string]int {
	out := map[string]int{}
	for p, n := range a {
		out[p] += n
	}
	for p, n := range b {
		out[p] += n
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
