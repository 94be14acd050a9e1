package consensus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rosterVotes spreads the given verdicts over a 33-agent roster across 12
// providers, at most 3 agents per provider. Missing verdicts pad out as
// abstain so the denominator is always the full roster.
func rosterVotes(t *testing.T, verdicts ...Verdict) []Vote {
	t.Helper()
	require.LessOrEqual(t, len(verdicts), 33)
	votes := make([]Vote, 0, 33)
	for i := 0; i < 33; i++ {
		v := VerdictAbstain
		if i < len(verdicts) {
			v = verdicts[i]
		}
		votes = append(votes, Vote{
			AgentID:  fmt.Sprintf("agent-%02d", i),
			Provider: fmt.Sprintf("provider-%02d", i%12),
			Verdict:  v,
		})
	}
	return votes
}

func repeat(v Verdict, n int) []Verdict {
	out := make([]Verdict, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestQuorumThreshold(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   int
	}{
		{"derived 33", Policy{RosterSize: 33}, 23},
		{"derived 10", Policy{RosterSize: 10}, 8},
		{"derived 3", Policy{RosterSize: 3}, 3},
		{"explicit wins", Policy{RosterSize: 33, Threshold: 25}, 25},
		{"explicit clamped to roster", Policy{RosterSize: 10, Threshold: 40}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.QuorumThreshold())
		})
	}
}

func TestResolveQuorumAtThreshold(t *testing.T) {
	// 23 compliant votes spread over many providers, rest abstain
	votes := rosterVotes(t, repeat(VerdictCompliant, 23)...)
	res := Resolve("q1", DefaultPolicy(), votes)

	assert.True(t, res.QuorumReached)
	assert.Equal(t, VerdictCompliant, res.Verdict)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9) // 23 of 23 non-abstain
	assert.Equal(t, 0, res.DissentingProviders)
}

func TestResolveOneVoteShortNeverQuorums(t *testing.T) {
	votes := rosterVotes(t, repeat(VerdictCompliant, 22)...)
	res := Resolve("q1", DefaultPolicy(), votes)

	assert.False(t, res.QuorumReached)
	assert.Equal(t, VerdictCompliant, res.Verdict) // plurality still reported
	// plurality confidence is share of non-abstain scaled by share of roster
	assert.InDelta(t, 22.0/22.0*22.0/33.0, res.Confidence, 1e-9)
}

func TestResolveSilentAgentsStillCountInDenominator(t *testing.T) {
	// 10 agents silent: threshold stays 23 of the full roster, and the
	// remaining 23 compliant votes are exactly enough
	verdicts := repeat(VerdictCompliant, 23)
	votes := rosterVotes(t, verdicts...)
	res := Resolve("q1", DefaultPolicy(), votes)
	assert.True(t, res.QuorumReached)

	// with 22 compliant and 11 silent there is no quorum
	votes = rosterVotes(t, repeat(VerdictCompliant, 22)...)
	res = Resolve("q1", DefaultPolicy(), votes)
	assert.False(t, res.QuorumReached)
}

func TestResolveMixedBlockWithDissent(t *testing.T) {
	verdicts := append(repeat(VerdictCompliant, 24), repeat(VerdictNonCompliant, 9)...)
	votes := rosterVotes(t, verdicts...)
	res := Resolve("q1", DefaultPolicy(), votes)

	assert.True(t, res.QuorumReached)
	assert.Equal(t, VerdictCompliant, res.Verdict)
	assert.InDelta(t, 24.0/33.0, res.Confidence, 1e-9)
	assert.Greater(t, res.DissentingProviders, 0)
}

func TestResolveJointCompliantPartialDegradesToPartial(t *testing.T) {
	verdicts := append(repeat(VerdictCompliant, 15), repeat(VerdictPartial, 8)...)
	verdicts = append(verdicts, repeat(VerdictNonCompliant, 10)...)
	votes := rosterVotes(t, verdicts...)
	res := Resolve("q1", DefaultPolicy(), votes)

	assert.True(t, res.QuorumReached)
	assert.Equal(t, VerdictPartial, res.Verdict)
	assert.InDelta(t, 23.0/33.0, res.Confidence, 1e-9)
}

func TestResolveSingleProviderBlockIsCaptured(t *testing.T) {
	// 23 compliant votes all from one provider on a multi-provider roster:
	// the block is treated as captured and quorum is denied
	votes := make([]Vote, 0, 33)
	for i := 0; i < 33; i++ {
		v := Vote{AgentID: fmt.Sprintf("agent-%02d", i), Provider: "other", Verdict: VerdictAbstain}
		if i < 23 {
			v.Provider = "monoculture"
			v.Verdict = VerdictCompliant
		}
		votes = append(votes, v)
	}
	res := Resolve("q1", DefaultPolicy(), votes)

	assert.False(t, res.QuorumReached)
	assert.Equal(t, VerdictCompliant, res.Verdict)
}

func TestResolveDominantProviderBlockIsCaptured(t *testing.T) {
	// 23 compliant votes where one provider contributes 11, nearly half the
	// block. The cap is a third of the block (ceil(23/3) = 8), so the block
	// is captured and must not quorum.
	votes := make([]Vote, 0, 33)
	for i := 0; i < 11; i++ {
		votes = append(votes, Vote{
			AgentID:  fmt.Sprintf("big-%02d", i),
			Provider: "big",
			Verdict:  VerdictCompliant,
		})
	}
	for i := 0; i < 12; i++ {
		votes = append(votes, Vote{
			AgentID:  fmt.Sprintf("small-%02d", i),
			Provider: fmt.Sprintf("provider-%02d", i),
			Verdict:  VerdictCompliant,
		})
	}
	for i := 0; i < 10; i++ {
		votes = append(votes, Vote{
			AgentID:  fmt.Sprintf("silent-%02d", i),
			Provider: fmt.Sprintf("provider-%02d", i%10),
			Verdict:  VerdictAbstain,
		})
	}
	res := Resolve("q1", DefaultPolicy(), votes)

	assert.False(t, res.QuorumReached)
	assert.Equal(t, VerdictCompliant, res.Verdict)
}

func TestResolveProviderAtBlockCapStillQuorums(t *testing.T) {
	// same 23-vote block, but the biggest provider holds exactly the cap
	// (ceil(23/3) = 8 votes)
	votes := make([]Vote, 0, 33)
	for i := 0; i < 8; i++ {
		votes = append(votes, Vote{
			AgentID:  fmt.Sprintf("big-%02d", i),
			Provider: "big",
			Verdict:  VerdictCompliant,
		})
	}
	for i := 0; i < 15; i++ {
		votes = append(votes, Vote{
			AgentID:  fmt.Sprintf("small-%02d", i),
			Provider: fmt.Sprintf("provider-%02d", i%8),
			Verdict:  VerdictCompliant,
		})
	}
	for i := 0; i < 10; i++ {
		votes = append(votes, Vote{
			AgentID:  fmt.Sprintf("silent-%02d", i),
			Provider: fmt.Sprintf("provider-%02d", i%8),
			Verdict:  VerdictAbstain,
		})
	}
	res := Resolve("q1", DefaultPolicy(), votes)

	assert.True(t, res.QuorumReached)
	assert.Equal(t, VerdictCompliant, res.Verdict)
}

func TestResolveSingleProviderRosterIsExempt(t *testing.T) {
	// a roster that only spans one provider cannot satisfy diversity, so
	// the rule does not apply
	policy := Policy{RosterSize: 5, Threshold: 4}
	votes := []Vote{
		{AgentID: "a", Provider: "solo", Verdict: VerdictCompliant},
		{AgentID: "b", Provider: "solo", Verdict: VerdictCompliant},
		{AgentID: "c", Provider: "solo", Verdict: VerdictCompliant},
		{AgentID: "d", Provider: "solo", Verdict: VerdictCompliant},
		{AgentID: "e", Provider: "solo", Verdict: VerdictAbstain},
	}
	res := Resolve("q1", policy, votes)
	assert.True(t, res.QuorumReached)
}

func TestResolveAllAbstain(t *testing.T) {
	votes := rosterVotes(t)
	res := Resolve("q1", DefaultPolicy(), votes)

	assert.False(t, res.QuorumReached)
	assert.Equal(t, VerdictAbstain, res.Verdict)
	assert.Zero(t, res.Confidence)
}

func TestResolvePluralityTieIsConservative(t *testing.T) {
	verdicts := append(repeat(VerdictCompliant, 10), repeat(VerdictNonCompliant, 10)...)
	votes := rosterVotes(t, verdicts...)
	res := Resolve("q1", DefaultPolicy(), votes)

	assert.False(t, res.QuorumReached)
	assert.Equal(t, VerdictNonCompliant, res.Verdict)

	verdicts = append(repeat(VerdictPartial, 10), repeat(VerdictCompliant, 10)...)
	res = Resolve("q2", DefaultPolicy(), rosterVotes(t, verdicts...))
	assert.Equal(t, VerdictPartial, res.Verdict)
}

func TestResolveConfidenceBounds(t *testing.T) {
	cases := [][]Verdict{
		repeat(VerdictCompliant, 33),
		repeat(VerdictNonCompliant, 23),
		append(repeat(VerdictCompliant, 11), repeat(VerdictPartial, 11)...),
		{VerdictCompliant},
	}
	for i, verdicts := range cases {
		res := Resolve(fmt.Sprintf("q%d", i), DefaultPolicy(), rosterVotes(t, verdicts...))
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	}
}
