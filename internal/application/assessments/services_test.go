package assessments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domagents "github.com/bryanwahyu/quorum-comply/internal/domain/agents"
	domain "github.com/bryanwahyu/quorum-comply/internal/domain/assessments"
	"github.com/bryanwahyu/quorum-comply/internal/domain/consensus"
	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
)

// --- fakes ---

type fakeRepo struct {
	mu       sync.Mutex
	rows     map[domain.AssessmentID]*domain.Assessment
	votes    map[domain.AssessmentID][]domagents.AgentVote
	saveErrs int // fail this many terminal Save calls before succeeding
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rows:  map[domain.AssessmentID]*domain.Assessment{},
		votes: map[domain.AssessmentID][]domagents.AgentVote{},
	}
}

func (r *fakeRepo) Save(_ context.Context, a *domain.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErrs > 0 && a.Status.Terminal() {
		r.saveErrs--
		return errors.New("db gone away")
	}
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *fakeRepo) Get(_ context.Context, _ string, id domain.AssessmentID) (*domain.Assessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (r *fakeRepo) Latest(_ context.Context, _ string, _ int) ([]*domain.Assessment, error) {
	return nil, nil
}

func (r *fakeRepo) Summary(_ context.Context, _ string, _ int) (domain.Summary, error) {
	return domain.Summary{}, nil
}

func (r *fakeRepo) SaveVotes(_ context.Context, _ string, id domain.AssessmentID, votes []domagents.AgentVote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes[id] = append(r.votes[id], votes...)
	return nil
}

type fakeRegistry struct {
	system *frameworks.AISystem
}

func (f fakeRegistry) System(_ context.Context, _, id string) (*frameworks.AISystem, error) {
	if f.system == nil || f.system.ID != id {
		return nil, frameworks.ErrSystemNotFound
	}
	return f.system, nil
}

type fakeCatalog struct {
	fws map[frameworks.FrameworkID]*frameworks.Framework
}

func (f fakeCatalog) Framework(id frameworks.FrameworkID) (*frameworks.Framework, error) {
	fw, ok := f.fws[id]
	if !ok {
		return nil, frameworks.ErrFrameworkNotFound
	}
	return fw, nil
}

func (f fakeCatalog) Frameworks() []*frameworks.Framework {
	var out []*frameworks.Framework
	for _, fw := range f.fws {
		out = append(out, fw)
	}
	return out
}

// fakePoller answers every roster agent with a per-requirement verdict
// (default compliant).
type fakePoller struct {
	byReq   map[string]consensus.Verdict
	err     error
	started chan struct{} // closed on first poll, when set
	release chan struct{} // first poll blocks on this, when set
	once    sync.Once
}

func (p *fakePoller) Poll(ctx context.Context, q frameworks.Question, roster []domagents.Agent) ([]domagents.AgentVote, error) {
	p.once.Do(func() {
		if p.started != nil {
			close(p.started)
		}
		if p.release != nil {
			select {
			case <-p.release:
			case <-ctx.Done():
			}
		}
	})
	if p.err != nil {
		return nil, p.err
	}
	verdict := consensus.VerdictCompliant
	if v, ok := p.byReq[q.Requirement.ID]; ok {
		verdict = v
	}
	votes := make([]domagents.AgentVote, len(roster))
	for i, a := range roster {
		votes[i] = domagents.AgentVote{
			QuestionID: q.ID,
			AgentID:    a.ID,
			Provider:   a.Provider,
			Verdict:    verdict,
			Rationale:  "assessed",
		}
	}
	return votes, nil
}

// stallPoller never answers until the run deadline cancels it.
type stallPoller struct{}

func (stallPoller) Poll(ctx context.Context, _ frameworks.Question, _ []domagents.Agent) ([]domagents.AgentVote, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// unreachablePoller behaves like a pool whose roster is down: one abstain
// vote per agent plus the infrastructure error.
type unreachablePoller struct{}

func (unreachablePoller) Poll(_ context.Context, q frameworks.Question, roster []domagents.Agent) ([]domagents.AgentVote, error) {
	votes := make([]domagents.AgentVote, len(roster))
	for i, a := range roster {
		votes[i] = domagents.AgentVote{
			QuestionID: q.ID, AgentID: a.ID, Provider: a.Provider,
			Verdict: consensus.VerdictAbstain, Rationale: "timeout",
		}
	}
	return votes, fmt.Errorf("%w: 0 of %d agents reachable", domagents.ErrQuorumInfrastructure, len(roster))
}

type fakeStore struct {
	mu   sync.Mutex
	keys []string
}

func (s *fakeStore) UploadReport(_ context.Context, key string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return "https://reports.local/" + key, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// --- fixture ---

func testPolicy() consensus.Policy {
	return consensus.Policy{RosterSize: 5, Threshold: 4, ProviderCapFraction: 0.5}
}

func serviceRoster() domagents.Roster {
	return domagents.Roster{Agents: []domagents.Agent{
		{ID: "alpha-0", Provider: "alpha", Active: true},
		{ID: "alpha-1", Provider: "alpha", Active: true},
		{ID: "beta-0", Provider: "beta", Active: true},
		{ID: "beta-1", Provider: "beta", Active: true},
		{ID: "gamma-0", Provider: "gamma", Active: true},
		{ID: "gamma-1", Provider: "gamma", Active: false}, // inactive, never polled
	}}
}

func serviceFramework() *frameworks.Framework {
	return &frameworks.Framework{
		ID:      "eu-ai-act",
		Code:    "EUAI",
		Version: "2024.1",
		Requirements: []frameworks.Requirement{
			{ID: "req1", Category: "transparency", Weight: 0.4, Description: "disclose AI interaction"},
			{ID: "req2", Category: "oversight", Weight: 0.3, Description: "human oversight"},
			{ID: "req3", Category: "logging", Weight: 0.2, Description: "decision logging"},
			{ID: "req4", Category: "robustness", Weight: 0.1, Description: "adversarial testing"},
		},
	}
}

func newTestService(repo *fakeRepo, poller Poller) (*Service, *fakeStore, *fakePublisher) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := &Service{
		Repo:     repo,
		Registry: fakeRegistry{system: &frameworks.AISystem{ID: "sys-1", TenantID: "acme", Name: "chatbot"}},
		Catalog:  fakeCatalog{fws: map[frameworks.FrameworkID]*frameworks.Framework{"eu-ai-act": serviceFramework()}},
		Roster:   serviceRoster(),
		Pool:     poller,
		Reports:  store,
		Events:   pub,
		Clock:    fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		Cfg: Config{
			RunTimeout:           5 * time.Second,
			MaxParallelQuestions: 2,
			Policy:               testPolicy(),
		},
	}
	return svc, store, pub
}

func runCmd() RunCommand {
	return RunCommand{TenantID: "acme", SystemID: "sys-1", FrameworkIDs: []string{"eu-ai-act"}}
}

// --- tests ---

func TestRunHappyPath(t *testing.T) {
	repo := newFakeRepo()
	svc, store, pub := newTestService(repo, &fakePoller{})

	out, err := svc.Run(context.Background(), runCmd())
	require.NoError(t, err)
	require.Len(t, out, 1)
	a := out[0]

	assert.Equal(t, domain.StatusCompleted, a.Status)
	assert.InDelta(t, 100.0, a.OverallScore, 1e-9)
	assert.Empty(t, a.Gaps)
	assert.Equal(t, "2024.1", a.FrameworkVersion)
	require.NotNil(t, a.CompletedAt)
	assert.NotEmpty(t, a.ReportURL)

	// persisted row matches the returned aggregate
	saved, err := repo.Get(context.Background(), "acme", a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, saved.Status)

	// 5 active agents x 4 requirements in the audit trail
	assert.Len(t, repo.votes[a.ID], 20)
	assert.Len(t, store.keys, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, a.ID, pub.events[0].AssessmentID)
}

func TestRunMixedVerdictsScoreAndGaps(t *testing.T) {
	repo := newFakeRepo()
	poller := &fakePoller{byReq: map[string]consensus.Verdict{
		"req2": consensus.VerdictPartial,
		"req3": consensus.VerdictNonCompliant,
	}}
	svc, _, _ := newTestService(repo, poller)

	out, err := svc.Run(context.Background(), runCmd())
	require.NoError(t, err)
	a := out[0]

	// (0.4 + 0.15 + 0 + 0.1) / 1.0 = 65
	assert.Equal(t, domain.StatusCompleted, a.Status)
	assert.InDelta(t, 65.0, a.OverallScore, 0.01)

	require.Len(t, a.Gaps, 2)
	assert.Equal(t, "req2", a.Gaps[0].RequirementID)
	assert.Equal(t, "req3", a.Gaps[1].RequirementID)
}

func TestRunIsIdempotentAcrossRepeats(t *testing.T) {
	repo := newFakeRepo()
	poller := &fakePoller{byReq: map[string]consensus.Verdict{"req2": consensus.VerdictPartial}}
	svc, _, _ := newTestService(repo, poller)

	first, err := svc.Run(context.Background(), runCmd())
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), runCmd())
	require.NoError(t, err)

	assert.NotEqual(t, first[0].ID, second[0].ID, "each run gets a fresh id")
	assert.Equal(t, first[0].OverallScore, second[0].OverallScore)
	require.Equal(t, len(first[0].Gaps), len(second[0].Gaps))
	for i := range first[0].Gaps {
		assert.Equal(t, first[0].Gaps[i].RequirementID, second[0].Gaps[i].RequirementID)
	}
}

func TestRunConcurrentSamePairConflicts(t *testing.T) {
	repo := newFakeRepo()
	poller := &fakePoller{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc, _, _ := newTestService(repo, poller)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), runCmd())
		done <- err
	}()
	<-poller.started // first run holds the pair lock now

	_, err := svc.Run(context.Background(), runCmd())
	assert.ErrorIs(t, err, domain.ErrConcurrentRun)

	close(poller.release)
	require.NoError(t, <-done)
}

func TestRunDifferentFrameworksDoNotConflict(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo, &fakePoller{})
	svc.Catalog = fakeCatalog{fws: map[frameworks.FrameworkID]*frameworks.Framework{
		"eu-ai-act": serviceFramework(),
		"iso-42001": {ID: "iso-42001", Code: "ISO42K", Version: "1",
			Requirements: []frameworks.Requirement{{ID: "a1", Weight: 1, Description: "aims"}}},
	}}

	out, err := svc.Run(context.Background(), RunCommand{
		TenantID: "acme", SystemID: "sys-1",
		FrameworkIDs: []string{"eu-ai-act", "iso-42001"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, a := range out {
		assert.Equal(t, domain.StatusCompleted, a.Status)
	}
}

func TestRunQuorumInfrastructureFailure(t *testing.T) {
	repo := newFakeRepo()
	poller := &fakePoller{err: fmt.Errorf("%w: 1 of 5 agents reachable", domagents.ErrQuorumInfrastructure)}
	svc, store, pub := newTestService(repo, poller)

	out, err := svc.Run(context.Background(), runCmd())
	require.ErrorIs(t, err, domagents.ErrQuorumInfrastructure)
	require.Len(t, out, 1)
	a := out[0]

	assert.Equal(t, domain.StatusFailed, a.Status)
	assert.Contains(t, a.Reason, "quorum infrastructure unreachable")
	assert.Zero(t, a.OverallScore)
	assert.Empty(t, store.keys, "failed runs upload no report")
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.StatusFailed, pub.events[0].Status)
}

func TestRunTooManyIndeterminateQuestions(t *testing.T) {
	repo := newFakeRepo()
	// half the requirements resolve to all-abstain, far over the 25% cap
	poller := &fakePoller{byReq: map[string]consensus.Verdict{
		"req3": consensus.VerdictAbstain,
		"req4": consensus.VerdictAbstain,
	}}
	svc, _, _ := newTestService(repo, poller)

	out, err := svc.Run(context.Background(), runCmd())
	require.NoError(t, err)
	a := out[0]

	assert.Equal(t, domain.StatusIndeterminate, a.Status)
	assert.Equal(t, 2, a.Indeterminate)
	assert.Contains(t, a.Reason, "did not reach quorum")
	// indeterminate runs still report the partial score
	assert.InDelta(t, 70.0, a.OverallScore, 0.01)
}

func TestRunInfrastructureFailureKeepsVoteAudit(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo, unreachablePoller{})

	out, err := svc.Run(context.Background(), runCmd())
	require.ErrorIs(t, err, domagents.ErrQuorumInfrastructure)
	require.Len(t, out, 1)
	a := out[0]

	assert.Equal(t, domain.StatusFailed, a.Status)
	// the failed run's agent_votes rows record which agents were down;
	// at least one full question's worth of abstains must land
	saved := repo.votes[a.ID]
	require.GreaterOrEqual(t, len(saved), 5)
	for _, v := range saved {
		assert.Equal(t, consensus.VerdictAbstain, v.Verdict)
		assert.Equal(t, "timeout", v.Rationale)
	}
}

func TestRunDeadlineElapsedIsIndeterminate(t *testing.T) {
	repo := newFakeRepo()
	svc, _, pub := newTestService(repo, stallPoller{})
	svc.Cfg.RunTimeout = 15 * time.Millisecond

	out, err := svc.Run(context.Background(), runCmd())
	require.NoError(t, err)
	require.Len(t, out, 1)
	a := out[0]

	assert.Equal(t, domain.StatusIndeterminate, a.Status)
	assert.Contains(t, a.Reason, "deadline")
	assert.Equal(t, 4, a.Indeterminate, "every question left unresolved")
	assert.Zero(t, a.OverallScore)
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.StatusIndeterminate, pub.events[0].Status)
}

func TestRunNoApplicableRequirements(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo, &fakePoller{})
	svc.Catalog = fakeCatalog{fws: map[frameworks.FrameworkID]*frameworks.Framework{
		"eu-ai-act": {ID: "eu-ai-act", Code: "EUAI", Version: "2024.1",
			Requirements: []frameworks.Requirement{{
				ID: "hr1", Weight: 1,
				Applicability: frameworks.Applicability{RiskLevels: []frameworks.RiskLevel{frameworks.RiskHigh}},
			}}},
	}}

	out, err := svc.Run(context.Background(), runCmd())
	require.ErrorIs(t, err, frameworks.ErrNoApplicableRequirements)
	require.Len(t, out, 1)
	assert.Equal(t, domain.StatusFailed, out[0].Status)
}

func TestRunUnknownFramework(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo, &fakePoller{})

	out, err := svc.Run(context.Background(), RunCommand{
		TenantID: "acme", SystemID: "sys-1", FrameworkIDs: []string{"nope"},
	})
	assert.ErrorIs(t, err, frameworks.ErrFrameworkNotFound)
	assert.Empty(t, out)
	assert.Empty(t, repo.rows, "nothing persisted for an unknown framework")
}

func TestRunUnknownSystem(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo, &fakePoller{})

	_, err := svc.Run(context.Background(), RunCommand{
		TenantID: "acme", SystemID: "ghost", FrameworkIDs: []string{"eu-ai-act"},
	})
	assert.ErrorIs(t, err, frameworks.ErrSystemNotFound)
}

func TestFinalizeRetriesSaveOnce(t *testing.T) {
	repo := newFakeRepo()
	repo.saveErrs = 1 // the first terminal save fails, the retry lands
	svc, _, _ := newTestService(repo, &fakePoller{})

	out, err := svc.Run(context.Background(), runCmd())
	require.NoError(t, err)
	a := out[0]

	assert.Equal(t, domain.StatusCompleted, a.Status)
	saved, err := repo.Get(context.Background(), "acme", a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, saved.Status)
}

func TestRunRequiresFramework(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo(), &fakePoller{})
	_, err := svc.Run(context.Background(), RunCommand{TenantID: "acme", SystemID: "sys-1"})
	assert.Error(t, err)
}

func TestPairLocks(t *testing.T) {
	var l pairLocks
	require.True(t, l.TryAcquire("a/b/c"))
	assert.False(t, l.TryAcquire("a/b/c"))
	assert.True(t, l.TryAcquire("a/b/d"))
	l.Release("a/b/c")
	assert.True(t, l.TryAcquire("a/b/c"))
}
