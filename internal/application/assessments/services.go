package assessments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/quorum-comply/internal/application"
	domagents "github.com/bryanwahyu/quorum-comply/internal/domain/agents"
	domain "github.com/bryanwahyu/quorum-comply/internal/domain/assessments"
	"github.com/bryanwahyu/quorum-comply/internal/domain/consensus"
	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
)

// Poller port: fan one question out to the roster (see application/agents).
type Poller interface {
	Poll(ctx context.Context, q frameworks.Question, roster []domagents.Agent) ([]domagents.AgentVote, error)
}

// ReportStore port: upload the finalized report artifact.
type ReportStore interface {
	UploadReport(ctx context.Context, key string, data []byte) (string, error)
}

// CycleHook lets the PDCA service follow run lifecycle without this
// package depending on it.
type CycleHook interface {
	OnRunStarted(ctx context.Context, tenant, systemID, frameworkID string, at time.Time) error
	OnAssessmentFinished(ctx context.Context, a *domain.Assessment) error
}

// Config holds run-level policy. All of it comes from config.yaml.
type Config struct {
	RunTimeout           time.Duration
	MaxParallelQuestions int
	Policy               consensus.Policy
}

// Service implements the assessment orchestrator use-cases.
// Safe for concurrent use.
type Service struct {
	Repo     domain.Repository
	Registry frameworks.SystemRegistry
	Catalog  frameworks.Catalog
	Roster   domagents.Roster
	Pool     Poller
	Reports  ReportStore
	Events   domain.EventPublisher
	Cycles   CycleHook
	Clock    application.Clock
	Cfg      Config

	locks pairLocks
}

// Command untuk trigger assessment
type RunCommand struct {
	TenantID     string
	SystemID     string
	FrameworkIDs []string
}

// Run assesses one system against each requested framework. Every
// framework run finishes in a definite terminal status; the returned error
// is the first one encountered (individual runs still persist their own
// failed/indeterminate records).
func (s *Service) Run(ctx context.Context, cmd RunCommand) ([]*domain.Assessment, error) {
	if len(cmd.FrameworkIDs) == 0 {
		return nil, fmt.Errorf("at least one framework id is required")
	}
	var out []*domain.Assessment
	var firstErr error
	for _, fwID := range cmd.FrameworkIDs {
		a, err := s.runOne(ctx, cmd.TenantID, cmd.SystemID, frameworks.FrameworkID(fwID))
		if a != nil {
			out = append(out, a)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return out, firstErr
}

// RunUntilDone jalanin assessment dengan context.Background(), cocok buat
// goroutine di router supaya gak kena context canceled.
func (s *Service) RunUntilDone(cmd RunCommand) ([]*domain.Assessment, error) {
	return s.Run(context.Background(), cmd)
}

// Get ambil 1 assessment by id
func (s *Service) Get(ctx context.Context, tenant string, id domain.AssessmentID) (*domain.Assessment, error) {
	return s.Repo.Get(ctx, tenant, id)
}

// Latest ambil N assessment terakhir
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Assessment, error) {
	return s.Repo.Latest(ctx, tenant, limit)
}

// Summary rekap hasil assessment N hari terakhir
func (s *Service) Summary(ctx context.Context, tenant string, sinceDays int) (domain.Summary, error) {
	return s.Repo.Summary(ctx, tenant, sinceDays)
}

func (s *Service) clock() application.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return application.SystemClock{}
}

// runOne drives the full state machine for a single (system, framework)
// pair: pending -> running -> {completed | indeterminate | failed}.
func (s *Service) runOne(ctx context.Context, tenant, systemID string, fwID frameworks.FrameworkID) (*domain.Assessment, error) {
	key := fmt.Sprintf("%s/%s/%s", tenant, systemID, fwID)
	if !s.locks.TryAcquire(key) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConcurrentRun, key)
	}
	defer s.locks.Release(key)

	fw, err := s.Catalog.Framework(fwID)
	if err != nil {
		return nil, err
	}
	// snapshot system attributes; the run never re-reads the registry
	system, err := s.Registry.System(ctx, tenant, systemID)
	if err != nil {
		return nil, err
	}

	now := s.clock().Now()
	id := domain.AssessmentID(fmt.Sprintf("%s-%s", uuid.New().String(), fw.Code))
	a := &domain.Assessment{
		ID:               id,
		TenantID:         tenant,
		SystemID:         systemID,
		FrameworkID:      fw.ID,
		FrameworkVersion: fw.Version,
		StartedAt:        now,
		Status:           domain.StatusRunning,
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return a, fmt.Errorf("%w: save initial row: %v", domain.ErrPersistence, err)
	}
	if s.Cycles != nil {
		if err := s.Cycles.OnRunStarted(ctx, tenant, systemID, string(fw.ID), now); err != nil {
			log.Printf("pdca hook error on run start: id=%s err=%v", id, err)
		}
	}

	questions := frameworks.BuildQuestions(string(id), *system, *fw)
	if len(questions) == 0 {
		return s.finalize(a, nil, nil, domain.StatusFailed, frameworks.ErrNoApplicableRequirements.Error()), frameworks.ErrNoApplicableRequirements
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout())
	defer cancel()

	roster := s.Roster.Active()
	resolved := make(map[string]consensus.Result, len(questions))
	var votes []domagents.AgentVote
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(s.maxParallel())
	for _, q := range questions {
		q := q
		g.Go(func() error {
			vs, err := s.Pool.Poll(gctx, q, roster)
			if err != nil {
				if errors.Is(err, domagents.ErrQuorumInfrastructure) && runCtx.Err() == nil {
					// systemic: too few agents reachable, abort the run.
					// The pool still returned its votes; keep them so the
					// audit trail records which agents were unreachable.
					mu.Lock()
					votes = append(votes, vs...)
					mu.Unlock()
					return err
				}
				// deadline expiry: leave the question unresolved so it
				// scores as quorum-not-reached
				return nil
			}
			res := consensus.Resolve(q.ID, s.Cfg.Policy, consensusVotes(vs))
			mu.Lock()
			resolved[q.ID] = res
			votes = append(votes, vs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		reason := fmt.Sprintf("quorum infrastructure unreachable: %v", err)
		return s.finalize(a, nil, votes, domain.StatusFailed, reason), err
	}

	report, err := frameworks.Score(questions, resolved)
	if err != nil {
		return s.finalize(a, nil, votes, domain.StatusFailed, err.Error()), err
	}

	status := domain.StatusCompleted
	reason := ""
	if frac := float64(report.Indeterminate) / float64(len(questions)); frac > s.maxIndeterminate() {
		status = domain.StatusIndeterminate
		reason = fmt.Sprintf("%d of %d requirements did not reach quorum", report.Indeterminate, len(questions))
	}
	if runCtx.Err() != nil {
		status = domain.StatusIndeterminate
		reason = "assessment deadline elapsed before all questions resolved"
	}
	return s.finalize(a, &report, votes, status, reason), nil
}

// finalize persists the terminal state and emits the completion event.
// Writes use a fresh context so a cancelled caller can't leave the row
// stuck in running. The terminal upsert is keyed by assessment id, so the
// one retry is idempotent.
func (s *Service) finalize(a *domain.Assessment, report *frameworks.ScoreReport, votes []domagents.AgentVote, status domain.Status, reason string) *domain.Assessment {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := s.clock().Now()
	a.Status = status
	a.Reason = reason
	a.CompletedAt = &done
	a.DurationMS = done.Sub(a.StartedAt).Milliseconds()
	if report != nil {
		a.OverallScore = report.Overall
		a.Results = report.Results
		a.Gaps = report.Gaps
		a.Indeterminate = report.Indeterminate
	}

	if len(votes) > 0 {
		if err := s.Repo.SaveVotes(ctx, a.TenantID, a.ID, votes); err != nil {
			log.Printf("vote audit save error: id=%s err=%v", a.ID, err)
		}
	}
	if s.Reports != nil && status != domain.StatusFailed {
		if url, err := s.uploadReport(ctx, a); err != nil {
			log.Printf("report upload error: id=%s err=%v", a.ID, err)
		} else {
			a.ReportURL = url
		}
	}

	if err := s.Repo.Save(ctx, a); err != nil {
		// one retry; Save upserts by id
		if err = s.Repo.Save(ctx, a); err != nil {
			log.Printf("finalize persist error: id=%s status=%s err=%v", a.ID, status, err)
			a.Status = domain.StatusFailed
			a.Reason = fmt.Sprintf("persistence failure: %v", err)
		}
	}

	if s.Events != nil {
		ev := domain.Event{
			AssessmentID: a.ID,
			TenantID:     a.TenantID,
			SystemID:     a.SystemID,
			FrameworkID:  string(a.FrameworkID),
			Status:       a.Status,
			OverallScore: a.OverallScore,
			GapCount:     len(a.Gaps),
			OccurredAt:   done,
		}
		if err := s.Events.Publish(ctx, ev); err != nil {
			log.Printf("completion event publish error: id=%s err=%v", a.ID, err)
		}
	}
	if s.Cycles != nil {
		if err := s.Cycles.OnAssessmentFinished(ctx, a); err != nil {
			log.Printf("pdca hook error on finish: id=%s err=%v", a.ID, err)
		}
	}
	return a
}

func (s *Service) uploadReport(ctx context.Context, a *domain.Assessment) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s/%s.json", a.TenantID, a.FrameworkID, a.ID)
	return s.Reports.UploadReport(ctx, key, data)
}

func (s *Service) runTimeout() time.Duration {
	if s.Cfg.RunTimeout > 0 {
		return s.Cfg.RunTimeout
	}
	return 5 * time.Minute
}

func (s *Service) maxParallel() int {
	if s.Cfg.MaxParallelQuestions > 0 {
		return s.Cfg.MaxParallelQuestions
	}
	return 4
}

func (s *Service) maxIndeterminate() float64 {
	if s.Cfg.Policy.MaxIndeterminateFraction > 0 {
		return s.Cfg.Policy.MaxIndeterminateFraction
	}
	return 0.25
}

func consensusVotes(vs []domagents.AgentVote) []consensus.Vote {
	out := make([]consensus.Vote, len(vs))
	for i, v := range vs {
		out[i] = v.ConsensusVote()
	}
	return out
}
