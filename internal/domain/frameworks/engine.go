package frameworks

import (
	"fmt"
	"sort"

	"github.com/bryanwahyu/quorum-comply/internal/domain/consensus"
)

// BuildQuestions filters the framework catalog by each requirement's
// applicability predicate and derives one question per surviving
// requirement. Skipped requirements are excluded from scoring entirely:
// they count toward neither numerator nor denominator.
func BuildQuestions(runID string, system AISystem, fw Framework) []Question {
	out := make([]Question, 0, len(fw.Requirements))
	for _, req := range fw.Requirements {
		if !req.Applicability.AppliesTo(system.Attributes) {
			continue
		}
		out = append(out, Question{
			ID:          fmt.Sprintf("%s/%s", runID, req.ID),
			Requirement: req,
			System:      system,
		})
	}
	return out
}

// RequirementResult is the scored outcome of one requirement.
type RequirementResult struct {
	RequirementID       string            `json:"requirement_id"`
	Category            string            `json:"category"`
	Description         string            `json:"description"`
	Weight              float64           `json:"weight"`
	Verdict             consensus.Verdict `json:"verdict"`
	Confidence          float64           `json:"confidence"`
	QuorumReached       bool              `json:"quorum_reached"`
	DissentingProviders int               `json:"dissenting_providers"`
	Contribution        float64           `json:"contribution"`
}

// ScoreReport is the weighted reduction over all applicable requirements.
type ScoreReport struct {
	Overall       float64             `json:"overall_score"`
	Results       []RequirementResult `json:"results"`
	Gaps          []RequirementResult `json:"gaps"`
	Indeterminate int                 `json:"indeterminate"`
}

// verdict credit: compliant = full, partial = half, everything else
// (non-compliant, indeterminate) = zero but still full weight in the
// denominator, so unresolved requirements penalize the score.
func credit(v consensus.Verdict, quorum bool) float64 {
	if !quorum {
		return 0
	}
	switch v {
	case consensus.VerdictCompliant:
		return 1.0
	case consensus.VerdictPartial:
		return 0.5
	default:
		return 0
	}
}

// Score reduces per-question consensus results into the 0-100 framework
// score. Gaps are every requirement that scored below full credit, sorted
// weight-descending so the highest-leverage fixes come first; ties break on
// requirement ID to keep reports reproducible.
func Score(questions []Question, resolved map[string]consensus.Result) (ScoreReport, error) {
	if len(questions) == 0 {
		return ScoreReport{}, ErrNoApplicableRequirements
	}

	var totalWeight, earned float64
	results := make([]RequirementResult, 0, len(questions))
	indeterminate := 0

	for _, q := range questions {
		req := q.Requirement
		res, ok := resolved[q.ID]
		if !ok {
			// unresolved question (cancelled poll): quorum not reached
			res = consensus.Result{QuestionID: q.ID, Verdict: consensus.VerdictAbstain}
		}
		if !res.QuorumReached {
			indeterminate++
		}
		c := credit(res.Verdict, res.QuorumReached)
		contribution := req.Weight * c
		totalWeight += req.Weight
		earned += contribution
		results = append(results, RequirementResult{
			RequirementID:       req.ID,
			Category:            req.Category,
			Description:         req.Description,
			Weight:              req.Weight,
			Verdict:             res.Verdict,
			Confidence:          res.Confidence,
			QuorumReached:       res.QuorumReached,
			DissentingProviders: res.DissentingProviders,
			Contribution:        contribution,
		})
	}

	if totalWeight <= 0 {
		return ScoreReport{}, ErrNoApplicableRequirements
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].RequirementID < results[j].RequirementID
	})

	var gaps []RequirementResult
	for _, r := range results {
		if r.Contribution < r.Weight {
			gaps = append(gaps, r)
		}
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].Weight != gaps[j].Weight {
			return gaps[i].Weight > gaps[j].Weight
		}
		return gaps[i].RequirementID < gaps[j].RequirementID
	})

	return ScoreReport{
		Overall:       100 * earned / totalWeight,
		Results:       results,
		Gaps:          gaps,
		Indeterminate: indeterminate,
	}, nil
}
