package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are an independent AI compliance evaluator. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- verdict must be exactly one of: compliant, partial, non_compliant, abstain.
- Use abstain only when the provided information is insufficient to judge.
- rationale must be one or two short sentences grounded in the requirement text.
- Judge only the requirement you are given; never speculate about other requirements.

Schema (example with empty values):
{
  "verdict": "<compliant|partial|non_compliant|abstain>",
  "rationale": "<string>"
}`
}

// GetUserPrompt builds a compact user message around one requirement and
// the assessed system's declared attributes.
func GetUserPrompt(q frameworks.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assess the AI system %q against the requirement below and respond with the JSON per schema.\n", q.System.Name)
	fmt.Fprintf(&b, "System type: %s. Declared risk level: %s.", q.System.Attributes.SystemType, q.System.Attributes.RiskLevel)
	if len(q.System.Attributes.DataFlows) > 0 {
		fmt.Fprintf(&b, " Data flows: %s.", strings.Join(q.System.Attributes.DataFlows, ", "))
	}
	fmt.Fprintf(&b, "\nRequirement %s (%s): %s", q.Requirement.ID, q.Requirement.Category, q.Requirement.Description)
	return b.String()
}

// VerdictResponse matches the schema used by the system prompt.
type VerdictResponse struct {
	Verdict   string `json:"verdict"`
	Rationale string `json:"rationale"`
}
