package frameworks

// FrameworkID tipe untuk Framework
type FrameworkID string

// RiskLevel enum, declared by the system owner in the registry
type RiskLevel string

const (
	RiskMinimal      RiskLevel = "minimal"
	RiskLimited      RiskLevel = "limited"
	RiskHigh         RiskLevel = "high"
	RiskUnacceptable RiskLevel = "unacceptable"
)

// Attributes are the declared properties of an AI system that requirement
// applicability predicates match against.
type Attributes struct {
	SystemType string    `json:"system_type" yaml:"system_type"`
	RiskLevel  RiskLevel `json:"risk_level" yaml:"risk_level"`
	DataFlows  []string  `json:"data_flows,omitempty" yaml:"data_flows,omitempty"`
}

// AISystem is owned by the registry and read-only to the core. A run
// snapshots it so attributes stay stable for the whole assessment.
type AISystem struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Name       string     `json:"name"`
	Attributes Attributes `json:"attributes"`
}

// Applicability narrows a requirement to systems matching the listed
// attributes. An empty list matches everything.
type Applicability struct {
	RiskLevels  []RiskLevel `json:"risk_levels,omitempty" yaml:"risk_levels,omitempty"`
	SystemTypes []string    `json:"system_types,omitempty" yaml:"system_types,omitempty"`
	DataFlows   []string    `json:"data_flows,omitempty" yaml:"data_flows,omitempty"`
}

// AppliesTo evaluates the predicate against a system's attributes.
func (a Applicability) AppliesTo(attrs Attributes) bool {
	if len(a.RiskLevels) > 0 && !containsRisk(a.RiskLevels, attrs.RiskLevel) {
		return false
	}
	if len(a.SystemTypes) > 0 && !contains(a.SystemTypes, attrs.SystemType) {
		return false
	}
	if len(a.DataFlows) > 0 {
		matched := false
		for _, f := range attrs.DataFlows {
			if contains(a.DataFlows, f) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Requirement is one entry of a framework's catalog. Weight must be in
// (0,1]; the weight set of a framework version is fixed so historical
// scores stay reproducible.
type Requirement struct {
	ID            string        `json:"id" yaml:"id"`
	Category      string        `json:"category" yaml:"category"`
	Weight        float64       `json:"weight" yaml:"weight"`
	Description   string        `json:"description" yaml:"description"`
	Applicability Applicability `json:"applicability" yaml:"applicability"`
}

// Framework is a versioned regulatory catalog. Assessments always pin the
// version they were scored against.
type Framework struct {
	ID           FrameworkID   `json:"id" yaml:"id"`
	Code         string        `json:"code" yaml:"code"`
	Version      string        `json:"version" yaml:"version"`
	Requirements []Requirement `json:"requirements" yaml:"requirements"`
}

// Question is derived per (run, requirement); ephemeral, never persisted
// on its own.
type Question struct {
	ID          string
	Requirement Requirement
	System      AISystem
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsRisk(list []RiskLevel, r RiskLevel) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}
