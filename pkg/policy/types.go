package policy

import (
	"strings"
	"time"

	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

// Framework is an independent rule set. Every framework is evaluated for
// every subject.
type Framework string

const (
	FrameworkConstitutional Framework = "constitutional"
	FrameworkPolicy         Framework = "policy"
	FrameworkEthics         Framework = "ethics"
	FrameworkAgency         Framework = "agency"
)

// Frameworks returns the fixed evaluation order.
func Frameworks() []Framework {
	return []Framework{FrameworkConstitutional, FrameworkPolicy, FrameworkEthics, FrameworkAgency}
}

// Severity grades a violation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Condition is a compliance precondition an operator can grant a mission.
type Condition string

const (
	CondWarrantObtained           Condition = "warrant_obtained"
	CondProbableCause             Condition = "probable_cause"
	CondSupervisorApproved        Condition = "supervisor_approved"
	CondHumanOversight            Condition = "human_oversight"
	CondUseOfForceAuthorized      Condition = "use_of_force_authorized"
	CondPrivacyReview             Condition = "privacy_review"
	CondBiasReview                Condition = "bias_review"
	CondDeEscalationAttempted     Condition = "de_escalation_attempted"
	CondAirspaceClearance         Condition = "airspace_clearance"
	CondIncidentCommanderAssigned Condition = "incident_commander_assigned"
	CondMedicalStandby            Condition = "medical_standby"
	CondBodyCameraActive          Condition = "body_camera_active"
	CondCommunityNotice           Condition = "community_notice"
)

// AllConditions lists the condition vocabulary.
func AllConditions() []Condition {
	return []Condition{
		CondWarrantObtained, CondProbableCause, CondSupervisorApproved,
		CondHumanOversight, CondUseOfForceAuthorized, CondPrivacyReview,
		CondBiasReview, CondDeEscalationAttempted, CondAirspaceClearance,
		CondIncidentCommanderAssigned, CondMedicalStandby, CondBodyCameraActive,
		CondCommunityNotice,
	}
}

// Valid reports whether c is in the vocabulary.
func (c Condition) Valid() bool {
	for _, known := range AllConditions() {
		if c == known {
			return true
		}
	}
	return false
}

const (
	missionScopePrefix = "mission:"
	// MissionWildcard applies a rule to the mission scope of every mission type.
	MissionWildcard = "mission:*"
)

// TaskAction is the action key a task is validated under.
func TaskAction(t taxonomy.TaskType) string {
	return string(t)
}

// MissionAction is the action key a mission is validated under.
func MissionAction(t taxonomy.MissionType) string {
	return missionScopePrefix + string(t)
}

// IsMissionAction reports whether action is a mission-scope key.
func IsMissionAction(action string) bool {
	return strings.HasPrefix(action, missionScopePrefix)
}

// Rule is one entry in a framework's table.
type Rule struct {
	ID          string              `json:"id" yaml:"id"`
	Framework   Framework           `json:"framework" yaml:"framework"`
	Type        string              `json:"type" yaml:"type"`
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description" yaml:"description"`
	AppliesTo   []string            `json:"appliesTo" yaml:"applies_to"`
	Conditions  []Condition         `json:"conditions" yaml:"conditions"`
	Priorities  []taxonomy.Priority `json:"priorities,omitempty" yaml:"priorities,omitempty"`
	Severity    Severity            `json:"severity" yaml:"severity"`
	Blocking    bool                `json:"blocking" yaml:"blocking"`
	Remediation string              `json:"remediation,omitempty" yaml:"remediation,omitempty"`
}

func (r Rule) appliesTo(action string) bool {
	for _, a := range r.AppliesTo {
		if a == action {
			return true
		}
		if a == MissionWildcard && IsMissionAction(action) {
			return true
		}
	}
	return false
}

func (r Rule) inScope(p taxonomy.Priority) bool {
	if len(r.Priorities) == 0 {
		return true
	}
	for _, want := range r.Priorities {
		if want == p {
			return true
		}
	}
	return false
}

// missing returns the required conditions absent from granted.
func (r Rule) missing(granted map[Condition]bool) []Condition {
	var out []Condition
	for _, c := range r.Conditions {
		if !granted[c] {
			out = append(out, c)
		}
	}
	return out
}

// Subject is a task or mission presented for validation.
type Subject struct {
	ID         string
	Action     string
	Priority   taxonomy.Priority
	Conditions []Condition
}

// Violation is a fired rule. Violations are never mutated after creation.
type Violation struct {
	ID          string    `json:"id"`
	Framework   Framework `json:"framework"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Blocking    bool      `json:"blocking"`
	Remediation string    `json:"remediation,omitempty"`
	RuleID      string    `json:"ruleId"`
	Subject     string    `json:"subject"`
	Missing     []string  `json:"missing,omitempty"`
	DetectedAt  time.Time `json:"detectedAt"`
}

// FrameworkReport records that a framework ran, how many rules it checked
// and how many fired.
type FrameworkReport struct {
	Framework Framework `json:"framework"`
	Checked   int       `json:"checked"`
	Fired     int       `json:"fired"`
}

// Result is the aggregate outcome of Validate.
type Result struct {
	Allowed    bool              `json:"allowed"`
	Violations []Violation       `json:"violations"`
	Reports    []FrameworkReport `json:"reports"`
}

// Blocking returns the blocking violations in r.
func (r Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Blocking {
			out = append(out, v)
		}
	}
	return out
}

// HasBlocking reports whether any violation in vs blocks.
func HasBlocking(vs []Violation) bool {
	for _, v := range vs {
		if v.Blocking {
			return true
		}
	}
	return false
}
