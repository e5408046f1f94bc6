// Package policy evaluates tasks and missions against independent compliance
// frameworks and reports every rule that fires.
package policy

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/overwatch/pkg/config"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

// Validator runs every framework over a subject.
type Validator struct {
	mu     sync.RWMutex
	rules  map[Framework][]Rule
	now    func() time.Time
	newID  func() string
}

// NewValidator builds a validator with the built-in frameworks plus the
// configured agency rules.
func NewValidator(logger *observability.Logger, agency []config.AgencyRule) (*Validator, error) {
	if logger == nil {
		logger = observability.Discard()
	}
	rules := builtinRules()
	agencyRules, err := compileAgencyRules(agency)
	if err != nil {
		return nil, err
	}
	rules[FrameworkAgency] = agencyRules
	logger.Component("compliance").Debug("compliance rules loaded", slog.Int("agency_rules", len(agencyRules)))

	return &Validator{
		rules: rules,
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

func compileAgencyRules(in []config.AgencyRule) ([]Rule, error) {
	out := make([]Rule, 0, len(in))
	for _, ar := range in {
		rule := Rule{
			ID:          ar.ID,
			Framework:   FrameworkAgency,
			Type:        "agency_policy",
			Name:        ar.Name,
			Description: ar.Description,
			Severity:    Severity(strings.ToLower(ar.Severity)),
			Blocking:    ar.Blocking,
			Remediation: ar.Remediation,
		}
		if rule.Severity == "" {
			rule.Severity = SeverityMedium
		}
		if !rule.Severity.Valid() {
			return nil, agencyErr(ar.ID, "unknown severity %q", ar.Severity)
		}
		if rule.Description == "" {
			rule.Description = rule.Name
		}
		for _, target := range ar.AppliesTo {
			target = strings.ToLower(strings.TrimSpace(target))
			if !validTarget(target) {
				return nil, agencyErr(ar.ID, "unknown rule target %q", target)
			}
			rule.AppliesTo = append(rule.AppliesTo, target)
		}
		for _, raw := range ar.Conditions {
			c := Condition(normalize(raw))
			if !c.Valid() {
				return nil, agencyErr(ar.ID, "unknown condition %q", raw)
			}
			rule.Conditions = append(rule.Conditions, c)
		}
		for _, raw := range ar.Priorities {
			p, ok := taxonomy.ParsePriority(raw)
			if !ok {
				return nil, agencyErr(ar.ID, "unknown priority %q", raw)
			}
			rule.Priorities = append(rule.Priorities, p)
		}
		out = append(out, rule)
	}
	return out, nil
}

func agencyErr(id, format string, args ...any) error {
	return owerr.Newf(owerr.ErrCodeConfigInvalid, format, args...).
		WithContext("rule_id", id)
}

func validTarget(target string) bool {
	if target == MissionWildcard {
		return true
	}
	if IsMissionAction(target) {
		return taxonomy.MissionType(strings.TrimPrefix(target, missionScopePrefix)).Valid()
	}
	return taxonomy.TaskType(target).Valid()
}

// Validate evaluates every framework in order and never stops early.
func (v *Validator) Validate(s Subject) Result {
	v.mu.RLock()
	defer v.mu.RUnlock()

	granted := make(map[Condition]bool, len(s.Conditions))
	for _, c := range s.Conditions {
		granted[c] = true
	}

	result := Result{Allowed: true}
	now := v.now()
	for _, fw := range Frameworks() {
		report := FrameworkReport{Framework: fw}
		for _, rule := range v.rules[fw] {
			if !rule.appliesTo(s.Action) || !rule.inScope(s.Priority) {
				continue
			}
			report.Checked++
			missing := rule.missing(granted)
			if len(missing) == 0 {
				continue
			}
			report.Fired++
			violation := Violation{
				ID:          v.newID(),
				Framework:   fw,
				Type:        rule.Type,
				Description: fmt.Sprintf("%s (missing %s)", rule.Description, joinConditions(missing)),
				Severity:    rule.Severity,
				Blocking:    rule.Blocking,
				Remediation: rule.Remediation,
				RuleID:      rule.ID,
				Subject:     s.ID,
				Missing:     conditionStrings(missing),
				DetectedAt:  now,
			}
			if violation.Blocking {
				result.Allowed = false
			}
			result.Violations = append(result.Violations, violation)
		}
		result.Reports = append(result.Reports, report)
	}
	return result
}

// Rules returns the active tables in evaluation order.
func (v *Validator) Rules() []Rule {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []Rule
	for _, fw := range Frameworks() {
		for _, r := range v.rules[fw] {
			r.AppliesTo = append([]string(nil), r.AppliesTo...)
			r.Conditions = append([]Condition(nil), r.Conditions...)
			r.Priorities = append([]taxonomy.Priority(nil), r.Priorities...)
			out = append(out, r)
		}
	}
	return out
}

func joinConditions(cs []Condition) string {
	return strings.Join(conditionStrings(cs), ", ")
}

func conditionStrings(cs []Condition) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

var conditionAliases = map[string]Condition{
	"warrant":             CondWarrantObtained,
	"search_warrant":      CondWarrantObtained,
	"warrant_issued":      CondWarrantObtained,
	"pc":                  CondProbableCause,
	"supervisor_approval": CondSupervisorApproved,
	"supervisor_signoff":  CondSupervisorApproved,
	"oversight":           CondHumanOversight,
	"human_in_the_loop":   CondHumanOversight,
	"operator_present":    CondHumanOversight,
	"use_of_force":        CondUseOfForceAuthorized,
	"force_authorized":    CondUseOfForceAuthorized,
	"pia":                 CondPrivacyReview,
	"privacy_impact":      CondPrivacyReview,
	"de_escalation":       CondDeEscalationAttempted,
	"deescalation":        CondDeEscalationAttempted,
	"faa_clearance":       CondAirspaceClearance,
	"airspace":            CondAirspaceClearance,
	"ic_assigned":         CondIncidentCommanderAssigned,
	"incident_commander":  CondIncidentCommanderAssigned,
	"ems_standby":         CondMedicalStandby,
	"bodycam":             CondBodyCameraActive,
	"body_camera":         CondBodyCameraActive,
	"public_notice":       CondCommunityNotice,
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// ParseConditions maps free-form constraint strings onto the condition
// vocabulary. Unrecognised constraints are skipped; duplicates collapse.
func ParseConditions(constraints []string) []Condition {
	seen := make(map[Condition]bool)
	var out []Condition
	for _, raw := range constraints {
		key := normalize(raw)
		c := Condition(key)
		if !c.Valid() {
			alias, ok := conditionAliases[key]
			if !ok {
				continue
			}
			c = alias
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
