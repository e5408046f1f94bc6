package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/odvcencio/overwatch/pkg/approval"
	"github.com/odvcencio/overwatch/pkg/audit"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/policy"
	"github.com/odvcencio/overwatch/pkg/risk"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

// trace opens a span for op and returns the func that closes it.
func (o *Orchestrator) trace(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "orchestrator."+op, attrs...)
	return ctx, func(err error) {
		observability.EndSpan(span, err)
		observeOperation(op, start, err)
	}
}

func validateSpec(spec *MissionSpec) error {
	spec.Title = strings.TrimSpace(spec.Title)
	if spec.Title == "" {
		return owerr.New(owerr.ErrCodeInvalidInput, "mission title is required")
	}
	var objectives []string
	for _, obj := range spec.Objectives {
		if obj = strings.TrimSpace(obj); obj != "" {
			objectives = append(objectives, obj)
		}
	}
	if len(objectives) == 0 {
		return owerr.New(owerr.ErrCodeInvalidInput, "mission needs at least one objective").
			WithRemediation("Add at least one objective before creating the mission.")
	}
	spec.Objectives = objectives
	if spec.Type == "" {
		spec.Type = taxonomy.MissionGeneral
	}
	if !spec.Type.Valid() {
		return owerr.Newf(owerr.ErrCodeInvalidInput, "unknown mission type %q", spec.Type)
	}
	if !spec.Priority.Valid() {
		return owerr.Newf(owerr.ErrCodeInvalidInput, "unknown priority %q", spec.Priority)
	}
	for _, c := range spec.Conditions {
		if !c.Valid() {
			return owerr.Newf(owerr.ErrCodeInvalidInput, "unknown compliance condition %q", c)
		}
	}
	return nil
}

func mergeConditions(existing []policy.Condition, add ...policy.Condition) []policy.Condition {
	seen := make(map[policy.Condition]bool, len(existing))
	for _, c := range existing {
		seen[c] = true
	}
	out := existing
	for _, c := range add {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// CreateMission registers a draft mission.
func (o *Orchestrator) CreateMission(ctx context.Context, spec MissionSpec) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "CreateMission", observability.AttrMissionPriority.String(string(spec.Priority)))
	defer func() { done(err) }()

	if err := validateSpec(&spec); err != nil {
		return nil, err
	}

	now := o.now()
	m := &mission.Mission{
		ID:          o.newID(),
		Title:       spec.Title,
		Description: spec.Description,
		Type:        spec.Type,
		Priority:    spec.Priority,
		Status:      mission.StatusDraft,
		Objectives:  append([]string(nil), spec.Objectives...),
		Constraints: append([]string(nil), spec.Constraints...),
		Location:    spec.Location,
		Conditions:  mergeConditions(nil, append(append([]policy.Condition(nil), spec.Conditions...), policy.ParseConditions(spec.Constraints)...)...),
		CreatedAt:   now,
	}
	if spec.Deadline != nil {
		d := *spec.Deadline
		m.Deadline = &d
	}
	m.AuditHash = mission.ComputeAuditHash(m.ID, m.Type, m.CreatedAt)

	o.mu.Lock()
	if _, exists := o.missions[m.ID]; exists {
		o.mu.Unlock()
		return nil, owerr.Newf(owerr.ErrCodeInternal, "mission id %s already in use", m.ID)
	}
	o.missions[m.ID] = &missionEntry{m: m}
	o.order = append(o.order, m.ID)
	o.mu.Unlock()

	actor := spec.CreatedBy
	if actor == "" {
		actor = actorOrchestrator
	}
	recordMissionCreated(m)
	o.logger.WithContext(ctx).WithMission(m.ID).Info("mission created")
	o.hub.Publish(telemetry.Event{
		Type:      telemetry.EventMissionCreated,
		MissionID: m.ID,
		Data:      map[string]any{"title": m.Title, "type": string(m.Type), "priority": string(m.Priority)},
	})
	o.appendAudit(ctx, audit.Record{
		MissionID: m.ID,
		Kind:      audit.KindMissionCreated,
		Actor:     actor,
		Summary:   m.Title,
		Fields: map[string]string{
			"type":       string(m.Type),
			"priority":   string(m.Priority),
			"audit_hash": m.AuditHash,
			"objectives": strconv.Itoa(len(m.Objectives)),
		},
	})
	return m.Clone(), nil
}

// needsApproval decides whether an unblocked plan must wait for sign-off.
func needsApproval(m *mission.Mission) bool {
	switch m.Priority {
	case taxonomy.PriorityCritical, taxonomy.PriorityHigh:
		return true
	}
	for _, t := range m.Tasks {
		if t.ApprovalRequired {
			return true
		}
	}
	return m.Risk != nil && m.Risk.Level.AtLeast(risk.LevelHigh)
}

// predictOutcomes spreads the failure mass 60/40 over partial success and
// failure.
func predictOutcomes(p float64) []mission.Outcome {
	rest := 1 - p
	return []mission.Outcome{
		{Kind: mission.OutcomeSuccess, Probability: round4(p), Description: "All objectives met"},
		{Kind: mission.OutcomePartialSuccess, Probability: round4(rest * 0.6), Description: "Some objectives met"},
		{Kind: mission.OutcomeFailure, Probability: round4(rest * 0.4), Description: "Objectives not met"},
	}
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

// PlanMission decomposes a draft mission into tasks and gates it. The
// mission ends BLOCKED when any blocking rule fires, PENDING_APPROVAL when
// it needs human sign-off and APPROVED otherwise.
func (o *Orchestrator) PlanMission(ctx context.Context, id string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "PlanMission", observability.AttrMissionID.String(id))
	defer func() { done(err) }()

	return o.mutate(ctx, id, func(m *mission.Mission, fx *effects) error {
		if m.Status != mission.StatusDraft {
			return owerr.InvalidTransition("mission", m.ID, string(m.Status), "planned").
				WithRemediation("only draft missions can be planned")
		}
		now := o.now()

		m.Tasks = make([]mission.Task, 0, len(m.Objectives))
		var violations []policy.Violation
		var types []taxonomy.TaskType
		for i, objective := range m.Objectives {
			tt := taxonomy.ClassifyObjective(objective)
			task := mission.Task{
				ID:                o.newID(),
				MissionID:         m.ID,
				Type:              tt,
				Objective:         objective,
				Sequence:          i + 1,
				EstimatedDuration: taxonomy.EstimatedDuration(tt),
				Status:            mission.TaskPending,
			}
			if i > 0 {
				task.Prerequisites = []string{m.Tasks[i-1].ID}
			}
			assessment := risk.AssessTask(risk.TaskInput{
				Type:           tt,
				ParentPriority: m.Priority,
				Prerequisites:  len(task.Prerequisites),
			})
			task.Risk = &assessment

			result := o.validator.Validate(policy.Subject{
				ID:         task.ID,
				Action:     policy.TaskAction(tt),
				Priority:   m.Priority,
				Conditions: m.Conditions,
			})
			task.Violations = result.Violations
			task.ApprovalRequired = !result.Allowed || tt.HighRisk()

			violations = append(violations, result.Violations...)
			types = append(types, tt)
			m.Tasks = append(m.Tasks, task)
		}

		missionResult := o.validator.Validate(policy.Subject{
			ID:         m.ID,
			Action:     policy.MissionAction(m.Type),
			Priority:   m.Priority,
			Conditions: m.Conditions,
		})
		violations = append(violations, missionResult.Violations...)
		m.Violations = violations

		assessment := risk.AssessMission(risk.MissionInput{
			Priority:  m.Priority,
			TaskTypes: types,
			Deadline:  m.Deadline,
			Now:       now,
		})
		m.Risk = &assessment
		m.PredictedOutcomes = predictOutcomes(assessment.SuccessProbability)

		fx.violations(m.ID, violations)

		next := mission.StatusApproved
		reason := "plan cleared compliance and needs no sign-off"
		switch {
		case m.ActiveBlocking():
			next = mission.StatusBlocked
			reason = "blocking compliance violation"
		case needsApproval(m):
			next = mission.StatusPendingApproval
			reason = "plan requires human approval"
		}
		if err := fx.transition(m, next, actorOrchestrator, reason); err != nil {
			return err
		}

		fx.event(telemetry.Event{
			Type:      telemetry.EventMissionPlanned,
			MissionID: m.ID,
			Data: map[string]any{
				"tasks":      len(m.Tasks),
				"violations": len(m.Violations),
				"risk_level": string(assessment.Level),
				"status":     string(m.Status),
			},
		})
		fx.record(audit.Record{
			MissionID: m.ID,
			Kind:      audit.KindMissionPlanned,
			Actor:     actorOrchestrator,
			Summary:   fmt.Sprintf("%d tasks, risk %s", len(m.Tasks), assessment.Level),
			Fields: map[string]string{
				"tasks":               strconv.Itoa(len(m.Tasks)),
				"violations":          strconv.Itoa(len(m.Violations)),
				"risk_level":          string(assessment.Level),
				"risk_score":          strconv.FormatFloat(assessment.Score, 'f', 4, 64),
				"success_probability": strconv.FormatFloat(assessment.SuccessProbability, 'f', 4, 64),
			},
		})

		if next == mission.StatusPendingApproval {
			// Request creation is the last step so nothing after it can fail.
			o.openPlanApprovals(m, fx)
		}
		return nil
	})
}

// openPlanApprovals creates the mission-level request plus one per task
// that requires sign-off.
func (o *Orchestrator) openPlanApprovals(m *mission.Mission, fx *effects) {
	specs := []approval.Spec{{
		MissionID:   m.ID,
		Type:        approval.TypeMission,
		Description: fmt.Sprintf("Execute mission %q", m.Title),
		Urgency:     m.Priority,
		Requester:   actorOrchestrator,
	}}
	for _, t := range m.Tasks {
		if !t.ApprovalRequired {
			continue
		}
		specs = append(specs, approval.Spec{
			MissionID:   m.ID,
			TaskID:      t.ID,
			Type:        approval.TypeTask,
			Description: fmt.Sprintf("Task %d (%s): %s", t.Sequence, t.Type, t.Objective),
			Urgency:     m.Priority,
			Requester:   actorOrchestrator,
		})
	}
	for _, spec := range specs {
		req, err := o.approvals.Create(spec)
		if err != nil {
			fx.warn(m, fmt.Sprintf("could not open approval request: %v", err))
			continue
		}
		m.Approvals = append(m.Approvals, req)
		fx.approvalRequested(req)
	}
}
