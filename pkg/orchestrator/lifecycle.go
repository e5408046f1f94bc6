package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/overwatch/pkg/approval"
	"github.com/odvcencio/overwatch/pkg/audit"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/policy"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

// StartMission moves an APPROVED mission to IN_PROGRESS and pushes the
// mission context to every assigned agent. A failed push leaves a warning
// on the mission; it does not stop the start.
func (o *Orchestrator) StartMission(ctx context.Context, id string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "StartMission", observability.AttrMissionID.String(id))
	defer func() { done(err) }()

	return o.mutate(ctx, id, func(m *mission.Mission, fx *effects) error {
		if m.Status != mission.StatusApproved {
			return owerr.InvalidTransition("mission", m.ID, string(m.Status), string(mission.StatusInProgress)).
				WithRemediation("only approved missions can start")
		}
		if hasPendingApproval(m, "") {
			return owerr.New(owerr.ErrCodeInvalidTransition, "mission has unresolved approval requests").
				WithContext("mission_id", m.ID)
		}
		if err := fx.transition(m, mission.StatusInProgress, actorOrchestrator, "mission started"); err != nil {
			return err
		}
		now := o.now()
		m.StartedAt = &now

		if o.pusher == nil {
			return nil
		}
		for _, agentID := range m.AssignedAgents {
			o.pushContext(ctx, m, agentID, fx)
		}
		return nil
	})
}

func (o *Orchestrator) pushContext(ctx context.Context, m *mission.Mission, agentID string, fx *effects) {
	missionID := m.ID
	err := o.pusher.PushContext(ctx, agentID, m.ContextFor(agentID))
	if err != nil {
		fx.add(func(ctx context.Context) {
			o.logger.WithContext(ctx).ContextPushFailed(missionID, agentID, err)
			recordContextPush(false)
		})
		fx.warn(m, fmt.Sprintf("mission context not delivered to agent %s: %v", agentID, err))
		fx.event(telemetry.Event{
			Type:      telemetry.EventContextPushFailed,
			MissionID: missionID,
			Data:      map[string]any{"agent_id": agentID, "error": err.Error()},
		})
		return
	}
	fx.add(func(context.Context) { recordContextPush(true) })
	fx.event(telemetry.Event{
		Type:      telemetry.EventContextPushed,
		MissionID: missionID,
		Data:      map[string]any{"agent_id": agentID},
	})
}

func (o *Orchestrator) runningTask(m *mission.Mission, taskID string) (*mission.Task, error) {
	if m.Status != mission.StatusInProgress {
		return nil, owerr.Newf(owerr.ErrCodeInvalidTransition, "mission is %s, not in progress", m.Status).
			WithContext("mission_id", m.ID)
	}
	task := m.Task(taskID)
	if task == nil {
		return nil, owerr.NotFound("task", taskID)
	}
	return task, nil
}

func taskRecord(m *mission.Mission, t *mission.Task, summary string) audit.Record {
	return audit.Record{
		MissionID: m.ID,
		Kind:      audit.KindTask,
		Actor:     actorOrchestrator,
		Summary:   summary,
		Fields: map[string]string{
			"task_id":  t.ID,
			"sequence": strconv.Itoa(t.Sequence),
			"type":     string(t.Type),
			"status":   string(t.Status),
		},
	}
}

// StartTask starts a task of an in-progress mission once its prerequisites
// have completed and no approval for it is outstanding. The task's overrun
// deadline is its estimated duration scaled by the configured factor.
func (o *Orchestrator) StartTask(ctx context.Context, missionID, taskID string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "StartTask",
		observability.AttrMissionID.String(missionID),
		observability.AttrTaskID.String(taskID),
	)
	defer func() { done(err) }()

	return o.mutate(ctx, missionID, func(m *mission.Mission, fx *effects) error {
		task, err := o.runningTask(m, taskID)
		if err != nil {
			return err
		}
		for _, pre := range task.Prerequisites {
			if p := m.Task(pre); p == nil || p.Status != mission.TaskCompleted {
				return owerr.Newf(owerr.ErrCodeInvalidTransition, "task %d waits on prerequisite %s", task.Sequence, pre).
					WithContext("task_id", task.ID)
			}
		}
		if hasPendingApproval(m, task.ID) {
			return owerr.Newf(owerr.ErrCodeInvalidTransition, "task %d is awaiting approval", task.Sequence).
				WithContext("task_id", task.ID)
		}
		if err := task.Transition(mission.TaskInProgress); err != nil {
			return err
		}

		now := o.now()
		deadline := now.Add(time.Duration(float64(task.EstimatedDuration) * o.overrunFactor))
		task.StartedAt = &now
		task.Deadline = &deadline

		fx.event(telemetry.Event{
			Type:      telemetry.EventTaskStarted,
			MissionID: m.ID,
			TaskID:    task.ID,
			Data:      map[string]any{"sequence": task.Sequence, "deadline": deadline},
		})
		fx.record(taskRecord(m, task, fmt.Sprintf("task %d started", task.Sequence)))
		return nil
	})
}

// CompleteTask records the result of a running task.
func (o *Orchestrator) CompleteTask(ctx context.Context, missionID, taskID string, success bool, result string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "CompleteTask",
		observability.AttrMissionID.String(missionID),
		observability.AttrTaskID.String(taskID),
	)
	defer func() { done(err) }()

	return o.mutate(ctx, missionID, func(m *mission.Mission, fx *effects) error {
		task, err := o.runningTask(m, taskID)
		if err != nil {
			return err
		}
		to, evType := mission.TaskCompleted, telemetry.EventTaskCompleted
		if !success {
			to, evType = mission.TaskFailed, telemetry.EventTaskFailed
		}
		if err := task.Transition(to); err != nil {
			return err
		}
		now := o.now()
		task.EndedAt = &now
		task.Result = result

		fx.event(telemetry.Event{
			Type:      evType,
			MissionID: m.ID,
			TaskID:    task.ID,
			Data:      map[string]any{"sequence": task.Sequence, "result": result},
		})
		fx.record(taskRecord(m, task, fmt.Sprintf("task %d %s", task.Sequence, to)))
		return nil
	})
}

// cancelOpenTasks closes every task that has not finished.
func (o *Orchestrator) cancelOpenTasks(m *mission.Mission) {
	now := o.now()
	for i := range m.Tasks {
		t := &m.Tasks[i]
		if t.Status.Terminal() {
			continue
		}
		t.Status = mission.TaskCancelled
		t.EndedAt = &now
	}
}

func actualOutcome(m *mission.Mission, success bool, summary string, at time.Time) *mission.Outcome {
	kind := mission.OutcomeFailure
	if success {
		kind = mission.OutcomeSuccess
		for _, t := range m.Tasks {
			if t.Status != mission.TaskCompleted {
				kind = mission.OutcomePartialSuccess
				break
			}
		}
	}
	if summary == "" {
		summary = string(kind)
	}
	return &mission.Outcome{Kind: kind, Probability: 1, Description: summary, RecordedAt: &at}
}

// CompleteMission closes an in-progress mission as COMPLETED or FAILED,
// records its actual outcome and returns its agents and resources.
// Unfinished tasks are cancelled; a successful mission with any task that
// did not complete is recorded as a partial success.
func (o *Orchestrator) CompleteMission(ctx context.Context, id string, success bool, summary string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "CompleteMission", observability.AttrMissionID.String(id))
	defer func() { done(err) }()

	return o.mutate(ctx, id, func(m *mission.Mission, fx *effects) error {
		to := mission.StatusCompleted
		if !success {
			to = mission.StatusFailed
		}
		if m.Status != mission.StatusInProgress {
			return owerr.InvalidTransition("mission", m.ID, string(m.Status), string(to))
		}
		if err := fx.transition(m, to, actorOrchestrator, summary); err != nil {
			return err
		}
		now := o.now()
		o.cancelOpenTasks(m)
		m.CompletedAt = &now
		m.ActualOutcome = actualOutcome(m, success, summary, now)
		fx.releaseAll(m)
		return nil
	})
}

// closePending denies every open request on m as the system.
func (o *Orchestrator) closePending(m *mission.Mission, fx *effects, reason string) {
	for _, r := range m.Approvals {
		if !r.Pending() {
			continue
		}
		req, err := o.approvals.Deny(r.ID, approval.SystemActor, reason)
		if err != nil {
			// The sweeper may have resolved it first.
			if req, err = o.approvals.Get(r.ID); err != nil {
				continue
			}
		}
		syncApproval(m, req)
		fx.approvalResolved(req)
	}
}

// CancelMission cancels a mission in any non-terminal state. Open approval
// requests are denied, unfinished tasks are cancelled and held agents and
// resources are released.
func (o *Orchestrator) CancelMission(ctx context.Context, id, reason string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "CancelMission", observability.AttrMissionID.String(id))
	defer func() { done(err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled"
	}
	return o.mutate(ctx, id, func(m *mission.Mission, fx *effects) error {
		if err := fx.transition(m, mission.StatusCancelled, actorOrchestrator, reason); err != nil {
			return err
		}
		now := o.now()
		m.CancelledAt = &now
		m.CancelReason = reason
		o.closePending(m, fx, "mission cancelled: "+reason)
		o.cancelOpenTasks(m)
		fx.releaseAll(m)
		return nil
	})
}

// RemediateMission returns a BLOCKED mission to DRAFT once the operator has
// satisfied the missing conditions. Current violations and approvals move to
// history, allocations are released and the plan is discarded so the
// mission can be planned again.
func (o *Orchestrator) RemediateMission(ctx context.Context, id string, conditions []policy.Condition) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "RemediateMission", observability.AttrMissionID.String(id))
	defer func() { done(err) }()

	for _, c := range conditions {
		if !c.Valid() {
			return nil, owerr.Newf(owerr.ErrCodeInvalidInput, "unknown compliance condition %q", c)
		}
	}

	return o.mutate(ctx, id, func(m *mission.Mission, fx *effects) error {
		if m.Status != mission.StatusBlocked {
			return owerr.InvalidTransition("mission", m.ID, string(m.Status), string(mission.StatusDraft)).
				WithRemediation("only blocked missions can be remediated")
		}
		if err := fx.transition(m, mission.StatusDraft, actorOrchestrator, "remediated"); err != nil {
			return err
		}

		m.Conditions = mergeConditions(m.Conditions, conditions...)
		m.ViolationHistory = append(m.ViolationHistory, m.Violations...)
		m.Violations = nil

		o.closePending(m, fx, "mission remediated")
		m.ApprovalHistory = append(m.ApprovalHistory, m.Approvals...)
		m.Approvals = nil

		fx.releaseAll(m)
		m.Tasks = nil
		m.AssignedAgents = nil
		m.AssignedResources = nil
		m.Risk = nil
		m.PredictedOutcomes = nil

		granted := make([]string, len(conditions))
		for i, c := range conditions {
			granted[i] = string(c)
		}
		fx.event(telemetry.Event{
			Type:      telemetry.EventMissionRemediated,
			MissionID: m.ID,
			Data:      map[string]any{"conditions": granted},
		})
		return nil
	})
}

// CheckOverdueTasks flags running tasks past their overrun deadline. Each
// task is flagged once. It returns the number newly flagged.
func (o *Orchestrator) CheckOverdueTasks(ctx context.Context, now time.Time) int {
	flagged := 0
	for _, e := range o.entries() {
		e.mu.Lock()
		running := e.m.Status == mission.StatusInProgress
		id := e.m.ID
		e.mu.Unlock()
		if !running {
			continue
		}

		_, err := o.mutate(ctx, id, func(m *mission.Mission, fx *effects) error {
			for i := range m.Tasks {
				t := &m.Tasks[i]
				if t.Status != mission.TaskInProgress || t.Overdue || t.Deadline == nil || !now.After(*t.Deadline) {
					continue
				}
				t.Overdue = true
				flagged++
				fx.add(func(context.Context) { recordTaskOverdue() })
				fx.warn(m, fmt.Sprintf("task %d (%s) overran its deadline", t.Sequence, t.Type))
				fx.event(telemetry.Event{
					Type:      telemetry.EventTaskOverdue,
					MissionID: m.ID,
					TaskID:    t.ID,
					Data:      map[string]any{"deadline": *t.Deadline},
				})
			}
			return nil
		})
		if err != nil {
			o.logger.Error("overdue check failed",
				slog.String("mission_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return flagged
}

// OverdueCheck adapts CheckOverdueTasks to the sweeper's tick hook.
func (o *Orchestrator) OverdueCheck() approval.TickFunc {
	return func(ctx context.Context, now time.Time) {
		o.CheckOverdueTasks(ctx, now)
	}
}
