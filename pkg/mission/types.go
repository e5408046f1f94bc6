package mission

import (
	"time"

	"github.com/odvcencio/overwatch/pkg/approval"
	"github.com/odvcencio/overwatch/pkg/policy"
	"github.com/odvcencio/overwatch/pkg/risk"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

// Status is a mission lifecycle state.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusBlocked         Status = "blocked"
	StatusCancelled       Status = "cancelled"
)

// AllStatuses lists every mission status.
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusPendingApproval, StatusApproved, StatusInProgress,
		StatusCompleted, StatusFailed, StatusBlocked, StatusCancelled,
	}
}

// TaskStatus is a task lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// OutcomeKind classifies a predicted or actual outcome.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomePartialSuccess OutcomeKind = "partial_success"
	OutcomeFailure        OutcomeKind = "failure"
)

// Outcome is a predicted or recorded mission result.
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	Probability float64     `json:"probability"`
	Description string      `json:"description"`
	RecordedAt  *time.Time  `json:"recordedAt,omitempty"`
}

// Task is one decomposed unit of mission work.
type Task struct {
	ID                string             `json:"id"`
	MissionID         string             `json:"missionId"`
	Type              taxonomy.TaskType  `json:"type"`
	Objective         string             `json:"objective"`
	Sequence          int                `json:"sequence"`
	Prerequisites     []string           `json:"prerequisites,omitempty"`
	AssignedAgents    []string           `json:"assignedAgents,omitempty"`
	AssignedResources []string           `json:"assignedResources,omitempty"`
	EstimatedDuration time.Duration      `json:"estimatedDuration"`
	Risk              *risk.Assessment   `json:"risk,omitempty"`
	Violations        []policy.Violation `json:"violations,omitempty"`
	ApprovalRequired  bool               `json:"approvalRequired"`
	Status            TaskStatus         `json:"status"`
	StartedAt         *time.Time         `json:"startedAt,omitempty"`
	EndedAt           *time.Time         `json:"endedAt,omitempty"`
	Deadline          *time.Time         `json:"deadline,omitempty"`
	Overdue           bool               `json:"overdue"`
	Result            string             `json:"result,omitempty"`
}

// Mission is a top-level unit of work. A Mission owns its tasks, risk,
// violations and approval requests; agents and resources are referenced
// by id.
type Mission struct {
	ID                string               `json:"id"`
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	Type              taxonomy.MissionType `json:"type"`
	Priority          taxonomy.Priority    `json:"priority"`
	Status            Status               `json:"status"`
	Objectives        []string             `json:"objectives"`
	Constraints       []string             `json:"constraints,omitempty"`
	Location          string               `json:"location,omitempty"`
	Conditions        []policy.Condition   `json:"conditions,omitempty"`
	Tasks             []Task               `json:"tasks"`
	AssignedAgents    []string             `json:"assignedAgents,omitempty"`
	AssignedResources []string             `json:"assignedResources,omitempty"`
	Risk              *risk.Assessment     `json:"risk,omitempty"`
	Violations        []policy.Violation   `json:"violations,omitempty"`
	ViolationHistory  []policy.Violation   `json:"violationHistory,omitempty"`
	Warnings          []string             `json:"warnings,omitempty"`
	Approvals         []approval.Request   `json:"approvals,omitempty"`
	ApprovalHistory   []approval.Request   `json:"approvalHistory,omitempty"`
	PredictedOutcomes []Outcome            `json:"predictedOutcomes,omitempty"`
	ActualOutcome     *Outcome             `json:"actualOutcome,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	StartedAt         *time.Time           `json:"startedAt,omitempty"`
	CompletedAt       *time.Time           `json:"completedAt,omitempty"`
	Deadline          *time.Time           `json:"deadline,omitempty"`
	CancelledAt       *time.Time           `json:"cancelledAt,omitempty"`
	CancelReason      string               `json:"cancelReason,omitempty"`
	AuditHash         string               `json:"auditHash"`
}

// Context is the payload pushed to an agent when its mission starts.
type Context struct {
	MissionID   string            `json:"missionId"`
	Title       string            `json:"title"`
	Priority    taxonomy.Priority `json:"priority"`
	Location    string            `json:"location,omitempty"`
	AgentID     string            `json:"agentId"`
	Tasks       []TaskBrief       `json:"tasks"`
	Objectives  []string          `json:"objectives"`
	Constraints []string          `json:"constraints,omitempty"`
	RiskLevel   risk.Level        `json:"riskLevel,omitempty"`
	AuditHash   string            `json:"auditHash"`
	StartedAt   time.Time         `json:"startedAt"`
}

// TaskBrief is the slice of a task an agent needs in the field.
type TaskBrief struct {
	ID        string            `json:"id"`
	Type      taxonomy.TaskType `json:"type"`
	Objective string            `json:"objective"`
	Sequence  int               `json:"sequence"`
}

// ContextFor builds the pushed context for one assigned agent.
func (m *Mission) ContextFor(agentID string) Context {
	ctx := Context{
		MissionID:   m.ID,
		Title:       m.Title,
		Priority:    m.Priority,
		Location:    m.Location,
		AgentID:     agentID,
		Objectives:  append([]string(nil), m.Objectives...),
		Constraints: append([]string(nil), m.Constraints...),
		AuditHash:   m.AuditHash,
	}
	if m.StartedAt != nil {
		ctx.StartedAt = *m.StartedAt
	}
	if m.Risk != nil {
		ctx.RiskLevel = m.Risk.Level
	}
	for _, t := range m.Tasks {
		for _, a := range t.AssignedAgents {
			if a == agentID {
				ctx.Tasks = append(ctx.Tasks, TaskBrief{ID: t.ID, Type: t.Type, Objective: t.Objective, Sequence: t.Sequence})
				break
			}
		}
	}
	return ctx
}

// Task returns a pointer to the task with id, or nil.
func (m *Mission) Task(id string) *Task {
	for i := range m.Tasks {
		if m.Tasks[i].ID == id {
			return &m.Tasks[i]
		}
	}
	return nil
}

// ActiveBlocking reports whether any current violation blocks.
func (m *Mission) ActiveBlocking() bool {
	return policy.HasBlocking(m.Violations)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneViolations(vs []policy.Violation) []policy.Violation {
	if vs == nil {
		return nil
	}
	out := make([]policy.Violation, len(vs))
	for i, v := range vs {
		v.Missing = append([]string(nil), v.Missing...)
		out[i] = v
	}
	return out
}

func cloneRequests(rs []approval.Request) []approval.Request {
	if rs == nil {
		return nil
	}
	out := make([]approval.Request, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() Task {
	out := *t
	out.Prerequisites = append([]string(nil), t.Prerequisites...)
	out.AssignedAgents = append([]string(nil), t.AssignedAgents...)
	out.AssignedResources = append([]string(nil), t.AssignedResources...)
	out.Risk = t.Risk.Clone()
	out.Violations = cloneViolations(t.Violations)
	out.StartedAt = cloneTime(t.StartedAt)
	out.EndedAt = cloneTime(t.EndedAt)
	out.Deadline = cloneTime(t.Deadline)
	return out
}

// Clone returns a deep copy of the mission. Snapshots handed to callers are
// always clones.
func (m *Mission) Clone() *Mission {
	out := *m
	out.Objectives = append([]string(nil), m.Objectives...)
	out.Constraints = append([]string(nil), m.Constraints...)
	out.Conditions = append([]policy.Condition(nil), m.Conditions...)
	out.Tasks = make([]Task, len(m.Tasks))
	for i := range m.Tasks {
		out.Tasks[i] = m.Tasks[i].Clone()
	}
	out.AssignedAgents = append([]string(nil), m.AssignedAgents...)
	out.AssignedResources = append([]string(nil), m.AssignedResources...)
	out.Risk = m.Risk.Clone()
	out.Violations = cloneViolations(m.Violations)
	out.ViolationHistory = cloneViolations(m.ViolationHistory)
	out.Warnings = append([]string(nil), m.Warnings...)
	out.Approvals = cloneRequests(m.Approvals)
	out.ApprovalHistory = cloneRequests(m.ApprovalHistory)
	out.PredictedOutcomes = append([]Outcome(nil), m.PredictedOutcomes...)
	if m.ActualOutcome != nil {
		o := *m.ActualOutcome
		o.RecordedAt = cloneTime(m.ActualOutcome.RecordedAt)
		out.ActualOutcome = &o
	}
	out.StartedAt = cloneTime(m.StartedAt)
	out.CompletedAt = cloneTime(m.CompletedAt)
	out.Deadline = cloneTime(m.Deadline)
	out.CancelledAt = cloneTime(m.CancelledAt)
	return &out
}
