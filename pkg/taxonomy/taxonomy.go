// Package taxonomy holds the closed vocabularies shared by planning, risk,
// compliance and approval: priorities, mission types and task types.
package taxonomy

import (
	"strings"
	"time"
)

// Priority is the urgency of a mission. Approval requests inherit it.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityRoutine  Priority = "routine"
)

// AllPriorities lists priorities from most to least urgent.
func AllPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityRoutine}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Rank orders priorities, 0 being most urgent. Unknown priorities are -1.
func (p Priority) Rank() int {
	for i, known := range AllPriorities() {
		if p == known {
			return i
		}
	}
	return -1
}

// ParsePriority normalizes s onto a Priority.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// MissionType is the operational category of a mission.
type MissionType string

const (
	MissionPatrol              MissionType = "patrol"
	MissionInvestigation       MissionType = "investigation"
	MissionCrisisResponse      MissionType = "crisis_response"
	MissionTactical            MissionType = "tactical"
	MissionSearchRescue        MissionType = "search_rescue"
	MissionSurveillance        MissionType = "surveillance"
	MissionCommunityEngagement MissionType = "community_engagement"
	MissionGeneral             MissionType = "general"
)

// AllMissionTypes lists every mission type.
func AllMissionTypes() []MissionType {
	return []MissionType{
		MissionPatrol, MissionInvestigation, MissionCrisisResponse, MissionTactical,
		MissionSearchRescue, MissionSurveillance, MissionCommunityEngagement, MissionGeneral,
	}
}

// Valid reports whether t is a known mission type.
func (t MissionType) Valid() bool {
	for _, known := range AllMissionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// TaskType is the kind of work a decomposed task performs.
type TaskType string

const (
	TaskReconnaissance TaskType = "reconnaissance"
	TaskSurveillance   TaskType = "surveillance"
	TaskPatrol         TaskType = "patrol"
	TaskResponse       TaskType = "response"
	TaskInvestigation  TaskType = "investigation"
	TaskCoordination   TaskType = "coordination"
	TaskAnalysis       TaskType = "analysis"
	TaskCommunication  TaskType = "communication"
	TaskDeployment     TaskType = "deployment"
	TaskExtraction     TaskType = "extraction"
	TaskDeEscalation   TaskType = "de_escalation"
	TaskDocumentation  TaskType = "documentation"
	TaskSupport        TaskType = "support"
)

// AllTaskTypes lists every task type.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskReconnaissance, TaskSurveillance, TaskPatrol, TaskResponse,
		TaskInvestigation, TaskCoordination, TaskAnalysis, TaskCommunication,
		TaskDeployment, TaskExtraction, TaskDeEscalation, TaskDocumentation,
		TaskSupport,
	}
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	for _, known := range AllTaskTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// HighRisk reports whether tasks of this type always need human sign-off.
func (t TaskType) HighRisk() bool {
	switch t {
	case TaskResponse, TaskExtraction, TaskSurveillance:
		return true
	}
	return false
}

type keywordRule struct {
	taskType TaskType
	keywords []string
}

// classification is evaluated in order; the first rule with a matching
// keyword wins.
var classification = []keywordRule{
	{TaskReconnaissance, []string{"recon", "scout", "survey"}},
	{TaskSurveillance, []string{"surveil", "monitor", "watch", "observe", "track"}},
	{TaskExtraction, []string{"extract", "rescue", "evacuate", "retrieve"}},
	{TaskDeEscalation, []string{"de-escalat", "deescalat", "negotiat", "calm", "mental health", "crisis"}},
	{TaskResponse, []string{"respond", "intervene", "apprehend", "arrest", "secure"}},
	{TaskInvestigation, []string{"investigat", "interview", "evidence", "suspect", "inquir"}},
	{TaskPatrol, []string{"patrol", "canvass", "sweep"}},
	{TaskAnalysis, []string{"analy", "review", "assess", "evaluate"}},
	{TaskCoordination, []string{"coordinat", "command", "organize", "liaise"}},
	{TaskCommunication, []string{"communicat", "notify", "inform", "broadcast", "alert"}},
	{TaskDeployment, []string{"deploy", "dispatch", "launch", "position"}},
	{TaskDocumentation, []string{"document", "report", "record", "log"}},
}

// ClassifyObjective maps a free-text objective onto a task type. Objectives
// matching no keyword are support tasks.
func ClassifyObjective(objective string) TaskType {
	text := strings.ToLower(objective)
	for _, rule := range classification {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.taskType
			}
		}
	}
	return TaskSupport
}

var estimatedDurations = map[TaskType]time.Duration{
	TaskReconnaissance: 30 * time.Minute,
	TaskSurveillance:   2 * time.Hour,
	TaskPatrol:         time.Hour,
	TaskResponse:       45 * time.Minute,
	TaskInvestigation:  4 * time.Hour,
	TaskCoordination:   30 * time.Minute,
	TaskAnalysis:       time.Hour,
	TaskCommunication:  15 * time.Minute,
	TaskDeployment:     20 * time.Minute,
	TaskExtraction:     time.Hour,
	TaskDeEscalation:   time.Hour,
	TaskDocumentation:  30 * time.Minute,
	TaskSupport:        time.Hour,
}

// EstimatedDuration is the planning estimate for a task of type t.
func EstimatedDuration(t TaskType) time.Duration {
	if d, ok := estimatedDurations[t]; ok {
		return d
	}
	return time.Hour
}
