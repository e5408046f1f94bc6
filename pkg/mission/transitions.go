// Package mission holds the mission and task data model, the lifecycle
// transition tables and the chain-of-custody hash.
package mission

import (
	owerr "github.com/odvcencio/overwatch/pkg/errors"
)

var missionTransitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval, StatusApproved, StatusBlocked, StatusCancelled},
	StatusPendingApproval: {StatusApproved, StatusBlocked, StatusCancelled},
	StatusApproved:        {StatusInProgress, StatusBlocked, StatusCancelled},
	StatusInProgress:      {StatusCompleted, StatusFailed, StatusBlocked, StatusCancelled},
	StatusBlocked:         {StatusDraft, StatusCancelled},
	StatusCompleted:       nil,
	StatusFailed:          nil,
	StatusCancelled:       nil,
}

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskAssigned, TaskInProgress, TaskCancelled},
	TaskAssigned:   {TaskInProgress, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskFailed, TaskCancelled},
	TaskCompleted:  nil,
	TaskFailed:     nil,
	TaskCancelled:  nil,
}

// CanTransition reports whether a mission may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range missionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	next, known := missionTransitions[s]
	return known && len(next) == 0
}

// Transition moves the mission to status to, or returns INVALID_TRANSITION
// and leaves the mission untouched.
func (m *Mission) Transition(to Status) error {
	if !CanTransition(m.Status, to) {
		return owerr.InvalidTransition("mission", m.ID, string(m.Status), string(to))
	}
	m.Status = to
	return nil
}

// CanTransitionTask reports whether a task may move between statuses.
func CanTransitionTask(from, to TaskStatus) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the task is finished.
func (s TaskStatus) Terminal() bool {
	next, known := taskTransitions[s]
	return known && len(next) == 0
}

// Transition moves the task to status to, or returns INVALID_TRANSITION.
func (t *Task) Transition(to TaskStatus) error {
	if !CanTransitionTask(t.Status, to) {
		return owerr.InvalidTransition("task", t.ID, string(t.Status), string(to))
	}
	t.Status = to
	return nil
}
