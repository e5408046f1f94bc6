package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odvcencio/overwatch/pkg/audit"
	"github.com/odvcencio/overwatch/pkg/config"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/registry"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

// pool abstracts the agent registry and resource pool so assignment and
// release share one code path.
type pool struct {
	kind       string
	wanted     func(taxonomy.TaskType) (string, bool)
	allocate   func(wanted, missionID string) (string, error)
	release    func(id string) error
	taskSet    func(t *mission.Task) *[]string
	missionSet func(m *mission.Mission) *[]string
}

func (o *Orchestrator) agentPool() pool {
	return pool{
		kind: "agent",
		wanted: func(t taxonomy.TaskType) (string, bool) {
			at, ok := AgentTypeFor(t)
			return string(at), ok
		},
		allocate: func(wanted, missionID string) (string, error) {
			return o.agents.Allocate(registry.AgentType(wanted), missionID)
		},
		release:    o.agents.Release,
		taskSet:    func(t *mission.Task) *[]string { return &t.AssignedAgents },
		missionSet: func(m *mission.Mission) *[]string { return &m.AssignedAgents },
	}
}

func (o *Orchestrator) resourcePool() pool {
	return pool{
		kind: "resource",
		wanted: func(t taxonomy.TaskType) (string, bool) {
			rt, ok := ResourceTypeFor(t)
			return string(rt), ok
		},
		allocate: func(wanted, missionID string) (string, error) {
			return o.resources.Allocate(registry.ResourceType(wanted), missionID)
		},
		release:    o.resources.Release,
		taskSet:    func(t *mission.Task) *[]string { return &t.AssignedResources },
		missionSet: func(m *mission.Mission) *[]string { return &m.AssignedResources },
	}
}

func appendUnique(set []string, id string) []string {
	for _, existing := range set {
		if existing == id {
			return set
		}
	}
	return append(set, id)
}

// AssignAgents allocates one agent of the matching type to every open task
// that has none. In best_effort mode a task that cannot be staffed is
// recorded as a warning; in strict mode the call fails and nothing it
// allocated is kept.
func (o *Orchestrator) AssignAgents(ctx context.Context, id string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "AssignAgents", observability.AttrMissionID.String(id))
	defer func() { done(err) }()
	return o.assign(ctx, id, o.agentPool())
}

// AssignResources allocates one resource of the matching type to every open
// task that has none, with the same failure handling as AssignAgents.
func (o *Orchestrator) AssignResources(ctx context.Context, id string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "AssignResources", observability.AttrMissionID.String(id))
	defer func() { done(err) }()
	return o.assign(ctx, id, o.resourcePool())
}

func (o *Orchestrator) assign(ctx context.Context, id string, p pool) (*mission.Mission, error) {
	return o.mutate(ctx, id, func(m *mission.Mission, fx *effects) error {
		switch m.Status {
		case mission.StatusPendingApproval, mission.StatusApproved:
		default:
			return owerr.Newf(owerr.ErrCodeInvalidTransition, "cannot assign %ss to a %s mission", p.kind, m.Status).
				WithContext("mission_id", m.ID).
				WithRemediation("plan the mission first")
		}

		var allocated []string
		for i := range m.Tasks {
			task := &m.Tasks[i]
			if task.Status.Terminal() || len(*p.taskSet(task)) > 0 {
				continue
			}
			wanted, ok := p.wanted(task.Type)
			if !ok {
				continue
			}

			got, err := p.allocate(wanted, m.ID)
			if err != nil {
				if o.allocationMode == config.AllocationStrict {
					o.releaseIDs(p, allocated)
					return owerr.Wrap(err, owerr.ErrCodeResourceUnavailable,
						fmt.Sprintf("task %d (%s) needs a %s %s", task.Sequence, task.Type, wanted, p.kind)).
						WithContext("mission_id", m.ID).
						WithContext("task_id", task.ID)
				}
				missionID, taskID, taskType := m.ID, task.ID, task.Type
				fx.add(func(ctx context.Context) {
					o.logger.WithContext(ctx).AllocationFailed(missionID, taskID, p.kind, wanted, err)
				})
				fx.warn(m, fmt.Sprintf("no %s %s available for task %d (%s)", wanted, p.kind, task.Sequence, taskType))
				fx.event(telemetry.Event{
					Type:      telemetry.EventAllocationFailed,
					MissionID: m.ID,
					TaskID:    taskID,
					Data:      map[string]any{"kind": p.kind, "wanted": wanted},
				})
				continue
			}

			allocated = append(allocated, got)
			ts := p.taskSet(task)
			*ts = append(*ts, got)
			ms := p.missionSet(m)
			*ms = appendUnique(*ms, got)
			if task.Status == mission.TaskPending {
				if err := task.Transition(mission.TaskAssigned); err != nil {
					o.releaseIDs(p, allocated)
					return err
				}
			}

			fx.event(telemetry.Event{
				Type:      telemetry.EventAllocation,
				MissionID: m.ID,
				TaskID:    task.ID,
				Data:      map[string]any{"kind": p.kind, "id": got, "type": wanted},
			})
			fx.record(audit.Record{
				MissionID: m.ID,
				Kind:      audit.KindAllocation,
				Actor:     actorOrchestrator,
				Summary:   fmt.Sprintf("%s %s assigned to task %d", p.kind, got, task.Sequence),
				Fields:    map[string]string{"kind": p.kind, "id": got, "type": wanted, "task_id": task.ID},
			})
		}
		return nil
	})
}

func (o *Orchestrator) releaseIDs(p pool, ids []string) {
	for _, id := range ids {
		if err := p.release(id); err != nil {
			o.logger.Error("release failed",
				slog.String("kind", p.kind),
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// releaseAll queues the return of every agent and resource held by m's
// tasks. Registry workload is counted per task assignment, so release walks
// the task lists. The lists stay on the mission as a record.
func (fx *effects) releaseAll(m *mission.Mission) {
	o := fx.o
	for _, p := range []pool{o.agentPool(), o.resourcePool()} {
		var ids []string
		for i := range m.Tasks {
			ids = append(ids, *p.taskSet(&m.Tasks[i])...)
		}
		if len(ids) > 0 {
			fx.add(func(context.Context) { o.releaseIDs(p, ids) })
		}
	}
}
