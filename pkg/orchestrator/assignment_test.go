package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/overwatch/pkg/config"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/registry"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

func TestAssignAgents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.plan(t, taxonomy.PriorityMedium, "Patrol the north side", "Interview the shop owners")

	got, err := h.o.AssignAgents(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"patrol-1"}, got.Tasks[0].AssignedAgents)
	assert.Equal(t, []string{"investigations-1"}, got.Tasks[1].AssignedAgents)
	assert.Equal(t, []string{"patrol-1", "investigations-1"}, got.AssignedAgents)
	for _, task := range got.Tasks {
		assert.Equal(t, mission.TaskAssigned, task.Status)
	}

	agent, err := h.o.Agents().Get("patrol-1")
	require.NoError(t, err)
	assert.Equal(t, registry.AgentBusy, agent.Status)
	assert.Equal(t, m.ID, agent.CurrentMission)

	// Staffed tasks are skipped on a second pass.
	_, err = h.o.AssignAgents(ctx, m.ID)
	require.NoError(t, err)
	agent, _ = h.o.Agents().Get("patrol-1")
	assert.Equal(t, 1, agent.Workload)
}

func TestAssignResources_BestEffortWarns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	events, unsub := h.hub.Subscribe()
	defer unsub()
	m := h.plan(t, taxonomy.PriorityMedium, "Patrol the north side", "Patrol the south side")

	got, err := h.o.AssignResources(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"unit-1"}, got.Tasks[0].AssignedResources)
	assert.Empty(t, got.Tasks[1].AssignedResources)
	assert.Equal(t, mission.TaskPending, got.Tasks[1].Status)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "unit")

	var failed bool
	for len(events) > 0 {
		if ev := <-events; ev.Type == telemetry.EventAllocationFailed {
			failed = true
			assert.Equal(t, got.Tasks[1].ID, ev.TaskID)
		}
	}
	assert.True(t, failed)
}

func TestAssignResources_StrictRollsBack(t *testing.T) {
	h := newHarness(t, withConfig(func(cfg *config.Config) {
		cfg.Allocation.Mode = config.AllocationStrict
	}))
	ctx := context.Background()
	m := h.plan(t, taxonomy.PriorityMedium, "Patrol the north side", "Patrol the south side")

	_, err := h.o.AssignResources(ctx, m.ID)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeResourceUnavailable), "got %v", err)

	unit, err := h.o.Resources().Get("unit-1")
	require.NoError(t, err)
	assert.Equal(t, registry.ResourceAvailable, unit.Status, "partial allocation is released")

	after, err := h.o.GetMission(m.ID)
	require.NoError(t, err)
	assert.Empty(t, after.AssignedResources)
	assert.Empty(t, after.Warnings)
	for _, task := range after.Tasks {
		assert.Empty(t, task.AssignedResources)
		assert.Equal(t, mission.TaskPending, task.Status)
	}
}

func TestAssign_RequiresPlannedLiveMission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	draft := h.create(t, taxonomy.PriorityMedium, "Patrol the park")
	_, err := h.o.AssignAgents(ctx, draft.ID)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeInvalidTransition))

	blocked := h.plan(t, taxonomy.PriorityMedium, "Monitor the warehouse entrance")
	require.Equal(t, mission.StatusBlocked, blocked.Status)
	_, err = h.o.AssignResources(ctx, blocked.ID)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeInvalidTransition))

	_, err = h.o.AssignAgents(ctx, "missing")
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeNotFound))
}
