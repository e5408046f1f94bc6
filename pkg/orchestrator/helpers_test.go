package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/overwatch/pkg/approval"
	"github.com/odvcencio/overwatch/pkg/audit"
	"github.com/odvcencio/overwatch/pkg/config"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/registry"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	o       *Orchestrator
	clock   *fakeClock
	hub     *telemetry.Hub
	journal *audit.MemoryJournal
}

type harnessOption func(cfg *config.Config, deps *Deps)

func withPusher(p ContextPusher) harnessOption {
	return func(_ *config.Config, deps *Deps) { deps.Pusher = p }
}

func withLogger(l *observability.Logger) harnessOption {
	return func(_ *config.Config, deps *Deps) { deps.Logger = l }
}

func withConfig(fn func(cfg *config.Config)) harnessOption {
	return func(cfg *config.Config, _ *Deps) { fn(cfg) }
}

// newHarness builds an orchestrator on a fake clock with sequential ids and
// one active agent and one resource of every type.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	cfg := config.DefaultConfig()
	journal := audit.NewMemoryJournal()
	deps := Deps{Hub: telemetry.NewHub(), Journal: journal}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	var reqs atomic.Int64
	deps.Approvals = approval.NewWorkflow(cfg.Approval, nil,
		approval.WithClock(clock.Now),
		approval.WithIDGenerator(func() string { return fmt.Sprintf("req-%d", reqs.Add(1)) }),
	)
	deps.Agents = registry.NewAgentRegistry(nil, cfg.Allocation.MaxAgentWorkload)
	deps.Resources = registry.NewResourcePool(nil)
	for _, at := range registry.AllAgentTypes() {
		_, err := deps.Agents.Register(registry.Agent{ID: string(at) + "-1", Type: at, Status: registry.AgentActive})
		require.NoError(t, err)
	}
	for _, rt := range registry.AllResourceTypes() {
		_, err := deps.Resources.Register(registry.Resource{ID: string(rt) + "-1", Type: rt})
		require.NoError(t, err)
	}

	var ids atomic.Int64
	o, err := New(cfg, deps,
		WithClock(clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", ids.Add(1)) }),
	)
	require.NoError(t, err)
	t.Cleanup(deps.Hub.Close)
	return &harness{o: o, clock: clock, hub: deps.Hub, journal: journal}
}

func (h *harness) create(t *testing.T, priority taxonomy.Priority, objectives ...string) *mission.Mission {
	t.Helper()
	m, err := h.o.CreateMission(context.Background(), MissionSpec{
		Title:      "Operation " + string(priority),
		Type:       taxonomy.MissionGeneral,
		Priority:   priority,
		Objectives: objectives,
		CreatedBy:  "dispatch",
	})
	require.NoError(t, err)
	return m
}

func (h *harness) plan(t *testing.T, priority taxonomy.Priority, objectives ...string) *mission.Mission {
	t.Helper()
	m := h.create(t, priority, objectives...)
	planned, err := h.o.PlanMission(context.Background(), m.ID)
	require.NoError(t, err)
	return planned
}

func (h *harness) approveAll(t *testing.T, id string) *mission.Mission {
	t.Helper()
	var m *mission.Mission
	for _, req := range h.o.Approvals().ListByMission(id) {
		if !req.Pending() {
			continue
		}
		var err error
		m, err = h.o.ApproveRequest(context.Background(), req.ID, "lt.kim", "", nil)
		require.NoError(t, err)
	}
	if m == nil {
		var err error
		m, err = h.o.GetMission(id)
		require.NoError(t, err)
	}
	return m
}

// ready plans, staffs and approves a mission so it can start.
func (h *harness) ready(t *testing.T, priority taxonomy.Priority, objectives ...string) *mission.Mission {
	t.Helper()
	ctx := context.Background()
	m := h.plan(t, priority, objectives...)
	_, err := h.o.AssignAgents(ctx, m.ID)
	require.NoError(t, err)
	_, err = h.o.AssignResources(ctx, m.ID)
	require.NoError(t, err)
	m = h.approveAll(t, m.ID)
	require.Equal(t, mission.StatusApproved, m.Status)
	return m
}

func (h *harness) started(t *testing.T, priority taxonomy.Priority, objectives ...string) *mission.Mission {
	t.Helper()
	m := h.ready(t, priority, objectives...)
	m, err := h.o.StartMission(context.Background(), m.ID)
	require.NoError(t, err)
	return m
}
