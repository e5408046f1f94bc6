// Package orchestrator drives missions from draft to completion. It plans
// tasks, scores risk, runs compliance, allocates agents and resources, gates
// execution behind human approval and keeps every mission's state machine
// and audit trail.
//
// Every operation works on a private copy of the mission under the mission's
// lock and commits it only on success, so a failed call leaves no trace.
// Lock order is mission, then approval request; the expiry sweeper only ever
// holds a request lock and calls back into HandleExpired after releasing it.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/odvcencio/overwatch/pkg/approval"
	"github.com/odvcencio/overwatch/pkg/audit"
	"github.com/odvcencio/overwatch/pkg/config"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/policy"
	"github.com/odvcencio/overwatch/pkg/registry"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_pusher.go github.com/odvcencio/overwatch/pkg/orchestrator ContextPusher

// ContextPusher delivers a mission context to one agent.
type ContextPusher interface {
	PushContext(ctx context.Context, agentID string, mc mission.Context) error
}

// Actor recorded for decisions the orchestrator makes on its own.
const actorOrchestrator = "orchestrator"

// MissionSpec describes a mission to create.
type MissionSpec struct {
	Title       string
	Description string
	Type        taxonomy.MissionType
	Priority    taxonomy.Priority
	Objectives  []string
	Constraints []string
	Location    string
	// Conditions are compliance conditions already satisfied. Constraint
	// strings that name a condition are granted as well.
	Conditions []policy.Condition
	Deadline   *time.Time
	CreatedBy  string
}

// Deps are the collaborators an Orchestrator drives. Nil fields get an
// empty in-process default.
type Deps struct {
	Agents    *registry.AgentRegistry
	Resources *registry.ResourcePool
	Validator *policy.Validator
	Approvals *approval.Workflow
	Journal   audit.Journal
	Pusher    ContextPusher
	Hub       *telemetry.Hub
	Logger    *observability.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides mission and task id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

type missionEntry struct {
	mu sync.Mutex
	m  *mission.Mission
}

// Orchestrator owns the mission index.
type Orchestrator struct {
	mu       sync.RWMutex
	missions map[string]*missionEntry
	order    []string

	allocationMode       string
	expiredBlocksMission bool
	overrunFactor        float64

	agents    *registry.AgentRegistry
	resources *registry.ResourcePool
	validator *policy.Validator
	approvals *approval.Workflow
	journal   audit.Journal
	pusher    ContextPusher
	hub       *telemetry.Hub
	logger    *observability.Logger

	now   func() time.Time
	newID func() string
}

// New builds an orchestrator from cfg and deps.
func New(cfg *config.Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.Discard()
	}

	o := &Orchestrator{
		missions:             make(map[string]*missionEntry),
		allocationMode:       cfg.Allocation.Mode,
		expiredBlocksMission: cfg.Approval.ExpiredBlocksMission,
		overrunFactor:        cfg.Execution.TaskOverrunFactor,
		agents:               deps.Agents,
		resources:            deps.Resources,
		validator:            deps.Validator,
		approvals:            deps.Approvals,
		journal:              deps.Journal,
		pusher:               deps.Pusher,
		hub:                  deps.Hub,
		logger:               logger.Component("orchestrator"),
		now:                  time.Now,
		newID:                mission.NewID,
	}
	if o.allocationMode == "" {
		o.allocationMode = config.AllocationBestEffort
	}
	if o.overrunFactor <= 0 {
		o.overrunFactor = 1
	}
	if o.agents == nil {
		o.agents = registry.NewAgentRegistry(logger, cfg.Allocation.MaxAgentWorkload)
	}
	if o.resources == nil {
		o.resources = registry.NewResourcePool(logger)
	}
	if o.validator == nil {
		v, err := policy.NewValidator(logger, cfg.Compliance.AgencyRules)
		if err != nil {
			return nil, err
		}
		o.validator = v
	}
	if o.approvals == nil {
		o.approvals = approval.NewWorkflow(cfg.Approval, logger)
	}
	if o.journal == nil {
		o.journal = audit.NewMemoryJournal()
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Agents returns the agent registry the orchestrator allocates from.
func (o *Orchestrator) Agents() *registry.AgentRegistry { return o.agents }

// Resources returns the resource pool the orchestrator allocates from.
func (o *Orchestrator) Resources() *registry.ResourcePool { return o.resources }

// Approvals returns the approval workflow.
func (o *Orchestrator) Approvals() *approval.Workflow { return o.approvals }

// Validator returns the compliance validator.
func (o *Orchestrator) Validator() *policy.Validator { return o.validator }

func (o *Orchestrator) lookup(id string) (*missionEntry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.missions[id]
	if !ok {
		return nil, owerr.NotFound("mission", id)
	}
	return e, nil
}

func (o *Orchestrator) entries() []*missionEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*missionEntry, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.missions[id])
	}
	return out
}

// mutate runs fn against a copy of the mission under its lock. The copy and
// the effects fn queued are committed only when fn succeeds.
func (o *Orchestrator) mutate(ctx context.Context, id string, fn func(m *mission.Mission, fx *effects) error) (*mission.Mission, error) {
	e, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := e.m.Clone()
	fx := &effects{o: o}
	if err := fn(work, fx); err != nil {
		return nil, err
	}
	e.m = work
	fx.flush(ctx)
	return work.Clone(), nil
}

// Reset drops every mission and approval request. Registries are left
// alone.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.missions = make(map[string]*missionEntry)
	o.order = nil
	o.mu.Unlock()
	o.approvals.Reset()
}
