// Package registry tracks the agents and resources that missions draw on.
// Both registries serialise every mutation behind a single mutex so that
// Allocate is an atomic check-and-set across concurrent missions.
package registry

import (
	"sync"
	"time"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/observability"
)

// AgentType is the capability class of an agent.
type AgentType string

const (
	AgentPatrol         AgentType = "patrol"
	AgentCommand        AgentType = "command"
	AgentIntel          AgentType = "intel"
	AgentCrisis         AgentType = "crisis"
	AgentRobotics       AgentType = "robotics"
	AgentInvestigations AgentType = "investigations"
)

// AllAgentTypes lists every agent type in declaration order.
func AllAgentTypes() []AgentType {
	return []AgentType{AgentPatrol, AgentCommand, AgentIntel, AgentCrisis, AgentRobotics, AgentInvestigations}
}

// Valid reports whether t is a known agent type.
func (t AgentType) Valid() bool {
	for _, known := range AllAgentTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// AgentStatus is the operational status of an agent.
type AgentStatus string

const (
	AgentActive      AgentStatus = "active"
	AgentStandby     AgentStatus = "standby"
	AgentBusy        AgentStatus = "busy"
	AgentMaintenance AgentStatus = "maintenance"
	AgentOffline     AgentStatus = "offline"
	AgentSuspended   AgentStatus = "suspended"
)

// AllAgentStatuses lists every agent status in declaration order.
func AllAgentStatuses() []AgentStatus {
	return []AgentStatus{AgentActive, AgentStandby, AgentBusy, AgentMaintenance, AgentOffline, AgentSuspended}
}

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	for _, known := range AllAgentStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Agent is a named operational actor that can be assigned to tasks.
type Agent struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Type             AgentType   `json:"type"`
	Status           AgentStatus `json:"status"`
	Workload         int         `json:"workload"`
	MaxWorkload      int         `json:"maxWorkload"`
	SessionStartedAt *time.Time  `json:"sessionStartedAt,omitempty"`
	CurrentMission   string      `json:"currentMission,omitempty"`
	RegisteredAt     time.Time   `json:"registeredAt"`
}

func (a *Agent) assignable() bool {
	if a.Workload >= a.MaxWorkload {
		return false
	}
	switch a.Status {
	case AgentActive, AgentStandby:
		return true
	case AgentBusy:
		return a.Workload > 0
	default:
		return false
	}
}

func (a *Agent) clone() Agent {
	out := *a
	if a.SessionStartedAt != nil {
		ts := *a.SessionStartedAt
		out.SessionStartedAt = &ts
	}
	return out
}

// AgentRegistry is the agent directory consulted by the orchestrator.
type AgentRegistry struct {
	mu          sync.Mutex
	agents      map[string]*Agent
	order       []string
	maxWorkload int
	logger      *observability.Logger
	now         func() time.Time
}

// NewAgentRegistry creates an empty registry. maxWorkload is applied to
// agents registered without their own limit.
func NewAgentRegistry(logger *observability.Logger, maxWorkload int) *AgentRegistry {
	if logger == nil {
		logger = observability.Discard()
	}
	if maxWorkload < 1 {
		maxWorkload = 1
	}
	return &AgentRegistry{
		agents:      make(map[string]*Agent),
		maxWorkload: maxWorkload,
		logger:      logger.Component("agents"),
		now:         time.Now,
	}
}

// Register adds an agent. Empty status defaults to standby.
func (r *AgentRegistry) Register(agent Agent) (Agent, error) {
	if agent.ID == "" {
		return Agent{}, owerr.New(owerr.ErrCodeInvalidInput, "agent id is required")
	}
	if !agent.Type.Valid() {
		return Agent{}, owerr.Newf(owerr.ErrCodeInvalidInput, "unknown agent type %q", agent.Type).
			WithContext("agent_id", agent.ID)
	}
	if agent.Status == "" {
		agent.Status = AgentStandby
	}
	if !agent.Status.Valid() || agent.Status == AgentBusy {
		return Agent{}, owerr.Newf(owerr.ErrCodeInvalidInput, "agent cannot be registered as %q", agent.Status).
			WithContext("agent_id", agent.ID)
	}
	if agent.MaxWorkload <= 0 {
		agent.MaxWorkload = r.maxWorkload
	}
	if agent.Name == "" {
		agent.Name = agent.ID
	}
	agent.Workload = 0
	agent.CurrentMission = ""

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agent.ID]; exists {
		return Agent{}, owerr.Newf(owerr.ErrCodeInvalidInput, "agent %s already registered", agent.ID)
	}
	agent.RegisteredAt = r.now()
	stored := agent
	r.agents[agent.ID] = &stored
	r.order = append(r.order, agent.ID)

	r.logger.AgentRegistered(agent.ID, string(agent.Type), string(agent.Status))
	publishAgentCounts(r.countsLocked())
	return stored.clone(), nil
}

// Get returns a copy of the agent.
func (r *AgentRegistry) Get(id string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return Agent{}, owerr.NotFound("agent", id)
	}
	return a.clone(), nil
}

// List returns every agent in registration order.
func (r *AgentRegistry) List() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].clone())
	}
	return out
}

// ListByType returns agents of one capability type in registration order.
func (r *AgentRegistry) ListByType(t AgentType) []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Agent
	for _, id := range r.order {
		if a := r.agents[id]; a.Type == t {
			out = append(out, a.clone())
		}
	}
	return out
}

// ListAvailable returns agents that could take another assignment.
func (r *AgentRegistry) ListAvailable() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Agent
	for _, id := range r.order {
		if a := r.agents[id]; a.assignable() {
			out = append(out, a.clone())
		}
	}
	return out
}

// Allocate picks the least-loaded assignable agent of type t, ties going to
// the earliest registered, and marks it busy for missionID.
func (r *AgentRegistry) Allocate(t AgentType, missionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Agent
	for _, id := range r.order {
		a := r.agents[id]
		if a.Type != t || !a.assignable() {
			continue
		}
		if best == nil || a.Workload < best.Workload {
			best = a
		}
	}
	if best == nil {
		recordAllocation("agent", false)
		return "", owerr.Newf(owerr.ErrCodeResourceUnavailable, "no %s agent available", t).
			WithContext("agent_type", string(t)).
			WithContext("mission_id", missionID)
	}

	best.Workload++
	best.Status = AgentBusy
	best.CurrentMission = missionID
	recordAllocation("agent", true)
	publishAgentCounts(r.countsLocked())
	return best.ID, nil
}

// Release drops one assignment from the agent. An agent with no remaining
// assignments returns to active. Releasing an idle agent is a no-op.
func (r *AgentRegistry) Release(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return owerr.NotFound("agent", id)
	}
	if a.Workload == 0 {
		return nil
	}
	a.Workload--
	if a.Workload == 0 {
		a.CurrentMission = ""
		if a.Status == AgentBusy {
			a.Status = AgentActive
		}
	}
	publishAgentCounts(r.countsLocked())
	return nil
}

// SetStatus changes an agent's operational status. Busy is owned by
// Allocate/Release and an agent with open assignments cannot be moved.
func (r *AgentRegistry) SetStatus(id string, status AgentStatus) error {
	if !status.Valid() {
		return owerr.Newf(owerr.ErrCodeInvalidInput, "unknown agent status %q", status)
	}
	if status == AgentBusy {
		return owerr.New(owerr.ErrCodeInvalidInput, "busy is set by allocation only").
			WithContext("agent_id", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return owerr.NotFound("agent", id)
	}
	if a.Workload > 0 {
		return owerr.InvalidTransition("agent", id, string(a.Status), string(status)).
			WithRemediation("release the agent's mission assignments first")
	}
	a.Status = status
	publishAgentCounts(r.countsLocked())
	return nil
}

// StartSession marks the agent on duty.
func (r *AgentRegistry) StartSession(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return owerr.NotFound("agent", id)
	}
	switch a.Status {
	case AgentOffline, AgentSuspended, AgentMaintenance:
		return owerr.InvalidTransition("agent", id, string(a.Status), string(AgentActive))
	}
	now := r.now()
	a.SessionStartedAt = &now
	if a.Status == AgentStandby {
		a.Status = AgentActive
	}
	publishAgentCounts(r.countsLocked())
	return nil
}

// EndSession takes an idle agent off duty.
func (r *AgentRegistry) EndSession(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return owerr.NotFound("agent", id)
	}
	if a.Workload > 0 {
		return owerr.InvalidTransition("agent", id, string(a.Status), string(AgentStandby))
	}
	a.SessionStartedAt = nil
	if a.Status == AgentActive {
		a.Status = AgentStandby
	}
	publishAgentCounts(r.countsLocked())
	return nil
}

// Counts returns the number of agents per status.
func (r *AgentRegistry) Counts() map[AgentStatus]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countsLocked()
}

func (r *AgentRegistry) countsLocked() map[AgentStatus]int {
	counts := make(map[AgentStatus]int, len(AllAgentStatuses()))
	for _, a := range r.agents {
		counts[a.Status]++
	}
	return counts
}

// Reset removes every agent.
func (r *AgentRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*Agent)
	r.order = nil
	publishAgentCounts(r.countsLocked())
}
