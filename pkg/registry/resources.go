package registry

import (
	"sync"
	"time"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/observability"
)

// ResourceType is the kind of allocatable asset.
type ResourceType string

const (
	ResourceUnit           ResourceType = "unit"
	ResourceDetective      ResourceType = "detective"
	ResourceDrone          ResourceType = "drone"
	ResourceRobot          ResourceType = "robot"
	ResourceSpecialistTeam ResourceType = "specialist_team"
	ResourceK9             ResourceType = "k9"
	ResourceMedical        ResourceType = "medical"
)

// AllResourceTypes lists every resource type in declaration order.
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceUnit, ResourceDetective, ResourceDrone, ResourceRobot,
		ResourceSpecialistTeam, ResourceK9, ResourceMedical,
	}
}

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	for _, known := range AllResourceTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ResourceStatus is the availability of a resource.
type ResourceStatus string

const (
	ResourceAvailable ResourceStatus = "available"
	ResourceAssigned  ResourceStatus = "assigned"
	ResourceBusy      ResourceStatus = "busy"
	ResourceStandby   ResourceStatus = "standby"
)

// AllResourceStatuses lists every resource status in declaration order.
func AllResourceStatuses() []ResourceStatus {
	return []ResourceStatus{ResourceAvailable, ResourceAssigned, ResourceBusy, ResourceStandby}
}

// Resource is a named allocatable asset.
type Resource struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         ResourceType   `json:"type"`
	Status       ResourceStatus `json:"status"`
	AssignedTo   string         `json:"assignedTo,omitempty"`
	AssignedAt   *time.Time     `json:"assignedAt,omitempty"`
	RegisteredAt time.Time      `json:"registeredAt"`
}

func (r *Resource) clone() Resource {
	out := *r
	if r.AssignedAt != nil {
		ts := *r.AssignedAt
		out.AssignedAt = &ts
	}
	return out
}

// ResourcePool holds allocatable resources.
type ResourcePool struct {
	mu        sync.Mutex
	resources map[string]*Resource
	order     []string
	logger    *observability.Logger
	now       func() time.Time
}

// NewResourcePool creates an empty pool.
func NewResourcePool(logger *observability.Logger) *ResourcePool {
	if logger == nil {
		logger = observability.Discard()
	}
	return &ResourcePool{
		resources: make(map[string]*Resource),
		logger:    logger.Component("resources"),
		now:       time.Now,
	}
}

// Register adds a resource in the available state.
func (p *ResourcePool) Register(res Resource) (Resource, error) {
	if res.ID == "" {
		return Resource{}, owerr.New(owerr.ErrCodeInvalidInput, "resource id is required")
	}
	if !res.Type.Valid() {
		return Resource{}, owerr.Newf(owerr.ErrCodeInvalidInput, "unknown resource type %q", res.Type).
			WithContext("resource_id", res.ID)
	}
	if res.Name == "" {
		res.Name = res.ID
	}
	res.Status = ResourceAvailable
	res.AssignedTo = ""
	res.AssignedAt = nil

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.resources[res.ID]; exists {
		return Resource{}, owerr.Newf(owerr.ErrCodeInvalidInput, "resource %s already registered", res.ID)
	}
	res.RegisteredAt = p.now()
	stored := res
	p.resources[res.ID] = &stored
	p.order = append(p.order, res.ID)

	p.logger.ResourceRegistered(res.ID, string(res.Type))
	publishResourceCounts(p.countsLocked())
	return stored.clone(), nil
}

// Get returns a copy of the resource.
func (p *ResourcePool) Get(id string) (Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.resources[id]
	if !ok {
		return Resource{}, owerr.NotFound("resource", id)
	}
	return res.clone(), nil
}

// List returns every resource in registration order.
func (p *ResourcePool) List() []Resource {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Resource, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.resources[id].clone())
	}
	return out
}

// ListByType returns resources of one type in registration order.
func (p *ResourcePool) ListByType(t ResourceType) []Resource {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Resource
	for _, id := range p.order {
		if res := p.resources[id]; res.Type == t {
			out = append(out, res.clone())
		}
	}
	return out
}

// ListAvailable returns resources that Allocate could hand out.
func (p *ResourcePool) ListAvailable() []Resource {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Resource
	for _, id := range p.order {
		if res := p.resources[id]; res.Status == ResourceAvailable {
			out = append(out, res.clone())
		}
	}
	return out
}

// Allocate moves the first available resource of type t to assigned.
func (p *ResourcePool) Allocate(t ResourceType, missionID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.order {
		res := p.resources[id]
		if res.Type != t || res.Status != ResourceAvailable {
			continue
		}
		now := p.now()
		res.Status = ResourceAssigned
		res.AssignedTo = missionID
		res.AssignedAt = &now
		recordAllocation("resource", true)
		publishResourceCounts(p.countsLocked())
		return res.ID, nil
	}

	recordAllocation("resource", false)
	return "", owerr.Newf(owerr.ErrCodeResourceUnavailable, "no %s resource available", t).
		WithContext("resource_type", string(t)).
		WithContext("mission_id", missionID)
}

// Release returns an assigned resource to the pool. Releasing a resource
// that is not assigned is a no-op.
func (p *ResourcePool) Release(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.resources[id]
	if !ok {
		return owerr.NotFound("resource", id)
	}
	if res.Status != ResourceAssigned {
		return nil
	}
	res.Status = ResourceAvailable
	res.AssignedTo = ""
	res.AssignedAt = nil
	publishResourceCounts(p.countsLocked())
	return nil
}

// SetStatus toggles a resource between available, busy and standby.
// Assigned resources only leave that state through Release.
func (p *ResourcePool) SetStatus(id string, status ResourceStatus) error {
	switch status {
	case ResourceAvailable, ResourceBusy, ResourceStandby:
	default:
		return owerr.Newf(owerr.ErrCodeInvalidInput, "resource status %q cannot be set directly", status).
			WithContext("resource_id", id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.resources[id]
	if !ok {
		return owerr.NotFound("resource", id)
	}
	if res.Status == ResourceAssigned {
		return owerr.InvalidTransition("resource", id, string(res.Status), string(status)).
			WithRemediation("release the resource from its mission first")
	}
	res.Status = status
	publishResourceCounts(p.countsLocked())
	return nil
}

// Counts returns the number of resources per status.
func (p *ResourcePool) Counts() map[ResourceStatus]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countsLocked()
}

func (p *ResourcePool) countsLocked() map[ResourceStatus]int {
	counts := make(map[ResourceStatus]int, len(AllResourceStatuses()))
	for _, res := range p.resources {
		counts[res.Status]++
	}
	return counts
}

// Reset removes every resource.
func (p *ResourcePool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources = make(map[string]*Resource)
	p.order = nil
	publishResourceCounts(p.countsLocked())
}
