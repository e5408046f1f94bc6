// Package approval tracks time-bound human sign-off requests.
//
// A request starts pending and resolves exactly once:
//   - Approve: approved, or conditional when conditions are attached
//   - Deny: denied
//   - Expire / Sweep: expired (or denied, under the deny expiry action)
//
// Each request carries its own mutex so a human resolution and the sweeper
// can never both win.
package approval

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/overwatch/pkg/config"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

// Status represents the resolution state of a request.
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusDenied      Status = "denied"
	StatusConditional Status = "conditional"
	StatusExpired     Status = "expired"
)

// SystemActor resolves requests on behalf of timers and cancellations.
const SystemActor = "system"

// Request types created by the orchestrator.
const (
	TypeMission = "mission_execution"
	TypeTask    = "task_execution"
)

// Request is a human approval gate.
type Request struct {
	ID          string            `json:"id"`
	MissionID   string            `json:"missionId"`
	TaskID      string            `json:"taskId,omitempty"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Urgency     taxonomy.Priority `json:"urgency"`
	Requester   string            `json:"requester"`
	Authority   string            `json:"authority"`
	Status      Status            `json:"status"`
	Approver    string            `json:"approver,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Conditions  []string          `json:"conditions,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	ResolvedAt  *time.Time        `json:"resolvedAt,omitempty"`
}

// Pending reports whether the request is unresolved.
func (r Request) Pending() bool { return r.Status == StatusPending }

// Negative reports whether the request resolved against proceeding.
func (r Request) Negative() bool {
	return r.Status == StatusDenied || r.Status == StatusExpired
}

// Clone returns a deep copy.
func (r Request) Clone() Request {
	out := r
	out.Conditions = append([]string(nil), r.Conditions...)
	if r.ResolvedAt != nil {
		ts := *r.ResolvedAt
		out.ResolvedAt = &ts
	}
	return out
}

// Spec describes a request to create.
type Spec struct {
	MissionID   string
	TaskID      string
	Type        string
	Description string
	Urgency     taxonomy.Priority
	Requester   string
	Authority   string
}

// AuthorityFor is the sign-off authority required at a given urgency.
func AuthorityFor(p taxonomy.Priority) string {
	switch p {
	case taxonomy.PriorityCritical:
		return "watch_commander"
	case taxonomy.PriorityHigh:
		return "shift_supervisor"
	case taxonomy.PriorityMedium:
		return "sergeant"
	default:
		return "duty_officer"
	}
}

type entry struct {
	mu  sync.Mutex
	req Request
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithIDGenerator overrides request id generation.
func WithIDGenerator(fn func() string) Option {
	return func(w *Workflow) { w.newID = fn }
}

// Workflow creates and resolves approval requests.
type Workflow struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	windows map[taxonomy.Priority]time.Duration
	action  string
	logger  *observability.Logger
	now     func() time.Time
	newID   func() string
}

// NewWorkflow builds a workflow from the approval config section.
func NewWorkflow(cfg config.ApprovalConfig, logger *observability.Logger, opts ...Option) *Workflow {
	if logger == nil {
		logger = observability.Discard()
	}
	windows := make(map[taxonomy.Priority]time.Duration)
	for k, v := range config.DefaultApprovalWindows() {
		windows[taxonomy.Priority(k)] = v
	}
	for k, v := range cfg.Windows {
		if v > 0 {
			windows[taxonomy.Priority(k)] = v
		}
	}
	action := cfg.ExpiryAction
	if action == "" {
		action = config.ExpiryActionExpire
	}

	w := &Workflow{
		entries: make(map[string]*entry),
		windows: windows,
		action:  action,
		logger:  logger.Component("approval"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Window returns the approval window for an urgency.
func (w *Workflow) Window(urgency taxonomy.Priority) time.Duration {
	if d, ok := w.windows[urgency]; ok {
		return d
	}
	return w.windows[taxonomy.PriorityRoutine]
}

// Create registers a pending request. ExpiresAt is CreatedAt plus the
// window for the request's urgency.
func (w *Workflow) Create(spec Spec) (Request, error) {
	if spec.MissionID == "" {
		return Request{}, owerr.New(owerr.ErrCodeInvalidInput, "approval request needs a mission id")
	}
	if !spec.Urgency.Valid() {
		return Request{}, owerr.Newf(owerr.ErrCodeInvalidInput, "unknown urgency %q", spec.Urgency)
	}
	if spec.Type == "" {
		spec.Type = TypeMission
	}
	if spec.Authority == "" {
		spec.Authority = AuthorityFor(spec.Urgency)
	}
	if spec.Requester == "" {
		spec.Requester = SystemActor
	}

	now := w.now()
	req := Request{
		ID:          w.newID(),
		MissionID:   spec.MissionID,
		TaskID:      spec.TaskID,
		Type:        spec.Type,
		Description: spec.Description,
		Urgency:     spec.Urgency,
		Requester:   spec.Requester,
		Authority:   spec.Authority,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(w.Window(spec.Urgency)),
	}

	w.mu.Lock()
	w.entries[req.ID] = &entry{req: req}
	w.order = append(w.order, req.ID)
	w.mu.Unlock()

	w.logger.ApprovalRequested(req.ID, req.MissionID, string(req.Urgency), req.Authority)
	return req.Clone(), nil
}

func (w *Workflow) lookup(id string) (*entry, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entries[id]
	if !ok {
		return nil, owerr.NotFound("approval request", id)
	}
	return e, nil
}

// Get returns a copy of the request.
func (w *Workflow) Get(id string) (Request, error) {
	e, err := w.lookup(id)
	if err != nil {
		return Request{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.Clone(), nil
}

// Approve resolves a pending request. Conditions make it conditional.
// A request already past its deadline is expired instead and the returned
// error carries APPROVAL_EXPIRED alongside the expired request.
func (w *Workflow) Approve(id, approver, notes string, conditions []string) (Request, error) {
	e, err := w.lookup(id)
	if err != nil {
		return Request{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := w.checkPendingLocked(e); err != nil {
		return e.req.Clone(), err
	}
	now := w.now()
	if w.enforcesExpiry() && now.After(e.req.ExpiresAt) {
		w.expireLocked(e, now)
		return e.req.Clone(), owerr.New(owerr.ErrCodeApprovalExpired, "approval window elapsed before approval").
			WithContext("request_id", id).
			WithContext("expired_at", e.req.ExpiresAt.Format(time.RFC3339))
	}

	e.req.Status = StatusApproved
	if len(conditions) > 0 {
		e.req.Status = StatusConditional
		e.req.Conditions = append([]string(nil), conditions...)
	}
	e.req.Approver = approver
	e.req.Notes = notes
	e.req.ResolvedAt = &now
	w.logger.ApprovalResolved(id, string(e.req.Status), approver)
	return e.req.Clone(), nil
}

// Deny resolves a pending request as denied. Denial is accepted after the
// deadline too, since it never lets work proceed.
func (w *Workflow) Deny(id, denier, reason string) (Request, error) {
	e, err := w.lookup(id)
	if err != nil {
		return Request{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := w.checkPendingLocked(e); err != nil {
		return e.req.Clone(), err
	}
	now := w.now()
	e.req.Status = StatusDenied
	e.req.Approver = denier
	e.req.Notes = reason
	e.req.ResolvedAt = &now
	w.logger.ApprovalResolved(id, string(e.req.Status), denier)
	return e.req.Clone(), nil
}

// Expire resolves a pending request as expired regardless of its deadline.
func (w *Workflow) Expire(id string) (Request, error) {
	e, err := w.lookup(id)
	if err != nil {
		return Request{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := w.checkPendingLocked(e); err != nil {
		return e.req.Clone(), err
	}
	e.req.Status = StatusExpired
	now := w.now()
	e.req.ResolvedAt = &now
	e.req.Approver = SystemActor
	w.logger.ApprovalResolved(id, string(e.req.Status), SystemActor)
	return e.req.Clone(), nil
}

func (w *Workflow) checkPendingLocked(e *entry) error {
	if e.req.Status == StatusPending {
		return nil
	}
	return owerr.Newf(owerr.ErrCodeApprovalResolved, "approval request %s already %s", e.req.ID, e.req.Status).
		WithContext("request_id", e.req.ID).
		WithContext("status", string(e.req.Status))
}

func (w *Workflow) enforcesExpiry() bool {
	return w.action != config.ExpiryActionIgnore
}

// expireLocked applies the configured expiry action. Caller holds e.mu.
func (w *Workflow) expireLocked(e *entry, now time.Time) {
	e.req.ResolvedAt = &now
	e.req.Approver = SystemActor
	if w.action == config.ExpiryActionDeny {
		e.req.Status = StatusDenied
		e.req.Notes = "approval window elapsed"
	} else {
		e.req.Status = StatusExpired
	}
	w.logger.ApprovalResolved(e.req.ID, string(e.req.Status), SystemActor)
}

// Sweep resolves every pending request whose deadline is before now and
// returns the requests it transitioned. With the ignore action it does
// nothing.
func (w *Workflow) Sweep(now time.Time) []Request {
	if !w.enforcesExpiry() {
		return nil
	}

	w.mu.RLock()
	entries := make([]*entry, 0, len(w.order))
	for _, id := range w.order {
		entries = append(entries, w.entries[id])
	}
	w.mu.RUnlock()

	var swept []Request
	for _, e := range entries {
		e.mu.Lock()
		if e.req.Status == StatusPending && now.After(e.req.ExpiresAt) {
			w.expireLocked(e, now)
			swept = append(swept, e.req.Clone())
		}
		e.mu.Unlock()
	}
	return swept
}

// ListPending returns unresolved requests, oldest first.
func (w *Workflow) ListPending() []Request {
	return w.filter(func(r *Request) bool { return r.Status == StatusPending })
}

// ListByMission returns every request for a mission, oldest first.
func (w *Workflow) ListByMission(missionID string) []Request {
	return w.filter(func(r *Request) bool { return r.MissionID == missionID })
}

func (w *Workflow) filter(keep func(*Request) bool) []Request {
	w.mu.RLock()
	entries := make([]*entry, 0, len(w.order))
	for _, id := range w.order {
		entries = append(entries, w.entries[id])
	}
	w.mu.RUnlock()

	var out []Request
	for _, e := range entries {
		e.mu.Lock()
		if keep(&e.req) {
			out = append(out, e.req.Clone())
		}
		e.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Reset drops every request.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = make(map[string]*entry)
	w.order = nil
}
