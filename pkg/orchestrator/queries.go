package orchestrator

import (
	"context"

	"github.com/odvcencio/overwatch/pkg/audit"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/registry"
)

// GetMission returns a snapshot of one mission.
func (o *Orchestrator) GetMission(id string) (*mission.Mission, error) {
	e, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.Clone(), nil
}

func (o *Orchestrator) snapshots(keep func(*mission.Mission) bool) []*mission.Mission {
	entries := o.entries()
	out := make([]*mission.Mission, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if keep == nil || keep(e.m) {
			out = append(out, e.m.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

// GetAllMissions returns every mission in creation order.
func (o *Orchestrator) GetAllMissions() []*mission.Mission {
	return o.snapshots(nil)
}

// GetActiveMissions returns the missions currently in progress.
func (o *Orchestrator) GetActiveMissions() []*mission.Mission {
	return o.snapshots(func(m *mission.Mission) bool { return m.Status == mission.StatusInProgress })
}

// AuditTrail returns the journal records for one mission, oldest first.
func (o *Orchestrator) AuditTrail(ctx context.Context, id string) ([]audit.Record, error) {
	if _, err := o.lookup(id); err != nil {
		return nil, err
	}
	return o.journal.List(ctx, id)
}

// VerifyAudit checks the whole journal's hash chain.
func (o *Orchestrator) VerifyAudit(ctx context.Context) error {
	return o.journal.Verify(ctx)
}

// Statistics summarises the orchestrator's state.
type Statistics struct {
	TotalMissions      int                             `json:"totalMissions"`
	ByStatus           map[mission.Status]int          `json:"byStatus"`
	ActiveMissions     int                             `json:"activeMissions"`
	PendingApprovals   int                             `json:"pendingApprovals"`
	Agents             map[registry.AgentStatus]int    `json:"agents"`
	Resources          map[registry.ResourceStatus]int `json:"resources"`
	Violations         int                             `json:"violations"`
	BlockingViolations int                             `json:"blockingViolations"`
}

// Statistics counts missions by status alongside registry and approval
// totals. Violation counts cover current violations only.
func (o *Orchestrator) Statistics() Statistics {
	stats := Statistics{
		ByStatus:         make(map[mission.Status]int),
		PendingApprovals: len(o.approvals.ListPending()),
		Agents:           o.agents.Counts(),
		Resources:        o.resources.Counts(),
	}
	for _, s := range mission.AllStatuses() {
		stats.ByStatus[s] = 0
	}
	for _, m := range o.snapshots(nil) {
		stats.TotalMissions++
		stats.ByStatus[m.Status]++
		if m.Status == mission.StatusInProgress {
			stats.ActiveMissions++
		}
		stats.Violations += len(m.Violations)
		for _, v := range m.Violations {
			if v.Blocking {
				stats.BlockingViolations++
			}
		}
	}
	return stats
}
