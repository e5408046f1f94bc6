package registry

import (
	"github.com/odvcencio/overwatch/pkg/config"
)

// Seed registers the configured startup roster.
func Seed(agents *AgentRegistry, resources *ResourcePool, seed config.SeedConfig) error {
	for _, a := range seed.Agents {
		if _, err := agents.Register(Agent{
			ID:          a.ID,
			Name:        a.Name,
			Type:        AgentType(a.Type),
			Status:      AgentStatus(a.Status),
			MaxWorkload: a.MaxWorkload,
		}); err != nil {
			return err
		}
	}
	for _, r := range seed.Resources {
		if _, err := resources.Register(Resource{
			ID:   r.ID,
			Name: r.Name,
			Type: ResourceType(r.Type),
		}); err != nil {
			return err
		}
	}
	return nil
}
