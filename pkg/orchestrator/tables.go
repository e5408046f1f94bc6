package orchestrator

import (
	"github.com/odvcencio/overwatch/pkg/registry"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

// agentFor is the agent capability each task type needs.
var agentFor = map[taxonomy.TaskType]registry.AgentType{
	taxonomy.TaskReconnaissance: registry.AgentRobotics,
	taxonomy.TaskSurveillance:   registry.AgentIntel,
	taxonomy.TaskPatrol:         registry.AgentPatrol,
	taxonomy.TaskResponse:       registry.AgentPatrol,
	taxonomy.TaskInvestigation:  registry.AgentInvestigations,
	taxonomy.TaskCoordination:   registry.AgentCommand,
	taxonomy.TaskAnalysis:       registry.AgentIntel,
	taxonomy.TaskCommunication:  registry.AgentCommand,
	taxonomy.TaskDeployment:     registry.AgentCommand,
	taxonomy.TaskExtraction:     registry.AgentCrisis,
	taxonomy.TaskDeEscalation:   registry.AgentCrisis,
	taxonomy.TaskDocumentation:  registry.AgentInvestigations,
	taxonomy.TaskSupport:        registry.AgentPatrol,
}

// resourceFor is the asset each task type consumes.
var resourceFor = map[taxonomy.TaskType]registry.ResourceType{
	taxonomy.TaskReconnaissance: registry.ResourceDrone,
	taxonomy.TaskSurveillance:   registry.ResourceDrone,
	taxonomy.TaskPatrol:         registry.ResourceUnit,
	taxonomy.TaskResponse:       registry.ResourceUnit,
	taxonomy.TaskInvestigation:  registry.ResourceDetective,
	taxonomy.TaskCoordination:   registry.ResourceUnit,
	taxonomy.TaskAnalysis:       registry.ResourceDetective,
	taxonomy.TaskCommunication:  registry.ResourceUnit,
	taxonomy.TaskDeployment:     registry.ResourceRobot,
	taxonomy.TaskExtraction:     registry.ResourceSpecialistTeam,
	taxonomy.TaskDeEscalation:   registry.ResourceSpecialistTeam,
	taxonomy.TaskDocumentation:  registry.ResourceDetective,
	taxonomy.TaskSupport:        registry.ResourceUnit,
}

// AgentTypeFor returns the agent type a task of type t is assigned to.
func AgentTypeFor(t taxonomy.TaskType) (registry.AgentType, bool) {
	at, ok := agentFor[t]
	return at, ok
}

// ResourceTypeFor returns the resource type a task of type t consumes.
func ResourceTypeFor(t taxonomy.TaskType) (registry.ResourceType, bool) {
	rt, ok := resourceFor[t]
	return rt, ok
}
