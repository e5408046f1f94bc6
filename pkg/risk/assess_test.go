package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

func TestAssessMission_CriticalAloneIsModerate(t *testing.T) {
	a := AssessMission(MissionInput{
		Priority:  taxonomy.PriorityCritical,
		TaskTypes: []taxonomy.TaskType{taxonomy.TaskInvestigation},
	})

	assert.Equal(t, LevelModerate, a.Level)
	assert.InDelta(t, 0.3, a.Score, 1e-9)
	assert.InDelta(t, 0.7, a.SuccessProbability, 1e-9)
	assert.Len(t, a.Mitigations, 1)
}

func TestAssessMission_Levels(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(time.Hour)
	many := []taxonomy.TaskType{
		taxonomy.TaskReconnaissance, taxonomy.TaskSurveillance, taxonomy.TaskResponse,
		taxonomy.TaskExtraction, taxonomy.TaskCoordination, taxonomy.TaskDocumentation,
	}

	tests := []struct {
		name  string
		in    MissionInput
		level Level
		score float64
	}{
		{"routine support", MissionInput{Priority: taxonomy.PriorityRoutine, TaskTypes: []taxonomy.TaskType{taxonomy.TaskSupport}}, LevelMinimal, 0},
		{"high priority", MissionInput{Priority: taxonomy.PriorityHigh}, LevelLow, 0.15},
		{"high risk task", MissionInput{Priority: taxonomy.PriorityMedium, TaskTypes: []taxonomy.TaskType{taxonomy.TaskResponse}}, LevelLow, 0.25},
		{"critical with response", MissionInput{Priority: taxonomy.PriorityCritical, TaskTypes: []taxonomy.TaskType{taxonomy.TaskResponse}}, LevelModerate, 0.55},
		{"critical complex", MissionInput{Priority: taxonomy.PriorityCritical, TaskTypes: many}, LevelHigh, 0.7},
		{"everything", MissionInput{Priority: taxonomy.PriorityCritical, TaskTypes: many, Deadline: &soon, Now: now}, LevelHigh, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AssessMission(tt.in)
			assert.Equal(t, tt.level, a.Level)
			assert.InDelta(t, tt.score, a.Score, 1e-9)
			assert.GreaterOrEqual(t, a.SuccessProbability, missionSuccessFloor)
			assert.LessOrEqual(t, a.SuccessProbability, 1.0)
		})
	}
}

func TestAssessMission_SuccessFloor(t *testing.T) {
	now := time.Now()
	soon := now.Add(10 * time.Minute)
	many := []taxonomy.TaskType{
		taxonomy.TaskExtraction, taxonomy.TaskExtraction, taxonomy.TaskExtraction,
		taxonomy.TaskExtraction, taxonomy.TaskExtraction, taxonomy.TaskExtraction,
	}
	a := AssessMission(MissionInput{Priority: taxonomy.PriorityCritical, TaskTypes: many, Deadline: &soon, Now: now})
	assert.Equal(t, 0.5, a.SuccessProbability)
}

func TestAssessMission_DeadlineFactorHasNoMitigation(t *testing.T) {
	now := time.Now()
	soon := now.Add(30 * time.Minute)
	a := AssessMission(MissionInput{Priority: taxonomy.PriorityLow, Deadline: &soon, Now: now})

	assert.Len(t, a.Factors, 1)
	assert.Equal(t, "tight_deadline", a.Factors[0].Name)
	assert.Empty(t, a.Mitigations)

	later := now.Add(5 * time.Hour)
	assert.Empty(t, AssessMission(MissionInput{Priority: taxonomy.PriorityLow, Deadline: &later, Now: now}).Factors)
}

func TestAssessTask(t *testing.T) {
	tests := []struct {
		name  string
		in    TaskInput
		level Level
		prob  float64
	}{
		{"support", TaskInput{Type: taxonomy.TaskSupport}, LevelMinimal, 1},
		{"surveillance", TaskInput{Type: taxonomy.TaskSurveillance}, LevelLow, 0.7},
		{"response", TaskInput{Type: taxonomy.TaskResponse}, LevelLow, 0.6},
		{"extraction", TaskInput{Type: taxonomy.TaskExtraction}, LevelModerate, 0.6},
		{"critical extraction", TaskInput{Type: taxonomy.TaskExtraction, ParentPriority: taxonomy.PriorityCritical}, LevelHigh, 0.6},
		{"critical response after two", TaskInput{Type: taxonomy.TaskResponse, ParentPriority: taxonomy.PriorityCritical, Prerequisites: 2}, LevelHigh, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AssessTask(tt.in)
			assert.Equal(t, tt.level, a.Level)
			assert.InDelta(t, tt.prob, a.SuccessProbability, 1e-9)
		})
	}
}

func TestAssessTask_DependencyWeightCaps(t *testing.T) {
	a := AssessTask(TaskInput{Type: taxonomy.TaskSupport, Prerequisites: 10})
	assert.InDelta(t, 0.15, a.Score, 1e-9)
	assert.Empty(t, a.Mitigations, "dependency factor has no mitigation")
}

func TestAssessTask_ReconHasNoMitigation(t *testing.T) {
	a := AssessTask(TaskInput{Type: taxonomy.TaskReconnaissance})
	assert.Len(t, a.Factors, 1)
	assert.Empty(t, a.Mitigations)
}

func TestImpact(t *testing.T) {
	a := AssessMission(MissionInput{Priority: taxonomy.PriorityCritical, TaskTypes: []taxonomy.TaskType{
		taxonomy.TaskSurveillance, taxonomy.TaskExtraction, taxonomy.TaskSupport,
		taxonomy.TaskSupport, taxonomy.TaskSupport, taxonomy.TaskSupport,
	}})
	assert.Equal(t, LevelHigh, a.Level)
	assert.Equal(t, ImpactHigh, a.Impact.Casualties)
	assert.Equal(t, ImpactMedium, a.Impact.PropertyDamage)
	assert.Equal(t, ImpactHigh, a.Impact.LegalExposure)
	assert.Equal(t, ImpactHigh, a.Impact.PublicRelations)

	calm := AssessTask(TaskInput{Type: taxonomy.TaskDocumentation})
	assert.Equal(t, Impact{ImpactLow, ImpactLow, ImpactLow, ImpactLow}, calm.Impact)
}

func TestLevelAtLeast(t *testing.T) {
	assert.True(t, LevelExtreme.AtLeast(LevelHigh))
	assert.True(t, LevelModerate.AtLeast(LevelModerate))
	assert.False(t, LevelLow.AtLeast(LevelModerate))
}

func TestAssessmentClone(t *testing.T) {
	a := AssessTask(TaskInput{Type: taxonomy.TaskResponse})
	c := a.Clone()
	c.Mitigations[0] = "changed"
	assert.NotEqual(t, "changed", a.Mitigations[0])

	var nilA *Assessment
	assert.Nil(t, nilA.Clone())
}
