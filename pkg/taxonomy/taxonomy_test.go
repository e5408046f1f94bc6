package taxonomy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyObjective(t *testing.T) {
	tests := []struct {
		objective string
		want      TaskType
	}{
		{"Investigate suspect", TaskInvestigation},
		{"Scout the north lot", TaskReconnaissance},
		{"Monitor the east entrance", TaskSurveillance},
		{"Rescue the hikers", TaskExtraction},
		{"Negotiate with the subject", TaskDeEscalation},
		{"Mental health check on caller", TaskDeEscalation},
		{"Apprehend the driver", TaskResponse},
		{"Interview witnesses", TaskInvestigation},
		{"Patrol the park", TaskPatrol},
		{"Review camera footage", TaskAnalysis},
		{"Coordinate with fire", TaskCoordination},
		{"Notify residents", TaskCommunication},
		{"Dispatch a unit", TaskDeployment},
		{"File incident report", TaskDocumentation},
		{"Provide coffee", TaskSupport},
		{"", TaskSupport},
	}
	for _, tt := range tests {
		t.Run(tt.objective, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyObjective(tt.objective))
		})
	}
}

func TestClassifyObjective_FirstMatchWins(t *testing.T) {
	// "track" (surveillance) precedes "suspect" (investigation) in the table.
	assert.Equal(t, TaskSurveillance, ClassifyObjective("Track suspect vehicle"))
	// "recon" precedes "patrol".
	assert.Equal(t, TaskReconnaissance, ClassifyObjective("Recon patrol route"))
}

func TestEstimatedDurationCoversEveryTaskType(t *testing.T) {
	for _, tt := range AllTaskTypes() {
		_, ok := estimatedDurations[tt]
		assert.True(t, ok, "missing duration for %s", tt)
		assert.Greater(t, EstimatedDuration(tt), time.Duration(0))
	}
}

func TestHighRisk(t *testing.T) {
	var high []TaskType
	for _, tt := range AllTaskTypes() {
		if tt.HighRisk() {
			high = append(high, tt)
		}
	}
	assert.ElementsMatch(t, []TaskType{TaskResponse, TaskExtraction, TaskSurveillance}, high)
}

func TestPriority(t *testing.T) {
	p, ok := ParsePriority(" CRITICAL ")
	assert.True(t, ok)
	assert.Equal(t, PriorityCritical, p)
	assert.Equal(t, 0, p.Rank())
	assert.Equal(t, 4, PriorityRoutine.Rank())

	_, ok = ParsePriority("urgent")
	assert.False(t, ok)
	assert.False(t, MissionType("raid").Valid())
	assert.True(t, MissionSearchRescue.Valid())
}
