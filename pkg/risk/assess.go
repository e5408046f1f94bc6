// Package risk scores missions and tasks from fixed weighted factors.
package risk

import (
	"math"
	"time"

	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

// Level is a qualitative risk grade.
type Level string

const (
	LevelMinimal  Level = "minimal"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelExtreme  Level = "extreme"
)

var levelRank = map[Level]int{
	LevelMinimal:  0,
	LevelLow:      1,
	LevelModerate: 2,
	LevelHigh:     3,
	LevelExtreme:  4,
}

// AtLeast reports whether l is as severe as other.
func (l Level) AtLeast(other Level) bool {
	return levelRank[l] >= levelRank[other]
}

// ImpactLevel grades one impact dimension.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// Impact estimates the consequences if the work goes wrong.
type Impact struct {
	Casualties      ImpactLevel `json:"casualties"`
	PropertyDamage  ImpactLevel `json:"propertyDamage"`
	LegalExposure   ImpactLevel `json:"legalExposure"`
	PublicRelations ImpactLevel `json:"publicRelations"`
}

// Factor is one contributor to a score.
type Factor struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// Assessment is the result of scoring a mission or task.
type Assessment struct {
	Level              Level    `json:"level"`
	Score              float64  `json:"score"`
	Factors            []Factor `json:"factors"`
	Mitigations        []string `json:"mitigations"`
	SuccessProbability float64  `json:"successProbability"`
	Impact             Impact   `json:"impact"`
}

// Clone returns a deep copy.
func (a *Assessment) Clone() *Assessment {
	if a == nil {
		return nil
	}
	out := *a
	out.Factors = append([]Factor(nil), a.Factors...)
	out.Mitigations = append([]string(nil), a.Mitigations...)
	return &out
}

type threshold struct {
	min   float64
	level Level
}

var (
	missionLevels = []threshold{
		{1.0, LevelExtreme},
		{0.6, LevelHigh},
		{0.3, LevelModerate},
		{0.15, LevelLow},
	}
	taskLevels = []threshold{
		{0.7, LevelHigh},
		{0.5, LevelModerate},
		{0.3, LevelLow},
	}
)

const (
	missionSuccessFloor = 0.5
	taskSuccessFloor    = 0.6

	complexTaskCount = 5
	tightDeadline    = 2 * time.Hour
)

func levelFor(table []threshold, score float64) Level {
	for _, t := range table {
		if score >= t.min {
			return t.level
		}
	}
	return LevelMinimal
}

// MissionInput is what AssessMission scores.
type MissionInput struct {
	Priority  taxonomy.Priority
	TaskTypes []taxonomy.TaskType
	Deadline  *time.Time
	Now       time.Time
}

// AssessMission scores a whole mission.
func AssessMission(in MissionInput) Assessment {
	var s scorer

	switch in.Priority {
	case taxonomy.PriorityCritical:
		s.add("critical_priority", 0.3, "Mission is critical priority",
			"Confirm command staff availability for the duration of the mission")
	case taxonomy.PriorityHigh:
		s.add("high_priority", 0.15, "Mission is high priority",
			"Schedule supervisor check-ins at each phase")
	}

	if n := countHighRisk(in.TaskTypes); n > 0 {
		s.add("high_risk_tasks", 0.25, "Plan includes response, extraction or surveillance work",
			"Brief all units on high-risk procedures and stage backup")
	}

	if len(in.TaskTypes) > complexTaskCount {
		s.add("complexity", 0.15, "Plan has more than five tasks",
			"Split the mission into phases with go/no-go checkpoints")
	}

	if in.Deadline != nil && !in.Now.IsZero() && in.Deadline.Sub(in.Now) < tightDeadline {
		s.add("tight_deadline", 0.1, "Deadline is less than two hours away", "")
	}

	return s.finish(missionLevels, missionSuccessFloor, in.TaskTypes)
}

// TaskInput is what AssessTask scores.
type TaskInput struct {
	Type           taxonomy.TaskType
	ParentPriority taxonomy.Priority
	Prerequisites  int
}

type taskWeight struct {
	weight     float64
	mitigation string
}

var taskTypeWeights = map[taxonomy.TaskType]taskWeight{
	taxonomy.TaskExtraction:     {0.5, "Pre-position medical support and a fallback route"},
	taxonomy.TaskResponse:       {0.4, "Stage backup units before contact"},
	taxonomy.TaskSurveillance:   {0.3, "Limit collection to the authorized scope"},
	taxonomy.TaskDeployment:     {0.2, "Keep a human operator on the abort control"},
	taxonomy.TaskDeEscalation:   {0.2, "Lead with a crisis-trained responder"},
	taxonomy.TaskReconnaissance: {0.1, ""},
}

// AssessTask scores a single task.
func AssessTask(in TaskInput) Assessment {
	var s scorer

	if w, ok := taskTypeWeights[in.Type]; ok {
		s.add("task_type", w.weight, "Task type "+string(in.Type)+" carries inherent risk", w.mitigation)
	}
	if in.ParentPriority == taxonomy.PriorityCritical {
		s.add("critical_parent", 0.2, "Parent mission is critical priority",
			"Escalate task status updates to command")
	}
	if in.Prerequisites > 0 {
		weight := math.Min(0.05*float64(in.Prerequisites), 0.15)
		s.add("dependencies", weight, "Task waits on earlier tasks", "")
	}

	return s.finish(taskLevels, taskSuccessFloor, []taxonomy.TaskType{in.Type})
}

type scorer struct {
	total       float64
	factors     []Factor
	mitigations []string
}

func (s *scorer) add(name string, weight float64, description, mitigation string) {
	s.total += weight
	s.factors = append(s.factors, Factor{Name: name, Weight: weight, Description: description})
	if mitigation != "" {
		s.mitigations = append(s.mitigations, mitigation)
	}
}

func (s *scorer) finish(table []threshold, floor float64, types []taxonomy.TaskType) Assessment {
	score := math.Round(s.total*1e4) / 1e4
	level := levelFor(table, score)
	return Assessment{
		Level:              level,
		Score:              score,
		Factors:            s.factors,
		Mitigations:        s.mitigations,
		SuccessProbability: math.Max(floor, math.Min(1, 1-score)),
		Impact:             estimateImpact(level, types),
	}
}

func countHighRisk(types []taxonomy.TaskType) int {
	n := 0
	for _, t := range types {
		if t.HighRisk() {
			n++
		}
	}
	return n
}

func has(types []taxonomy.TaskType, want ...taxonomy.TaskType) bool {
	for _, t := range types {
		for _, w := range want {
			if t == w {
				return true
			}
		}
	}
	return false
}

func estimateImpact(level Level, types []taxonomy.TaskType) Impact {
	impact := Impact{
		Casualties:      ImpactLow,
		PropertyDamage:  ImpactLow,
		LegalExposure:   ImpactLow,
		PublicRelations: ImpactLow,
	}

	switch {
	case has(types, taxonomy.TaskResponse, taxonomy.TaskExtraction) && level.AtLeast(LevelHigh):
		impact.Casualties = ImpactHigh
	case has(types, taxonomy.TaskResponse, taxonomy.TaskExtraction, taxonomy.TaskDeEscalation):
		impact.Casualties = ImpactMedium
	}

	if has(types, taxonomy.TaskResponse, taxonomy.TaskExtraction, taxonomy.TaskDeployment) {
		impact.PropertyDamage = ImpactMedium
		if level == LevelExtreme {
			impact.PropertyDamage = ImpactHigh
		}
	}

	switch {
	case has(types, taxonomy.TaskSurveillance, taxonomy.TaskExtraction):
		impact.LegalExposure = ImpactHigh
	case has(types, taxonomy.TaskInvestigation, taxonomy.TaskResponse):
		impact.LegalExposure = ImpactMedium
	}

	switch {
	case level.AtLeast(LevelHigh):
		impact.PublicRelations = ImpactHigh
	case level.AtLeast(LevelModerate):
		impact.PublicRelations = ImpactMedium
	}

	return impact
}
