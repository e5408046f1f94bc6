package policy

import (
	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

func tasks(types ...taxonomy.TaskType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = TaskAction(t)
	}
	return out
}

func missions(types ...taxonomy.MissionType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = MissionAction(t)
	}
	return out
}

var constitutionalRules = []Rule{
	{
		ID:          "CON-001",
		Type:        "fourth_amendment_search",
		Name:        "Warrant for targeted surveillance",
		Description: "Targeted surveillance of a person requires a warrant",
		AppliesTo:   tasks(taxonomy.TaskSurveillance),
		Conditions:  []Condition{CondWarrantObtained},
		Severity:    SeverityCritical,
		Blocking:    true,
		Remediation: "Obtain a warrant and grant warrant_obtained before replanning",
	},
	{
		ID:          "CON-002",
		Type:        "fourth_amendment_seizure",
		Name:        "Probable cause for extraction",
		Description: "Removing a person from a location requires probable cause",
		AppliesTo:   tasks(taxonomy.TaskExtraction),
		Conditions:  []Condition{CondProbableCause},
		Severity:    SeverityCritical,
		Blocking:    true,
		Remediation: "Document probable cause and grant probable_cause",
	},
	{
		ID:          "CON-003",
		Type:        "use_of_force",
		Name:        "Use-of-force authorization",
		Description: "Extraction may involve force and needs explicit authorization",
		AppliesTo:   tasks(taxonomy.TaskExtraction),
		Conditions:  []Condition{CondUseOfForceAuthorized},
		Severity:    SeverityHigh,
		Blocking:    true,
		Remediation: "Obtain use-of-force authorization from command staff",
	},
	{
		ID:          "CON-004",
		Type:        "due_process",
		Name:        "Probable cause for apprehension",
		Description: "Response tasks that detain a person should record probable cause",
		AppliesTo:   tasks(taxonomy.TaskResponse),
		Conditions:  []Condition{CondProbableCause},
		Severity:    SeverityMedium,
		Remediation: "Record the basis for detention in the mission constraints",
	},
}

var operationalRules = []Rule{
	{
		ID:          "POL-001",
		Type:        "autonomous_systems",
		Name:        "Human oversight for robotic deployment",
		Description: "Robotic and automated deployments require a human operator in the loop",
		AppliesTo:   tasks(taxonomy.TaskDeployment),
		Conditions:  []Condition{CondHumanOversight},
		Severity:    SeverityHigh,
		Blocking:    true,
		Remediation: "Assign an on-duty operator and grant human_oversight",
	},
	{
		ID:          "POL-002",
		Type:        "chain_of_command",
		Name:        "Supervisor sign-off for response",
		Description: "Response tasks should be signed off by a supervisor",
		AppliesTo:   tasks(taxonomy.TaskResponse),
		Conditions:  []Condition{CondSupervisorApproved},
		Severity:    SeverityHigh,
		Remediation: "Request supervisor approval",
	},
	{
		ID:          "POL-003",
		Type:        "body_worn_camera",
		Name:        "Body cameras on field contact",
		Description: "Field contact tasks should run with body cameras active",
		AppliesTo:   tasks(taxonomy.TaskPatrol, taxonomy.TaskResponse),
		Conditions:  []Condition{CondBodyCameraActive},
		Severity:    SeverityLow,
		Remediation: "Confirm body cameras are recording",
	},
	{
		ID:          "POL-004",
		Type:        "airspace",
		Name:        "Airspace clearance for aerial assets",
		Description: "Aerial reconnaissance and surveillance need airspace clearance",
		AppliesTo:   tasks(taxonomy.TaskReconnaissance, taxonomy.TaskSurveillance),
		Conditions:  []Condition{CondAirspaceClearance},
		Severity:    SeverityMedium,
		Remediation: "File for airspace clearance before launching drones",
	},
	{
		ID:          "POL-005",
		Type:        "incident_command",
		Name:        "Incident commander for critical missions",
		Description: "Critical missions should have a named incident commander",
		AppliesTo:   []string{MissionWildcard},
		Conditions:  []Condition{CondIncidentCommanderAssigned},
		Priorities:  []taxonomy.Priority{taxonomy.PriorityCritical},
		Severity:    SeverityMedium,
		Remediation: "Assign an incident commander",
	},
	{
		ID:          "POL-006",
		Type:        "medical_support",
		Name:        "Medical standby for high-hazard missions",
		Description: "Tactical and search-and-rescue missions should stage medical support",
		AppliesTo:   missions(taxonomy.MissionTactical, taxonomy.MissionSearchRescue),
		Conditions:  []Condition{CondMedicalStandby},
		Severity:    SeverityMedium,
		Remediation: "Stage EMS on standby",
	},
}

var ethicsRules = []Rule{
	{
		ID:          "ETH-001",
		Type:        "proportionality",
		Name:        "De-escalation before force",
		Description: "De-escalation should be attempted before response or extraction",
		AppliesTo:   tasks(taxonomy.TaskResponse, taxonomy.TaskExtraction),
		Conditions:  []Condition{CondDeEscalationAttempted},
		Severity:    SeverityMedium,
		Remediation: "Attempt and record de-escalation",
	},
	{
		ID:          "ETH-002",
		Type:        "algorithmic_bias",
		Name:        "Bias review for targeting",
		Description: "Investigative targeting and analysis should pass a bias review",
		AppliesTo:   tasks(taxonomy.TaskInvestigation, taxonomy.TaskSurveillance, taxonomy.TaskAnalysis),
		Conditions:  []Condition{CondBiasReview},
		Severity:    SeverityLow,
		Remediation: "Run the targeting criteria through bias review",
	},
	{
		ID:          "ETH-003",
		Type:        "human_dignity",
		Name:        "Human lead on crisis contact",
		Description: "Crisis and mental-health contacts should be led by a human responder",
		AppliesTo:   tasks(taxonomy.TaskDeEscalation),
		Conditions:  []Condition{CondHumanOversight},
		Severity:    SeverityMedium,
		Remediation: "Assign a crisis-trained human lead",
	},
	{
		ID:          "ETH-004",
		Type:        "privacy",
		Name:        "Privacy review for surveillance missions",
		Description: "Surveillance missions should complete a privacy impact review",
		AppliesTo:   missions(taxonomy.MissionSurveillance),
		Conditions:  []Condition{CondPrivacyReview},
		Severity:    SeverityMedium,
		Remediation: "Complete a privacy impact review",
	},
	{
		ID:          "ETH-005",
		Type:        "transparency",
		Name:        "Community notice",
		Description: "Community engagement missions should be announced",
		AppliesTo:   missions(taxonomy.MissionCommunityEngagement),
		Conditions:  []Condition{CondCommunityNotice},
		Severity:    SeverityInfo,
		Remediation: "Publish a community notice",
	},
}

func builtinRules() map[Framework][]Rule {
	out := map[Framework][]Rule{
		FrameworkConstitutional: withFramework(constitutionalRules, FrameworkConstitutional),
		FrameworkPolicy:         withFramework(operationalRules, FrameworkPolicy),
		FrameworkEthics:         withFramework(ethicsRules, FrameworkEthics),
	}
	return out
}

func withFramework(rules []Rule, fw Framework) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Framework = fw
		out[i] = r
	}
	return out
}
