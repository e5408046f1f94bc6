package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
)

// DefaultPath is the config file looked up in the working directory when
// neither -config nor OVERWATCH_CONFIG names one.
const DefaultPath = "overwatch.yaml"

// Expiry actions applied by the approval sweeper.
const (
	ExpiryActionExpire = "expire"
	ExpiryActionDeny   = "deny"
	ExpiryActionIgnore = "ignore"
)

// Allocation modes for AssignAgents/AssignResources.
const (
	AllocationBestEffort = "best_effort"
	AllocationStrict     = "strict"
)

// Config represents the complete Overwatch configuration
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Allocation AllocationConfig `yaml:"allocation"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Bus        BusConfig        `yaml:"bus"`
	Audit      AuditConfig      `yaml:"audit"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Seed       SeedConfig       `yaml:"seed"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ApprovalConfig controls approval windows and expiry handling
type ApprovalConfig struct {
	ExpiryAction         string                   `yaml:"expiry_action"`
	ExpiredBlocksMission bool                     `yaml:"expired_blocks_mission"`
	SweepInterval        time.Duration            `yaml:"sweep_interval"`
	Windows              map[string]time.Duration `yaml:"windows"`
}

// AllocationConfig controls agent and resource assignment
type AllocationConfig struct {
	Mode             string `yaml:"mode"`
	MaxAgentWorkload int    `yaml:"max_agent_workload"`
}

// ComplianceConfig carries agency-specific rules evaluated after the
// built-in frameworks.
type ComplianceConfig struct {
	AgencyRules []AgencyRule `yaml:"agency_rules"`
}

// AgencyRule is a config-defined compliance rule.
type AgencyRule struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	AppliesTo   []string `yaml:"applies_to"`
	Conditions  []string `yaml:"conditions"`
	Priorities  []string `yaml:"priorities"`
	Severity    string   `yaml:"severity"`
	Blocking    bool     `yaml:"blocking"`
	Remediation string   `yaml:"remediation"`
}

// ExecutionConfig controls in-flight task supervision
type ExecutionConfig struct {
	TaskOverrunFactor float64 `yaml:"task_overrun_factor"`
}

// BusConfig selects the interaction layer transport. An empty URL keeps the
// in-process bus.
type BusConfig struct {
	URL     string        `yaml:"url"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`

	// DurableContexts also queues each mission context on a per-agent work
	// queue so agents that were offline at start can pull it later.
	DurableContexts bool `yaml:"durable_contexts"`
}

// AuditConfig selects the audit journal backend. An empty path keeps the
// journal in memory.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// TelemetryConfig controls metrics and tracing
type TelemetryConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	Tracing     bool   `yaml:"tracing"`
}

// SeedConfig lists agents and resources registered at startup.
type SeedConfig struct {
	Agents    []SeedAgent    `yaml:"agents"`
	Resources []SeedResource `yaml:"resources"`
}

// SeedAgent describes an agent registered at startup.
type SeedAgent struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Status      string `yaml:"status"`
	MaxWorkload int    `yaml:"max_workload"`
}

// SeedResource describes a resource registered at startup.
type SeedResource struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// DefaultApprovalWindows returns the approval window per urgency.
func DefaultApprovalWindows() map[string]time.Duration {
	return map[string]time.Duration{
		"critical": 30 * time.Minute,
		"high":     2 * time.Hour,
		"medium":   8 * time.Hour,
		"low":      24 * time.Hour,
		"routine":  48 * time.Hour,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Approval: ApprovalConfig{
			ExpiryAction:         ExpiryActionExpire,
			ExpiredBlocksMission: false,
			SweepInterval:        time.Minute,
			Windows:              DefaultApprovalWindows(),
		},
		Allocation: AllocationConfig{
			Mode:             AllocationBestEffort,
			MaxAgentWorkload: 3,
		},
		Execution: ExecutionConfig{
			TaskOverrunFactor: 1.5,
		},
		Bus: BusConfig{
			Name:    "overwatch",
			Timeout: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: "127.0.0.1:9464",
		},
		Seed: defaultSeed(),
	}
}

func defaultSeed() SeedConfig {
	return SeedConfig{
		Agents: []SeedAgent{
			{ID: "patrol-1", Name: "Patrol Alpha", Type: "patrol", Status: "active"},
			{ID: "patrol-2", Name: "Patrol Bravo", Type: "patrol", Status: "standby"},
			{ID: "command-1", Name: "Watch Commander", Type: "command", Status: "active"},
			{ID: "intel-1", Name: "Intel Desk", Type: "intel", Status: "active"},
			{ID: "crisis-1", Name: "Crisis Negotiator", Type: "crisis", Status: "standby"},
			{ID: "robotics-1", Name: "Robotics Operator", Type: "robotics", Status: "standby"},
			{ID: "investigations-1", Name: "Detective Bureau", Type: "investigations", Status: "active"},
		},
		Resources: []SeedResource{
			{ID: "unit-1", Name: "Unit 12", Type: "unit"},
			{ID: "unit-2", Name: "Unit 14", Type: "unit"},
			{ID: "detective-1", Name: "Det. Team A", Type: "detective"},
			{ID: "drone-1", Name: "Drone 1", Type: "drone"},
			{ID: "robot-1", Name: "Ground Robot 1", Type: "robot"},
			{ID: "specialist-1", Name: "Crisis Intervention Team", Type: "specialist_team"},
			{ID: "medical-1", Name: "Medic 3", Type: "medical"},
		},
	}
}

// Load resolves the config path from OVERWATCH_CONFIG or the working
// directory and loads it. A missing default file yields DefaultConfig with
// env overrides applied.
func Load() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv("OVERWATCH_CONFIG")); path != "" {
		return LoadFromPath(path)
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return LoadFromPath(DefaultPath)
	}

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverridesForTest exposes env override logic for tests without file I/O.
func ApplyEnvOverridesForTest(cfg *Config) {
	applyEnvOverrides(cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OVERWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OVERWATCH_ALLOCATION_MODE"); v != "" {
		cfg.Allocation.Mode = v
	}
	if v := os.Getenv("OVERWATCH_APPROVAL_EXPIRY_ACTION"); v != "" {
		cfg.Approval.ExpiryAction = v
	}
	if val, ok := envBool("OVERWATCH_EXPIRED_BLOCKS_MISSION"); ok {
		cfg.Approval.ExpiredBlocksMission = val
	}
	if v := os.Getenv("OVERWATCH_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Approval.SweepInterval = d
		}
	}
	if v := os.Getenv("OVERWATCH_BUS_URL"); v != "" {
		cfg.Bus.URL = v
	}
	if val, ok := envBool("OVERWATCH_BUS_DURABLE"); ok {
		cfg.Bus.DurableContexts = val
	}
	if v := os.Getenv("OVERWATCH_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := os.Getenv("OVERWATCH_METRICS_ADDR"); v != "" {
		cfg.Telemetry.MetricsAddr = v
	}
	if val, ok := envBool("OVERWATCH_TRACING"); ok {
		cfg.Telemetry.Tracing = val
	}
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level", c.Logging.Level, "debug, info, warn, or error")
	}

	switch c.Approval.ExpiryAction {
	case ExpiryActionExpire, ExpiryActionDeny, ExpiryActionIgnore:
	default:
		return invalid("approval.expiry_action", c.Approval.ExpiryAction, "expire, deny, or ignore")
	}
	if c.Approval.SweepInterval <= 0 {
		return invalid("approval.sweep_interval", c.Approval.SweepInterval.String(), "a positive duration")
	}
	defaults := DefaultApprovalWindows()
	for urgency, window := range c.Approval.Windows {
		if _, ok := defaults[urgency]; !ok {
			return invalid("approval.windows", urgency, "critical, high, medium, low, or routine")
		}
		if window <= 0 {
			return invalid("approval.windows."+urgency, window.String(), "a positive duration")
		}
	}

	switch c.Allocation.Mode {
	case AllocationBestEffort, AllocationStrict:
	default:
		return invalid("allocation.mode", c.Allocation.Mode, "best_effort or strict")
	}
	if c.Allocation.MaxAgentWorkload < 1 {
		return invalid("allocation.max_agent_workload", fmt.Sprint(c.Allocation.MaxAgentWorkload), "at least 1")
	}

	if c.Execution.TaskOverrunFactor < 1 {
		return invalid("execution.task_overrun_factor", fmt.Sprint(c.Execution.TaskOverrunFactor), "at least 1.0")
	}

	if c.Bus.URL != "" && c.Bus.Timeout <= 0 {
		return invalid("bus.timeout", c.Bus.Timeout.String(), "a positive duration")
	}

	seen := make(map[string]bool, len(c.Compliance.AgencyRules))
	for i, rule := range c.Compliance.AgencyRules {
		field := fmt.Sprintf("compliance.agency_rules[%d]", i)
		if strings.TrimSpace(rule.ID) == "" {
			return invalid(field+".id", rule.ID, "a non-empty id")
		}
		if seen[rule.ID] {
			return invalid(field+".id", rule.ID, "a unique id")
		}
		seen[rule.ID] = true
		if len(rule.AppliesTo) == 0 {
			return invalid(field+".applies_to", "", "at least one task type or mission scope")
		}
		if len(rule.Conditions) == 0 {
			return invalid(field+".conditions", "", "at least one required condition")
		}
	}

	agentIDs := make(map[string]bool, len(c.Seed.Agents))
	for i, a := range c.Seed.Agents {
		if strings.TrimSpace(a.ID) == "" || agentIDs[a.ID] {
			return invalid(fmt.Sprintf("seed.agents[%d].id", i), a.ID, "a unique non-empty id")
		}
		agentIDs[a.ID] = true
	}
	resourceIDs := make(map[string]bool, len(c.Seed.Resources))
	for i, r := range c.Seed.Resources {
		if strings.TrimSpace(r.ID) == "" || resourceIDs[r.ID] {
			return invalid(fmt.Sprintf("seed.resources[%d].id", i), r.ID, "a unique non-empty id")
		}
		resourceIDs[r.ID] = true
	}

	return nil
}

// ApprovalWindow returns the configured window for urgency, falling back to
// the built-in table.
func (c *Config) ApprovalWindow(urgency string) time.Duration {
	if w, ok := c.Approval.Windows[urgency]; ok && w > 0 {
		return w
	}
	return DefaultApprovalWindows()[urgency]
}

func invalid(field, value, want string) error {
	return owerr.Newf(owerr.ErrCodeConfigInvalid, "invalid %s: %q (must be %s)", field, value, want).
		WithContext("field", field)
}
