package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/overwatch/pkg/config"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Approval.ExpiryAction != config.ExpiryActionExpire {
		t.Fatalf("expiry action = %s, want expire", cfg.Approval.ExpiryAction)
	}
	if cfg.Allocation.Mode != config.AllocationBestEffort {
		t.Fatalf("allocation mode = %s, want best_effort", cfg.Allocation.Mode)
	}
	if cfg.Approval.SweepInterval != time.Minute {
		t.Fatalf("sweep interval = %s, want 1m", cfg.Approval.SweepInterval)
	}
	if len(cfg.Seed.Agents) == 0 || len(cfg.Seed.Resources) == 0 {
		t.Fatal("default seed roster should not be empty")
	}
}

func TestApprovalWindowDefaults(t *testing.T) {
	cfg := config.DefaultConfig()

	cases := map[string]time.Duration{
		"critical": 30 * time.Minute,
		"high":     2 * time.Hour,
		"medium":   8 * time.Hour,
		"low":      24 * time.Hour,
		"routine":  48 * time.Hour,
	}
	for urgency, want := range cases {
		if got := cfg.ApprovalWindow(urgency); got != want {
			t.Errorf("window(%s) = %s, want %s", urgency, got, want)
		}
	}
}

func TestLoadFromPath_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overwatch.yaml")
	body := `
allocation:
  mode: strict
approval:
  expired_blocks_mission: true
  windows:
    critical: 10m
compliance:
  agency_rules:
    - id: AGY-001
      name: Drone notice
      applies_to: [surveillance]
      conditions: [community_notice]
      severity: medium
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Allocation.Mode != config.AllocationStrict {
		t.Errorf("mode = %s, want strict", cfg.Allocation.Mode)
	}
	if !cfg.Approval.ExpiredBlocksMission {
		t.Error("expired_blocks_mission should be true")
	}
	if got := cfg.ApprovalWindow("critical"); got != 10*time.Minute {
		t.Errorf("critical window = %s, want 10m", got)
	}
	if got := cfg.ApprovalWindow("high"); got != 2*time.Hour {
		t.Errorf("high window should keep default, got %s", got)
	}
	if cfg.Allocation.MaxAgentWorkload != 3 {
		t.Errorf("max workload should keep default, got %d", cfg.Allocation.MaxAgentWorkload)
	}
	if len(cfg.Compliance.AgencyRules) != 1 || cfg.Compliance.AgencyRules[0].ID != "AGY-001" {
		t.Errorf("agency rules not loaded: %+v", cfg.Compliance.AgencyRules)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, err := config.LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if !owerr.IsCode(err, owerr.ErrCodeConfigLoad) {
		t.Fatalf("expected CONFIG_LOAD, got %v", err)
	}
}

func TestLoadFromPath_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("allocation: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := config.LoadFromPath(path)
	if !owerr.IsCode(err, owerr.ErrCodeConfigParse) {
		t.Fatalf("expected CONFIG_PARSE, got %v", err)
	}
}

func TestLoad_UsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OVERWATCH_CONFIG", path)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %s, want debug", cfg.Logging.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OVERWATCH_ALLOCATION_MODE", "strict")
	t.Setenv("OVERWATCH_APPROVAL_EXPIRY_ACTION", "deny")
	t.Setenv("OVERWATCH_EXPIRED_BLOCKS_MISSION", "yes")
	t.Setenv("OVERWATCH_SWEEP_INTERVAL", "15s")
	t.Setenv("OVERWATCH_BUS_URL", "nats://127.0.0.1:4222")
	t.Setenv("OVERWATCH_BUS_DURABLE", "true")
	t.Setenv("OVERWATCH_TRACING", "on")

	cfg := config.DefaultConfig()
	config.ApplyEnvOverridesForTest(cfg)

	if cfg.Allocation.Mode != "strict" {
		t.Errorf("mode = %s", cfg.Allocation.Mode)
	}
	if cfg.Approval.ExpiryAction != "deny" {
		t.Errorf("expiry action = %s", cfg.Approval.ExpiryAction)
	}
	if !cfg.Approval.ExpiredBlocksMission {
		t.Error("expired_blocks_mission should be set from env")
	}
	if cfg.Approval.SweepInterval != 15*time.Second {
		t.Errorf("sweep interval = %s", cfg.Approval.SweepInterval)
	}
	if cfg.Bus.URL != "nats://127.0.0.1:4222" {
		t.Errorf("bus url = %s", cfg.Bus.URL)
	}
	if !cfg.Bus.DurableContexts {
		t.Error("durable contexts should be set from env")
	}
	if !cfg.Telemetry.Tracing {
		t.Error("tracing should be enabled from env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad expiry action", func(c *config.Config) { c.Approval.ExpiryAction = "escalate" }, "approval.expiry_action"},
		{"zero sweep", func(c *config.Config) { c.Approval.SweepInterval = 0 }, "approval.sweep_interval"},
		{"unknown window", func(c *config.Config) { c.Approval.Windows["urgent"] = time.Minute }, "approval.windows"},
		{"bad mode", func(c *config.Config) { c.Allocation.Mode = "greedy" }, "allocation.mode"},
		{"zero workload", func(c *config.Config) { c.Allocation.MaxAgentWorkload = 0 }, "allocation.max_agent_workload"},
		{"overrun below one", func(c *config.Config) { c.Execution.TaskOverrunFactor = 0.5 }, "execution.task_overrun_factor"},
		{"rule without conditions", func(c *config.Config) {
			c.Compliance.AgencyRules = []config.AgencyRule{{ID: "A", AppliesTo: []string{"patrol"}}}
		}, "compliance.agency_rules[0].conditions"},
		{"duplicate rule", func(c *config.Config) {
			r := config.AgencyRule{ID: "A", AppliesTo: []string{"patrol"}, Conditions: []string{"body_camera_active"}}
			c.Compliance.AgencyRules = []config.AgencyRule{r, r}
		}, "compliance.agency_rules[1].id"},
		{"duplicate agent", func(c *config.Config) {
			c.Seed.Agents = append(c.Seed.Agents, c.Seed.Agents[0])
		}, "seed.agents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !owerr.IsCode(err, owerr.ErrCodeConfigInvalid) {
				t.Fatalf("expected CONFIG_INVALID, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("error %q should mention %s", err.Error(), tt.field)
			}
		})
	}
}

func TestMarshalRoundTripsDurations(t *testing.T) {
	data, err := config.Marshal(config.DefaultConfig())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), "sweep_interval: 1m0s") {
		t.Fatalf("durations should render as strings:\n%s", data)
	}
}
