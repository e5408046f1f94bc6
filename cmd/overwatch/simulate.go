package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"strings"

	"github.com/odvcencio/overwatch/pkg/audit"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/orchestrator"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

type simulation struct {
	Mission *mission.Mission `json:"mission"`
	Audit   []audit.Record   `json:"audit"`
}

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func runSimulateCommand(args []string) error {
	return runSimulate(context.Background(), args, os.Stdout, os.Stderr)
}

// runSimulate plans one mission, approves every request as a single
// approver and runs its tasks in order. A mission that compliance blocks is
// still printed, then reported as POLICY_BLOCKING.
func runSimulate(ctx context.Context, args []string, out, logOut io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(logOut)
	configFile := fs.String("config", "", "path to overwatch.yaml")
	title := fs.String("title", "Simulated mission", "mission title")
	missionType := fs.String("type", string(taxonomy.MissionGeneral), "mission type")
	priority := fs.String("priority", string(taxonomy.PriorityMedium), "mission priority")
	location := fs.String("location", "", "mission location")
	approver := fs.String("approver", "watch.commander", "identity that approves every request")
	failTask := fs.Int("fail-task", 0, "1-based sequence of a task to report as failed")
	var objectives, constraints listFlag
	fs.Var(&objectives, "objective", "mission objective (repeatable)")
	fs.Var(&constraints, "constraint", "mission constraint or granted condition (repeatable)")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, 2)
	}
	if len(objectives) == 0 {
		return withExitCode(owerr.New(owerr.ErrCodeInvalidInput, "at least one -objective is required"), 2)
	}
	p, ok := taxonomy.ParsePriority(*priority)
	if !ok {
		return withExitCode(owerr.Newf(owerr.ErrCodeInvalidInput, "unknown priority %q", *priority), 2)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return withExitCode(err, 2)
	}
	logger := observability.NewLoggerWithWriter(logOut, "overwatch", observability.ParseLevel(cfg.Logging.Level))
	a, err := newApp(cfg, logger, logOut)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.bridge.Start(ctx)

	m, err := a.orch.CreateMission(ctx, orchestrator.MissionSpec{
		Title:       *title,
		Type:        taxonomy.MissionType(*missionType),
		Priority:    p,
		Objectives:  objectives,
		Constraints: constraints,
		Location:    *location,
		CreatedBy:   *approver,
	})
	if err != nil {
		return err
	}
	m, simErr := simulateMission(ctx, a.orch, m.ID, *approver, *failTask)
	if m == nil {
		return simErr
	}
	trail, err := a.orch.AuditTrail(ctx, m.ID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(simulation{Mission: m, Audit: trail}); err != nil {
		return err
	}
	return simErr
}

func simulateMission(ctx context.Context, o *orchestrator.Orchestrator, id, approver string, failTask int) (*mission.Mission, error) {
	m, err := o.PlanMission(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status == mission.StatusBlocked {
		return m, owerr.New(owerr.ErrCodePolicyBlocking, "mission blocked by compliance").
			WithContext("mission_id", m.ID).
			WithRemediation("grant the missing conditions with -constraint")
	}
	if _, err := o.AssignAgents(ctx, id); err != nil {
		return nil, err
	}
	if _, err := o.AssignResources(ctx, id); err != nil {
		return nil, err
	}
	for _, req := range o.GetPendingApprovals() {
		if req.MissionID != id {
			continue
		}
		if _, err := o.ApproveRequest(ctx, req.ID, approver, "simulated approval", nil); err != nil {
			return nil, err
		}
	}
	if _, err := o.StartMission(ctx, id); err != nil {
		return nil, err
	}

	success := true
	for _, task := range m.Tasks {
		if _, err := o.StartTask(ctx, id, task.ID); err != nil {
			return nil, err
		}
		ok := task.Sequence != failTask
		success = success && ok
		if _, err := o.CompleteTask(ctx, id, task.ID, ok, "simulated"); err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return o.CompleteMission(ctx, id, success, "simulation finished")
}
