package main

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/odvcencio/overwatch/pkg/approval"
	"github.com/odvcencio/overwatch/pkg/audit"
	"github.com/odvcencio/overwatch/pkg/bus"
	"github.com/odvcencio/overwatch/pkg/config"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/orchestrator"
	"github.com/odvcencio/overwatch/pkg/registry"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

// app is every long-lived component wired from one Config.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	tracer  *observability.TracerProvider
	journal audit.Journal
	bus     bus.MessageBus
	hub     *telemetry.Hub
	orch    *orchestrator.Orchestrator
	sweeper *approval.Sweeper
	bridge  *orchestrator.TelemetryBusBridge
}

func loadConfig(path string) (*config.Config, error) {
	if path = strings.TrimSpace(path); path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// newApp opens the audit journal and bus named by cfg, seeds the registry
// and builds the orchestrator. Spans go to traceOut when tracing is on.
func newApp(cfg *config.Config, logger *observability.Logger, traceOut io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if cfg.Telemetry.Tracing && traceOut != nil {
		if a.tracer, err = observability.NewTracerProvider("overwatch", version, traceOut); err != nil {
			return nil, err
		}
	}

	if cfg.Audit.Path != "" {
		if a.journal, err = audit.OpenSQLite(cfg.Audit.Path); err != nil {
			return nil, err
		}
	} else {
		a.journal = audit.NewMemoryJournal()
	}

	if cfg.Bus.URL != "" {
		busCfg := bus.DefaultConfig()
		busCfg.URL = cfg.Bus.URL
		if cfg.Bus.Name != "" {
			busCfg.Name = cfg.Bus.Name
		}
		if cfg.Bus.Timeout > 0 {
			busCfg.Timeout = cfg.Bus.Timeout
		}
		nb, natsErr := bus.NewNATSBus(busCfg)
		if natsErr != nil {
			return nil, natsErr
		}
		a.bus = nb
	} else {
		a.bus = bus.NewMemoryBus()
	}

	agents := registry.NewAgentRegistry(logger, cfg.Allocation.MaxAgentWorkload)
	resources := registry.NewResourcePool(logger)
	if err = registry.Seed(agents, resources, cfg.Seed); err != nil {
		return nil, err
	}
	approvals := approval.NewWorkflow(cfg.Approval, logger)
	a.hub = telemetry.NewHub()

	a.orch, err = orchestrator.New(cfg, orchestrator.Deps{
		Agents:    agents,
		Resources: resources,
		Approvals: approvals,
		Journal:   a.journal,
		Pusher:    bus.NewContextPublisher(a.bus, bus.WithDurableQueue(cfg.Bus.DurableContexts)),
		Hub:       a.hub,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	a.sweeper = approval.NewSweeper(approvals, cfg.Approval.SweepInterval, a.orch.ExpiryHandler(), logger)
	a.sweeper.OnTick(a.orch.OverdueCheck())
	a.bridge = orchestrator.NewTelemetryBusBridge(a.hub, a.bus, logger)
	return a, nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.bridge != nil {
		a.bridge.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
