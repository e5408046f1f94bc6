package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/odvcencio/overwatch/pkg/bus"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

// TelemetryBusBridge forwards telemetry events to the MessageBus so
// dispatch consoles and agents outside the process can follow missions.
type TelemetryBusBridge struct {
	telemetryHub *telemetry.Hub
	messageBus   bus.MessageBus
	logger       *observability.Logger
	eventCh      <-chan telemetry.Event
	unsubscribe  func()
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewTelemetryBusBridge creates a bridge from telemetry hub to message bus.
// The subscription is taken immediately so no event published after this
// call is missed.
func NewTelemetryBusBridge(th *telemetry.Hub, mb bus.MessageBus, logger *observability.Logger) *TelemetryBusBridge {
	if logger == nil {
		logger = observability.Discard()
	}
	eventCh, unsub := th.Subscribe()
	return &TelemetryBusBridge{
		telemetryHub: th,
		messageBus:   mb,
		logger:       logger.Component("bus_bridge"),
		eventCh:      eventCh,
		unsubscribe:  unsub,
	}
}

// Start begins forwarding telemetry events to the message bus.
func (b *TelemetryBusBridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.forwardLoop(ctx)
}

// Stop ceases forwarding and cleans up subscriptions.
func (b *TelemetryBusBridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.wg.Wait()
}

// Run forwards until ctx is cancelled.
func (b *TelemetryBusBridge) Run(ctx context.Context) error {
	b.Start(ctx)
	<-ctx.Done()
	b.Stop()
	return nil
}

func (b *TelemetryBusBridge) forwardLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-b.eventCh:
			if !ok {
				return
			}
			b.publishEvent(ctx, event)
		}
	}
}

func (b *TelemetryBusBridge) publishEvent(ctx context.Context, event telemetry.Event) {
	payload := map[string]any{
		"type":      string(event.Type),
		"timestamp": event.Timestamp.Format(time.RFC3339Nano),
	}
	if event.MissionID != "" {
		payload["mission_id"] = event.MissionID
	}
	if event.TaskID != "" {
		payload["task_id"] = event.TaskID
	}
	if event.Data != nil {
		payload["data"] = event.Data
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("event not encodable", slog.String("type", string(event.Type)), slog.String("error", err.Error()))
		return
	}
	if err := b.messageBus.Publish(ctx, EventSubject(event), data); err != nil {
		b.logger.Warn("event not forwarded", slog.String("type", string(event.Type)), slog.String("error", err.Error()))
	}
}

// EventSubject is the bus subject an event is forwarded on, e.g.
// overwatch.orchestrator.mission.<id>.task.<id>.task.started.
func EventSubject(event telemetry.Event) string {
	base := bus.SubjectPrefix + ".orchestrator"
	if event.MissionID != "" {
		base += ".mission." + event.MissionID
	}
	if event.TaskID != "" {
		base += ".task." + event.TaskID
	}
	return base + "." + string(event.Type)
}
