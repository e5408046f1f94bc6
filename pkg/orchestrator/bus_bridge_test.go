package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/overwatch/pkg/bus"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "overwatch.orchestrator.mission.created",
		EventSubject(telemetry.Event{Type: "mission.created"}))
	assert.Equal(t, "overwatch.orchestrator.mission.m-1.mission.status",
		EventSubject(telemetry.Event{Type: telemetry.EventMissionStatus, MissionID: "m-1"}))
	assert.Equal(t, "overwatch.orchestrator.mission.m-1.task.t-2.task.started",
		EventSubject(telemetry.Event{Type: telemetry.EventTaskStarted, MissionID: "m-1", TaskID: "t-2"}))
}

func TestTelemetryBusBridge_ForwardsEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub := telemetry.NewHub()
	defer hub.Close()
	memBus := bus.NewMemoryBus()
	defer memBus.Close()

	var mu sync.Mutex
	var received []map[string]any
	_, err := memBus.Subscribe(ctx, "overwatch.orchestrator.>", func(msg *bus.Message) {
		var payload map[string]any
		if err := json.Unmarshal(msg.Data, &payload); err == nil {
			mu.Lock()
			received = append(received, payload)
			mu.Unlock()
		}
	})
	require.NoError(t, err)

	bridge := NewTelemetryBusBridge(hub, memBus, nil)
	bridge.Start(ctx)
	defer bridge.Stop()

	hub.Publish(telemetry.Event{
		Type:      telemetry.EventTaskStarted,
		MissionID: "m-1",
		TaskID:    "t-1",
		Data:      map[string]any{"sequence": 1},
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	first := received[0]
	assert.Equal(t, string(telemetry.EventTaskStarted), first["type"])
	assert.Equal(t, "m-1", first["mission_id"])
	assert.Equal(t, "t-1", first["task_id"])
	assert.Equal(t, map[string]any{"sequence": float64(1)}, first["data"])
	assert.NotEmpty(t, first["timestamp"])
}

func TestTelemetryBusBridge_CarriesMissionLifecycle(t *testing.T) {
	h := newHarness(t)
	memBus := bus.NewMemoryBus()
	defer memBus.Close()

	statuses := make(chan string, 16)
	_, err := memBus.Subscribe(context.Background(), "overwatch.orchestrator.mission.*.mission.status", func(msg *bus.Message) {
		var payload struct {
			Data map[string]any `json:"data"`
		}
		if json.Unmarshal(msg.Data, &payload) == nil {
			statuses <- payload.Data["to"].(string)
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	bridge := NewTelemetryBusBridge(h.hub, memBus, nil)
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	h.started(t, taxonomy.PriorityMedium, "Patrol the park")

	var got []string
	for len(got) < 2 {
		select {
		case s := <-statuses:
			got = append(got, s)
		case <-time.After(time.Second):
			t.Fatalf("only saw %v", got)
		}
	}
	assert.Equal(t, []string{"approved", "in_progress"}, got)

	cancel()
	assert.NoError(t, <-done)
}
