package approval

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/overwatch/pkg/config"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestWorkflow(t *testing.T, action string) (*Workflow, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cfg := config.DefaultConfig().Approval
	cfg.ExpiryAction = action
	var n atomic.Int64
	w := NewWorkflow(cfg, nil,
		WithClock(clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("req-%d", n.Add(1)) }),
	)
	return w, clock
}

func TestCreate_ComputesExpiry(t *testing.T) {
	w, clock := newTestWorkflow(t, config.ExpiryActionExpire)

	windows := map[taxonomy.Priority]time.Duration{
		taxonomy.PriorityCritical: 30 * time.Minute,
		taxonomy.PriorityHigh:     2 * time.Hour,
		taxonomy.PriorityMedium:   8 * time.Hour,
		taxonomy.PriorityLow:      24 * time.Hour,
		taxonomy.PriorityRoutine:  48 * time.Hour,
	}
	for urgency, window := range windows {
		req, err := w.Create(Spec{MissionID: "m-1", Urgency: urgency})
		require.NoError(t, err)
		assert.Equal(t, clock.Now().Add(window), req.ExpiresAt, "urgency %s", urgency)
		assert.Equal(t, StatusPending, req.Status)
		assert.Equal(t, AuthorityFor(urgency), req.Authority)
		assert.Equal(t, TypeMission, req.Type)
	}
}

func TestCreate_ConfiguredWindow(t *testing.T) {
	cfg := config.DefaultConfig().Approval
	cfg.Windows = map[string]time.Duration{"critical": 5 * time.Minute}
	w := NewWorkflow(cfg, nil)

	assert.Equal(t, 5*time.Minute, w.Window(taxonomy.PriorityCritical))
	assert.Equal(t, 2*time.Hour, w.Window(taxonomy.PriorityHigh))
}

func TestCreate_Validation(t *testing.T) {
	w, _ := newTestWorkflow(t, config.ExpiryActionExpire)

	_, err := w.Create(Spec{Urgency: taxonomy.PriorityHigh})
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeInvalidInput))

	_, err = w.Create(Spec{MissionID: "m-1", Urgency: "asap"})
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeInvalidInput))
}

func TestApprove(t *testing.T) {
	w, _ := newTestWorkflow(t, config.ExpiryActionExpire)
	req, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityHigh})

	got, err := w.Approve(req.ID, "sgt.lee", "looks fine", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, "sgt.lee", got.Approver)
	require.NotNil(t, got.ResolvedAt)

	_, err = w.Approve(req.ID, "sgt.lee", "", nil)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeApprovalResolved), "resolves exactly once")
	_, err = w.Deny(req.ID, "lt.kim", "no")
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeApprovalResolved))
}

func TestApprove_WithConditionsIsConditional(t *testing.T) {
	w, _ := newTestWorkflow(t, config.ExpiryActionExpire)
	req, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityMedium})

	got, err := w.Approve(req.ID, "lt.kim", "", []string{"body cameras on"})
	require.NoError(t, err)
	assert.Equal(t, StatusConditional, got.Status)
	assert.Equal(t, []string{"body cameras on"}, got.Conditions)
	assert.False(t, got.Negative())
}

func TestDeny(t *testing.T) {
	w, clock := newTestWorkflow(t, config.ExpiryActionExpire)
	req, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityCritical})

	clock.Advance(time.Hour)
	got, err := w.Deny(req.ID, "capt.ortiz", "insufficient basis")
	require.NoError(t, err, "denial is accepted after the deadline")
	assert.Equal(t, StatusDenied, got.Status)
	assert.Equal(t, "insufficient basis", got.Notes)
	assert.True(t, got.Negative())
}

func TestApprove_PastDeadlineExpires(t *testing.T) {
	w, clock := newTestWorkflow(t, config.ExpiryActionExpire)
	req, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityCritical})

	clock.Advance(31 * time.Minute)
	got, err := w.Approve(req.ID, "sgt.lee", "", nil)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeApprovalExpired))
	assert.Equal(t, StatusExpired, got.Status)
	assert.Equal(t, SystemActor, got.Approver)

	stored, _ := w.Get(req.ID)
	assert.Equal(t, StatusExpired, stored.Status)
}

func TestApprove_PastDeadlineDenyAction(t *testing.T) {
	w, clock := newTestWorkflow(t, config.ExpiryActionDeny)
	req, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityCritical})

	clock.Advance(time.Hour)
	got, err := w.Approve(req.ID, "sgt.lee", "", nil)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeApprovalExpired))
	assert.Equal(t, StatusDenied, got.Status)
}

func TestApprove_PastDeadlineIgnoreAction(t *testing.T) {
	w, clock := newTestWorkflow(t, config.ExpiryActionIgnore)
	req, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityCritical})

	clock.Advance(time.Hour)
	assert.Empty(t, w.Sweep(clock.Now()))
	got, err := w.Approve(req.ID, "sgt.lee", "", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestExpire(t *testing.T) {
	w, _ := newTestWorkflow(t, config.ExpiryActionExpire)
	req, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityLow})

	got, err := w.Expire(req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)

	_, err = w.Expire(req.ID)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeApprovalResolved))
	_, err = w.Expire("nope")
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeNotFound))
}

func TestSweep(t *testing.T) {
	w, clock := newTestWorkflow(t, config.ExpiryActionExpire)
	critical, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityCritical})
	high, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityHigh})
	done, _ := w.Create(Spec{MissionID: "m-2", Urgency: taxonomy.PriorityCritical})
	_, _ = w.Approve(done.ID, "sgt.lee", "", nil)

	clock.Advance(45 * time.Minute)
	swept := w.Sweep(clock.Now())
	require.Len(t, swept, 1)
	assert.Equal(t, critical.ID, swept[0].ID)
	assert.Equal(t, StatusExpired, swept[0].Status)

	pending := w.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, high.ID, pending[0].ID)

	assert.Len(t, w.ListByMission("m-1"), 2)
	assert.Len(t, w.ListByMission("m-2"), 1)
}

func TestSweepRacesResolution(t *testing.T) {
	for i := 0; i < 50; i++ {
		w, clock := newTestWorkflow(t, config.ExpiryActionExpire)
		req, _ := w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityCritical})
		clock.Advance(29 * time.Minute)

		var wg sync.WaitGroup
		var approveErr error
		var swept []Request
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = w.Approve(req.ID, "sgt.lee", "", nil)
		}()
		go func() {
			defer wg.Done()
			swept = w.Sweep(clock.Now().Add(2 * time.Minute))
		}()
		wg.Wait()

		final, _ := w.Get(req.ID)
		if approveErr == nil {
			assert.Equal(t, StatusApproved, final.Status)
			assert.Empty(t, swept)
		} else {
			assert.Equal(t, StatusExpired, final.Status)
			assert.True(t, owerr.IsCode(approveErr, owerr.ErrCodeApprovalResolved))
			assert.Len(t, swept, 1)
		}
	}
}

func TestSweeper_TickInvokesCallbacks(t *testing.T) {
	w, clock := newTestWorkflow(t, config.ExpiryActionExpire)
	_, _ = w.Create(Spec{MissionID: "m-1", Urgency: taxonomy.PriorityCritical})
	_, _ = w.Create(Spec{MissionID: "m-2", Urgency: taxonomy.PriorityCritical})

	var transitioned []string
	var ticks int
	s := NewSweeper(w, time.Minute, func(_ context.Context, req Request) {
		transitioned = append(transitioned, req.MissionID)
	}, nil)
	s.OnTick(func(context.Context, time.Time) { ticks++ })

	assert.Equal(t, 0, s.Tick(context.Background(), clock.Now()))
	clock.Advance(time.Hour)
	assert.Equal(t, 2, s.Tick(context.Background(), clock.Now()))

	assert.Equal(t, []string{"m-1", "m-2"}, transitioned)
	assert.Equal(t, 2, ticks)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	w, _ := newTestWorkflow(t, config.ExpiryActionExpire)
	s := NewSweeper(w, 5*time.Millisecond, nil, nil)

	var ticks atomic.Int32
	s.OnTick(func(context.Context, time.Time) { ticks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
