package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/overwatch/pkg/approval"
	"github.com/odvcencio/overwatch/pkg/config"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/taxonomy"
)

func TestApproveRequest_LastApprovalApprovesMission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.plan(t, taxonomy.PriorityCritical, "Investigate suspect")
	require.Len(t, m.Approvals, 1)

	got, err := h.o.ApproveRequest(ctx, m.Approvals[0].ID, "capt.ortiz", "cleared", nil)
	require.NoError(t, err)
	assert.Equal(t, mission.StatusApproved, got.Status)
	assert.Equal(t, approval.StatusApproved, got.Approvals[0].Status)
	assert.Equal(t, "capt.ortiz", got.Approvals[0].Approver)
	assert.Empty(t, h.o.GetPendingApprovals())
}

func TestApproveRequest_WaitsForEveryRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.plan(t, taxonomy.PriorityHigh, "Respond to the alarm at the bank")
	require.Len(t, m.Approvals, 2, "mission request plus the response task")
	assert.Len(t, h.o.GetPendingApprovals(), 2)

	got, err := h.o.ApproveRequest(ctx, m.Approvals[1].ID, "sgt.lee", "", []string{"supervisor on scene"})
	require.NoError(t, err)
	assert.Equal(t, mission.StatusPendingApproval, got.Status)
	assert.Equal(t, approval.StatusConditional, got.Approvals[1].Status)

	got, err = h.o.ApproveRequest(ctx, m.Approvals[0].ID, "lt.kim", "", nil)
	require.NoError(t, err)
	assert.Equal(t, mission.StatusApproved, got.Status)

	_, err = h.o.ApproveRequest(ctx, m.Approvals[0].ID, "lt.kim", "", nil)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeApprovalResolved))
}

func TestApproveRequest_Validation(t *testing.T) {
	h := newHarness(t)
	m := h.plan(t, taxonomy.PriorityCritical, "Investigate suspect")

	_, err := h.o.ApproveRequest(context.Background(), m.Approvals[0].ID, " ", "", nil)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeInvalidInput))
	_, err = h.o.ApproveRequest(context.Background(), "req-404", "lt.kim", "", nil)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeNotFound))
	_, err = h.o.DenyRequest(context.Background(), m.Approvals[0].ID, "", "no")
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeInvalidInput))
}

func TestDenyRequest_BlocksFromAnyLiveState(t *testing.T) {
	ctx := context.Background()
	cases := map[string]func(t *testing.T, h *harness) (missionID, requestID string){
		"pending approval": func(t *testing.T, h *harness) (string, string) {
			m := h.plan(t, taxonomy.PriorityCritical, "Investigate suspect")
			return m.ID, m.Approvals[0].ID
		},
		"approved": func(t *testing.T, h *harness) (string, string) {
			m := h.ready(t, taxonomy.PriorityMedium, "Patrol the park")
			req, err := h.o.RequestApproval(ctx, m.ID, ApprovalSpec{Description: "extend to the river", Requester: "sgt.lee"})
			require.NoError(t, err)
			return m.ID, req.ID
		},
		"in progress": func(t *testing.T, h *harness) (string, string) {
			m := h.started(t, taxonomy.PriorityMedium, "Patrol the park")
			req, err := h.o.RequestApproval(ctx, m.ID, ApprovalSpec{TaskID: m.Tasks[0].ID, Requester: "sgt.lee"})
			require.NoError(t, err)
			return m.ID, req.ID
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			missionID, requestID := setup(t, h)

			got, err := h.o.DenyRequest(ctx, requestID, "capt.ortiz", "not justified")
			require.NoError(t, err)
			assert.Equal(t, mission.StatusBlocked, got.Status)
			assert.Equal(t, missionID, got.ID)

			var found bool
			for _, r := range got.Approvals {
				if r.ID == requestID {
					found = true
					assert.Equal(t, approval.StatusDenied, r.Status)
					assert.Equal(t, "not justified", r.Notes)
				}
			}
			assert.True(t, found)
		})
	}
}

func TestDenyRequest_AfterDeadline(t *testing.T) {
	h := newHarness(t)
	m := h.plan(t, taxonomy.PriorityCritical, "Investigate suspect")

	h.clock.Advance(2 * time.Hour)
	got, err := h.o.DenyRequest(context.Background(), m.Approvals[0].ID, "capt.ortiz", "")
	require.NoError(t, err)
	assert.Equal(t, mission.StatusBlocked, got.Status)
}

func TestDenyRequest_FinishedMissionStaysFinished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.started(t, taxonomy.PriorityMedium, "Patrol the park")
	req, err := h.o.RequestApproval(ctx, m.ID, ApprovalSpec{Requester: "sgt.lee"})
	require.NoError(t, err)

	// Cancel denies open requests itself, so complete instead.
	_, err = h.o.CompleteMission(ctx, m.ID, true, "done")
	require.NoError(t, err)

	got, err := h.o.DenyRequest(ctx, req.ID, "capt.ortiz", "late")
	require.NoError(t, err)
	assert.Equal(t, mission.StatusCompleted, got.Status)
}

func TestApproveRequest_PastDeadline(t *testing.T) {
	cases := []struct {
		name         string
		action       string
		blocks       bool
		wantStatus   mission.Status
		wantReqState approval.Status
	}{
		{"expire keeps mission", config.ExpiryActionExpire, false, mission.StatusPendingApproval, approval.StatusExpired},
		{"expire blocks when configured", config.ExpiryActionExpire, true, mission.StatusBlocked, approval.StatusExpired},
		{"deny blocks", config.ExpiryActionDeny, false, mission.StatusBlocked, approval.StatusDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, withConfig(func(cfg *config.Config) {
				cfg.Approval.ExpiryAction = tc.action
				cfg.Approval.ExpiredBlocksMission = tc.blocks
			}))
			m := h.plan(t, taxonomy.PriorityCritical, "Investigate suspect")

			h.clock.Advance(31 * time.Minute)
			got, err := h.o.ApproveRequest(context.Background(), m.Approvals[0].ID, "lt.kim", "", nil)
			assert.True(t, owerr.IsCode(err, owerr.ErrCodeApprovalExpired), "got %v", err)
			require.NotNil(t, got)
			assert.Equal(t, tc.wantStatus, got.Status)
			assert.Equal(t, tc.wantReqState, got.Approvals[0].Status)
			assert.Equal(t, approval.SystemActor, got.Approvals[0].Approver)

			stored, err := h.o.GetMission(m.ID)
			require.NoError(t, err)
			assert.Equal(t, got.Status, stored.Status)
		})
	}
}

func TestApproveRequest_PastDeadlineWarns(t *testing.T) {
	h := newHarness(t)
	m := h.plan(t, taxonomy.PriorityCritical, "Investigate suspect")

	h.clock.Advance(time.Hour)
	got, _ := h.o.ApproveRequest(context.Background(), m.Approvals[0].ID, "lt.kim", "", nil)
	require.NotNil(t, got)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], m.Approvals[0].ID)

	_, err := h.o.StartMission(context.Background(), m.ID)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeInvalidTransition), "an expired request never approves the mission")
}

func TestExpiryHandler_AppliesSweptRequests(t *testing.T) {
	h := newHarness(t, withConfig(func(cfg *config.Config) {
		cfg.Approval.ExpiryAction = config.ExpiryActionDeny
	}))
	ctx := context.Background()
	m := h.plan(t, taxonomy.PriorityCritical, "Investigate suspect")
	other := h.plan(t, taxonomy.PriorityLow, "Investigate the break-in")

	sweeper := approval.NewSweeper(h.o.Approvals(), time.Minute, h.o.ExpiryHandler(), nil)
	h.clock.Advance(45 * time.Minute)
	assert.Equal(t, 1, sweeper.Tick(ctx, h.clock.Now()))

	got, err := h.o.GetMission(m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StatusBlocked, got.Status)
	assert.Equal(t, approval.StatusDenied, got.Approvals[0].Status)

	untouched, err := h.o.GetMission(other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.Status, untouched.Status)

	// A replay of the same resolution is ignored.
	again, err := h.o.HandleExpired(ctx, got.Approvals[0])
	require.NoError(t, err)
	assert.Equal(t, got.Warnings, again.Warnings)
	assert.Equal(t, mission.StatusBlocked, again.Status)
}

func TestExpiryHandler_ExpireOnlyWarns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.plan(t, taxonomy.PriorityCritical, "Investigate suspect")

	sweeper := approval.NewSweeper(h.o.Approvals(), time.Minute, h.o.ExpiryHandler(), nil)
	h.clock.Advance(31 * time.Minute)
	require.Equal(t, 1, sweeper.Tick(ctx, h.clock.Now()))

	got, err := h.o.GetMission(m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StatusPendingApproval, got.Status)
	assert.Equal(t, approval.StatusExpired, got.Approvals[0].Status)
	assert.Len(t, got.Warnings, 1)
}

func TestRequestApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	draft := h.create(t, taxonomy.PriorityMedium, "Patrol the park")
	_, err := h.o.RequestApproval(ctx, draft.ID, ApprovalSpec{Requester: "sgt.lee"})
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeInvalidTransition))

	m := h.ready(t, taxonomy.PriorityHigh, "Patrol the park")
	_, err = h.o.RequestApproval(ctx, m.ID, ApprovalSpec{TaskID: "nope"})
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeNotFound))

	req, err := h.o.RequestApproval(ctx, m.ID, ApprovalSpec{TaskID: m.Tasks[0].ID, Requester: "sgt.lee"})
	require.NoError(t, err)
	assert.Equal(t, approval.TypeTask, req.Type)
	assert.Equal(t, taxonomy.PriorityHigh, req.Urgency)
	assert.Equal(t, "sgt.lee", req.Requester)
	assert.NotEmpty(t, req.Description)

	_, err = h.o.StartMission(ctx, m.ID)
	assert.True(t, owerr.IsCode(err, owerr.ErrCodeInvalidTransition), "start waits for open requests")

	got, err := h.o.ApproveRequest(ctx, req.ID, "lt.kim", "", nil)
	require.NoError(t, err)
	assert.Equal(t, mission.StatusApproved, got.Status)

	started, err := h.o.StartMission(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StatusInProgress, started.Status)
}

func TestApproveRequest_FreshRequestSupersedesExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.plan(t, taxonomy.PriorityCritical, "Investigate suspect")
	require.Len(t, m.Approvals, 1)

	sweeper := approval.NewSweeper(h.o.Approvals(), time.Minute, h.o.ExpiryHandler(), nil)
	h.clock.Advance(31 * time.Minute)
	require.Equal(t, 1, sweeper.Tick(ctx, h.clock.Now()))

	// A task-level grant does not stand in for the mission request.
	taskReq, err := h.o.RequestApproval(ctx, m.ID, ApprovalSpec{TaskID: m.Tasks[0].ID, Requester: "sgt.lee"})
	require.NoError(t, err)
	got, err := h.o.ApproveRequest(ctx, taskReq.ID, "lt.kim", "", nil)
	require.NoError(t, err)
	assert.Equal(t, mission.StatusPendingApproval, got.Status)

	req, err := h.o.RequestApproval(ctx, m.ID, ApprovalSpec{Description: "re-request after lapse", Requester: "sgt.lee"})
	require.NoError(t, err)
	got, err = h.o.ApproveRequest(ctx, req.ID, "capt.ortiz", "", nil)
	require.NoError(t, err)
	assert.Equal(t, mission.StatusApproved, got.Status)
	assert.Equal(t, approval.StatusExpired, got.Approvals[0].Status)
	assert.Empty(t, h.o.GetPendingApprovals())
}

func TestHandleExpired_IgnoresRequestsArchivedByRemediation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.plan(t, taxonomy.PriorityHigh, "Respond to the alarm at the bank")
	require.Len(t, m.Approvals, 2)

	blocked, err := h.o.DenyRequest(ctx, m.Approvals[1].ID, "capt.ortiz", "no unit available")
	require.NoError(t, err)
	require.Equal(t, mission.StatusBlocked, blocked.Status)

	// The sweeper resolves the open request, then remediation runs before
	// the expiry reaches the mission.
	h.clock.Advance(3 * time.Hour)
	swept := h.o.Approvals().Sweep(h.clock.Now())
	require.Len(t, swept, 1)
	draft, err := h.o.RemediateMission(ctx, m.ID, nil)
	require.NoError(t, err)
	require.Equal(t, mission.StatusDraft, draft.Status)

	got, err := h.o.HandleExpired(ctx, swept[0])
	require.NoError(t, err)
	assert.Empty(t, got.Approvals)
	assert.Equal(t, mission.StatusDraft, got.Status)

	_, err = h.o.PlanMission(ctx, m.ID)
	require.NoError(t, err)
	final := h.approveAll(t, m.ID)
	assert.Equal(t, mission.StatusApproved, final.Status)
	for _, r := range final.Approvals {
		assert.Equal(t, approval.StatusApproved, r.Status)
	}
}
