package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odvcencio/overwatch/pkg/approval"
	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/observability"
)

// ApprovalSpec describes an on-demand approval request.
type ApprovalSpec struct {
	TaskID      string
	Description string
	Requester   string
}

func syncApproval(m *mission.Mission, req approval.Request) {
	for i := range m.Approvals {
		if m.Approvals[i].ID == req.ID {
			m.Approvals[i] = req.Clone()
			return
		}
	}
	m.Approvals = append(m.Approvals, req.Clone())
}

// approvalsCleared reports whether every request on the mission resolved in
// favour of proceeding. An expired request stops counting once a later
// request for the same mission or task has been granted.
func approvalsCleared(m *mission.Mission) bool {
	for i, r := range m.Approvals {
		if r.Pending() {
			return false
		}
		if r.Status == approval.StatusExpired && supersededBy(m.Approvals[i+1:], r) {
			continue
		}
		if r.Negative() {
			return false
		}
	}
	return true
}

func supersededBy(later []approval.Request, r approval.Request) bool {
	for _, next := range later {
		if next.TaskID != r.TaskID {
			continue
		}
		if next.Status == approval.StatusApproved || next.Status == approval.StatusConditional {
			return true
		}
	}
	return false
}

func hasPendingApproval(m *mission.Mission, taskID string) bool {
	for _, r := range m.Approvals {
		if r.Pending() && (taskID == "" || r.TaskID == taskID) {
			return true
		}
	}
	return false
}

// block moves a live mission to BLOCKED. Terminal and already blocked
// missions are left as they are.
func (o *Orchestrator) block(m *mission.Mission, fx *effects, actor, reason string) error {
	if m.Status.Terminal() || m.Status == mission.StatusBlocked {
		return nil
	}
	return fx.transition(m, mission.StatusBlocked, actor, reason)
}

// applyExpiry folds a request the workflow resolved on its own into the
// mission.
func (o *Orchestrator) applyExpiry(m *mission.Mission, fx *effects, req approval.Request) error {
	syncApproval(m, req)
	fx.approvalResolved(req)

	switch {
	case req.Status == approval.StatusDenied:
		return o.block(m, fx, approval.SystemActor, "approval window elapsed")
	case o.expiredBlocksMission:
		return o.block(m, fx, approval.SystemActor, "approval request expired")
	default:
		fx.warn(m, fmt.Sprintf("approval request %s expired without a decision", req.ID))
		return nil
	}
}

// RequestApproval opens an approval request on a live mission.
func (o *Orchestrator) RequestApproval(ctx context.Context, missionID string, spec ApprovalSpec) (_ approval.Request, err error) {
	ctx, done := o.trace(ctx, "RequestApproval", observability.AttrMissionID.String(missionID))
	defer func() { done(err) }()

	var created approval.Request
	_, err = o.mutate(ctx, missionID, func(m *mission.Mission, fx *effects) error {
		switch m.Status {
		case mission.StatusPendingApproval, mission.StatusApproved, mission.StatusInProgress:
		default:
			return owerr.Newf(owerr.ErrCodeInvalidTransition, "cannot request approval for a %s mission", m.Status).
				WithContext("mission_id", m.ID)
		}
		reqType := approval.TypeMission
		if spec.TaskID != "" {
			if m.Task(spec.TaskID) == nil {
				return owerr.NotFound("task", spec.TaskID)
			}
			reqType = approval.TypeTask
		}
		description := strings.TrimSpace(spec.Description)
		if description == "" {
			description = fmt.Sprintf("Approval for mission %q", m.Title)
		}

		req, err := o.approvals.Create(approval.Spec{
			MissionID:   m.ID,
			TaskID:      spec.TaskID,
			Type:        reqType,
			Description: description,
			Urgency:     m.Priority,
			Requester:   spec.Requester,
		})
		if err != nil {
			return err
		}
		m.Approvals = append(m.Approvals, req)
		fx.approvalRequested(req)
		created = req
		return nil
	})
	if err != nil {
		return approval.Request{}, err
	}
	return created, nil
}

func (o *Orchestrator) missionForRequest(requestID string) (string, error) {
	req, err := o.approvals.Get(requestID)
	if err != nil {
		return "", err
	}
	return req.MissionID, nil
}

// ApproveRequest approves (or conditionally approves) a request. When the
// last open request on a PENDING_APPROVAL mission clears, the mission moves
// to APPROVED. A request past its deadline is expired instead: the mission
// snapshot reflects that and the error carries APPROVAL_EXPIRED.
func (o *Orchestrator) ApproveRequest(ctx context.Context, requestID, approver, notes string, conditions []string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "ApproveRequest", observability.AttrApprovalID.String(requestID))
	defer func() { done(err) }()

	if strings.TrimSpace(approver) == "" {
		return nil, owerr.New(owerr.ErrCodeInvalidInput, "approver is required")
	}
	missionID, err := o.missionForRequest(requestID)
	if err != nil {
		return nil, err
	}

	var expired error
	m, err := o.mutate(ctx, missionID, func(m *mission.Mission, fx *effects) error {
		req, err := o.approvals.Approve(requestID, approver, notes, conditions)
		if err != nil {
			if owerr.IsCode(err, owerr.ErrCodeApprovalExpired) {
				expired = err
				return o.applyExpiry(m, fx, req)
			}
			return err
		}
		syncApproval(m, req)
		fx.approvalResolved(req)
		if m.Status == mission.StatusPendingApproval && approvalsCleared(m) {
			return fx.transition(m, mission.StatusApproved, approver, "all approval requests granted")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, expired
}

// DenyRequest denies a request and blocks its mission whatever state the
// mission was in, unless it already finished.
func (o *Orchestrator) DenyRequest(ctx context.Context, requestID, denier, reason string) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "DenyRequest", observability.AttrApprovalID.String(requestID))
	defer func() { done(err) }()

	if strings.TrimSpace(denier) == "" {
		return nil, owerr.New(owerr.ErrCodeInvalidInput, "denier is required")
	}
	missionID, err := o.missionForRequest(requestID)
	if err != nil {
		return nil, err
	}

	return o.mutate(ctx, missionID, func(m *mission.Mission, fx *effects) error {
		req, err := o.approvals.Deny(requestID, denier, reason)
		if err != nil {
			return err
		}
		syncApproval(m, req)
		fx.approvalResolved(req)
		blockReason := "approval denied"
		if reason != "" {
			blockReason = "approval denied: " + reason
		}
		return o.block(m, fx, denier, blockReason)
	})
}

// HandleExpired applies a request the sweeper resolved to its mission.
// Requests already reflected on the mission, or no longer open on it, are
// ignored.
func (o *Orchestrator) HandleExpired(ctx context.Context, req approval.Request) (_ *mission.Mission, err error) {
	ctx, done := o.trace(ctx, "HandleExpired",
		observability.AttrApprovalID.String(req.ID),
		observability.AttrMissionID.String(req.MissionID),
	)
	defer func() { done(err) }()

	return o.mutate(ctx, req.MissionID, func(m *mission.Mission, fx *effects) error {
		for _, existing := range m.Approvals {
			if existing.ID != req.ID {
				continue
			}
			if existing.Status == req.Status {
				return nil
			}
			return o.applyExpiry(m, fx, req)
		}
		return nil
	})
}

// ExpiryHandler adapts HandleExpired to the sweeper callback.
func (o *Orchestrator) ExpiryHandler() approval.TransitionFunc {
	return func(ctx context.Context, req approval.Request) {
		if _, err := o.HandleExpired(ctx, req); err != nil {
			o.logger.Error("expired approval not applied",
				slog.String("request_id", req.ID),
				slog.String("mission_id", req.MissionID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// GetPendingApprovals lists unresolved requests across all missions, oldest
// first.
func (o *Orchestrator) GetPendingApprovals() []approval.Request {
	return o.approvals.ListPending()
}
