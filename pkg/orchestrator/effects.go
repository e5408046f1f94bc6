package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/overwatch/pkg/approval"
	"github.com/odvcencio/overwatch/pkg/audit"
	"github.com/odvcencio/overwatch/pkg/mission"
	"github.com/odvcencio/overwatch/pkg/policy"
	"github.com/odvcencio/overwatch/pkg/telemetry"
)

// effects collects the logging, telemetry, metrics and audit work an
// operation produces. Nothing runs until the mission copy is committed.
type effects struct {
	o       *Orchestrator
	pending []func(ctx context.Context)
}

func (fx *effects) add(fn func(ctx context.Context)) {
	fx.pending = append(fx.pending, fn)
}

func (fx *effects) flush(ctx context.Context) {
	for _, fn := range fx.pending {
		fn(ctx)
	}
	fx.pending = nil
}

// record queues an audit record.
func (fx *effects) record(rec audit.Record) {
	fx.add(func(ctx context.Context) { fx.o.appendAudit(ctx, rec) })
}

// event queues a telemetry event.
func (fx *effects) event(ev telemetry.Event) {
	fx.add(func(context.Context) { fx.o.hub.Publish(ev) })
}

// transition moves m to status to and queues everything that follows from
// the change.
func (fx *effects) transition(m *mission.Mission, to mission.Status, actor, reason string) error {
	from := m.Status
	if err := m.Transition(to); err != nil {
		return err
	}
	id := m.ID
	fx.add(func(ctx context.Context) {
		fx.o.logger.WithContext(ctx).MissionTransition(id, string(from), string(to), reason)
		recordTransition(from, to)
	})
	fx.event(telemetry.Event{
		Type:      telemetry.EventMissionStatus,
		MissionID: id,
		Data:      map[string]any{"from": string(from), "to": string(to), "reason": reason},
	})
	fx.record(audit.Record{
		MissionID: id,
		Kind:      audit.KindMissionTransition,
		Actor:     actor,
		Summary:   fmt.Sprintf("%s -> %s", from, to),
		Fields:    map[string]string{"from": string(from), "to": string(to), "reason": reason},
	})
	return nil
}

// violations queues the log, metric, event and audit trail for fired rules.
func (fx *effects) violations(missionID string, vs []policy.Violation) {
	for _, v := range vs {
		fx.add(func(context.Context) {
			fx.o.logger.PolicyViolation(v.Subject, v.RuleID, string(v.Severity), v.Blocking)
			recordViolation(v)
		})
		fx.event(telemetry.Event{
			Type:      telemetry.EventPolicyViolation,
			MissionID: missionID,
			Data: map[string]any{
				"rule_id":  v.RuleID,
				"subject":  v.Subject,
				"severity": string(v.Severity),
				"blocking": v.Blocking,
			},
		})
		fx.record(audit.Record{
			MissionID: missionID,
			Kind:      audit.KindViolation,
			Actor:     actorOrchestrator,
			Summary:   v.Description,
			Fields: map[string]string{
				"violation_id": v.ID,
				"rule_id":      v.RuleID,
				"framework":    string(v.Framework),
				"subject":      v.Subject,
				"severity":     string(v.Severity),
				"blocking":     strconv.FormatBool(v.Blocking),
			},
		})
	}
}

// warn appends a warning to the mission and queues its audit record.
func (fx *effects) warn(m *mission.Mission, msg string) {
	m.Warnings = append(m.Warnings, msg)
	id := m.ID
	fx.add(func(context.Context) {
		fx.o.logger.Warn("mission warning", slog.String("mission_id", id), slog.String("warning", msg))
	})
	fx.record(audit.Record{MissionID: id, Kind: audit.KindWarning, Actor: actorOrchestrator, Summary: msg})
}

func (o *Orchestrator) appendAudit(ctx context.Context, rec audit.Record) {
	if rec.At.IsZero() {
		rec.At = o.now()
	}
	if _, err := o.journal.Append(ctx, rec); err != nil {
		recordAuditFailure()
		o.logger.Error("audit append failed",
			slog.String("mission_id", rec.MissionID),
			slog.String("kind", rec.Kind),
			slog.String("error", err.Error()),
		)
	}
}

func (fx *effects) approvalRequested(req approval.Request) {
	fx.event(telemetry.Event{
		Type:      telemetry.EventApprovalRequested,
		MissionID: req.MissionID,
		TaskID:    req.TaskID,
		Data: map[string]any{
			"request_id": req.ID,
			"urgency":    string(req.Urgency),
			"authority":  req.Authority,
			"expires_at": req.ExpiresAt,
		},
	})
	fx.record(audit.Record{
		MissionID: req.MissionID,
		Kind:      audit.KindApprovalCreated,
		Actor:     req.Requester,
		Summary:   req.Description,
		Fields: map[string]string{
			"request_id": req.ID,
			"task_id":    req.TaskID,
			"type":       req.Type,
			"authority":  req.Authority,
			"expires_at": req.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

func (fx *effects) approvalResolved(req approval.Request) {
	fx.add(func(context.Context) { recordApprovalResolved(string(req.Status)) })
	fx.event(telemetry.Event{
		Type:      telemetry.EventApprovalResolved,
		MissionID: req.MissionID,
		TaskID:    req.TaskID,
		Data: map[string]any{
			"request_id": req.ID,
			"status":     string(req.Status),
			"by":         req.Approver,
		},
	})
	fx.record(audit.Record{
		MissionID: req.MissionID,
		Kind:      audit.KindApprovalResolved,
		Actor:     req.Approver,
		Summary:   fmt.Sprintf("request %s %s", req.ID, req.Status),
		Fields: map[string]string{
			"request_id": req.ID,
			"status":     string(req.Status),
			"notes":      req.Notes,
			"conditions": strings.Join(req.Conditions, "; "),
		},
	})
}
