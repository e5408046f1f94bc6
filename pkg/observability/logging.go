package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Logger is a structured logger for orchestration components
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new structured logger writing JSON to stdout
func NewLogger(component string, level slog.Level) *Logger {
	return NewLoggerWithWriter(os.Stdout, component, level)
}

// NewLoggerWithWriter creates a JSON logger on an arbitrary writer.
func NewLoggerWithWriter(w io.Writer, component string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(w, opts)

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "overwatch"),
	)

	return &Logger{Logger: logger}
}

// Discard returns a logger that drops everything. Used by tests and as the
// fallback when a component is built without a logger.
func Discard() *Logger {
	return NewLoggerWithWriter(io.Discard, "discard", slog.LevelError+4)
}

// ParseLevel maps a config string onto a slog level; unknown values are info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component derives a logger for a sub-component sharing the same handler.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("subcomponent", name))}
}

// WithContext returns a logger carrying the trace and span ids of ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return l
	}
	return &Logger{
		Logger: l.Logger.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		),
	}
}

// WithMission returns a logger with mission-specific fields
func (l *Logger) WithMission(missionID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("mission_id", missionID),
		),
	}
}

// AgentRegistered logs an agent registration event
func (l *Logger) AgentRegistered(agentID, agentType, status string) {
	l.Info("agent registered",
		slog.String("agent_id", agentID),
		slog.String("agent_type", agentType),
		slog.String("status", status),
	)
}

// ResourceRegistered logs a resource registration event
func (l *Logger) ResourceRegistered(resourceID, resourceType string) {
	l.Info("resource registered",
		slog.String("resource_id", resourceID),
		slog.String("resource_type", resourceType),
	)
}

// MissionTransition logs a mission status change
func (l *Logger) MissionTransition(missionID, from, to, reason string) {
	l.Info("mission transition",
		slog.String("mission_id", missionID),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("reason", reason),
	)
}

// PolicyViolation logs a fired compliance rule
func (l *Logger) PolicyViolation(subjectID, ruleID, severity string, blocking bool) {
	level := slog.LevelInfo
	if blocking {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "policy violation",
		slog.String("subject_id", subjectID),
		slog.String("rule_id", ruleID),
		slog.String("severity", severity),
		slog.Bool("blocking", blocking),
	)
}

// AllocationFailed logs a task left without an agent or resource
func (l *Logger) AllocationFailed(missionID, taskID, kind, wanted string, err error) {
	l.Warn("allocation failed",
		slog.String("mission_id", missionID),
		slog.String("task_id", taskID),
		slog.String("kind", kind),
		slog.String("wanted", wanted),
		slog.String("error", err.Error()),
	)
}

// ApprovalRequested logs a new approval request
func (l *Logger) ApprovalRequested(requestID, missionID, urgency, authority string) {
	l.Info("approval requested",
		slog.String("request_id", requestID),
		slog.String("mission_id", missionID),
		slog.String("urgency", urgency),
		slog.String("authority", authority),
	)
}

// ApprovalResolved logs the resolution of an approval request
func (l *Logger) ApprovalResolved(requestID, status, by string) {
	l.Info("approval resolved",
		slog.String("request_id", requestID),
		slog.String("status", status),
		slog.String("by", by),
	)
}

// ContextPushFailed logs a failed mission context delivery
func (l *Logger) ContextPushFailed(missionID, agentID string, err error) {
	l.Error("mission context push failed",
		slog.String("mission_id", missionID),
		slog.String("agent_id", agentID),
		slog.String("error", err.Error()),
	)
}
