package bus

import (
	"context"
	"encoding/json"
	"fmt"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
	"github.com/odvcencio/overwatch/pkg/mission"
)

// AgentMissionSubject is the subject an agent listens on for its mission
// context.
func AgentMissionSubject(agentID string) string {
	return fmt.Sprintf("%s.agent.%s.mission", SubjectPrefix, agentID)
}

// AgentQueueName is the durable queue holding contexts for one agent.
func AgentQueueName(agentID string) string {
	return "agent_" + agentID
}

// ContextPublisher delivers mission contexts to agents over a MessageBus.
type ContextPublisher struct {
	bus     MessageBus
	durable bool
}

// PublisherOption configures a ContextPublisher.
type PublisherOption func(*ContextPublisher)

// WithDurableQueue also pushes every context onto the agent's work queue.
func WithDurableQueue(enabled bool) PublisherOption {
	return func(p *ContextPublisher) { p.durable = enabled }
}

// NewContextPublisher wraps b.
func NewContextPublisher(b MessageBus, opts ...PublisherOption) *ContextPublisher {
	p := &ContextPublisher{bus: b}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PushContext JSON-encodes mc and publishes it to the agent's subject.
func (p *ContextPublisher) PushContext(ctx context.Context, agentID string, mc mission.Context) error {
	if agentID == "" {
		return owerr.New(owerr.ErrCodeInvalidInput, "agent id is required")
	}
	data, err := json.Marshal(mc)
	if err != nil {
		return owerr.Wrap(err, owerr.ErrCodeInternal, "encode mission context")
	}

	subject := AgentMissionSubject(agentID)
	if err := p.bus.Publish(ctx, subject, data); err != nil {
		return owerr.Wrap(err, owerr.ErrCodeBusPublish, "publish mission context").
			WithContext("subject", subject).
			WithContext("mission_id", mc.MissionID).
			WithRetryable(true)
	}
	if p.durable {
		if err := p.bus.Queue(AgentQueueName(agentID)).Push(ctx, data); err != nil {
			return owerr.Wrap(err, owerr.ErrCodeBusPublish, "queue mission context").
				WithContext("agent_id", agentID).
				WithContext("mission_id", mc.MissionID).
				WithRetryable(true)
		}
	}
	return nil
}

// DecodeContext parses a payload published by PushContext.
func DecodeContext(data []byte) (mission.Context, error) {
	var mc mission.Context
	if err := json.Unmarshal(data, &mc); err != nil {
		return mission.Context{}, owerr.Wrap(err, owerr.ErrCodeInvalidInput, "decode mission context")
	}
	return mc, nil
}
