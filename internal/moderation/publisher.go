package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-backend/internal/queue"
	"marketplace-backend/internal/shared/telemetry"
)

// MessageType is the queue envelope type for moderation actions.
const MessageType = "moderation.action"

// Publisher fans committed moderation actions out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, action Action) error
}

// LogPublisher writes actions to the structured log.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, a Action) error {
	telemetry.Info("moderation action", map[string]any{
		"action_id":   a.ID,
		"entity_type": a.EntityType,
		"entity_id":   a.EntityID,
		"action":      a.Action,
		"actor_id":    a.ActorID,
		"reason":      a.Reason,
	})
	return nil
}

// QueuePublisher sends actions through a queue client, one message per action.
type QueuePublisher struct {
	Client queue.Client
}

func (p *QueuePublisher) Publish(ctx context.Context, a Action) error {
	msg, err := Encode(a)
	if err != nil {
		return err
	}
	return p.Client.Send(ctx, msg)
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, a Action) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Encode wraps an action into a queue envelope grouped by entity so FIFO
// consumers see one entity's actions in order.
func Encode(a Action) (queue.Message, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return queue.Message{}, fmt.Errorf("encode moderation action: %w", err)
	}
	return queue.Message{
		Type:       MessageType,
		ID:         a.ID,
		GroupKey:   a.EntityType + ":" + a.EntityID,
		OccurredAt: a.CreatedAt.UTC().Format(time.RFC3339Nano),
		Version:    queue.MessageVersion,
		Payload:    body,
	}, nil
}

// Decode extracts an action from a queue envelope.
func Decode(msg queue.Message) (Action, error) {
	if msg.Type != MessageType {
		return Action{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var a Action
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		return Action{}, fmt.Errorf("decode moderation action: %w", err)
	}
	return a, nil
}

// PublishAll delivers actions best-effort; failures are logged and dropped
// because the actions are already durable in the audit table.
func PublishAll(ctx context.Context, p Publisher, actions []Action) {
	if p == nil {
		return
	}
	for _, a := range actions {
		if err := p.Publish(ctx, a); err != nil {
			telemetry.Warn("moderation publish failed", map[string]any{
				"action_id": a.ID,
				"action":    a.Action,
				"entity_id": a.EntityID,
				"error":     err,
			})
		}
	}
}
