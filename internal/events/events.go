package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topics for lifecycle events published by the auth services.
const (
	TopicUserCreated    = "auth.user.created"
	TopicUserFederated  = "auth.user.federated"
	TopicResetRequested = "auth.password.reset.requested"
	TopicResetCompleted = "auth.password.reset.completed"
)

// Event is the envelope published to the broker for every account
// lifecycle transition.
type Event struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events to a broker backend.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Emitter stamps and publishes events best-effort: a broker outage is
// logged but never fails the user-facing call that produced the event.
type Emitter struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewEmitter constructs an Emitter. A nil publisher disables publishing.
func NewEmitter(publisher Publisher, logger *zap.Logger) *Emitter {
	return &Emitter{publisher: publisher, logger: logger}
}

// Emit publishes a lifecycle event for the given user.
func (e *Emitter) Emit(ctx context.Context, topic string, userID int64, username string) {
	if e == nil || e.publisher == nil {
		return
	}

	event := Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		UserID:     userID,
		Username:   username,
		OccurredAt: time.Now().UTC(),
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("event publish failed",
			zap.String("topic", topic),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

// Close releases the underlying broker connection.
func (e *Emitter) Close() error {
	if e == nil || e.publisher == nil {
		return nil
	}
	return e.publisher.Close()
}
