// Package notifications provides the event contract to the notification
// collaborator and the store change feed over Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Moderation event types emitted to the notification collaborator.
// Delivery and formatting are owned externally; only this contract is ours.
const (
	EventReportReceived = "report_received"
	EventReportAccepted = "report_accepted"
	EventReportRejected = "report_rejected"
)

// ModerationEvent is the fire-and-forget payload sent to the notifier channel.
type ModerationEvent struct {
	EventID   string            `json:"event_id"`
	UserID    uint              `json:"user_id"`
	EventType string            `json:"event_type"`
	ReportID  uint              `json:"report_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	EmittedAt time.Time         `json:"emitted_at"`
}

// ChangeEvent is one row-level mutation pushed on the store change feed.
type ChangeEvent struct {
	EventID  string `json:"event_id"`
	Resource string `json:"resource"` // table name
	Action   string `json:"action"`   // insert | update | delete
	RowID    uint   `json:"row_id,omitempty"`
}

// Change feed actions.
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// Notifier publishes notification and change-feed payloads into Redis channels.
// All methods tolerate a nil client so the app degrades to no-op without Redis.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishModeration sends a moderation event to the target user's channel.
func (n *Notifier) PublishModeration(ctx context.Context, userID uint, eventType string, reportID uint, metadata map[string]string) error {
	if n.rdb == nil {
		return nil
	}
	event := ModerationEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		ReportID:  reportID,
		Metadata:  metadata,
		EmittedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal moderation event: %w", err)
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishChange pushes a row-level change event on the resource's feed channel.
func (n *Notifier) PublishChange(ctx context.Context, resource, action string, rowID uint) error {
	if n.rdb == nil {
		return nil
	}
	event := ChangeEvent{
		EventID:  uuid.NewString(),
		Resource: resource,
		Action:   action,
		RowID:    rowID,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	return n.rdb.Publish(ctx, ChangeChannel(resource), payload).Err()
}

// UserChannel derives the Redis channel name for a user's notifications.
func UserChannel(userID uint) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

// ChangeChannel derives the Redis channel name for a resource's change feed.
func ChangeChannel(resource string) string {
	return "changes:" + resource
}
