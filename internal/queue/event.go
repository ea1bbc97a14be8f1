// Package queue carries audit activity over RabbitMQ. Request handling
// publishes an ActivityEvent per user-visible action and a background
// consumer persists them, so audit writes never sit on the request path.
package queue

import (
	"context"
	"strings"
	"time"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// ActivityEvent is the wire form of model.Activity.
type ActivityEvent struct {
	UserID    uint64         `json:"user_id"`
	Action    string         `json:"action"`
	BookingID string         `json:"booking_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	At        string         `json:"at"`
}

func newActivityEvent(a model.Activity) ActivityEvent {
	return ActivityEvent{
		UserID:    a.UserID,
		Action:    a.Action,
		BookingID: a.BookingID,
		Details:   a.Details,
		At:        a.At.UTC().Format(time.RFC3339Nano),
	}
}

func (e ActivityEvent) activity() model.Activity {
	at, err := time.Parse(time.RFC3339Nano, e.At)
	if err != nil {
		at = time.Now().UTC()
	}
	return model.Activity{UserID: e.UserID, Action: e.Action, BookingID: e.BookingID, Details: e.Details, At: at}
}

// RoutingKey is "activity.<action>", e.g. activity.booking_created.
func RoutingKey(action string) string {
	return "activity." + strings.ToLower(strings.ReplaceAll(action, " ", "_"))
}

// JSONPublisher is the part of Publisher ActivityPublisher needs.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// ActivityPublisher records activities by publishing them.
type ActivityPublisher struct {
	pub JSONPublisher
}

func NewActivityPublisher(pub JSONPublisher) *ActivityPublisher {
	return &ActivityPublisher{pub: pub}
}

func (p *ActivityPublisher) Log(ctx context.Context, a model.Activity) error {
	return p.pub.PublishJSON(ctx, RoutingKey(a.Action), newActivityEvent(a))
}
