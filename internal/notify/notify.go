// Package notify delivers realtime booking events to connected clients.
// Socket gateways subscribe to the per-user Redis channel and forward
// whatever arrives there.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is the JSON document published on a user's channel.
type Message struct {
	Event   string    `json:"event"`
	UserID  uint64    `json:"user_id"`
	Payload any       `json:"payload,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// Channel returns the pub/sub channel for userID.
func Channel(userID uint64) string {
	return fmt.Sprintf("notify:user:%d", userID)
}

// RedisNotifier publishes notifications with Redis PUBLISH. It never
// queues; a user with no subscriber simply misses the event.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Emit(ctx context.Context, userID uint64, event string, payload any) error {
	body, err := json.Marshal(Message{Event: event, UserID: userID, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	return n.rdb.Publish(ctx, Channel(userID), body).Err()
}

// LogNotifier writes notifications to the process log. It stands in for
// Redis in local runs.
type LogNotifier struct{}

func (LogNotifier) Emit(_ context.Context, userID uint64, event string, _ any) error {
	log.Printf("notify: user=%d event=%s", userID, event)
	return nil
}
