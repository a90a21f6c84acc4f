package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func channelName(userID string) string {
	return "wallet:events:" + userID
}

// RedisRelay publishes events on a per-user Redis channel so that whichever
// instance holds the user's stream can deliver them.
type RedisRelay struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func NewRedisRelay(client *redis.Client, log logrus.FieldLogger) *RedisRelay {
	return &RedisRelay{client: client, log: log.WithField("component", "notify")}
}

func (r *RedisRelay) Notify(ctx context.Context, userID, event string, payload interface{}) error {
	msg, err := newMessage(userID, event, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.Publish(ctx, channelName(userID), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

func (r *RedisRelay) Subscribe(ctx context.Context, userID string) (<-chan Message, func()) {
	ctx, stop := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, channelName(userID))
	out := make(chan Message, subscriberBuffer)

	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					r.log.WithError(err).WithField("channel", m.Channel).Warn("dropping undecodable event")
					continue
				}
				select {
				case out <- msg:
				default:
				}
			}
		}
	}()

	return out, stop
}
