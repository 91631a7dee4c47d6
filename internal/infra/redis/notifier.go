package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier publishes reward events on a per-user pub/sub channel so every
// instance holding a socket for the user can forward them.
type Notifier struct {
	client  redis.UniversalClient
	channel string
}

func NewNotifier(client redis.UniversalClient, channel string) *Notifier {
	if channel == "" {
		channel = "reward-events"
	}
	return &Notifier{client: client, channel: channel}
}

func (n *Notifier) Notify(ctx context.Context, event domain.RewardEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.topic(event.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Kind, err)
	}
	return nil
}

// Subscribe streams events for userID until cancel is called or ctx ends.
func (n *Notifier) Subscribe(ctx context.Context, userID string) (<-chan domain.RewardEvent, func(), error) {
	pubsub := n.client.Subscribe(ctx, n.topic(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe reward events: %w", err)
	}

	out := make(chan domain.RewardEvent, 8)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event domain.RewardEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Get().Warn("dropping malformed reward event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}

func (n *Notifier) topic(userID string) string {
	return n.channel + ":" + userID
}
