package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AnuragDani/subscription-charger/internal/events"
)

// RedisEventListener publishes charge events on a Redis channel
type RedisEventListener struct {
	client  *Client
	channel string
}

func NewRedisEventListener(client *Client, channel string) *RedisEventListener {
	return &RedisEventListener{client: client, channel: channel}
}

func (l *RedisEventListener) Handle(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(events.NewEnvelope(e))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := l.client.client.Publish(ctx, l.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Name(), err)
	}
	return nil
}
