package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const chargeLockPrefix = "charge:lock:"

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ChargeLocker keeps two scheduler instances from charging the same subscription at once
type ChargeLocker struct {
	client *Client
	ttl    time.Duration
}

// NewChargeLocker creates a locker whose locks expire after ttl
func NewChargeLocker(client *Client, ttl time.Duration) *ChargeLocker {
	return &ChargeLocker{client: client, ttl: ttl}
}

// Acquire takes the charge lock for a subscription.
// It returns ok=false when another holder has it.
func (l *ChargeLocker) Acquire(ctx context.Context, subscriptionID string) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.client.client.SetNX(ctx, chargeLockPrefix+subscriptionID, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire charge lock for %s: %w", subscriptionID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lock if token still owns it
func (l *ChargeLocker) Release(ctx context.Context, subscriptionID, token string) error {
	if err := releaseScript.Run(ctx, l.client.client, []string{chargeLockPrefix + subscriptionID}, token).Err(); err != nil {
		return fmt.Errorf("failed to release charge lock for %s: %w", subscriptionID, err)
	}
	return nil
}
