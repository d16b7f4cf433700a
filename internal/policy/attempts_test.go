package policy

import (
	"testing"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptThresholds(t *testing.T) {
	p := DefaultAttemptPolicy()

	tests := []struct {
		attempts    int
		maxFailed   bool
		moreThanMax bool
	}{
		{0, false, false},
		{2, false, false},
		{3, true, false},
		{4, true, true},
	}

	for _, tt := range tests {
		sub := &models.SubscriptionItem{ChargeAttemptCount: tt.attempts}
		assert.Equal(t, tt.maxFailed, p.IsMaxAttemptsFailed(sub), "IsMaxAttemptsFailed(%d)", tt.attempts)
		assert.Equal(t, tt.moreThanMax, p.IsMoreThanMaxAttemptsFailed(sub), "IsMoreThanMaxAttemptsFailed(%d)", tt.attempts)
	}
}

func TestGetNextChargeDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := DefaultAttemptPolicy().WithClock(func() time.Time { return now })

	t.Run("schedule keyed by attempt count", func(t *testing.T) {
		assert.Equal(t, now.Add(24*time.Hour), p.GetNextChargeDate(&models.SubscriptionItem{ChargeAttemptCount: 1}))
		assert.Equal(t, now.Add(72*time.Hour), p.GetNextChargeDate(&models.SubscriptionItem{ChargeAttemptCount: 2}))
		assert.Equal(t, now.Add(168*time.Hour), p.GetNextChargeDate(&models.SubscriptionItem{ChargeAttemptCount: 3}))
	})

	t.Run("clamped at both ends", func(t *testing.T) {
		assert.Equal(t, now.Add(24*time.Hour), p.GetNextChargeDate(&models.SubscriptionItem{ChargeAttemptCount: 0}))
		assert.Equal(t, now.Add(168*time.Hour), p.GetNextChargeDate(&models.SubscriptionItem{ChargeAttemptCount: 9}))
	})

	t.Run("always after now", func(t *testing.T) {
		for attempts := 0; attempts < 6; attempts++ {
			next := p.GetNextChargeDate(&models.SubscriptionItem{ChargeAttemptCount: attempts})
			assert.True(t, next.After(now))
		}
	})
}

func TestNewAttemptPolicyValidation(t *testing.T) {
	_, err := NewAttemptPolicy(0, []time.Duration{time.Hour})
	assert.Error(t, err)

	_, err = NewAttemptPolicy(3, nil)
	assert.Error(t, err)

	_, err = NewAttemptPolicy(3, []time.Duration{time.Hour, 0})
	assert.Error(t, err)

	intervals := []time.Duration{time.Hour, 2 * time.Hour}
	p, err := NewAttemptPolicy(2, intervals)
	require.NoError(t, err)
	intervals[0] = time.Minute
	assert.Equal(t, time.Hour, p.RetryIntervals[0])
}
