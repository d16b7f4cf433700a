package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/models"
)

// AttemptPolicy decides when a failing subscription is retried and when it is given up on
type AttemptPolicy struct {
	MaxAttempts    int             `json:"max_attempts" yaml:"max_attempts"`
	RetryIntervals []time.Duration `json:"retry_intervals" yaml:"-"`

	now func() time.Time
}

// DefaultAttemptPolicy returns the default policy
// 3 attempts, retried after 1 day, 3 days, 7 days
func DefaultAttemptPolicy() *AttemptPolicy {
	return &AttemptPolicy{
		MaxAttempts: 3,
		RetryIntervals: []time.Duration{
			24 * time.Hour,
			72 * time.Hour,
			168 * time.Hour,
		},
	}
}

// NewAttemptPolicy builds a validated policy
func NewAttemptPolicy(maxAttempts int, intervals []time.Duration) (*AttemptPolicy, error) {
	p := &AttemptPolicy{
		MaxAttempts:    maxAttempts,
		RetryIntervals: append([]time.Duration(nil), intervals...),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// WithClock returns a copy of the policy reading time from now
func (p *AttemptPolicy) WithClock(now func() time.Time) *AttemptPolicy {
	c := *p
	c.now = now
	return &c
}

// Validate rejects policies that could schedule a retry at or before now
func (p *AttemptPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if len(p.RetryIntervals) == 0 {
		return errors.New("at least one retry interval is required")
	}
	for i, d := range p.RetryIntervals {
		if d <= 0 {
			return fmt.Errorf("retry interval %d must be positive, got %v", i, d)
		}
	}
	return nil
}

// IsMaxAttemptsFailed reports whether the subscription has reached the attempt limit.
// Used after a failed charge: the attempt that reaches MaxAttempts exhausts the subscription.
func (p *AttemptPolicy) IsMaxAttemptsFailed(sub *models.SubscriptionItem) bool {
	return sub.ChargeAttemptCount >= p.MaxAttempts
}

// IsMoreThanMaxAttemptsFailed reports whether the subscription is already past the limit.
// Used while validating a charge candidate; a count equal to MaxAttempts still passes here.
func (p *AttemptPolicy) IsMoreThanMaxAttemptsFailed(sub *models.SubscriptionItem) bool {
	return sub.ChargeAttemptCount > p.MaxAttempts
}

// GetRetryInterval returns the interval for a given attempt number
func (p *AttemptPolicy) GetRetryInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return p.RetryIntervals[0]
	}
	if attempt > len(p.RetryIntervals) {
		return p.RetryIntervals[len(p.RetryIntervals)-1]
	}
	return p.RetryIntervals[attempt-1]
}

// GetNextChargeDate calculates the next retry time from the current attempt count
func (p *AttemptPolicy) GetNextChargeDate(sub *models.SubscriptionItem) time.Time {
	return p.clock().Add(p.GetRetryInterval(sub.ChargeAttemptCount))
}

func (p *AttemptPolicy) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}
