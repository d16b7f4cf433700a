package charge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/models"
	"github.com/AnuragDani/subscription-charger/internal/notify"
	"github.com/AnuragDani/subscription-charger/internal/policy"
)

// RejectReason explains why a due subscription was not charged
type RejectReason string

const (
	RejectDateEndingInPast    RejectReason = "date_ending_in_past"
	RejectNoPaymentInfo       RejectReason = "no_payment_info"
	RejectNoSubscriptionToken RejectReason = "no_subscription_token"
	RejectTooManyAttempts     RejectReason = "too_many_attempts"
)

// Notification subjects for rejected subscriptions
const (
	SubjectDateEndingInPast    = "Subscription DateEnding is in past time"
	SubjectNoPaymentInfo       = "SubscriptionItem is chargeable but doesn't have payment info"
	SubjectNoSubscriptionToken = "SubscriptionItem has payment info but doesn't have subscription token"
	SubjectTooManyAttempts     = "Subscription charge attempt is too big"
)

// Validator checks charge preconditions and reports rejections
type Validator struct {
	policy    *policy.AttemptPolicy
	notifier  notify.Notifier
	recipient string
	logger    *slog.Logger
	now       func() time.Time
}

func NewValidator(p *policy.AttemptPolicy, notifier notify.Notifier, recipient string, logger *slog.Logger) *Validator {
	return &Validator{policy: p, notifier: notifier, recipient: recipient, logger: logger, now: time.Now}
}

// Validate returns the first failed precondition, or "" when the subscription may be charged.
// Each rejection is logged and sent to the notifier.
func (v *Validator) Validate(ctx context.Context, sub *models.SubscriptionItem) RejectReason {
	var reason RejectReason
	var subject, body string

	switch {
	case sub.DateEnding.Before(v.now()):
		reason, subject = RejectDateEndingInPast, SubjectDateEndingInPast
		body = fmt.Sprintf("Subscription item ID: %s", sub.ID)
	case sub.PaymentInfo == nil:
		reason, subject = RejectNoPaymentInfo, SubjectNoPaymentInfo
		body = fmt.Sprintf("Subscription item ID: %s", sub.ID)
	case sub.PaymentInfo.SubscriptionTokenID == "":
		reason, subject = RejectNoSubscriptionToken, SubjectNoSubscriptionToken
		body = fmt.Sprintf("Subscription item ID: %s. Payment Info ID: %s", sub.ID, sub.PaymentInfo.ID)
	case v.policy.IsMoreThanMaxAttemptsFailed(sub):
		reason, subject = RejectTooManyAttempts, SubjectTooManyAttempts
		body = fmt.Sprintf("Subscription item ID: %s", sub.ID)
	default:
		return ""
	}

	v.logger.Warn("subscription rejected before charge", "subscription_id", sub.ID, "reason", string(reason))
	v.notifier.Notify(ctx, subject, body, v.recipient)
	return reason
}

// IsEligibleToCharge reports whether the subscription passes every precondition
func (v *Validator) IsEligibleToCharge(ctx context.Context, sub *models.SubscriptionItem) bool {
	return v.Validate(ctx, sub) == ""
}
