package charge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AnuragDani/subscription-charger/internal/events"
	"github.com/AnuragDani/subscription-charger/internal/models"
	"github.com/AnuragDani/subscription-charger/internal/notify"
	"github.com/AnuragDani/subscription-charger/internal/policy"
)

// Notification subjects raised while applying a charge outcome
const (
	SubjectChargeFailed   = "Charge subscription failed"
	SubjectMutationFailed = "Handle next charge attempt exception"
)

// TransitionerConfig wires the collaborators of a Transitioner
type TransitionerConfig struct {
	Store     SubscriptionStore
	Ledger    Ledger
	Renewals  RenewalResolver
	Policy    *policy.AttemptPolicy
	Events    EventDispatcher
	Notifier  notify.Notifier
	Recipient string
	Logger    *slog.Logger
}

// Transitioner applies a gateway outcome to the ledger and the subscription
type Transitioner struct {
	store     SubscriptionStore
	ledger    Ledger
	renewals  RenewalResolver
	policy    *policy.AttemptPolicy
	events    EventDispatcher
	notifier  notify.Notifier
	recipient string
	logger    *slog.Logger
}

func NewTransitioner(cfg TransitionerConfig) *Transitioner {
	return &Transitioner{
		store:     cfg.Store,
		ledger:    cfg.Ledger,
		renewals:  cfg.Renewals,
		policy:    cfg.Policy,
		events:    cfg.Events,
		notifier:  cfg.Notifier,
		recipient: cfg.Recipient,
		logger:    cfg.Logger,
	}
}

// OnPending links the in-flight transaction to the subscription so it is not charged again
func (t *Transitioner) OnPending(ctx context.Context, txn *models.PayTransaction, sub *models.SubscriptionItem, resp *models.ChargeResponse) error {
	var errs []error

	updated := sub.Clone()
	updated.MarkChargePending(txn.ID)
	if err := t.store.SaveChargeState(ctx, updated); err != nil {
		errs = append(errs, err)
	} else {
		*sub = *updated
	}

	if err := t.ledger.OnPending(ctx, txn, resp.BankTransactionID, resp.GatewayTransactionID); err != nil {
		errs = append(errs, err)
	}
	t.logCharge(ctx, sub, txn, models.ChargeActionPendingCreated)

	return t.mutationFailed(ctx, models.OutcomePending, sub, txn, errs)
}

// OnSuccess settles the transaction and renews the subscription.
// ChargeSucceeded is only emitted once the renewal has been persisted.
func (t *Transitioner) OnSuccess(ctx context.Context, txn *models.PayTransaction, sub *models.SubscriptionItem, resp *models.ChargeResponse) error {
	var errs []error

	if err := t.ledger.OnSuccess(ctx, txn, resp.BankTransactionID, resp.GatewayTransactionID); err != nil {
		errs = append(errs, err)
	}
	t.logCharge(ctx, sub, txn, models.ChargeActionSuccess)

	renewed := false
	effector, err := t.renewals.Get(sub.Package.Type)
	if err == nil {
		err = effector.Update(ctx, sub)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("renewal: %w", err))
	} else {
		renewed = true
	}

	if renewed {
		t.events.Dispatch(ctx, events.ChargeSucceeded{Transaction: txn, Subscription: sub, Response: resp})
	}

	return t.mutationFailed(ctx, models.OutcomeSuccess, sub, txn, errs)
}

// OnFail counts the failed attempt and either schedules a retry or gives up.
// A transaction already recorded as failed is ignored so one attempt is never counted twice.
func (t *Transitioner) OnFail(ctx context.Context, txn *models.PayTransaction, sub *models.SubscriptionItem, resp *models.ChargeResponse) error {
	if txn.Status == models.TransactionStatusFail {
		t.logger.Debug("charge failure already applied", "subscription_id", sub.ID, "transaction_id", txn.ID)
		return nil
	}

	var errs []error
	if err := t.handleFailedChargeAttempt(ctx, sub); err != nil {
		errs = append(errs, err)
	}

	if err := t.ledger.OnFail(ctx, txn, resp.BankTransactionID, resp.GatewayTransactionID, resp.ErrorMessage, resp.ErrorMessageRaw); err != nil {
		errs = append(errs, err)
		// the attempt is already counted; a repeated call must stay a no-op
		txn.Status = models.TransactionStatusFail
	}
	t.logCharge(ctx, sub, txn, models.ChargeActionFail)

	t.notifier.Notify(ctx, SubjectChargeFailed,
		fmt.Sprintf("Pay Transaction ID: %s , Subscription item ID: %s, PaySubscriptionResponse: %s",
			txn.ID, sub.ID, describeResponse(resp)),
		t.recipient)

	return t.mutationFailed(ctx, resp.Outcome, sub, txn, errs)
}

// handleFailedChargeAttempt mutates a copy so a failed write leaves sub as it was
func (t *Transitioner) handleFailedChargeAttempt(ctx context.Context, sub *models.SubscriptionItem) error {
	updated := sub.Clone()
	updated.IncrementChargeAttempt()

	exhausted := false
	if t.policy.IsMaxAttemptsFailed(updated) {
		updated.IsChargeable = false
		exhausted = true
	} else {
		updated.NextChargeDate = t.policy.GetNextChargeDate(updated)
	}
	updated.ClearChargePending()

	if err := t.store.SaveChargeState(ctx, updated); err != nil {
		return err
	}
	*sub = *updated

	if exhausted {
		t.logger.Info("subscription charge attempts exhausted", "subscription_id", sub.ID, "attempts", sub.ChargeAttemptCount)
		t.events.Dispatch(ctx, events.ChargeExhausted{Subscription: sub})
	}
	return nil
}

func (t *Transitioner) logCharge(ctx context.Context, sub *models.SubscriptionItem, txn *models.PayTransaction, action string) {
	entry := &models.ChargeLogEntry{SubscriptionItemID: sub.ID, PayTransactionID: txn.ID, Action: action}
	if err := t.store.LogCharge(ctx, entry); err != nil {
		t.logger.Error("failed to write charge log", "subscription_id", sub.ID, "transaction_id", txn.ID, "action", action, "error", err)
	}
}

func (t *Transitioner) mutationFailed(ctx context.Context, outcome models.Outcome, sub *models.SubscriptionItem, txn *models.PayTransaction, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	t.notifier.Notify(ctx, SubjectMutationFailed, "Message: "+err.Error(), t.recipient)
	return &MutationFailedError{
		SubscriptionID: sub.ID,
		TransactionID:  txn.ID,
		Outcome:        outcome,
		Err:            err,
	}
}

func describeResponse(resp *models.ChargeResponse) string {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf("%+v", *resp)
	}
	return string(data)
}
