package charge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/ledger"
	"github.com/AnuragDani/subscription-charger/internal/metrics"
	"github.com/AnuragDani/subscription-charger/internal/models"
)

// Item statuses in a cycle result
const (
	ItemStatusSkipped = "skipped"
	ItemStatusPending = "pending"
	ItemStatusSuccess = "success"
	ItemStatusFail    = "fail"
	ItemStatusError   = "error"
)

// Skip reasons decided under the charge lock
const (
	skipLocked = "locked"
	skipStale  = "stale"
)

// CycleResult holds the results of one charge cycle
type CycleResult struct {
	Processed        int           `json:"processed"`
	Succeeded        int           `json:"succeeded"`
	Pending          int           `json:"pending"`
	Failed           int           `json:"failed"`
	Skipped          int           `json:"skipped"`
	Errors           int           `json:"errors"`
	MutationFailures int           `json:"mutation_failures"`
	Items            []*ItemResult `json:"items,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
}

// ItemResult holds the result for a single subscription
type ItemResult struct {
	SubscriptionID string `json:"subscription_id"`
	TransactionID  string `json:"transaction_id,omitempty"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	MutationFailed bool   `json:"mutation_failed,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

func (r *CycleResult) add(item *ItemResult) {
	r.Items = append(r.Items, item)
	r.Processed++

	switch item.Status {
	case ItemStatusSkipped:
		r.Skipped++
	case ItemStatusPending:
		r.Pending++
	case ItemStatusSuccess:
		r.Succeeded++
	case ItemStatusFail:
		r.Failed++
	default:
		r.Errors++
	}
	if item.MutationFailed {
		r.MutationFailures++
	}
}

// OrchestratorConfig wires the collaborators of an Orchestrator
type OrchestratorConfig struct {
	Store          SubscriptionStore
	Ledger         Ledger
	Gateway        Gateway
	Validator      *Validator
	Transitioner   *Transitioner
	Locker         Locker // optional
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	PayAccount     string
	BatchSize      int
	GatewayTimeout time.Duration
}

// Orchestrator drives one charge cycle over all due subscriptions
type Orchestrator struct {
	store          SubscriptionStore
	ledger         Ledger
	gateway        Gateway
	validator      *Validator
	transitioner   *Transitioner
	locker         Locker
	metrics        *metrics.Metrics
	logger         *slog.Logger
	payAccount     string
	batchSize      int
	gatewayTimeout time.Duration
	now            func() time.Time
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		store:          cfg.Store,
		ledger:         cfg.Ledger,
		gateway:        cfg.Gateway,
		validator:      cfg.Validator,
		transitioner:   cfg.Transitioner,
		locker:         cfg.Locker,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		payAccount:     cfg.PayAccount,
		batchSize:      cfg.BatchSize,
		gatewayTimeout: cfg.GatewayTimeout,
		now:            time.Now,
	}
}

// RunChargeCycle charges every due subscription once.
// Only a failure to load the due subscriptions aborts the cycle; per-subscription
// problems are recorded in the result and processing continues.
func (o *Orchestrator) RunChargeCycle(ctx context.Context) (*CycleResult, error) {
	start := o.now()
	result := &CycleResult{StartedAt: start}

	subs, err := o.store.GetDueSubscriptions(ctx, start, o.batchSize)
	if err != nil {
		o.metrics.RecordCycle("failed", 0, time.Since(start))
		return nil, fmt.Errorf("failed to load due subscriptions: %w", err)
	}

	o.logger.Info("charge cycle started", "due", len(subs))

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("charge cycle interrupted", "remaining", len(subs)-result.Processed, "error", err)
			result.Duration = time.Since(start)
			o.metrics.RecordCycle("interrupted", result.Processed, result.Duration)
			return result, err
		}
		result.add(o.processSubscription(ctx, sub))
	}

	result.Duration = time.Since(start)
	o.metrics.RecordCycle("completed", result.Processed, result.Duration)
	o.logger.Info("charge cycle finished",
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"pending", result.Pending,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"mutation_failures", result.MutationFailures,
		"duration", result.Duration.String(),
	)
	return result, nil
}

func (o *Orchestrator) processSubscription(ctx context.Context, sub *models.SubscriptionItem) (item *ItemResult) {
	item = &ItemResult{SubscriptionID: sub.ID}
	log := o.logger.With("subscription_id", sub.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while charging subscription", "panic", r)
			item.Status = ItemStatusError
			item.ErrorMessage = fmt.Sprintf("panic: %v", r)
		}
	}()

	if o.locker != nil {
		token, ok, err := o.locker.Acquire(ctx, sub.ID)
		if err != nil {
			log.Error("failed to acquire charge lock", "error", err)
			item.Status = ItemStatusError
			item.ErrorMessage = err.Error()
			return item
		}
		if !ok {
			log.Info("subscription is being charged elsewhere")
			o.metrics.RecordSkipped(skipLocked)
			item.Status = ItemStatusSkipped
			item.Reason = skipLocked
			return item
		}
		defer func() {
			if err := o.locker.Release(context.WithoutCancel(ctx), sub.ID, token); err != nil {
				log.Warn("failed to release charge lock", "error", err)
			}
		}()

		// the due list may predate another instance's charge
		current, err := o.store.GetSubscription(ctx, sub.ID)
		if err != nil {
			log.Error("failed to reload subscription", "error", err)
			item.Status = ItemStatusError
			item.ErrorMessage = err.Error()
			return item
		}
		if !o.stillDue(sub, current) {
			log.Info("subscription changed since it was selected")
			o.metrics.RecordSkipped(skipStale)
			item.Status = ItemStatusSkipped
			item.Reason = skipStale
			return item
		}
	}

	if reason := o.validator.Validate(ctx, sub); reason != "" {
		o.metrics.RecordSkipped(string(reason))
		item.Status = ItemStatusSkipped
		item.Reason = string(reason)
		return item
	}

	txn, err := o.ledger.CreateTransaction(ctx, ledger.CreateParams{
		SubscriptionItemID: sub.ID,
		UserID:             sub.UserID,
		Amount:             sub.Package.Amount,
		Currency:           sub.Package.Currency,
		PaymentSystem:      o.gateway.Name(),
		PayAccount:         o.payAccount,
		ReturnURL:          models.ReturnURLStub,
	})
	if err != nil {
		log.Error("failed to create pay transaction", "error", err)
		item.Status = ItemStatusError
		item.ErrorMessage = err.Error()
		return item
	}
	item.TransactionID = txn.ID
	log = log.With("transaction_id", txn.ID)

	resp := o.charge(ctx, txn, sub, log)

	switch {
	case resp.IsPending():
		item.Status = ItemStatusPending
		err = o.transitioner.OnPending(ctx, txn, sub, resp)
	case resp.IsSuccess():
		item.Status = ItemStatusSuccess
		err = o.transitioner.OnSuccess(ctx, txn, sub, resp)
	default:
		item.Status = ItemStatusFail
		err = o.transitioner.OnFail(ctx, txn, sub, resp)
	}

	if err != nil {
		var mutationErr *MutationFailedError
		if errors.As(err, &mutationErr) {
			item.MutationFailed = true
			o.metrics.RecordMutationFailure(resp.Outcome.String())
		}
		item.ErrorMessage = err.Error()
		log.Error("failed to apply charge outcome", "outcome", resp.Outcome.String(), "error", err)
		return item
	}

	log.Info("subscription charge processed", "outcome", resp.Outcome.String())
	return item
}

// stillDue reports whether the stored row is the one that was selected and is still chargeable
func (o *Orchestrator) stillDue(selected, current *models.SubscriptionItem) bool {
	return current.Version == selected.Version &&
		current.IsActive &&
		current.IsChargeable &&
		!current.IsChargePending &&
		current.NextChargeDate.Before(o.now())
}

// charge calls the gateway; any transport problem comes back as an Unknown response
func (o *Orchestrator) charge(ctx context.Context, txn *models.PayTransaction, sub *models.SubscriptionItem, log *slog.Logger) *models.ChargeResponse {
	callCtx := ctx
	if o.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.gatewayTimeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := o.gateway.Charge(callCtx, txn, sub.SubscriptionToken())
	if resp == nil {
		resp = &models.ChargeResponse{Outcome: models.OutcomeUnknown, ErrorMessage: "Gateway response is unknown"}
		if err != nil {
			resp.ErrorMessageRaw = err.Error()
		}
	}
	if err != nil {
		log.Warn("gateway charge request failed", "error", err)
	}

	o.metrics.RecordOutcome(resp.Outcome.String(), time.Since(started))
	return resp
}
