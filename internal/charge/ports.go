package charge

import (
	"context"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/events"
	"github.com/AnuragDani/subscription-charger/internal/ledger"
	"github.com/AnuragDani/subscription-charger/internal/models"
	"github.com/AnuragDani/subscription-charger/internal/renewal"
)

// SubscriptionStore is the subscription persistence the charge cycle needs
type SubscriptionStore interface {
	GetDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*models.SubscriptionItem, error)
	GetSubscription(ctx context.Context, id string) (*models.SubscriptionItem, error)
	SaveChargeState(ctx context.Context, sub *models.SubscriptionItem) error
	LogCharge(ctx context.Context, entry *models.ChargeLogEntry) error
}

// Ledger records pay transactions
type Ledger interface {
	CreateTransaction(ctx context.Context, p ledger.CreateParams) (*models.PayTransaction, error)
	OnPending(ctx context.Context, txn *models.PayTransaction, bankTxnID, gatewayTxnID string) error
	OnSuccess(ctx context.Context, txn *models.PayTransaction, bankTxnID, gatewayTxnID string) error
	OnFail(ctx context.Context, txn *models.PayTransaction, bankTxnID, gatewayTxnID, errorMsg, errorMsgRaw string) error
}

// Gateway charges a stored subscription token
type Gateway interface {
	Charge(ctx context.Context, txn *models.PayTransaction, subscriptionToken string) (*models.ChargeResponse, error)
	Name() string
}

// Locker grants exclusive charging of one subscription across scheduler instances
type Locker interface {
	Acquire(ctx context.Context, subscriptionID string) (token string, ok bool, err error)
	Release(ctx context.Context, subscriptionID, token string) error
}

// EventDispatcher delivers charge events to listeners
type EventDispatcher interface {
	Dispatch(ctx context.Context, e events.Event)
}

// RenewalResolver finds the renewal effector for a package type
type RenewalResolver interface {
	Get(packageType models.PackageType) (renewal.Effector, error)
}
