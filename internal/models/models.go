// internal/models/models.go
package models

import (
	"time"
)

// PackageType selects the renewal behaviour applied after a successful charge
type PackageType string

const (
	PackageTypePeriod PackageType = "period"
	PackageTypeQuota  PackageType = "quota"
)

// SubscriptionPackage represents the product a subscription item renews
type SubscriptionPackage struct {
	ID         string      `json:"id" db:"id"`
	Name       string      `json:"name" db:"name"`
	Type       PackageType `json:"type" db:"type"`
	Amount     int64       `json:"amount" db:"amount"` // in minor units
	Currency   string      `json:"currency" db:"currency"`
	PeriodDays int         `json:"period_days" db:"period_days"`
	Quota      int         `json:"quota,omitempty" db:"quota"`
}

// PaymentInfo holds the stored gateway token used for recurring charges
type PaymentInfo struct {
	ID                  string `json:"id" db:"id"`
	SubscriptionTokenID string `json:"subscription_token_id,omitempty" db:"subscription_token_id"`
}

// SubscriptionItem represents one subscriber's recurring billing line
type SubscriptionItem struct {
	ID                     string              `json:"id" db:"id"`
	UserID                 string              `json:"user_id" db:"user_id"`
	IsActive               bool                `json:"is_active" db:"is_active"`
	IsChargeable           bool                `json:"is_chargeable" db:"is_chargeable"`
	IsChargePending        bool                `json:"is_charge_pending" db:"is_charge_pending"`
	NextChargeDate         time.Time           `json:"next_charge_date" db:"next_charge_date"`
	DateEnding             time.Time           `json:"date_ending" db:"date_ending"`
	ChargeAttemptCount     int                 `json:"charge_attempt_count" db:"charge_attempt_count"`
	PaymentInfo            *PaymentInfo        `json:"payment_info,omitempty"`
	Package                SubscriptionPackage `json:"package"`
	ChargePayTransactionID *string             `json:"charge_pay_transaction_id,omitempty" db:"charge_pay_transaction_id"`
	QuotaBalance           int                 `json:"quota_balance" db:"quota_balance"`
	Version                int64               `json:"version" db:"version"`
}

// SubscriptionToken returns the stored gateway token, or "" when none is on file
func (s *SubscriptionItem) SubscriptionToken() string {
	if s.PaymentInfo == nil {
		return ""
	}
	return s.PaymentInfo.SubscriptionTokenID
}

// IncrementChargeAttempt records one more failed charge attempt
func (s *SubscriptionItem) IncrementChargeAttempt() {
	s.ChargeAttemptCount++
}

// MarkChargePending links the in-flight transaction to the subscription
func (s *SubscriptionItem) MarkChargePending(transactionID string) {
	id := transactionID
	s.IsChargePending = true
	s.ChargePayTransactionID = &id
}

// ClearChargePending unlinks any in-flight transaction
func (s *SubscriptionItem) ClearChargePending() {
	s.IsChargePending = false
	s.ChargePayTransactionID = nil
}

// Clone returns a deep copy so callers can roll back in-memory changes
func (s *SubscriptionItem) Clone() *SubscriptionItem {
	c := *s
	if s.PaymentInfo != nil {
		pi := *s.PaymentInfo
		c.PaymentInfo = &pi
	}
	if s.ChargePayTransactionID != nil {
		id := *s.ChargePayTransactionID
		c.ChargePayTransactionID = &id
	}
	return &c
}

// PayTransaction represents one charge attempt against the gateway
type PayTransaction struct {
	ID                   string    `json:"id" db:"id"`
	SubscriptionItemID   string    `json:"subscription_item_id" db:"subscription_item_id"`
	UserID               string    `json:"user_id" db:"user_id"`
	Amount               int64     `json:"amount" db:"amount"`
	Currency             string    `json:"currency" db:"currency"`
	PaymentSystem        string    `json:"payment_system" db:"payment_system"`
	PayAccount           string    `json:"pay_account" db:"pay_account"`
	ReturnURL            string    `json:"return_url" db:"return_url"`
	IdempotencyKey       string    `json:"idempotency_key" db:"idempotency_key"`
	Status               string    `json:"status" db:"status"`
	BankTransactionID    string    `json:"bank_transaction_id,omitempty" db:"bank_transaction_id"`
	GatewayTransactionID string    `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	ErrorMessage         string    `json:"error_message,omitempty" db:"error_message"`
	ErrorMessageRaw      string    `json:"error_message_raw,omitempty" db:"error_message_raw"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// Outcome classifies one gateway call
type Outcome int

const (
	// OutcomeUnknown is the zero value so an unset response is never read as success.
	OutcomeUnknown Outcome = iota
	OutcomePending
	OutcomeSuccess
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ChargeResponse is the classified result of one gateway charge call
type ChargeResponse struct {
	Outcome              Outcome `json:"outcome"`
	BankTransactionID    string  `json:"bank_transaction_id,omitempty"`
	GatewayTransactionID string  `json:"gateway_transaction_id,omitempty"`
	ErrorMessage         string  `json:"error_message,omitempty"`
	ErrorMessageRaw      string  `json:"error_message_raw,omitempty"`
}

func (r *ChargeResponse) IsPending() bool { return r != nil && r.Outcome == OutcomePending }
func (r *ChargeResponse) IsSuccess() bool { return r != nil && r.Outcome == OutcomeSuccess }
func (r *ChargeResponse) IsFail() bool    { return r != nil && r.Outcome == OutcomeFail }
func (r *ChargeResponse) IsUnknown() bool { return r == nil || r.Outcome == OutcomeUnknown }

// ChargeLogEntry is an audit row written for every charge outcome
type ChargeLogEntry struct {
	ID                 int64     `json:"id" db:"id"`
	SubscriptionItemID string    `json:"subscription_item_id" db:"subscription_item_id"`
	PayTransactionID   string    `json:"pay_transaction_id" db:"pay_transaction_id"`
	Action             string    `json:"action" db:"action"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Constants for model values
const (
	// Transaction statuses
	TransactionStatusCreated = "created"
	TransactionStatusPending = "pending"
	TransactionStatusSuccess = "success"
	TransactionStatusFail    = "fail"

	// Charge log actions
	ChargeActionPendingCreated = "charge_pending_created"
	ChargeActionSuccess        = "charge_success"
	ChargeActionFail           = "charge_fail"

	// ReturnURLStub is stored on recurring transactions, which never redirect a user
	ReturnURLStub = "/"
)
