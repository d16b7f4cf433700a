package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AnuragDani/subscription-charger/internal/models"
)

var ErrTransactionNotFound = errors.New("pay transaction not found")

// CreateParams describes a new recurring charge transaction
type CreateParams struct {
	SubscriptionItemID string
	UserID             string
	Amount             int64
	Currency           string
	PaymentSystem      string
	PayAccount         string
	ReturnURL          string
}

// PostgresLedger records pay transactions and their final status
type PostgresLedger struct {
	conn *sql.DB
	now  func() time.Time
}

// NewPostgresLedger creates a ledger over an open connection
func NewPostgresLedger(conn *sql.DB) *PostgresLedger {
	return &PostgresLedger{conn: conn, now: time.Now}
}

// CreateTransaction inserts a transaction in the created state
func (l *PostgresLedger) CreateTransaction(ctx context.Context, p CreateParams) (*models.PayTransaction, error) {
	now := l.now().UTC()
	returnURL := p.ReturnURL
	if returnURL == "" {
		returnURL = models.ReturnURLStub
	}

	txn := &models.PayTransaction{
		ID:                 uuid.New().String(),
		SubscriptionItemID: p.SubscriptionItemID,
		UserID:             p.UserID,
		Amount:             p.Amount,
		Currency:           p.Currency,
		PaymentSystem:      p.PaymentSystem,
		PayAccount:         p.PayAccount,
		ReturnURL:          returnURL,
		IdempotencyKey:     uuid.New().String(),
		Status:             models.TransactionStatusCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	query := `
		INSERT INTO pay_transactions (
			id, subscription_item_id, user_id, amount, currency, payment_system,
			pay_account, return_url, idempotency_key, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := l.conn.ExecContext(ctx, query,
		txn.ID, txn.SubscriptionItemID, txn.UserID, txn.Amount, txn.Currency, txn.PaymentSystem,
		txn.PayAccount, txn.ReturnURL, txn.IdempotencyKey, txn.Status, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pay transaction: %w", err)
	}

	return txn, nil
}

// OnPending records that the gateway accepted the charge but has not settled it
func (l *PostgresLedger) OnPending(ctx context.Context, txn *models.PayTransaction, bankTxnID, gatewayTxnID string) error {
	return l.update(ctx, txn, models.TransactionStatusPending, bankTxnID, gatewayTxnID, "", "")
}

// OnSuccess records a settled charge
func (l *PostgresLedger) OnSuccess(ctx context.Context, txn *models.PayTransaction, bankTxnID, gatewayTxnID string) error {
	return l.update(ctx, txn, models.TransactionStatusSuccess, bankTxnID, gatewayTxnID, "", "")
}

// OnFail records a declined or unknown charge with the gateway's error detail
func (l *PostgresLedger) OnFail(ctx context.Context, txn *models.PayTransaction, bankTxnID, gatewayTxnID, errorMsg, errorMsgRaw string) error {
	return l.update(ctx, txn, models.TransactionStatusFail, bankTxnID, gatewayTxnID, errorMsg, errorMsgRaw)
}

func (l *PostgresLedger) update(ctx context.Context, txn *models.PayTransaction, status, bankTxnID, gatewayTxnID, errorMsg, errorMsgRaw string) error {
	now := l.now().UTC()
	query := `
		UPDATE pay_transactions
		SET status = $1,
			bank_transaction_id = NULLIF($2, ''),
			gateway_transaction_id = NULLIF($3, ''),
			error_message = NULLIF($4, ''),
			error_message_raw = NULLIF($5, ''),
			updated_at = $6
		WHERE id = $7`

	result, err := l.conn.ExecContext(ctx, query, status, bankTxnID, gatewayTxnID, errorMsg, errorMsgRaw, now, txn.ID)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %s %s: %w", txn.ID, status, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", txn.ID, ErrTransactionNotFound)
	}

	txn.Status = status
	txn.BankTransactionID = bankTxnID
	txn.GatewayTransactionID = gatewayTxnID
	txn.ErrorMessage = errorMsg
	txn.ErrorMessageRaw = errorMsgRaw
	txn.UpdatedAt = now
	return nil
}

// GetTransaction retrieves a pay transaction by ID
func (l *PostgresLedger) GetTransaction(ctx context.Context, id string) (*models.PayTransaction, error) {
	query := `
		SELECT id, subscription_item_id, user_id, amount, currency, payment_system,
			   pay_account, return_url, idempotency_key, status,
			   COALESCE(bank_transaction_id, ''), COALESCE(gateway_transaction_id, ''),
			   COALESCE(error_message, ''), COALESCE(error_message_raw, ''),
			   created_at, updated_at
		FROM pay_transactions
		WHERE id = $1`

	var txn models.PayTransaction
	err := l.conn.QueryRowContext(ctx, query, id).Scan(
		&txn.ID, &txn.SubscriptionItemID, &txn.UserID, &txn.Amount, &txn.Currency, &txn.PaymentSystem,
		&txn.PayAccount, &txn.ReturnURL, &txn.IdempotencyKey, &txn.Status,
		&txn.BankTransactionID, &txn.GatewayTransactionID,
		&txn.ErrorMessage, &txn.ErrorMessageRaw,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return &txn, nil
}
