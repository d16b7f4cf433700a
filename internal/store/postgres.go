package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/models"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription item not found")
	// ErrConcurrentUpdate means the row changed since it was read
	ErrConcurrentUpdate = errors.New("subscription item was modified concurrently")
)

// PostgresStore reads and writes subscription billing state
type PostgresStore struct {
	conn *sql.DB
}

// NewPostgresStore creates a store over an open connection
func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{conn: conn}
}

const selectSubscription = `
	SELECT s.id, s.user_id, s.is_active, s.is_chargeable, s.is_charge_pending,
		   s.charge_pay_transaction_id, s.next_charge_date, s.date_ending,
		   s.charge_attempt_count, s.quota_balance, s.version,
		   p.id, p.name, p.type, p.amount, p.currency, p.period_days, p.quota,
		   pi.id, pi.subscription_token_id
	FROM subscription_items s
	JOIN subscription_packages p ON p.id = s.package_id
	LEFT JOIN payment_infos pi ON pi.id = s.payment_info_id`

// GetDueSubscriptions retrieves subscriptions whose next charge date has passed.
// Items with a charge in flight are excluded so they are never charged twice, including
// those whose pending flag was not persisted but whose transaction is pending in the ledger.
func (s *PostgresStore) GetDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*models.SubscriptionItem, error) {
	query := selectSubscription + `
		WHERE s.next_charge_date < $1
		  AND s.is_active = true
		  AND s.is_chargeable = true
		  AND s.is_charge_pending = false
		  AND NOT EXISTS (
			SELECT 1 FROM pay_transactions t
			WHERE t.subscription_item_id = s.id AND t.status = 'pending'
		  )
		ORDER BY s.next_charge_date ASC
		LIMIT $2`

	rows, err := s.conn.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due subscriptions: %w", err)
	}
	defer rows.Close()

	var subscriptions []*models.SubscriptionItem
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subscriptions = append(subscriptions, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due subscriptions: %w", err)
	}

	return subscriptions, nil
}

// GetSubscription retrieves a subscription item by ID
func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*models.SubscriptionItem, error) {
	row := s.conn.QueryRowContext(ctx, selectSubscription+` WHERE s.id = $1`, id)

	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	return sub, nil
}

// SaveChargeState persists the billing fields of a subscription item.
// The write only applies if the stored version still matches; on success sub.Version is advanced.
func (s *PostgresStore) SaveChargeState(ctx context.Context, sub *models.SubscriptionItem) error {
	query := `
		UPDATE subscription_items
		SET is_active = $1,
			is_chargeable = $2,
			is_charge_pending = $3,
			charge_pay_transaction_id = $4,
			next_charge_date = $5,
			date_ending = $6,
			charge_attempt_count = $7,
			quota_balance = $8,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $9 AND version = $10`

	var pendingTxn sql.NullString
	if sub.ChargePayTransactionID != nil {
		pendingTxn = sql.NullString{String: *sub.ChargePayTransactionID, Valid: true}
	}

	result, err := s.conn.ExecContext(ctx, query,
		sub.IsActive, sub.IsChargeable, sub.IsChargePending, pendingTxn,
		sub.NextChargeDate, sub.DateEnding, sub.ChargeAttemptCount, sub.QuotaBalance,
		sub.ID, sub.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", sub.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("subscription %s at version %d: %w", sub.ID, sub.Version, ErrConcurrentUpdate)
	}

	sub.Version++
	return nil
}

// LogCharge appends a charge outcome to the subscription item log
func (s *PostgresStore) LogCharge(ctx context.Context, entry *models.ChargeLogEntry) error {
	query := `
		INSERT INTO subscription_item_logs (subscription_item_id, pay_transaction_id, action)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.conn.QueryRowContext(ctx, query, entry.SubscriptionItemID, entry.PayTransactionID, entry.Action).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log charge: %w", err)
	}
	return nil
}

// ListChargeLog returns the most recent log entries for a subscription item
func (s *PostgresStore) ListChargeLog(ctx context.Context, subscriptionItemID string, limit int) ([]models.ChargeLogEntry, error) {
	query := `
		SELECT id, subscription_item_id, pay_transaction_id, action, created_at
		FROM subscription_item_logs
		WHERE subscription_item_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.conn.QueryContext(ctx, query, subscriptionItemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list charge log: %w", err)
	}
	defer rows.Close()

	entries := []models.ChargeLogEntry{}
	for rows.Next() {
		var e models.ChargeLogEntry
		if err := rows.Scan(&e.ID, &e.SubscriptionItemID, &e.PayTransactionID, &e.Action, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan charge log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row scanner) (*models.SubscriptionItem, error) {
	var sub models.SubscriptionItem
	var pendingTxn, paymentInfoID, tokenID sql.NullString
	var packageType string

	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.IsActive, &sub.IsChargeable, &sub.IsChargePending,
		&pendingTxn, &sub.NextChargeDate, &sub.DateEnding,
		&sub.ChargeAttemptCount, &sub.QuotaBalance, &sub.Version,
		&sub.Package.ID, &sub.Package.Name, &packageType, &sub.Package.Amount,
		&sub.Package.Currency, &sub.Package.PeriodDays, &sub.Package.Quota,
		&paymentInfoID, &tokenID,
	)
	if err != nil {
		return nil, err
	}

	sub.Package.Type = models.PackageType(packageType)
	if pendingTxn.Valid {
		id := pendingTxn.String
		sub.ChargePayTransactionID = &id
	}
	if paymentInfoID.Valid {
		sub.PaymentInfo = &models.PaymentInfo{
			ID:                  paymentInfoID.String,
			SubscriptionTokenID: tokenID.String,
		}
	}

	return &sub, nil
}
