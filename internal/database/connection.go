// internal/database/connection.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	Conn *sql.DB
}

// Connect establishes a connection to PostgreSQL database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.Conn != nil {
		return db.Conn.Close()
	}
	return nil
}

// Ping tests the database connection
func (db *DB) Ping(ctx context.Context) error {
	if db.Conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.Conn.PingContext(ctx)
}

// Health returns the health status of the database connection
func (db *DB) Health(ctx context.Context) map[string]interface{} {
	if db.Conn == nil {
		return map[string]interface{}{"status": "unhealthy", "error": "database connection is nil"}
	}
	stats := db.Conn.Stats()

	health := map[string]interface{}{
		"status":           "healthy",
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"max_open_conns":   stats.MaxOpenConnections,
	}

	if err := db.Ping(ctx); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
	}

	return health
}

// EnsureSchema creates the billing tables if they don't exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Conn.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create billing schema: %w", err)
	}
	return nil
}

// Schema is the DDL for the tables the charge cycle reads and writes
const Schema = `
	CREATE TABLE IF NOT EXISTS subscription_packages (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(20) NOT NULL,
		amount BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		period_days INT NOT NULL DEFAULT 30,
		quota INT NOT NULL DEFAULT 0,
		CONSTRAINT valid_package_type CHECK (type IN ('period', 'quota'))
	);

	CREATE TABLE IF NOT EXISTS payment_infos (
		id VARCHAR(64) PRIMARY KEY,
		subscription_token_id VARCHAR(255)
	);

	CREATE TABLE IF NOT EXISTS subscription_items (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		package_id VARCHAR(64) NOT NULL REFERENCES subscription_packages(id),
		payment_info_id VARCHAR(64) REFERENCES payment_infos(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_chargeable BOOLEAN NOT NULL DEFAULT TRUE,
		is_charge_pending BOOLEAN NOT NULL DEFAULT FALSE,
		charge_pay_transaction_id VARCHAR(64),
		next_charge_date TIMESTAMPTZ NOT NULL,
		date_ending TIMESTAMPTZ NOT NULL,
		charge_attempt_count INT NOT NULL DEFAULT 0,
		quota_balance INT NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT pending_has_transaction CHECK (NOT is_charge_pending OR charge_pay_transaction_id IS NOT NULL)
	);

	CREATE INDEX IF NOT EXISTS idx_subscription_items_due ON subscription_items(next_charge_date)
		WHERE is_active AND is_chargeable AND NOT is_charge_pending;

	CREATE TABLE IF NOT EXISTS pay_transactions (
		id VARCHAR(64) PRIMARY KEY,
		subscription_item_id VARCHAR(64) NOT NULL REFERENCES subscription_items(id),
		user_id VARCHAR(64) NOT NULL,
		amount BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		payment_system VARCHAR(100) NOT NULL,
		pay_account VARCHAR(100) NOT NULL,
		return_url VARCHAR(255) NOT NULL,
		idempotency_key VARCHAR(64) NOT NULL UNIQUE,
		status VARCHAR(20) NOT NULL DEFAULT 'created',
		bank_transaction_id VARCHAR(255),
		gateway_transaction_id VARCHAR(255),
		error_message TEXT,
		error_message_raw TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT valid_transaction_status CHECK (status IN ('created', 'pending', 'success', 'fail'))
	);

	CREATE INDEX IF NOT EXISTS idx_pay_transactions_subscription ON pay_transactions(subscription_item_id);

	CREATE TABLE IF NOT EXISTS subscription_item_logs (
		id BIGSERIAL PRIMARY KEY,
		subscription_item_id VARCHAR(64) NOT NULL REFERENCES subscription_items(id),
		pay_transaction_id VARCHAR(64) NOT NULL,
		action VARCHAR(50) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_subscription_item_logs_item ON subscription_item_logs(subscription_item_id);
`
