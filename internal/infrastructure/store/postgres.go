package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate creates the tables the store needs if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		price         NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		current_stock INTEGER NOT NULL CHECK (current_stock >= 0),
		min_stock     INTEGER NOT NULL DEFAULT 5,
		is_available  BOOLEAN NOT NULL DEFAULT TRUE,
		version       INTEGER NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL,
		role          TEXT NOT NULL,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              TEXT PRIMARY KEY,
		order_number    TEXT NOT NULL UNIQUE,
		customer_id     TEXT NOT NULL REFERENCES customers(id),
		user_id         TEXT NOT NULL REFERENCES users(id),
		status          TEXT NOT NULL,
		subtotal        NUMERIC(12,2) NOT NULL,
		discount_amount NUMERIC(12,2) NOT NULL,
		total_amount    NUMERIC(12,2) NOT NULL,
		payment_method  TEXT NOT NULL,
		payment_status  TEXT NOT NULL,
		payment_note    TEXT NOT NULL DEFAULT '',
		order_date      TIMESTAMPTZ NOT NULL,
		delivered_date  TIMESTAMPTZ,
		cancelled_date  TIMESTAMPTZ,
		cancel_reason   TEXT,
		cancelled_by    TEXT,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		CHECK (discount_amount <= subtotal)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id         TEXT PRIMARY KEY,
		order_id   TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity   INTEGER NOT NULL CHECK (quantity >= 1),
		unit_price NUMERIC(12,2) NOT NULL,
		item_total NUMERIC(12,2) NOT NULL,
		line_no    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_movements (
		seq           BIGSERIAL,
		id            TEXT PRIMARY KEY,
		product_id    TEXT NOT NULL REFERENCES products(id),
		movement_type TEXT NOT NULL,
		quantity      INTEGER NOT NULL,
		reason        VARCHAR(255) NOT NULL DEFAULT '',
		user_id       TEXT NOT NULL,
		new_stock     INTEGER NOT NULL CHECK (new_stock >= 0),
		purchase_cost NUMERIC(12,2),
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_product ON inventory_movements (product_id, seq)`,
	`CREATE TABLE IF NOT EXISTS order_sequences (
		day        TEXT PRIMARY KEY,
		last_value INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		seq            BIGSERIAL,
		id             TEXT PRIMARY KEY,
		aggregate_id   TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		data           JSONB NOT NULL,
		version        INTEGER NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		sent_at        TIMESTAMPTZ,
		UNIQUE (aggregate_id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_pending ON events (seq) WHERE sent_at IS NULL`,
}
