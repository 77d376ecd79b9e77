package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

// ============================================
// Transaction paths
// ============================================

func TestPostgresStore_NextOrderSequence(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO order_sequences (day, last_value) VALUES ($1, 1)")).
		WithArgs("20260314").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(3))
	mock.ExpectCommit()

	var seq int
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		seq, err = tx.NextOrderSequence(ctx, "20260314")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 3, seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LockProductNotFoundRollsBack(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.LockProduct(ctx, "missing")
		return err
	})

	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LockProduct(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT " + productColumns + " FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "current_stock", "min_stock", "is_available", "version", "created_at", "updated_at"}).
			AddRow("p-1", "Cafe", "20.00", 10, 5, true, 4, testNow, testNow))
	mock.ExpectCommit()

	var p *product.Product
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		p, err = tx.LockProduct(ctx, "p-1")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 10, p.CurrentStock)
	assert.Equal(t, 4, p.Version)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(20)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveProductStockVersionMismatch(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE products SET current_stock = $2, version = $3, updated_at = $4 WHERE id = $1 AND version = $5")).
		WithArgs("p-1", 7, 3, sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.SaveProductStock(ctx, &product.Product{ID: "p-1", CurrentStock: 7, Version: 3, UpdatedAt: testNow})
	})

	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertOrderUniqueViolation(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	o := newStoredOrder(t, "ORD-20260314-0001", testNow)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO orders")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertOrder(ctx, o)
	})

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "ORD-20260314-0001", conflict.Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertOrderWithItems(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	o := newStoredOrder(t, "ORD-20260314-0001", testNow)
	item, err := order.NewItem("p-1", 2, decimal.NewFromInt(5))
	require.NoError(t, err)
	o.AddItem(item)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO orders")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO order_items")).
		WithArgs(item.ID, o.ID, "p-1", 2, sqlmock.AnyArg(), sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertOrder(ctx, o)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendMovementPassesCost(t *testing.T) {
	s, mock := newTestPostgresStore(t)
	cost := decimal.RequireFromString("12.50")

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO inventory_movements")).
		WithArgs("m-1", "p-1", "IN", 5, "compra", "u-1", 15, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.AppendMovement(ctx, &inventory.Movement{
			ID: "m-1", ProductID: "p-1", Type: inventory.MovementIn, Quantity: 5,
			Reason: "compra", UserID: "u-1", NewStock: 15, PurchaseCost: &cost, CreatedAt: testNow,
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendEventVersion(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1")).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectExec(q("INSERT INTO events")).
		WithArgs(sqlmock.AnyArg(), "o-1", order.AggregateType, order.EventOrderConfirmed, sqlmock.AnyArg(), 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var event *Event
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		event, err = tx.AppendEvent(ctx, "o-1", order.AggregateType, order.EventOrderConfirmed, order.OrderConfirmed{OrderID: "o-1"})
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 3, event.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// Reads
// ============================================

func TestPostgresStore_ListMovementsFilters(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	rows := sqlmock.NewRows([]string{"id", "product_id", "movement_type", "quantity", "reason", "user_id", "new_stock", "purchase_cost", "created_at"}).
		AddRow("m-1", "p-1", "OUT", 3, "Venta - Orden: ORD-20260314-0001", "u-1", 7, nil, testNow).
		AddRow("m-2", "p-1", "OUT", 2, "Venta - Orden: ORD-20260314-0002", "u-1", 5, nil, testNow)
	mock.ExpectQuery(q("FROM inventory_movements WHERE product_id = $1 AND movement_type = $2 ORDER BY seq ASC")).
		WithArgs("p-1", "OUT").
		WillReturnRows(rows)

	movements, err := s.ListMovements(context.Background(), MovementFilter{ProductID: "p-1", Type: inventory.MovementOut})

	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, inventory.MovementOut, movements[0].Type)
	assert.Nil(t, movements[0].PurchaseCost)
	assert.Equal(t, 5, movements[1].NewStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMovementWithCost(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectQuery(q("FROM inventory_movements WHERE id = $1")).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "movement_type", "quantity", "reason", "user_id", "new_stock", "purchase_cost", "created_at"}).
			AddRow("m-1", "p-1", "IN", 5, "compra", "u-1", 15, "12.50", testNow))

	m, err := s.GetMovement(context.Background(), "m-1")

	require.NoError(t, err)
	require.NotNil(t, m.PurchaseCost)
	assert.True(t, m.PurchaseCost.Equal(decimal.RequireFromString("12.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListOrdersBuildsFilter(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectQuery(q("FROM orders WHERE status = $1 AND order_number ILIKE '%' || $2 || '%' ORDER BY order_date DESC, order_number DESC")).
		WithArgs("CONFIRMED", "0314").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	orders, err := s.ListOrders(context.Background(), OrderFilter{Status: order.StatusConfirmed, NumberLike: "0314"})

	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListOrdersPaged(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectQuery(q("FROM orders WHERE status = $1 ORDER BY order_date DESC, order_number DESC LIMIT $2 OFFSET $3")).
		WithArgs("PENDING", 20, 40).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	orders, err := s.ListOrders(context.Background(), OrderFilter{Status: order.StatusPending, Page: Page{Limit: 20, Offset: 40}})

	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMovementsLimitOnly(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectQuery(q("FROM inventory_movements WHERE product_id = $1 ORDER BY seq ASC LIMIT $2")).
		WithArgs("p-1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "movement_type", "quantity", "reason", "user_id", "new_stock", "purchase_cost", "created_at"}))

	movements, err := s.ListMovements(context.Background(), MovementFilter{ProductID: "p-1", Page: Page{Limit: 10}})

	require.NoError(t, err)
	assert.Empty(t, movements)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOrderLoadsItems(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	orderRows := sqlmock.NewRows([]string{
		"id", "order_number", "customer_id", "user_id", "status", "subtotal", "discount_amount", "total_amount",
		"payment_method", "payment_status", "payment_note", "order_date", "delivered_date", "cancelled_date",
		"cancel_reason", "cancelled_by", "created_at", "updated_at",
	}).AddRow("o-1", "ORD-20260314-0001", "c-1", "u-1", "CANCELLED", "30.00", "5.00", "25.00",
		"CARD", "REFUNDED", "", testNow, nil, testNow, "cliente desistio", "u-2", testNow, testNow)
	mock.ExpectQuery(q("FROM orders WHERE id = $1")).WithArgs("o-1").WillReturnRows(orderRows)
	mock.ExpectQuery(q("FROM order_items WHERE order_id = $1 ORDER BY line_no ASC")).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "unit_price", "item_total"}).
			AddRow("i-1", "o-1", "p-1", 3, "10.00", "30.00"))

	o, err := s.GetOrder(context.Background(), "o-1")

	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Equal(t, order.PaymentRefunded, o.PaymentStatus)
	assert.Nil(t, o.DeliveredDate)
	require.NotNil(t, o.CancelledDate)
	assert.Equal(t, "cliente desistio", o.CancelReason)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(25)))
	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkEventSent(t *testing.T) {
	s, mock := newTestPostgresStore(t)

	mock.ExpectExec(q("UPDATE events SET sent_at = NOW() WHERE id = $1")).
		WithArgs("e-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkEventSent(context.Background(), "e-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
