package command

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/infrastructure/store"
	"github.com/example/pos-ledger/internal/metrics"
	"github.com/shopspring/decimal"
)

// Ledger is the only writer of Product.CurrentStock. Every call locks the product row,
// writes the new counter, appends one movement and one StockMoved event, all in tx.
type Ledger struct {
	metrics *metrics.Collector
	now     func() time.Time
}

func NewLedger(m *metrics.Collector, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{metrics: m, now: now}
}

func (l *Ledger) Decrement(ctx context.Context, tx store.Tx, productID string, qty int, reason, userID string) (*inventory.Movement, error) {
	return l.Register(ctx, tx, productID, inventory.Request{
		Type: inventory.MovementOut, Quantity: qty, Reason: reason, UserID: userID,
	})
}

// Increment records a purchase; purchaseCost is mandatory.
func (l *Ledger) Increment(ctx context.Context, tx store.Tx, productID string, qty int, reason, userID string, purchaseCost *decimal.Decimal) (*inventory.Movement, error) {
	return l.Register(ctx, tx, productID, inventory.Request{
		Type: inventory.MovementIn, Quantity: qty, Reason: reason, UserID: userID, PurchaseCost: purchaseCost,
	})
}

// Restore puts back stock taken by a sale that is being undone.
func (l *Ledger) Restore(ctx context.Context, tx store.Tx, productID string, qty int, reason, userID string) (*inventory.Movement, error) {
	return l.Register(ctx, tx, productID, inventory.Request{
		Type: inventory.MovementIn, Quantity: qty, Reason: reason, UserID: userID, Compensating: true,
	})
}

// Adjust sets the stock to an absolute value, typically after a physical count.
func (l *Ledger) Adjust(ctx context.Context, tx store.Tx, productID string, newStock int, reason, userID string) (*inventory.Movement, error) {
	return l.Register(ctx, tx, productID, inventory.Request{
		Type: inventory.MovementAdjustment, Quantity: newStock, Reason: reason, UserID: userID,
	})
}

func (l *Ledger) Register(ctx context.Context, tx store.Tx, productID string, req inventory.Request) (*inventory.Movement, error) {
	// validate before taking the row lock
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	m, err := inventory.Apply(p, req, l.now())
	if err != nil {
		if errors.Is(err, apperr.ErrInsufficientStock) {
			l.metrics.InsufficientStock()
			log.Printf("[Ledger] Rejected %s of %d for product %s: stock is %d", req.Type, req.Quantity, productID, p.CurrentStock)
		}
		return nil, err
	}

	if err := tx.SaveProductStock(ctx, p); err != nil {
		return nil, err
	}
	if err := tx.AppendMovement(ctx, m); err != nil {
		return nil, err
	}
	if _, err := tx.AppendEvent(ctx, p.ID, inventory.AggregateType, inventory.EventStockMoved, inventory.NewStockMoved(m, p.MinStock)); err != nil {
		return nil, err
	}
	return m, nil
}
