package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/example/pos-ledger/internal/infrastructure/store"
	"github.com/example/pos-ledger/internal/metrics"
)

const defaultMaxAttempts = 3

type Options struct {
	Metrics *metrics.Collector
	// Location decides the calendar day used in order numbers.
	Location *time.Location
	// MaxAttempts bounds transparent retries of CreateOrder on order number collisions.
	MaxAttempts int
	Clock       func() time.Time
}

// Handler runs the order workflow and manual stock movements. Each method is one transaction.
type Handler struct {
	store       store.Store
	ledger      *Ledger
	numbers     *OrderNumberGenerator
	metrics     *metrics.Collector
	now         func() time.Time
	maxAttempts int
}

func NewHandler(s store.Store, opts Options) *Handler {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Handler{
		store:       s,
		ledger:      NewLedger(opts.Metrics, now),
		numbers:     NewOrderNumberGenerator(opts.Location),
		metrics:     opts.Metrics,
		now:         now,
		maxAttempts: attempts,
	}
}

func saleReason(number string) string   { return "Venta - Orden: " + number }
func cancelReason(number string) string { return "Anulación de venta - Orden: " + number }

// CreateOrder reserves stock for every line and stores a PENDING order.
// An order number collision restarts the whole creation, up to MaxAttempts times.
func (h *Handler) CreateOrder(ctx context.Context, cmd CreateOrder) (*order.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		o, movements, err := h.createOrder(ctx, cmd)
		if err == nil {
			h.recordMovements(movements)
			h.metrics.OrderTransition(string(o.Status))
			log.Printf("[Order] Created %s for customer %s: %d items, total %s",
				o.Number, o.CustomerID, len(o.Items), o.TotalAmount.StringFixed(2))
			return o, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		lastErr = err
		h.metrics.OrderNumberRetry()
		log.Printf("[Order] Order number collision (attempt %d/%d): %v", attempt, h.maxAttempts, err)
	}
	return nil, fmt.Errorf("create order: gave up after %d attempts: %w", h.maxAttempts, lastErr)
}

func (h *Handler) createOrder(ctx context.Context, cmd CreateOrder) (*order.Order, []*inventory.Movement, error) {
	now := h.now()
	var (
		created   *order.Order
		movements []*inventory.Movement
	)

	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, cmd.UserID); err != nil {
			return err
		}
		if _, err := tx.GetCustomer(ctx, cmd.CustomerID); err != nil {
			return err
		}

		products := make(map[string]*product.Product)
		for _, id := range lineProductIDs(cmd.Lines) {
			p, err := tx.LockProduct(ctx, id)
			if err != nil {
				return err
			}
			if !p.IsAvailable {
				return apperr.Validation("items", "product %s is not available", p.Name)
			}
			products[id] = p
		}

		number, err := h.numbers.Next(ctx, tx, now)
		if err != nil {
			return err
		}
		o, err := order.New(number, cmd.CustomerID, cmd.UserID, cmd.PaymentMethod, cmd.Discount, cmd.PaymentNote, now)
		if err != nil {
			return err
		}

		reason := saleReason(number)
		for _, line := range cmd.Lines {
			if p := products[line.ProductID]; line.UnitPrice.GreaterThan(p.Price) {
				log.Printf("[Order] %s: unit price %s for %s is above catalog price %s",
					number, line.UnitPrice.StringFixed(2), p.Name, p.Price.StringFixed(2))
			}

			m, err := h.ledger.Decrement(ctx, tx, line.ProductID, line.Quantity, reason, cmd.UserID)
			if err != nil {
				return err
			}
			movements = append(movements, m)

			item, err := order.NewItem(line.ProductID, line.Quantity, line.UnitPrice)
			if err != nil {
				return err
			}
			o.AddItem(item)
		}

		if err := o.CalculateTotals(); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		_, err = tx.AppendEvent(ctx, o.ID, order.AggregateType, order.EventOrderCreated, order.OrderCreated{
			OrderID:     o.ID,
			OrderNumber: o.Number,
			CustomerID:  o.CustomerID,
			UserID:      o.UserID,
			Lines:       order.Lines(o),
			Total:       o.TotalAmount,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, movements, nil
}

// ConfirmOrder moves a PENDING order to CONFIRMED and marks it PAID. Stock is untouched.
func (h *Handler) ConfirmOrder(ctx context.Context, orderID string) (*order.Order, error) {
	now := h.now()
	var confirmed *order.Order

	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.Confirm(now); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(ctx, o.ID, order.AggregateType, order.EventOrderConfirmed, order.OrderConfirmed{
			OrderID: o.ID, OrderNumber: o.Number, ConfirmedAt: now,
		}); err != nil {
			return err
		}
		confirmed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.metrics.OrderTransition(string(confirmed.Status))
	log.Printf("[Order] Confirmed %s", confirmed.Number)
	return confirmed, nil
}

// CancelOrder returns every line's quantity to stock and marks the order CANCELLED.
// A paid order becomes REFUNDED.
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*order.Order, error) {
	if err := cmd.validateActor(); err != nil {
		return nil, err
	}

	now := h.now()
	var (
		cancelled *order.Order
		movements []*inventory.Movement
	)

	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, cmd.UserID); err != nil {
			return err
		}
		o, err := tx.LockOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if !o.CanBeCancelled() {
			return &apperr.InvalidStatusError{Current: string(o.Status), Action: order.ActionCancel}
		}
		if err := cmd.Validate(); err != nil {
			return err
		}

		items := append([]order.Item(nil), o.Items...)
		sort.SliceStable(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

		reason := cancelReason(o.Number)
		for _, item := range items {
			m, err := h.ledger.Restore(ctx, tx, item.ProductID, item.Quantity, reason, cmd.UserID)
			if err != nil {
				return err
			}
			movements = append(movements, m)
		}

		if err := o.Cancel(cmd.Reason, cmd.UserID, now); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(ctx, o.ID, order.AggregateType, order.EventOrderCancelled, order.OrderCancelled{
			OrderID:       o.ID,
			OrderNumber:   o.Number,
			Reason:        o.CancelReason,
			CancelledBy:   o.CancelledBy,
			PaymentStatus: o.PaymentStatus,
			Lines:         order.Lines(o),
			CancelledAt:   now,
		}); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.recordMovements(movements)
	h.metrics.OrderTransition(string(cancelled.Status))
	log.Printf("[Order] Cancelled %s by %s, payment %s", cancelled.Number, cancelled.CancelledBy, cancelled.PaymentStatus)
	return cancelled, nil
}

func (h *Handler) MarkDelivered(ctx context.Context, orderID string) (*order.Order, error) {
	now := h.now()
	var delivered *order.Order

	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.Deliver(now); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(ctx, o.ID, order.AggregateType, order.EventOrderDelivered, order.OrderDelivered{
			OrderID: o.ID, OrderNumber: o.Number, DeliveredAt: now,
		}); err != nil {
			return err
		}
		delivered = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.metrics.OrderTransition(string(delivered.Status))
	log.Printf("[Order] Delivered %s", delivered.Number)
	return delivered, nil
}

// RegisterMovement records a manual stock entry: a purchase, a write-off or a physical count.
func (h *Handler) RegisterMovement(ctx context.Context, cmd RegisterMovement) (*inventory.Movement, error) {
	if strings.TrimSpace(cmd.ProductID) == "" {
		return nil, apperr.Validation("productId", "is required")
	}
	req := inventory.Request{
		Type:         cmd.Type,
		Quantity:     cmd.Quantity,
		Reason:       cmd.Reason,
		UserID:       cmd.UserID,
		PurchaseCost: cmd.PurchaseCost,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var m *inventory.Movement
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, cmd.UserID); err != nil {
			return err
		}
		var err error
		switch cmd.Type {
		case inventory.MovementIn:
			m, err = h.ledger.Increment(ctx, tx, cmd.ProductID, cmd.Quantity, cmd.Reason, cmd.UserID, cmd.PurchaseCost)
		case inventory.MovementOut:
			m, err = h.ledger.Decrement(ctx, tx, cmd.ProductID, cmd.Quantity, cmd.Reason, cmd.UserID)
		default:
			m, err = h.ledger.Adjust(ctx, tx, cmd.ProductID, cmd.Quantity, cmd.Reason, cmd.UserID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	h.recordMovements([]*inventory.Movement{m})
	log.Printf("[Ledger] %s of %d on product %s by %s, stock now %d", m.Type, m.Quantity, m.ProductID, m.UserID, m.NewStock)
	return m, nil
}

func (h *Handler) recordMovements(movements []*inventory.Movement) {
	for _, m := range movements {
		h.metrics.Movement(string(m.Type))
	}
}

// lineProductIDs returns the distinct product ids in ascending order, the order rows are locked in.
func lineProductIDs(lines []OrderLine) []string {
	seen := make(map[string]bool, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}
	sort.Strings(ids)
	return ids
}
