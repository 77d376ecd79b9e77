package query

import (
	"context"
	"errors"
	"log"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/example/pos-ledger/internal/infrastructure/store"
)

// Reader is the read half of store.Store.
type Reader interface {
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*order.Order, error)
	ListOrders(ctx context.Context, filter store.OrderFilter) ([]*order.Order, error)
	GetProduct(ctx context.Context, id string) (*product.Product, error)
	GetMovement(ctx context.Context, id string) (*inventory.Movement, error)
	ListMovements(ctx context.Context, filter store.MovementFilter) ([]*inventory.Movement, error)
}

// MaxPageSize caps the limit of a list request.
const MaxPageSize = 200

func validatePage(p store.Page) error {
	if p.Limit < 0 || p.Limit > MaxPageSize {
		return apperr.Validation("limit", "must be between 1 and %d", MaxPageSize)
	}
	if p.Offset < 0 {
		return apperr.Validation("offset", "cannot be negative")
	}
	return nil
}

type Handler struct {
	reader Reader
}

func NewHandler(reader Reader) *Handler {
	return &Handler{reader: reader}
}

// Orders
func (h *Handler) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return h.reader.GetOrder(ctx, id)
}

func (h *Handler) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	if !order.ValidNumber(number) {
		return nil, apperr.Validation("orderNumber", "%q is not an order number", number)
	}
	return h.reader.GetOrderByNumber(ctx, number)
}

// ListOrders returns one page of matching orders, newest first.
func (h *Handler) ListOrders(ctx context.Context, filter store.OrderFilter) ([]*order.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation("status", "unknown status %q", filter.Status)
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, apperr.Validation("paymentStatus", "unknown payment status %q", filter.PaymentStatus)
	}
	if filter.PaymentMethod != "" && !filter.PaymentMethod.Valid() {
		return nil, apperr.Validation("paymentMethod", "unknown payment method %q", filter.PaymentMethod)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, apperr.Validation("to", "must not be before from")
	}
	if err := validatePage(filter.Page); err != nil {
		return nil, err
	}

	orders, err := h.reader.ListOrders(ctx, filter)
	if err != nil {
		log.Printf("[Query] Error listing orders: %v", err)
		return nil, err
	}
	return orders, nil
}

// Products
func (h *Handler) GetProduct(ctx context.Context, id string) (*ProductStock, error) {
	p, err := h.reader.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProductStock{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		CurrentStock: p.CurrentStock,
		MinStock:     p.MinStock,
		IsAvailable:  p.IsAvailable,
		LowStock:     p.HasLowStock(),
		UpdatedAt:    p.UpdatedAt,
	}, nil
}

// Inventory
func (h *Handler) GetMovement(ctx context.Context, id string) (*inventory.Movement, error) {
	return h.reader.GetMovement(ctx, id)
}

// ListMovements returns matching movements in the order they were appended.
func (h *Handler) ListMovements(ctx context.Context, filter store.MovementFilter) ([]*inventory.Movement, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperr.Validation("movementType", "unknown movement type %q", filter.Type)
	}
	if err := validatePage(filter.Page); err != nil {
		return nil, err
	}
	movements, err := h.reader.ListMovements(ctx, filter)
	if err != nil {
		log.Printf("[Query] Error listing movements: %v", err)
		return nil, err
	}
	return movements, nil
}

// VerifyLedger replays every movement of a product and compares the result with the stored counter.
// Drift is reported in the result, not as an error.
func (h *Handler) VerifyLedger(ctx context.Context, productID string) (*LedgerReport, error) {
	p, err := h.reader.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	movements, err := h.reader.ListMovements(ctx, store.MovementFilter{ProductID: productID})
	if err != nil {
		return nil, err
	}

	report := &LedgerReport{
		ProductID:        productID,
		StoredStock:      p.CurrentStock,
		ReplayedStock:    inventory.Replay(movements),
		Movements:        len(movements),
		Consistent:       true,
		FirstBadSnapshot: -1,
	}

	var drift *inventory.DriftError
	if err := inventory.Verify(productID, p.CurrentStock, movements); errors.As(err, &drift) {
		report.Consistent = false
		report.FirstBadSnapshot = drift.FirstBadSnapshot
		log.Printf("[Query] %v", drift)
	}
	return report, nil
}
