package store

import (
	"context"
	"time"

	"github.com/example/pos-ledger/internal/domain/customer"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/example/pos-ledger/internal/domain/user"
)

// Tx is one unit of work. Everything written through it commits together or not at all.
//
// Locks taken by LockOrder, LockProduct and NextOrderSequence are held until the
// transaction ends. Callers take them in the order: order, products by ascending id, day sequence.
type Tx interface {
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetCustomer(ctx context.Context, id string) (*customer.Customer, error)

	LockProduct(ctx context.Context, id string) (*product.Product, error)
	SaveProductStock(ctx context.Context, p *product.Product) error
	AppendMovement(ctx context.Context, m *inventory.Movement) error

	NextOrderSequence(ctx context.Context, day string) (int, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	InsertOrder(ctx context.Context, o *order.Order) error
	LockOrder(ctx context.Context, id string) (*order.Order, error)
	UpdateOrder(ctx context.Context, o *order.Order) error

	AppendEvent(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
}

// Outbox exposes events that still have to be relayed downstream.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkEventSent(ctx context.Context, id string) error
}

type Store interface {
	Outbox

	// WithinTx runs fn in a transaction. A non-nil error from fn rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id string) (*order.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*order.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*order.Order, error)

	GetProduct(ctx context.Context, id string) (*product.Product, error)
	GetMovement(ctx context.Context, id string) (*inventory.Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]*inventory.Movement, error)

	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
}

// Page bounds a list result. A zero Limit returns every match from Offset on.
type Page struct {
	Limit  int
	Offset int
}

func paginate[T any](items []T, p Page) []T {
	if p.Offset > 0 {
		if p.Offset >= len(items) {
			return items[:0]
		}
		items = items[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}

// OrderFilter narrows ListOrders. Zero fields do not filter.
type OrderFilter struct {
	Page
	Status        order.Status
	PaymentStatus order.PaymentStatus
	PaymentMethod order.PaymentMethod
	CustomerID    string
	NumberLike    string
	From          time.Time
	To            time.Time
}

func (f OrderFilter) Match(o *order.Order) bool {
	switch {
	case f.Status != "" && o.Status != f.Status:
		return false
	case f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus:
		return false
	case f.PaymentMethod != "" && o.PaymentMethod != f.PaymentMethod:
		return false
	case f.CustomerID != "" && o.CustomerID != f.CustomerID:
		return false
	case f.NumberLike != "" && !containsFold(o.Number, f.NumberLike):
		return false
	case !f.From.IsZero() && o.OrderDate.Before(f.From):
		return false
	case !f.To.IsZero() && o.OrderDate.After(f.To):
		return false
	}
	return true
}

// MovementFilter narrows ListMovements. Zero fields do not filter.
type MovementFilter struct {
	Page
	ProductID string
	Type      inventory.MovementType
	UserID    string
}

func (f MovementFilter) Match(m *inventory.Movement) bool {
	switch {
	case f.ProductID != "" && m.ProductID != f.ProductID:
		return false
	case f.Type != "" && m.Type != f.Type:
		return false
	case f.UserID != "" && m.UserID != f.UserID:
		return false
	}
	return true
}
