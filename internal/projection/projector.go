package projection

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/example/pos-ledger/internal/infrastructure/store"
	"github.com/example/pos-ledger/internal/readmodel"
)

type Projector struct {
	readStore *readmodel.Store
	onStock   []func(readmodel.StockLevel)
}

func NewProjector(readStore *readmodel.Store) *Projector {
	return &Projector{readStore: readStore}
}

// OnStockChange registers fn to be called with every stock level the projector writes.
// Register before consuming starts.
func (p *Projector) OnStockChange(fn func(readmodel.StockLevel)) {
	p.onStock = append(p.onStock, fn)
}

// HandleEvent applies one relayed outbox event. Events already applied for their aggregate are skipped,
// which makes redelivery harmless.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}

	log.Printf("[Projector] Received event: %s (aggregate: %s v%d)", event.EventType, event.AggregateType, event.Version)

	switch event.AggregateType {
	case inventory.AggregateType:
		return p.handleInventoryEvent(event)
	case order.AggregateType:
		return p.handleOrderEvent(event)
	}

	return nil
}

func (p *Projector) advance(event store.Event) bool {
	if last := p.readStore.Version(event.AggregateID); event.Version > last+1 && last > 0 {
		log.Printf("[Projector] Gap for %s: had v%d, got v%d", event.AggregateID, last, event.Version)
	}
	if !p.readStore.Advance(event.AggregateID, event.Version) {
		log.Printf("[Projector] Skipping %s v%d for %s: already applied", event.EventType, event.Version, event.AggregateID)
		return false
	}
	return true
}

func (p *Projector) handleInventoryEvent(event store.Event) error {
	if event.EventType != inventory.EventStockMoved {
		return nil
	}

	var e inventory.StockMoved
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	if !p.advance(event) {
		return nil
	}

	sl, ok := p.readStore.Stock(e.ProductID)
	if !ok {
		sl = &readmodel.StockLevel{ProductID: e.ProductID}
	}

	sl.Replayed = inventory.Next(sl.Replayed, e.MovementType, e.Quantity)
	sl.CurrentStock = e.NewStock
	sl.MinStock = e.MinStock
	sl.Consistent = sl.Replayed == e.NewStock
	sl.LowStock = (&product.Product{CurrentStock: e.NewStock, MinStock: e.MinStock}).HasLowStock()
	sl.Movements++
	switch e.MovementType {
	case inventory.MovementIn:
		sl.TotalIn += e.Quantity
	case inventory.MovementOut:
		sl.TotalOut += e.Quantity
	case inventory.MovementAdjustment:
		sl.Adjustments++
	}
	sl.LastMovement = e.MovementID
	sl.LastReason = e.Reason
	sl.LastMovedBy = e.UserID
	sl.UpdatedAt = e.MovedAt

	if !sl.Consistent {
		log.Printf("[Projector] Product %s: ledger replay gives %d, movement recorded %d", e.ProductID, sl.Replayed, e.NewStock)
	}
	if sl.LowStock {
		log.Printf("[Projector] Low stock alert: product %s at %d (min %d)", e.ProductID, e.NewStock, e.MinStock)
	}

	p.readStore.PutStock(sl)
	for _, fn := range p.onStock {
		fn(*sl)
	}
	return nil
}

func (p *Projector) handleOrderEvent(event store.Event) error {
	switch event.EventType {
	case order.EventOrderCreated:
		var e order.OrderCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if !p.advance(event) {
			return nil
		}
		units := 0
		for _, line := range e.Lines {
			units += line.Quantity
		}
		p.readStore.PutOrder(&readmodel.OrderView{
			ID:            e.OrderID,
			Number:        e.OrderNumber,
			CustomerID:    e.CustomerID,
			UserID:        e.UserID,
			Status:        string(order.StatusPending),
			PaymentStatus: string(order.PaymentPending),
			Units:         units,
			Total:         e.Total,
			CreatedAt:     e.CreatedAt,
			UpdatedAt:     e.CreatedAt,
		})

	case order.EventOrderConfirmed:
		var e order.OrderConfirmed
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if !p.advance(event) {
			return nil
		}
		p.updateOrder(e.OrderID, func(o *readmodel.OrderView) {
			o.Status = string(order.StatusConfirmed)
			o.PaymentStatus = string(order.PaymentPaid)
			o.UpdatedAt = e.ConfirmedAt
		})

	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if !p.advance(event) {
			return nil
		}
		p.updateOrder(e.OrderID, func(o *readmodel.OrderView) {
			o.Status = string(order.StatusCancelled)
			o.PaymentStatus = string(e.PaymentStatus)
			o.CancelReason = e.Reason
			o.UpdatedAt = e.CancelledAt
		})

	case order.EventOrderDelivered:
		var e order.OrderDelivered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if !p.advance(event) {
			return nil
		}
		p.updateOrder(e.OrderID, func(o *readmodel.OrderView) {
			o.Status = string(order.StatusDelivered)
			o.UpdatedAt = e.DeliveredAt
		})
	}

	return nil
}

func (p *Projector) updateOrder(id string, fn func(o *readmodel.OrderView)) {
	o, ok := p.readStore.Order(id)
	if !ok {
		// created event not seen, e.g. the consumer group started late
		o = &readmodel.OrderView{ID: id}
	}
	fn(o)
	p.readStore.PutOrder(o)
}
