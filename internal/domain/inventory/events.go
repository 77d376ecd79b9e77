package inventory

import "time"

const EventStockMoved = "StockMoved"

type StockMoved struct {
	MovementID   string       `json:"movement_id"`
	ProductID    string       `json:"product_id"`
	MovementType MovementType `json:"movement_type"`
	Quantity     int          `json:"quantity"`
	NewStock     int          `json:"new_stock"`
	MinStock     int          `json:"min_stock"`
	Reason       string       `json:"reason"`
	UserID       string       `json:"user_id"`
	MovedAt      time.Time    `json:"moved_at"`
}

func NewStockMoved(m *Movement, minStock int) StockMoved {
	return StockMoved{
		MovementID:   m.ID,
		ProductID:    m.ProductID,
		MovementType: m.Type,
		Quantity:     m.Quantity,
		NewStock:     m.NewStock,
		MinStock:     minStock,
		Reason:       m.Reason,
		UserID:       m.UserID,
		MovedAt:      m.CreatedAt,
	}
}
