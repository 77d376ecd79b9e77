package order

import (
	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is one order line. UnitPrice is captured at sale time and never follows later catalog changes.
type Item struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ItemTotal decimal.Decimal `json:"item_total"`
}

func NewItem(productID string, quantity int, unitPrice decimal.Decimal) (Item, error) {
	if err := validateLine(quantity, unitPrice); err != nil {
		return Item{}, err
	}
	item := Item{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
	item.recompute()
	return item, nil
}

func (i *Item) SetQuantity(quantity int) error {
	if err := validateLine(quantity, i.UnitPrice); err != nil {
		return err
	}
	i.Quantity = quantity
	i.recompute()
	return nil
}

func (i *Item) SetUnitPrice(price decimal.Decimal) error {
	if err := validateLine(i.Quantity, price); err != nil {
		return err
	}
	i.UnitPrice = price
	i.recompute()
	return nil
}

func (i *Item) recompute() {
	i.ItemTotal = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func validateLine(quantity int, unitPrice decimal.Decimal) error {
	if quantity < 1 {
		return apperr.Validation("quantity", "must be at least 1")
	}
	if unitPrice.IsNegative() {
		return apperr.Validation("unitPrice", "cannot be negative")
	}
	if !ValidAmount(unitPrice) {
		return apperr.Validation("unitPrice", "must have at most %d decimal places", MoneyScale)
	}
	return nil
}
