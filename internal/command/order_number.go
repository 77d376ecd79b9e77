package command

import (
	"context"
	"log"
	"time"

	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/infrastructure/store"
)

// OrderNumberGenerator draws ORD-YYYYMMDD-NNNN numbers from the per-day counter in the store.
// The counter row stays locked until the surrounding transaction ends, so two creators can
// never draw the same value; a rolled back transaction gives its value back.
type OrderNumberGenerator struct {
	loc *time.Location
}

func NewOrderNumberGenerator(loc *time.Location) *OrderNumberGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return &OrderNumberGenerator{loc: loc}
}

func (g *OrderNumberGenerator) Next(ctx context.Context, tx store.Tx, now time.Time) (string, error) {
	day := order.DayKey(now.In(g.loc))
	for {
		seq, err := tx.NextOrderSequence(ctx, day)
		if err != nil {
			return "", err
		}
		number, err := order.FormatNumber(day, seq)
		if err != nil {
			return "", err
		}

		// numbers can exist without a counter entry when orders were imported
		taken, err := tx.OrderNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
		log.Printf("[Order] Order number %s already in use, drawing next", number)
	}
}
