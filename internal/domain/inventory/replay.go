package inventory

import "fmt"

// Replay folds movements, in creation order, from an initial stock of zero.
func Replay(movements []*Movement) int {
	stock := 0
	for _, m := range movements {
		stock = Next(stock, m.Type, m.Quantity)
	}
	return stock
}

// DriftError reports a mismatch between the stored counter and the ledger.
type DriftError struct {
	ProductID string
	Stored    int
	Replayed  int
	// Index of the first movement whose NewStock snapshot disagrees with the replay, or -1.
	FirstBadSnapshot int
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("stock drift for product %s: stored %d, ledger %d (first bad snapshot %d)",
		e.ProductID, e.Stored, e.Replayed, e.FirstBadSnapshot)
}

// Verify replays movements and checks both the snapshots and the stored counter.
func Verify(productID string, stored int, movements []*Movement) error {
	stock := 0
	firstBad := -1
	for i, m := range movements {
		stock = Next(stock, m.Type, m.Quantity)
		if firstBad < 0 && m.NewStock != stock {
			firstBad = i
		}
	}
	if stock != stored || firstBad >= 0 {
		return &DriftError{ProductID: productID, Stored: stored, Replayed: stock, FirstBadSnapshot: firstBad}
	}
	return nil
}
