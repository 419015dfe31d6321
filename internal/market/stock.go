package market

import "fmt"

// CheckAvailability validates a requested deduction against the stock value
// the caller just read. Both rules run on the pre-deduction value; the store
// re-checks the product version at write time so the answer stays valid.
//
// The threshold is a soft floor the seller wants retained: a deduction that
// would land below it is rejected even when the stock nominally covers it.
func CheckAvailability(p Product, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if qty > p.Stock {
		return fmt.Errorf("%w: %s: requested %d, available %d",
			ErrInsufficientStock, p.Title, qty, p.Stock)
	}
	if p.Stock-qty < p.Threshold {
		return fmt.Errorf("%w: %s: stock would fall to %d, threshold is %d",
			ErrBelowThreshold, p.Title, p.Stock-qty, p.Threshold)
	}
	return nil
}
