package product

import (
	"fmt"

	"github.com/go-faster/errors"
)

// LowStockThreshold is the quantity below which a listing counts as low
// stock in operational statistics.
const LowStockThreshold = 10

// Sentinel errors for stock reservation.
var (
	ErrOutOfStock = errors.New("product out of stock")

	// ErrStockConflict is returned when the conditional stock update lost a
	// concurrent race more times than the retry bound allows. Callers may
	// surface it as a retryable conflict.
	ErrStockConflict = errors.New("concurrent stock update conflict")
)

// InsufficientStockError indicates the requested quantity exceeds what is
// currently available.
type InsufficientStockError struct {
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d %s available, requested %d", e.Available, e.ProductName, e.Requested)
}

// InvalidQuantityError indicates a non-positive requested quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Reservation is the stock mutation produced by a successful Reserve
// decision: decrement quantity by Quantity and set inStock to InStockAfter.
type Reservation struct {
	ProductID    string
	Quantity     int
	InStockAfter bool
}

// Reserve decides whether qty units of p can be taken from stock and, if so,
// returns the mutation to apply. The decision is made against the supplied
// snapshot; the storage layer re-checks the condition atomically when the
// mutation is applied.
func Reserve(p *Product, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, &InvalidQuantityError{ProductID: p.ID}
	}
	if !p.InStock {
		return Reservation{}, ErrOutOfStock
	}
	if qty > p.Quantity {
		return Reservation{}, &InsufficientStockError{
			ProductName: p.Name,
			Available:   p.Quantity,
			Requested:   qty,
		}
	}

	return Reservation{
		ProductID:    p.ID,
		Quantity:     qty,
		InStockAfter: p.Quantity-qty > 0,
	}, nil
}
