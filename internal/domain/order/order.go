package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/wheelhouse/internal/payment"
	"github.com/xenking/wheelhouse/internal/query"
)

// Sentinel errors for order placement and lookup.
var (
	ErrEmptyOrder = errors.New("order has no line items")
	ErrNotFound   = errors.New("order not found")
)

// Status enumerates the order lifecycle states.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusPaid      Status = "Paid"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
)

// AllStatuses lists every lifecycle state, in progression order. Operational
// statistics zero-fill their per-status counters from this list.
var AllStatuses = []Status{
	StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled,
}

// Terminal reports whether no further transition is defined out of s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether the s -> to transition is allowed by the
// lifecycle state machine. Transitions are monotonic: nothing returns to
// Pending from a later state, and terminal states admit no exit.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusPending || to == StatusPaid || to == StatusCancelled
	case StatusPaid:
		return to == StatusShipped
	case StatusShipped:
		return to == StatusDelivered
	default:
		return false
	}
}

// StatusesAllowedInto lists the states an order may be in for a transition
// into to. Storage-level status updates filter on this set so stale or
// repeated gateway answers cannot move an order backwards or out of a
// terminal state.
func StatusesAllowedInto(to Status) []Status {
	from := make([]Status, 0, len(AllStatuses))
	for _, s := range AllStatuses {
		if s.CanTransition(to) {
			from = append(from, s)
		}
	}
	return from
}

// StatusForBankStatus maps a gateway bank status onto the order lifecycle:
// Success pays the order, Failed keeps it pending for another attempt, and
// Cancel cancels it. Unknown values map to nothing and leave the order
// untouched.
func StatusForBankStatus(bankStatus string) (Status, bool) {
	switch bankStatus {
	case "Success":
		return StatusPaid, true
	case "Failed":
		return StatusPending, true
	case "Cancel":
		return StatusCancelled, true
	default:
		return "", false
	}
}

// LineItem is one (product, quantity) pair within an order.
type LineItem struct {
	ProductID string
	Quantity  int
}

// Transaction mirrors the gateway's view of the payment for this order.
// It is written once when the checkout session opens and overwritten by
// each reconciliation pass.
type Transaction struct {
	ID                string
	TransactionStatus string
	BankStatus        string
	SPCode            string
	SPMessage         string
	Method            string
	DateTime          string
}

// Order is a placed customer order. TotalPrice is computed once at creation
// from the price snapshot of that instant and never recomputed. Orders are
// never deleted; they are the audit trail.
type Order struct {
	ID          string
	UserID      string
	Items       []LineItem
	TotalPrice  decimal.Decimal
	Status      Status
	Transaction Transaction
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StatsSummary is the order-side slice of the admin dashboard: totals and
// groupings computed by store aggregation.
type StatsSummary struct {
	TotalOrders  int64
	TotalRevenue decimal.Decimal
	StatusCounts map[Status]int64
	Monthly      []MonthlyRevenue
}

// MonthlyRevenue is revenue grouped by calendar month of order creation.
type MonthlyRevenue struct {
	Month   time.Month
	Revenue decimal.Decimal
}

// UserSummary is the per-user rollup: order count, spend, units purchased,
// and a sparse per-status count map (absent statuses are omitted, not
// zero-filled).
type UserSummary struct {
	TotalOrders   int64
	TotalSpent    decimal.Decimal
	TotalProducts int64
	StatusCounts  map[Status]int64
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error

	// AttachTransaction records the gateway session reference on a freshly
	// created order without rewriting the rest of the document.
	AttachTransaction(ctx context.Context, orderID, sessionID, transactionStatus string) error

	// ApplyVerification copies a verification record into the transaction
	// subdocument of the order whose transaction id matches, optionally
	// moving the order to status. The update is idempotent.
	ApplyVerification(ctx context.Context, transactionID string, rec payment.VerificationRecord, status Status, setStatus bool) error

	List(ctx context.Context, pipe query.Pipeline) ([]Order, query.Meta, error)
	ListByUser(ctx context.Context, userID string, pipe query.Pipeline) ([]Order, query.Meta, error)

	Stats(ctx context.Context) (*StatsSummary, error)
	UserStats(ctx context.Context, userID string) (*UserSummary, error)
}
