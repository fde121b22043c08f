package order

import (
	"context"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/wheelhouse/internal/domain/product"
	"github.com/xenking/wheelhouse/internal/domain/user"
	"github.com/xenking/wheelhouse/internal/payment"
	"github.com/xenking/wheelhouse/internal/query"
)

// serviceFeeMultiplier is the fixed 10% marketplace surcharge applied to
// every line item when computing the order total.
var serviceFeeMultiplier = decimal.RequireFromString("1.1")

// AdminStats is the operational dashboard rollup.
type AdminStats struct {
	TotalOrders      int64
	TotalRevenue     decimal.Decimal
	TotalProducts    int64
	LowStockProducts int64
	OrderStatus      map[Status]int64
	SalesData        []MonthlySales
}

// MonthlySales is one month of revenue, labeled with the short month name
// and ordered chronologically by month index.
type MonthlySales struct {
	Month   string
	Revenue decimal.Decimal
}

// Service orchestrates order placement, payment reconciliation, listing, and
// statistics over the catalog, account, and order repositories plus the
// payment gateway.
type Service struct {
	products product.Repository
	users    user.Repository
	orders   Repository
	gateway  payment.Gateway
	currency string
}

// NewService creates an order Service with the required dependencies.
func NewService(
	products product.Repository,
	users user.Repository,
	orders Repository,
	gateway payment.Gateway,
	currency string,
) *Service {
	return &Service{
		products: products,
		users:    users,
		orders:   orders,
		gateway:  gateway,
		currency: currency,
	}
}

// CreateOrder validates every line item against live stock, reserves stock
// per item, persists the order, opens a checkout session, and returns its
// URL.
//
// Line items are processed sequentially and each reservation is applied
// immediately. A failure on item k leaves items 1..k-1 already decremented
// with no compensation; the sequence is not wrapped in a store-level
// transaction.
func (s *Service) CreateOrder(ctx context.Context, userEmail string, items []LineItem, clientIP string) (string, error) {
	if len(items) == 0 {
		return "", ErrEmptyOrder
	}

	total := decimal.Zero
	for _, item := range items {
		p, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return "", errors.Wrapf(err, "line item %s", item.ProductID)
		}

		res, err := product.Reserve(p, item.Quantity)
		if err != nil {
			return "", err
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		total = total.Add(p.Price.Mul(qty).Mul(serviceFeeMultiplier))

		if err := s.products.ApplyReservation(ctx, res); err != nil {
			return "", errors.Wrapf(err, "reserve stock for %s", item.ProductID)
		}
	}
	total = total.Round(2)

	u, err := s.users.FindByEmail(ctx, userEmail)
	if err != nil {
		return "", errors.Wrap(err, "resolve customer")
	}
	if !u.Active() {
		return "", user.ErrNotFound
	}

	o := &Order{
		UserID:     u.ID,
		Items:      items,
		TotalPrice: total,
		Status:     StatusPending,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return "", errors.Wrap(err, "create order")
	}

	session, err := s.gateway.CreateSession(ctx, payment.SessionRequest{
		Amount:          total,
		OrderID:         o.ID,
		Currency:        s.currency,
		CustomerName:    u.Name,
		CustomerAddress: u.Address,
		CustomerEmail:   u.Email,
		CustomerPhone:   u.Phone,
		CustomerCity:    u.City,
		ClientIP:        clientIP,
	})
	if err != nil {
		return "", errors.Wrap(err, "create payment session")
	}

	if session.TransactionStatus != "" {
		if err := s.orders.AttachTransaction(ctx, o.ID, session.SessionID, session.TransactionStatus); err != nil {
			return "", errors.Wrap(err, "attach transaction")
		}
	}

	return session.CheckoutURL, nil
}

// VerifyPayment pulls the authoritative transaction state for an order from
// the gateway and applies the first record to the stored order. An empty
// answer leaves the order untouched and is returned as-is. Re-verifying an
// already reconciled order re-applies the same mapping, so the call is safe
// to retry.
func (s *Service) VerifyPayment(ctx context.Context, orderID string) ([]payment.VerificationRecord, error) {
	records, err := s.gateway.VerifySession(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "verify session")
	}
	if len(records) == 0 {
		return records, nil
	}

	rec := records[0]
	status, known := StatusForBankStatus(rec.BankStatus)
	if err := s.orders.ApplyVerification(ctx, orderID, rec, status, known); err != nil {
		return nil, errors.Wrap(err, "apply verification")
	}

	return records, nil
}

// ListOrders returns all orders matching the client query, with pagination
// metadata.
func (s *Service) ListOrders(ctx context.Context, params url.Values) ([]Order, query.Meta, error) {
	pipe := query.New(params).Sort().Filter().Paginate()
	return s.orders.List(ctx, pipe)
}

// ListUserOrders returns the requesting user's orders matching the client
// query.
func (s *Service) ListUserOrders(ctx context.Context, userEmail string, params url.Values) ([]Order, query.Meta, error) {
	u, err := s.users.FindByEmail(ctx, userEmail)
	if err != nil {
		return nil, query.Meta{}, err
	}
	if !u.Active() {
		return nil, query.Meta{}, user.ErrNotFound
	}

	pipe := query.New(params).Sort().Filter().Paginate()
	return s.orders.ListByUser(ctx, u.ID, pipe)
}

// AdminStats computes the operational dashboard: order totals, revenue,
// catalog size, low-stock count, per-status order counts with absent
// statuses zero-filled, and chronological monthly revenue.
func (s *Service) AdminStats(ctx context.Context) (*AdminStats, error) {
	var (
		summary  *StatsSummary
		products int64
		lowStock int64
	)

	// The three reads are independent aggregations over immutable history;
	// run them concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		summary, err = s.orders.Stats(gctx)
		return err
	})
	g.Go(func() (err error) {
		products, err = s.products.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		lowStock, err = s.products.CountLowStock(gctx, product.LowStockThreshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "aggregate stats")
	}

	statusCounts := make(map[Status]int64, len(AllStatuses))
	for _, st := range AllStatuses {
		statusCounts[st] = summary.StatusCounts[st]
	}

	sales := make([]MonthlySales, len(summary.Monthly))
	for i, m := range summary.Monthly {
		sales[i] = MonthlySales{
			Month:   m.Month.String()[:3],
			Revenue: m.Revenue,
		}
	}

	return &AdminStats{
		TotalOrders:      summary.TotalOrders,
		TotalRevenue:     summary.TotalRevenue,
		TotalProducts:    products,
		LowStockProducts: lowStock,
		OrderStatus:      statusCounts,
		SalesData:        sales,
	}, nil
}

// UserStats computes the requesting user's rollup. Unlike AdminStats, the
// per-status map stays sparse: only statuses that actually occur appear.
func (s *Service) UserStats(ctx context.Context, userEmail string) (*UserSummary, error) {
	u, err := s.users.FindByEmail(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	if !u.Active() {
		return nil, user.ErrNotFound
	}

	return s.orders.UserStats(ctx, u.ID)
}
