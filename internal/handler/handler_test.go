package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/wheelhouse/internal/domain/order"
	"github.com/xenking/wheelhouse/internal/domain/product"
	"github.com/xenking/wheelhouse/internal/domain/user"
	"github.com/xenking/wheelhouse/internal/payment"
	"github.com/xenking/wheelhouse/internal/query"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID    map[string]*product.Product
	listed  []product.Product
	meta    query.Meta
	listErr error
}

func (m *mockProductRepo) Create(_ context.Context, p *product.Product) error {
	p.ID = "car-new"
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepo) List(context.Context, query.Pipeline) ([]product.Product, query.Meta, error) {
	return m.listed, m.meta, m.listErr
}

func (m *mockProductRepo) Update(_ context.Context, id string, upd product.Update) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.Quantity != nil {
		p.Quantity = *upd.Quantity
		p.InStock = p.Quantity > 0
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return product.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *mockProductRepo) ApplyReservation(_ context.Context, r product.Reservation) error {
	p, ok := m.byID[r.ProductID]
	if !ok {
		return product.ErrNotFound
	}
	p.Quantity -= r.Quantity
	p.InStock = r.InStockAfter
	return nil
}

func (m *mockProductRepo) Count(context.Context) (int64, error) { return int64(len(m.byID)), nil }
func (m *mockProductRepo) CountLowStock(context.Context, int) (int64, error) { return 0, nil }

type mockUserRepo struct {
	byEmail map[string]*user.User
}

func (m *mockUserRepo) Create(context.Context, *user.User) error { return nil }

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) FindByID(context.Context, string) (*user.User, error) {
	return nil, user.ErrNotFound
}

type mockOrderRepo struct {
	orders []order.Order
	meta   query.Meta
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	o.ID = "order-1"
	return nil
}

func (m *mockOrderRepo) AttachTransaction(context.Context, string, string, string) error {
	return nil
}

func (m *mockOrderRepo) ApplyVerification(context.Context, string, payment.VerificationRecord, order.Status, bool) error {
	return nil
}

func (m *mockOrderRepo) List(context.Context, query.Pipeline) ([]order.Order, query.Meta, error) {
	return m.orders, m.meta, nil
}

func (m *mockOrderRepo) ListByUser(context.Context, string, query.Pipeline) ([]order.Order, query.Meta, error) {
	return m.orders, m.meta, nil
}

func (m *mockOrderRepo) Stats(context.Context) (*order.StatsSummary, error) {
	return &order.StatsSummary{StatusCounts: map[order.Status]int64{}}, nil
}

func (m *mockOrderRepo) UserStats(context.Context, string) (*order.UserSummary, error) {
	return &order.UserSummary{StatusCounts: map[order.Status]int64{}}, nil
}

type mockGateway struct {
	session *payment.Session
	records []payment.VerificationRecord
	err     error
}

func (m *mockGateway) CreateSession(context.Context, payment.SessionRequest) (*payment.Session, error) {
	return m.session, m.err
}

func (m *mockGateway) VerifySession(context.Context, string) ([]payment.VerificationRecord, error) {
	return m.records, m.err
}

// --- Helpers ---

func newTestProduct(id string, price int64, quantity int) *product.Product {
	return &product.Product{
		ID:       id,
		Name:     "Model S",
		Brand:    "Tesla",
		Price:    decimal.NewFromInt(price),
		Quantity: quantity,
		InStock:  quantity > 0,
	}
}

type fixture struct {
	products *mockProductRepo
	users    *mockUserRepo
	orders   *mockOrderRepo
	gateway  *mockGateway
	router   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		products: &mockProductRepo{byID: map[string]*product.Product{}},
		users:    &mockUserRepo{byEmail: map[string]*user.User{}},
		orders:   &mockOrderRepo{},
		gateway: &mockGateway{
			session: &payment.Session{
				CheckoutURL:       "https://pay.example/checkout/1",
				SessionID:         "sp-1",
				TransactionStatus: "Initiated",
			},
		},
	}
	svc := order.NewService(f.products, f.users, f.orders, f.gateway, "BDT")
	f.router = NewHandler(f.products, svc).Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	t.Run("returns envelope with meta", func(t *testing.T) {
		f := newFixture()
		f.products.listed = []product.Product{*newTestProduct("car-1", 50000, 3)}
		f.products.meta = query.Meta{Page: 1, Limit: 10, Total: 1, TotalPage: 1}

		rec := f.do(t, http.MethodGet, "/api/cars?brand=Tesla", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Result []productView `json:"result"`
			Meta   query.Meta    `json:"meta"`
		}
		decodeBody(t, rec, &body)
		require.Len(t, body.Result, 1)
		assert.Equal(t, "car-1", body.Result[0].ID)
		assert.Equal(t, float64(50000), body.Result[0].Price)
		assert.Equal(t, int64(1), body.Meta.Total)
	})

	t.Run("empty result is not found", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodGet, "/api/cars?searchTerm=nope", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetProduct(t *testing.T) {
	f := newFixture()
	f.products.byID["car-1"] = newTestProduct("car-1", 50000, 3)

	rec := f.do(t, http.MethodGet, "/api/cars/car-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view productView
	decodeBody(t, rec, &view)
	assert.Equal(t, "Tesla", view.Brand)
	assert.True(t, view.InStock)

	rec = f.do(t, http.MethodGet, "/api/cars/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProduct(t *testing.T) {
	t.Run("creates listing", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPost, "/api/cars",
			`{"name":"Model S","brand":"Tesla","price":50000,"quantity":3}`, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var view productView
		decodeBody(t, rec, &view)
		assert.Equal(t, "car-new", view.ID)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPost, "/api/cars", `{"brand":"Tesla","price":50000}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects non-positive price", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPost, "/api/cars",
			`{"name":"Model S","brand":"Tesla","price":0}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPost, "/api/cars", `{`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateProduct(t *testing.T) {
	f := newFixture()
	f.products.byID["car-1"] = newTestProduct("car-1", 50000, 3)

	rec := f.do(t, http.MethodPut, "/api/cars/car-1", `{"quantity":0}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view productView
	decodeBody(t, rec, &view)
	assert.Equal(t, 0, view.Quantity)
	assert.False(t, view.InStock)

	rec = f.do(t, http.MethodPut, "/api/cars/car-1", `{"price":-1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteProduct(t *testing.T) {
	f := newFixture()
	f.products.byID["car-1"] = newTestProduct("car-1", 50000, 3)

	rec := f.do(t, http.MethodDelete, "/api/cars/car-1", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cars/car-1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	authed := map[string]string{userHeader: "buyer@example.com"}

	t.Run("returns checkout url", func(t *testing.T) {
		f := newFixture()
		f.products.byID["car-1"] = newTestProduct("car-1", 100, 5)
		f.users.byEmail["buyer@example.com"] = &user.User{
			ID:    "user-1",
			Name:  "Buyer",
			Email: "buyer@example.com",
		}

		rec := f.do(t, http.MethodPost, "/api/orders",
			`{"items":[{"productId":"car-1","quantity":2}]}`, authed)
		require.Equal(t, http.StatusCreated, rec.Code)

		var body map[string]string
		decodeBody(t, rec, &body)
		assert.Equal(t, "https://pay.example/checkout/1", body["checkoutUrl"])
	})

	t.Run("requires identity header", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPost, "/api/orders",
			`{"items":[{"productId":"car-1","quantity":1}]}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("empty order is bad request", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPost, "/api/orders", `{"items":[]}`, authed)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("insufficient stock is unprocessable", func(t *testing.T) {
		f := newFixture()
		f.products.byID["car-1"] = newTestProduct("car-1", 100, 1)
		f.users.byEmail["buyer@example.com"] = &user.User{ID: "user-1", Email: "buyer@example.com"}

		rec := f.do(t, http.MethodPost, "/api/orders",
			`{"items":[{"productId":"car-1","quantity":5}]}`, authed)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown product is not found", func(t *testing.T) {
		f := newFixture()
		f.users.byEmail["buyer@example.com"] = &user.User{ID: "user-1", Email: "buyer@example.com"}

		rec := f.do(t, http.MethodPost, "/api/orders",
			`{"items":[{"productId":"ghost","quantity":1}]}`, authed)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("gateway outage is bad gateway", func(t *testing.T) {
		f := newFixture()
		f.products.byID["car-1"] = newTestProduct("car-1", 100, 5)
		f.users.byEmail["buyer@example.com"] = &user.User{ID: "user-1", Email: "buyer@example.com"}
		f.gateway.session = nil
		f.gateway.err = payment.ErrUnavailable

		rec := f.do(t, http.MethodPost, "/api/orders",
			`{"items":[{"productId":"car-1","quantity":1}]}`, authed)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestListOrders(t *testing.T) {
	f := newFixture()
	f.orders.orders = []order.Order{{
		ID:         "order-1",
		UserID:     "user-1",
		Items:      []order.LineItem{{ProductID: "car-1", Quantity: 2}},
		TotalPrice: decimal.NewFromInt(220),
		Status:     order.StatusPending,
	}}
	f.orders.meta = query.Meta{Page: 1, Limit: 10, Total: 1, TotalPage: 1}

	rec := f.do(t, http.MethodGet, "/api/orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result []orderView `json:"result"`
		Meta   query.Meta  `json:"meta"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Result, 1)
	assert.Equal(t, float64(220), body.Result[0].TotalPrice)
	assert.Equal(t, "Pending", body.Result[0].Status)
	assert.Nil(t, body.Result[0].Transaction)
}

func TestListMyOrders(t *testing.T) {
	f := newFixture()
	f.users.byEmail["buyer@example.com"] = &user.User{ID: "user-1", Email: "buyer@example.com"}

	rec := f.do(t, http.MethodGet, "/api/orders/my-orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A user with no orders gets 404, same as an empty catalog listing.
	rec = f.do(t, http.MethodGet, "/api/orders/my-orders", "",
		map[string]string{userHeader: "buyer@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.orders.orders = []order.Order{{
		ID:         "order-1",
		UserID:     "user-1",
		Status:     order.StatusPending,
		TotalPrice: decimal.NewFromInt(220),
	}}
	f.orders.meta = query.Meta{Page: 1, Limit: 10, Total: 1, TotalPage: 1}

	rec = f.do(t, http.MethodGet, "/api/orders/my-orders", "",
		map[string]string{userHeader: "buyer@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result []orderView `json:"result"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Result, 1)
	assert.Equal(t, "order-1", body.Result[0].ID)

	f.orders.orders = nil
	rec = f.do(t, http.MethodGet, "/api/orders/my-orders", "",
		map[string]string{userHeader: "stranger@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminStats(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/orders/admin-stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view adminStatsView
	decodeBody(t, rec, &view)
	// Every lifecycle status must be present even with zero orders.
	assert.Len(t, view.OrderStatus, len(order.AllStatuses))
	assert.Equal(t, int64(0), view.OrderStatus["Pending"])
}

func TestUserStats(t *testing.T) {
	f := newFixture()
	f.users.byEmail["buyer@example.com"] = &user.User{ID: "user-1", Email: "buyer@example.com"}

	rec := f.do(t, http.MethodGet, "/api/orders/user-stats", "",
		map[string]string{userHeader: "buyer@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	var view userStatsView
	decodeBody(t, rec, &view)
	assert.Empty(t, view.OrderStatus)
}

func TestVerifyPayment(t *testing.T) {
	t.Run("requires order_id", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodGet, "/api/orders/verify", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns gateway records", func(t *testing.T) {
		f := newFixture()
		f.gateway.records = []payment.VerificationRecord{{BankStatus: "Success", SPCode: "1000"}}

		rec := f.do(t, http.MethodGet, "/api/orders/verify?order_id=sp-1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var records []payment.VerificationRecord
		decodeBody(t, rec, &records)
		require.Len(t, records, 1)
		assert.Equal(t, "Success", records[0].BankStatus)
	})

	t.Run("empty answer is an empty list", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodGet, "/api/orders/verify?order_id=sp-1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}
