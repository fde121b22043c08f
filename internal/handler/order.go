package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/xenking/wheelhouse/internal/domain/order"
	"github.com/xenking/wheelhouse/internal/payment"
	"github.com/xenking/wheelhouse/internal/query"
)

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type orderItemView struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type transactionView struct {
	ID                string `json:"id,omitempty"`
	TransactionStatus string `json:"transactionStatus,omitempty"`
	BankStatus        string `json:"bankStatus,omitempty"`
	SPCode            string `json:"spCode,omitempty"`
	SPMessage         string `json:"spMessage,omitempty"`
	Method            string `json:"method,omitempty"`
	DateTime          string `json:"dateTime,omitempty"`
}

type orderView struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Items       []orderItemView  `json:"products"`
	TotalPrice  float64          `json:"totalPrice"`
	Status      string           `json:"status"`
	Transaction *transactionView `json:"transaction,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func toOrderView(o order.Order) orderView {
	items := make([]orderItemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemView{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	v := orderView{
		ID:         o.ID,
		UserID:     o.UserID,
		Items:      items,
		TotalPrice: o.TotalPrice.InexactFloat64(),
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	if o.Transaction.ID != "" {
		v.Transaction = &transactionView{
			ID:                o.Transaction.ID,
			TransactionStatus: o.Transaction.TransactionStatus,
			BankStatus:        o.Transaction.BankStatus,
			SPCode:            o.Transaction.SPCode,
			SPMessage:         o.Transaction.SPMessage,
			Method:            o.Transaction.Method,
			DateTime:          o.Transaction.DateTime,
		}
	}
	return v
}

type monthlySalesView struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
}

type adminStatsView struct {
	TotalOrders      int64              `json:"totalOrders"`
	TotalRevenue     float64            `json:"totalRevenue"`
	TotalProducts    int64              `json:"totalProducts"`
	LowStockProducts int64              `json:"lowStockProducts"`
	OrderStatus      map[string]int64   `json:"orderStatus"`
	SalesData        []monthlySalesView `json:"salesData"`
}

type userStatsView struct {
	TotalOrders   int64            `json:"totalOrders"`
	TotalSpent    float64          `json:"totalSpent"`
	TotalProducts int64            `json:"totalProducts"`
	OrderStatus   map[string]int64 `json:"orderStatus"`
}

// createOrder places an order for the caller and returns the checkout URL to
// redirect them to.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	email := userEmail(r)
	if email == "" {
		writeErrorStatus(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid json")
		return
	}

	items := make([]order.LineItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.LineItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	checkoutURL, err := h.orders.CreateOrder(r.Context(), email, items, clientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"checkoutUrl": checkoutURL})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, meta, err := h.orders.ListOrders(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeOrderList(w, orders, meta)
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	email := userEmail(r)
	if email == "" {
		writeErrorStatus(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	orders, meta, err := h.orders.ListUserOrders(r.Context(), email, r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(orders) == 0 {
		writeError(w, r, order.ErrNotFound)
		return
	}
	h.writeOrderList(w, orders, meta)
}

func (h *Handler) writeOrderList(w http.ResponseWriter, orders []order.Order, meta query.Meta) {
	views := make([]orderView, len(orders))
	for i, o := range orders {
		views[i] = toOrderView(o)
	}
	writeJSON(w, http.StatusOK, listEnvelope{Result: views, Meta: meta})
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	email := userEmail(r)
	if email == "" {
		writeErrorStatus(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	summary, err := h.orders.UserStats(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := make(map[string]int64, len(summary.StatusCounts))
	for st, n := range summary.StatusCounts {
		status[string(st)] = n
	}
	writeJSON(w, http.StatusOK, userStatsView{
		TotalOrders:   summary.TotalOrders,
		TotalSpent:    summary.TotalSpent.InexactFloat64(),
		TotalProducts: summary.TotalProducts,
		OrderStatus:   status,
	})
}

func (h *Handler) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.AdminStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := make(map[string]int64, len(stats.OrderStatus))
	for st, n := range stats.OrderStatus {
		status[string(st)] = n
	}
	sales := make([]monthlySalesView, len(stats.SalesData))
	for i, m := range stats.SalesData {
		sales[i] = monthlySalesView{Month: m.Month, Revenue: m.Revenue.InexactFloat64()}
	}
	writeJSON(w, http.StatusOK, adminStatsView{
		TotalOrders:      stats.TotalOrders,
		TotalRevenue:     stats.TotalRevenue.InexactFloat64(),
		TotalProducts:    stats.TotalProducts,
		LowStockProducts: stats.LowStockProducts,
		OrderStatus:      status,
		SalesData:        sales,
	})
}

// verifyPayment reconciles an order's payment state with the gateway and
// returns the gateway's verification records verbatim.
func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeErrorStatus(w, http.StatusBadRequest, "order_id is required")
		return
	}

	records, err := h.orders.VerifyPayment(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []payment.VerificationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
