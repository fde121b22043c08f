// Package handler exposes the marketplace over HTTP: catalog CRUD and
// search under /api/cars, ordering and statistics under /api/orders.
package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/wheelhouse/internal/domain/order"
	"github.com/xenking/wheelhouse/internal/domain/product"
)

// userHeader carries the authenticated caller's identity, established by the
// edge in front of this service. Authentication itself is out of scope here.
const userHeader = "X-User-Email"

// Handler routes HTTP requests to the catalog repository and order service.
type Handler struct {
	products product.Repository
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, orders *order.Service) *Handler {
	return &Handler{
		products: products,
		orders:   orders,
	}
}

// Routes builds the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/cars", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getProduct)
			r.Put("/", h.updateProduct)
			r.Delete("/", h.deleteProduct)
		})
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/my-orders", h.listMyOrders)
		r.Get("/user-stats", h.userStats)
		r.Get("/admin-stats", h.adminStats)
		r.Get("/verify", h.verifyPayment)
	})

	return r
}

// userEmail extracts the caller identity header, empty when absent.
func userEmail(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

// clientIP resolves the originating client address, preferring the first
// X-Forwarded-For hop over the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
