package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/wheelhouse/internal/domain/order"
	"github.com/xenking/wheelhouse/internal/domain/product"
	"github.com/xenking/wheelhouse/internal/domain/user"
	"github.com/xenking/wheelhouse/internal/payment"
	"github.com/xenking/wheelhouse/internal/query"
)

// listEnvelope wraps collection responses with pagination metadata.
type listEnvelope struct {
	Result any        `json:"result"`
	Meta   query.Meta `json:"meta"`
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}

// writeError converts a domain error into the matching HTTP response.
// Anything without a mapping is a 500 with a generic body; the cause is
// logged but never leaked to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		writeErrorStatus(w, http.StatusNotFound, err.Error())
		return

	case errors.Is(err, order.ErrEmptyOrder):
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return

	case errors.Is(err, product.ErrOutOfStock):
		writeErrorStatus(w, http.StatusUnprocessableEntity, err.Error())
		return

	case errors.Is(err, product.ErrStockConflict):
		writeErrorStatus(w, http.StatusConflict, err.Error())
		return

	case errors.Is(err, payment.ErrUnavailable):
		writeErrorStatus(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	}

	var insufficientErr *product.InsufficientStockError
	if errors.As(err, &insufficientErr) {
		writeErrorStatus(w, http.StatusUnprocessableEntity, insufficientErr.Error())
		return
	}

	var quantityErr *product.InvalidQuantityError
	if errors.As(err, &quantityErr) {
		writeErrorStatus(w, http.StatusUnprocessableEntity, quantityErr.Error())
		return
	}

	var gatewayErr *payment.GatewayError
	if errors.As(err, &gatewayErr) {
		zctx.From(r.Context()).Warn("Payment gateway error", zap.Error(err))
		writeErrorStatus(w, http.StatusBadGateway, "payment gateway error")
		return
	}

	zctx.From(r.Context()).Error("Unhandled request error", zap.Error(err))
	writeErrorStatus(w, http.StatusInternalServerError, "internal error")
}
