// Package handler implements the HTTP API of the order service.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xenking/shop-orders/internal/domain/auth"
	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/domain/payment"
)

// Orders is the order service as used by the handlers.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	VerifyPayment(ctx context.Context, req order.VerifyPaymentRequest) (*payment.Payment, error)
	UpdateStatus(ctx context.Context, req order.UpdateStatusRequest) (*order.Order, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*order.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page order.Page) (*order.List, error)
	ListAll(ctx context.Context, filter order.Filter) (*order.List, error)
}

var _ Orders = (*order.Service)(nil)

// Handler serves the /orders API.
type Handler struct {
	orders   Orders
	security *Security
}

// NewHandler constructs a Handler.
func NewHandler(orders Orders, security *Security) *Handler {
	return &Handler{orders: orders, security: security}
}

// Mount registers the order routes on r. Every route requires an API key;
// listing all orders and changing status require the admin role.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(h.security.Authenticate)

		r.Post("/", h.PlaceOrder)
		r.Get("/", h.ListOrders)
		r.Post("/payment-verification", h.VerifyPayment)
		r.Get("/{id}", h.GetOrder)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/all", h.ListAllOrders)
			r.Patch("/{id}/status", h.UpdateOrderStatus)
		})
	})
}

// NotFound answers unknown routes with the error envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeFailure(w, r, http.StatusNotFound, "not_found", "route not found", nil)
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeFailure(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
}
