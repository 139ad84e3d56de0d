package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/shop-orders/internal/domain/apperr"
	"github.com/xenking/shop-orders/internal/domain/auth"
)

func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Principal{}, apperr.Unauthenticated("User not authenticated")
	}
	return p, nil
}

// PlaceOrder handles POST /orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodePlaceOrder(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = p.UserID

	res, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Order created successfully", encodeGatewayOrder(res), nil)
}

// VerifyPayment handles POST /orders/payment-verification.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeVerifyPayment(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = p.UserID

	if _, err := h.orders.VerifyPayment(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Payment verified successfully", nil, nil)
}

// ListOrders handles GET /orders for the calling user.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := parsePage(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.orders.ListForUser(r.Context(), p.UserID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Orders fetched successfully", encodeOrders(list.Orders), encodeMeta(list))
}

// ListAllOrders handles GET /orders/all for admins.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.orders.ListAll(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Orders fetched successfully", encodeOrders(list.Orders), encodeMeta(list))
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Order fetched successfully", func(e *jx.Encoder) { encodeOrder(e, o) }, nil)
}

// UpdateOrderStatus handles PATCH /orders/{id}/status for admins.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeUpdateStatus(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.OrderID = id

	o, err := h.orders.UpdateStatus(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := `Order status updated to "` + string(o.Status) + `" successfully`
	writeSuccess(w, http.StatusOK, msg, nil, nil)
}

func orderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid_order_id", "Invalid order ID", "id")
	}
	return id, nil
}
