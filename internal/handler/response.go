package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/apperr"
	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/domain/payment"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as the error envelope. Unclassified errors are logged
// and reported without their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeFailure(w, r, http.StatusInternalServerError, "internal", "Something went wrong", nil)
		return
	}
	status := statusOf(e.Kind)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeFailure(w, r, status, e.Code, e.Message, e.Details)
}

func writeFailure(w http.ResponseWriter, _ *http.Request, status int, code, message string, details []string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		e.Field("error", func(e *jx.Encoder) { e.Str(code) })
		if len(details) > 0 {
			e.Field("details", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, d := range details {
						e.Str(d)
					}
				})
			})
		}
	})
	writeJSON(w, status, e.Bytes())
}

// writeSuccess writes {"success":true,"message":...,"data":...,"meta":...}.
// data and meta are omitted when nil.
func writeSuccess(w http.ResponseWriter, status int, message string, data, meta func(*jx.Encoder)) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		if data != nil {
			e.Field("data", data)
		}
		if meta != nil {
			e.Field("meta", meta)
		}
	})
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(d.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func optStr(e *jx.Encoder, name, v string) {
	if v != "" {
		e.Field(name, func(e *jx.Encoder) { e.Str(v) })
	}
}

func encodeGatewayOrder(res *order.PlaceOrderResult) func(*jx.Encoder) {
	return func(e *jx.Encoder) {
		gw := res.GatewayOrder
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(gw.ID) })
			e.Field("amount", func(e *jx.Encoder) { e.Int64(gw.Amount) })
			e.Field("currency", func(e *jx.Encoder) { e.Str(gw.Currency) })
			e.Field("status", func(e *jx.Encoder) { e.Str(gw.Status) })
			optStr(e, "receipt", gw.Receipt)
			e.Field("order_id", func(e *jx.Encoder) { e.Str(res.Order.ID.String()) })
			e.Field("order_number", func(e *jx.Encoder) { e.Int64(res.Order.OrderNumber) })
			e.Field("display_number", func(e *jx.Encoder) { e.Int64(res.Order.DisplayNumber()) })
			e.Field("final_amount", func(e *jx.Encoder) { encodeMoney(e, res.Totals.FinalAmount) })
		})
	}
}

func encodeOrders(orders []order.Order) func(*jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	}
}

func encodeMeta(l *order.List) func(*jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("total", func(e *jx.Encoder) { e.Int(l.Total) })
			e.Field("page", func(e *jx.Encoder) { e.Int(l.Page.Page) })
			e.Field("limit", func(e *jx.Encoder) { e.Int(l.Page.Limit) })
			e.Field("total_pages", func(e *jx.Encoder) { e.Int(l.Page.TotalPages(l.Total)) })
		})
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	totals := o.Totals()
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID.String()) })
		e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID.String()) })
		e.Field("order_number", func(e *jx.Encoder) { e.Int64(o.OrderNumber) })
		e.Field("display_number", func(e *jx.Encoder) { e.Int64(o.DisplayNumber()) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("expected_delivery_date", func(e *jx.Encoder) { encodeTime(e, o.ExpectedDeliveryDate) })
		if o.DeliveredAt != nil {
			e.Field("delivered_at", func(e *jx.Encoder) { encodeTime(e, *o.DeliveredAt) })
		}
		if o.CancellationReason != nil {
			e.Field("cancellation_reason", func(e *jx.Encoder) { e.Str(*o.CancellationReason) })
		}
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })

		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, totals.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, totals.Discount) })
		e.Field("charges_total", func(e *jx.Encoder) { encodeMoney(e, totals.Charges) })
		e.Field("final_amount", func(e *jx.Encoder) { encodeMoney(e, totals.FinalAmount) })

		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(it.ID.String()) })
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID.String()) })
						e.Field("product_variant_id", func(e *jx.Encoder) { e.Str(it.VariantID.String()) })
						e.Field("variant_name", func(e *jx.Encoder) { e.Str(it.VariantName) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.Price) })
						e.Field("mrp", func(e *jx.Encoder) { encodeMoney(e, it.MRP) })
					})
				}
			})
		})
		if a := o.Address; a != nil {
			e.Field("address", func(e *jx.Encoder) { encodeAddress(e, a) })
		}
		e.Field("charges", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range o.Charges {
					e.Obj(func(e *jx.Encoder) {
						e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
						e.Field("type", func(e *jx.Encoder) { e.Str(string(c.Type)) })
						e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, c.Amount) })
					})
				}
			})
		})
		e.Field("coupons", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range o.Coupons {
					e.Obj(func(e *jx.Encoder) {
						e.Field("coupon_id", func(e *jx.Encoder) { e.Str(c.CouponID.String()) })
						e.Field("offer_code", func(e *jx.Encoder) { e.Str(c.OfferCode) })
						e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(c.DiscountType)) })
						e.Field("discount_amount", func(e *jx.Encoder) { encodeMoney(e, c.DiscountAmount) })
					})
				}
			})
		})
		if p := o.Payment; p != nil {
			e.Field("payment", func(e *jx.Encoder) { encodePayment(e, p) })
		}
		if len(o.History) > 0 {
			e.Field("history", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, h := range o.History {
						e.Obj(func(e *jx.Encoder) {
							e.Field("status", func(e *jx.Encoder) { e.Str(string(h.Status)) })
							e.Field("comment", func(e *jx.Encoder) { e.Str(h.Comment) })
							e.Field("updated_by", func(e *jx.Encoder) { e.Str(string(h.UpdatedBy)) })
							e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, h.CreatedAt) })
						})
					}
				})
			})
		}
		if c := o.Customer; c != nil {
			e.Field("user", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(c.ID.String()) })
					e.Field("first_name", func(e *jx.Encoder) { e.Str(c.FirstName) })
					optStr(e, "last_name", c.LastName)
					optStr(e, "email", c.Email)
					optStr(e, "phone_number", c.PhoneNumber)
				})
			})
		}
	})
}

func encodeAddress(e *jx.Encoder, a *order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("name", func(e *jx.Encoder) { e.Str(a.Name) })
		e.Field("phone_number", func(e *jx.Encoder) { e.Str(a.PhoneNumber) })
		e.Field("address_line1", func(e *jx.Encoder) { e.Str(a.AddressLine1) })
		optStr(e, "address_line2", a.AddressLine2)
		optStr(e, "landmark", a.Landmark)
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		e.Field("pincode", func(e *jx.Encoder) { e.Str(a.Pincode) })
		if a.Lat != nil {
			e.Field("lat", func(e *jx.Encoder) { e.Float64(*a.Lat) })
		}
		if a.Lng != nil {
			e.Field("lng", func(e *jx.Encoder) { e.Float64(*a.Lng) })
		}
	})
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID.String()) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(p.Status)) })
		e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, p.Amount) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(p.Currency) })
		e.Field("gateway_order_id", func(e *jx.Encoder) { e.Str(p.GatewayOrderID) })
		optStr(e, "gateway_payment_id", p.GatewayPaymentID)
		optStr(e, "method", string(p.Method))
	})
}
