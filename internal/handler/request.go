package handler

import (
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/apperr"
	"github.com/xenking/shop-orders/internal/domain/inventory"
	"github.com/xenking/shop-orders/internal/domain/order"
)

const (
	maxBodySize = 1 << 20
	maxQuantity = 1000
)

func invalid(field, msg string) error {
	return apperr.Validation("invalid_request", msg, field)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("invalid_request", "request body too large")
		}
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) == 0 {
		return nil, apperr.Validation("invalid_request", "request body is required")
	}
	return data, nil
}

// syntaxError classifies a decoder failure that is not already an apperr.
func syntaxError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Validation("invalid_json", "malformed JSON body: "+err.Error())
}

func decodeUUID(d *jx.Decoder, field string) (uuid.UUID, error) {
	s, err := d.Str()
	if err != nil {
		return uuid.Nil, invalid(field, field+" must be a string")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, invalid(field, field+" must be a UUID")
	}
	return id, nil
}

func isNull(d *jx.Decoder) (bool, error) {
	if d.Next() != jx.Null {
		return false, nil
	}
	return true, d.Null()
}

// decodePlaceOrder parses the POST /orders body. Unknown fields are rejected.
func decodePlaceOrder(data []byte) (order.PlaceOrderRequest, error) {
	var (
		req        order.PlaceOrderRequest
		hasAddress bool
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d, len(req.Items))
				if err != nil {
					return err
				}
				req.Items = append(req.Items, it)
				return nil
			})
		case "address_id":
			id, err := decodeUUID(d, "address_id")
			if err != nil {
				return err
			}
			req.AddressID, hasAddress = id, true
			return nil
		case "offer_codes":
			if null, err := isNull(d); null || err != nil {
				return err
			}
			return d.Arr(func(d *jx.Decoder) error {
				code, err := d.Str()
				if err != nil {
					return invalid("offer_codes", "offer_codes must be strings")
				}
				req.OfferCodes = append(req.OfferCodes, code)
				return nil
			})
		case "charges":
			if null, err := isNull(d); null || err != nil {
				return err
			}
			return d.Arr(func(d *jx.Decoder) error {
				c, err := decodeCharge(d)
				if err != nil {
					return err
				}
				req.Charges = append(req.Charges, c)
				return nil
			})
		default:
			return apperr.Validation("unknown_field", "unknown field "+strconv.Quote(key), key)
		}
	})
	if err != nil {
		return req, syntaxError(err)
	}
	if len(req.Items) == 0 {
		return req, invalid("items", "items must not be empty")
	}
	if !hasAddress {
		return req, invalid("address_id", "address_id is required")
	}
	return req, nil
}

func decodeItem(d *jx.Decoder, idx int) (inventory.Request, error) {
	var (
		it     inventory.Request
		hasQty bool
	)
	field := "items[" + strconv.Itoa(idx) + "]"
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_variant_id":
			id, err := decodeUUID(d, field+".product_variant_id")
			it.VariantID = id
			return err
		case "quantity":
			f, err := d.Float64()
			if err != nil || f != math.Trunc(f) || f < 1 || f > maxQuantity {
				return invalid(field+".quantity", "quantity must be an integer between 1 and 1000")
			}
			it.Quantity, hasQty = int(f), true
			return nil
		default:
			return apperr.Validation("unknown_field", "unknown field "+strconv.Quote(key), field+"."+key)
		}
	})
	if err != nil {
		return it, err
	}
	if it.VariantID == uuid.Nil {
		return it, invalid(field+".product_variant_id", "product_variant_id is required")
	}
	if !hasQty {
		return it, invalid(field+".quantity", "quantity is required")
	}
	return it, nil
}

func decodeCharge(d *jx.Decoder) (order.Charge, error) {
	var (
		c         order.Charge
		hasAmount bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			s, err := d.Str()
			if err != nil || !order.ChargeType(s).Valid() {
				return apperr.Validation("invalid_charge", "charge type must be delivery", "charges.type")
			}
			c.Type = order.ChargeType(s)
			return nil
		case "name":
			s, err := d.Str()
			if err != nil {
				return invalid("charges.name", "charge name must be a string")
			}
			c.Name = s
			return nil
		case "amount":
			if d.Next() != jx.Number {
				return invalid("charges.amount", "charge amount must be a number")
			}
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(raw.String())
			if err != nil {
				return invalid("charges.amount", "charge amount must be a number")
			}
			c.Amount, hasAmount = amount, true
			return nil
		default:
			return apperr.Validation("unknown_field", "unknown field "+strconv.Quote(key), "charges."+key)
		}
	})
	if err != nil {
		return c, err
	}
	switch {
	case c.Type == "":
		return c, apperr.Validation("invalid_charge", "charge type is required", "charges.type")
	case strings.TrimSpace(c.Name) == "":
		return c, invalid("charges.name", "charge name is required")
	case !hasAmount || c.Amount.IsNegative():
		return c, invalid("charges.amount", "charge amount must be zero or more")
	}
	return c, nil
}

// decodeVerifyPayment parses the gateway callback. Both the gateway's own
// razorpay_* names and the neutral gateway_* names are accepted; any other
// field is rejected.
func decodeVerifyPayment(data []byte) (order.VerifyPaymentRequest, error) {
	var req order.VerifyPaymentRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "razorpay_order_id", "gateway_order_id":
			dst = &req.GatewayOrderID
		case "razorpay_payment_id", "gateway_payment_id":
			dst = &req.GatewayPaymentID
		case "razorpay_signature", "gateway_signature":
			dst = &req.Signature
		default:
			return apperr.Validation("unknown_field", "unknown field "+strconv.Quote(key), key)
		}
		s, err := d.Str()
		if err != nil {
			return invalid(key, key+" must be a string")
		}
		*dst = s
		return nil
	})
	if err != nil {
		return req, syntaxError(err)
	}
	switch {
	case req.GatewayOrderID == "":
		return req, invalid("razorpay_order_id", "razorpay_order_id is required")
	case req.GatewayPaymentID == "":
		return req, invalid("razorpay_payment_id", "razorpay_payment_id is required")
	case req.Signature == "":
		return req, invalid("razorpay_signature", "razorpay_signature is required")
	}
	return req, nil
}

// decodeUpdateStatus parses {"status": ..., "comment": ...}.
func decodeUpdateStatus(data []byte) (order.UpdateStatusRequest, error) {
	var req order.UpdateStatusRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			if err != nil {
				return invalid("status", "status must be a string")
			}
			req.Status = order.Status(s)
			return nil
		case "comment":
			if null, err := isNull(d); null || err != nil {
				return err
			}
			s, err := d.Str()
			if err != nil {
				return invalid("comment", "comment must be a string")
			}
			req.Comment = s
			return nil
		default:
			return apperr.Validation("unknown_field", "unknown field "+strconv.Quote(key), key)
		}
	})
	if err != nil {
		return req, syntaxError(err)
	}
	if req.Status == "" {
		return req, invalid("status", "status is required")
	}
	return req, nil
}

func parsePage(q url.Values) (order.Page, error) {
	page, err := intParam(q, "page")
	if err != nil {
		return order.Page{}, err
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		return order.Page{}, err
	}
	return order.NewPage(page, limit)
}

func intParam(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, apperr.Validation("invalid_"+name, name+" must be a positive integer", name)
	}
	return n, nil
}

// parseFilter reads the admin listing query: status (comma separated),
// user_id, phone_number and order_number.
func parseFilter(q url.Values) (order.Filter, error) {
	var (
		f   order.Filter
		err error
	)
	if f.Page, err = parsePage(q); err != nil {
		return f, err
	}
	if s := q.Get("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			st = strings.TrimSpace(st)
			if st != "" {
				f.Statuses = append(f.Statuses, order.Status(st))
			}
		}
	}
	if s := q.Get("user_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return f, invalid("user_id", "user_id must be a UUID")
		}
		f.UserID = &id
	}
	f.PhoneNumber = strings.TrimSpace(q.Get("phone_number"))
	if s := q.Get("order_number"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 63); err != nil || n < 1 {
			return f, invalid("order_number", "order_number must be a positive number")
		}
		f.OrderNumber = s
	}
	return f, nil
}
