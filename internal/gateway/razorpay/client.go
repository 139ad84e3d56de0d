// Package razorpay is a minimal client of the Razorpay orders and payments API.
package razorpay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/shop-orders/internal/domain/payment"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.razorpay.com"

// Config configures the Client.
type Config struct {
	BaseURL   string        `default:"https://api.razorpay.com" usage:"Razorpay API base URL"`
	KeyID     string        `usage:"Razorpay key id"`
	KeySecret string        `usage:"Razorpay key secret, also used to verify payment signatures"`
	Timeout   time.Duration `default:"10s" usage:"per-request timeout"`
}

// APIError is a non-2xx response of the API.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("razorpay: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

var _ payment.Gateway = (*Client)(nil)

// Client implements payment.Gateway over the Razorpay REST API.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

// New creates a Client. The transport is instrumented with OpenTelemetry.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CreateOrder creates a provisional gateway order.
func (c *Client) CreateOrder(ctx context.Context, req payment.CreateOrderRequest) (*payment.GatewayOrder, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(req.Amount) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(req.Currency) })
		e.Field("receipt", func(e *jx.Encoder) { e.Str(req.Receipt) })
	})

	var out payment.GatewayOrder
	if err := c.do(ctx, http.MethodPost, "/v1/orders", e.Bytes(), func(d *jx.Decoder) error {
		return decodeOrder(d, &out)
	}); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return &out, nil
}

// GetOrder fetches a gateway order by id.
func (c *Client) GetOrder(ctx context.Context, id string) (*payment.GatewayOrder, error) {
	var out payment.GatewayOrder
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(id), nil, func(d *jx.Decoder) error {
		return decodeOrder(d, &out)
	}); err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return &out, nil
}

// GetPayment fetches a gateway payment by id.
func (c *Client) GetPayment(ctx context.Context, id string) (*payment.GatewayPayment, error) {
	var out payment.GatewayPayment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, func(d *jx.Decoder) error {
		return decodePayment(d, &out)
	}); err != nil {
		return nil, errors.Wrapf(err, "get payment %s", id)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, decode func(*jx.Decoder) error) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if err := decode(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func decodeOrder(d *jx.Decoder, o *payment.GatewayOrder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "amount":
			o.Amount, err = d.Int64()
		case "amount_paid":
			o.AmountPaid, err = d.Int64()
		case "currency":
			o.Currency, err = d.Str()
		case "receipt":
			o.Receipt, err = optStr(d)
		case "status":
			o.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodePayment(d *jx.Decoder, p *payment.GatewayPayment) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "order_id":
			p.OrderID, err = optStr(d)
		case "amount":
			p.Amount, err = d.Int64()
		case "status":
			p.Status, err = d.Str()
		case "method":
			var m string
			m, err = optStr(d)
			p.Method = payment.Method(m)
		default:
			err = d.Skip()
		}
		return err
	})
}

// decodeError parses {"error": {"code": ..., "description": ...}}, falling
// back to the raw body when it is not in that shape.
func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "code":
				apiErr.Code, err = optStr(d)
			case "description":
				apiErr.Description, err = optStr(d)
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil || apiErr.Code == "" {
		apiErr.Description = strings.TrimSpace(string(data))
	}
	return apiErr
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
