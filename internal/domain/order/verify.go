package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shop-orders/internal/domain/apperr"
	"github.com/xenking/shop-orders/internal/domain/payment"
)

// Error codes of payment verification.
const (
	CodeSignatureMismatch = "signature_mismatch"
	CodeNotCaptured       = "not_captured"
	CodeAlreadyCaptured   = "already_captured"
)

// VerifyPaymentRequest is the gateway callback data submitted by the client.
type VerifyPaymentRequest struct {
	UserID           uuid.UUID
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerifyPayment checks the callback signature, confirms the capture with the
// gateway and marks the local payment captured exactly once, clearing the
// user's cart in the same transaction. The order status is not changed.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (_ *payment.Payment, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.VerifyPayment")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if !payment.VerifySignature(s.cfg.GatewaySecret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		return nil, apperr.Validation(CodeSignatureMismatch, "payment signature verification failed")
	}

	var (
		gwOrder   *payment.GatewayOrder
		gwPayment *payment.GatewayPayment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := s.gateway.GetOrder(gctx, req.GatewayOrderID)
		if err != nil {
			return errors.Wrap(err, "fetch gateway order")
		}
		gwOrder = o
		return nil
	})
	g.Go(func() error {
		p, err := s.gateway.GetPayment(gctx, req.GatewayPaymentID)
		if err != nil {
			return errors.Wrap(err, "fetch gateway payment")
		}
		gwPayment = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.External("payment_gateway_error", "failed to fetch payment status", err)
	}
	if gwOrder.Status != payment.GatewayOrderPaid || gwPayment.Status != payment.GatewayPaymentCaptured {
		return nil, apperr.Validation(CodeNotCaptured, "payment has not been captured")
	}

	p, err := s.capture(ctx, req, gwPayment)
	if err != nil {
		return nil, err
	}

	s.metrics.captured.Add(ctx, 1)
	zctx.From(ctx).Info("Payment captured",
		zap.Stringer("order_id", p.OrderID),
		zap.String("gateway_order_id", p.GatewayOrderID),
		zap.String("gateway_payment_id", p.GatewayPaymentID),
	)
	return p, nil
}

func (s *Service) capture(ctx context.Context, req VerifyPaymentRequest, gw *payment.GatewayPayment) (*payment.Payment, error) {
	uow, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	defer rollback(ctx, uow)

	p, err := uow.LockPayment(ctx, req.GatewayOrderID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return nil, apperr.NotFound("payment_not_found", "payment details not found")
		}
		return nil, errors.Wrap(err, "lock payment")
	}
	if p.Status == payment.StatusCaptured {
		return nil, apperr.Validation(CodeAlreadyCaptured, "payment already captured")
	}

	p.Status = payment.StatusCaptured
	p.GatewayPaymentID = req.GatewayPaymentID
	p.GatewaySignature = req.Signature
	p.Method = gw.Method
	p.UpdatedAt = s.now()
	if err := uow.CapturePayment(ctx, p); err != nil {
		return nil, errors.Wrap(err, "capture payment")
	}
	if err := uow.ClearCart(ctx, req.UserID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit capture")
	}
	return p, nil
}
