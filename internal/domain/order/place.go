package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/address"
	"github.com/xenking/shop-orders/internal/domain/apperr"
	"github.com/xenking/shop-orders/internal/domain/coupon"
	"github.com/xenking/shop-orders/internal/domain/inventory"
	"github.com/xenking/shop-orders/internal/domain/payment"
)

const createdComment = "Order created successfully"

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID     uuid.UUID
	AddressID  uuid.UUID
	Items      []inventory.Request
	OfferCodes []string
	Charges    []Charge
}

// PlaceOrderResult holds the persisted order and the gateway handle the
// client pays against.
type PlaceOrderResult struct {
	Order        *Order
	GatewayOrder *payment.GatewayOrder
	Totals       Totals
}

// PlaceOrder validates the request, prices it, opens a gateway order and
// persists the order aggregate in one transaction. Nothing is persisted when
// any step fails.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.metrics.createFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("code", apperr.CodeOf(rerr))))
		}
		span.End()
	}()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, "checkout:"+req.UserID.String())
		if err != nil {
			if errors.Is(err, ErrLocked) {
				return nil, apperr.Conflict("checkout_in_progress", "another checkout is in progress for this user")
			}
			return nil, errors.Wrap(err, "acquire checkout lock")
		}
		defer unlock(context.WithoutCancel(ctx))
	}

	addr, err := s.addresses.FindForUser(ctx, req.AddressID, req.UserID)
	if err != nil {
		if errors.Is(err, address.ErrNotFound) {
			return nil, apperr.NotFound("address_not_found", "address not found")
		}
		return nil, errors.Wrap(err, "find address")
	}

	lines, err := s.inventory.Validate(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	subtotal := inventory.Subtotal(lines)

	eval, err := s.coupons.Evaluate(ctx, req.OfferCodes, req.UserID, subtotal)
	if err != nil {
		return nil, err
	}

	for _, c := range req.Charges {
		if !c.Type.Valid() {
			return nil, apperr.Validation("invalid_charge", fmt.Sprintf("unknown charge type %q", c.Type), string(c.Type))
		}
		if c.Amount.IsNegative() {
			return nil, apperr.Validation("invalid_charge", fmt.Sprintf("charge %q must not be negative", c.Name), c.Name)
		}
	}
	charges := sumCharges(req.Charges)
	final := finalAmount(subtotal, eval.TotalDiscount, charges)

	orderID := s.newID()
	gwOrder, err := s.gateway.CreateOrder(ctx, payment.CreateOrderRequest{
		Amount:   payment.MinorUnits(final),
		Currency: s.cfg.Currency,
		Receipt:  orderID.String(),
	})
	if err != nil {
		return nil, apperr.External("payment_gateway_error", "failed to create payment order", err)
	}

	now := s.now()
	o := &Order{
		ID:                   orderID,
		UserID:               req.UserID,
		Status:               StatusPending,
		ExpectedDeliveryDate: now.Add(s.cfg.DeliveryLeadTime),
		Charges:              req.Charges,
		Address:              snapshotAddress(addr),
		Coupons:              appliedCoupons(eval, req.UserID),
		Payment: &payment.Payment{
			ID:             s.newID(),
			OrderID:        orderID,
			Status:         payment.StatusCreated,
			Amount:         final,
			Currency:       s.cfg.Currency,
			GatewayOrderID: gwOrder.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	if err := s.persist(ctx, o, req.Items, lines, now); err != nil {
		return nil, err
	}

	s.metrics.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order placed",
		zap.Stringer("order_id", o.ID),
		zap.Int64("order_number", o.OrderNumber),
		zap.String("gateway_order_id", gwOrder.ID),
		zap.String("amount", final.StringFixed(2)),
	)

	return &PlaceOrderResult{
		Order:        o,
		GatewayOrder: gwOrder,
		Totals: Totals{
			Subtotal:    subtotal.Round(2),
			Discount:    eval.TotalDiscount,
			Charges:     charges,
			FinalAmount: final,
		},
	}, nil
}

// persist writes the aggregate in a fixed order:
// order, charges, items, address, coupons, payment, history.
func (s *Service) persist(ctx context.Context, o *Order, reqs []inventory.Request, lines []inventory.Line, now time.Time) error {
	uow, err := s.tx.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer rollback(ctx, uow)

	if err := uow.CreateOrder(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}
	if len(o.Charges) > 0 {
		if err := uow.AddCharges(ctx, o.ID, o.Charges); err != nil {
			return errors.Wrap(err, "add charges")
		}
	}

	items, err := buildItems(reqs, lines, s.newID)
	if err != nil {
		return err
	}
	o.Items = items
	if err := uow.AddItems(ctx, o.ID, items); err != nil {
		return errors.Wrap(err, "add items")
	}
	if err := uow.AddAddress(ctx, o.ID, *o.Address); err != nil {
		return errors.Wrap(err, "add address")
	}
	if len(o.Coupons) > 0 {
		if err := uow.AddCoupons(ctx, o.ID, o.Coupons); err != nil {
			return errors.Wrap(err, "add coupons")
		}
	}
	if err := uow.AddPayment(ctx, o.Payment); err != nil {
		return errors.Wrap(err, "add payment")
	}
	h := HistoryEntry{
		ID:        s.newID(),
		OrderID:   o.ID,
		Status:    StatusPending,
		Comment:   createdComment,
		UpdatedBy: ActorSystem,
		CreatedAt: now,
	}
	if err := uow.AddHistory(ctx, h); err != nil {
		return errors.Wrap(err, "add history")
	}
	o.History = []HistoryEntry{h}

	if err := uow.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit order")
	}
	return nil
}

// buildItems produces one item per variant with the summed requested
// quantity. A request without a resolved variant fails instead of being
// dropped.
func buildItems(reqs []inventory.Request, lines []inventory.Line, newID func() uuid.UUID) ([]Item, error) {
	byVariant := make(map[uuid.UUID]inventory.Variant, len(lines))
	for _, l := range lines {
		byVariant[l.Variant.ID] = l.Variant
	}
	items := make([]Item, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, r := range reqs {
		if i, ok := index[r.VariantID]; ok {
			items[i].Quantity += r.Quantity
			continue
		}
		v, ok := byVariant[r.VariantID]
		if !ok {
			return nil, apperr.Validation(inventory.CodeInvalidVariants,
				fmt.Sprintf("variant %s is no longer available", r.VariantID), r.VariantID.String())
		}
		index[r.VariantID] = len(items)
		items = append(items, Item{
			ID:          newID(),
			ProductID:   v.ProductID,
			VariantID:   v.ID,
			VariantName: v.Name,
			Quantity:    r.Quantity,
			Price:       v.Price,
			MRP:         v.MRP,
		})
	}
	return items, nil
}

func snapshotAddress(a *address.Address) *Address {
	return &Address{
		Name:         a.Name,
		PhoneNumber:  a.PhoneNumber,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		Landmark:     a.Landmark,
		City:         a.City,
		State:        a.State,
		Pincode:      a.Pincode,
		Lat:          a.Lat,
		Lng:          a.Lng,
	}
}

func appliedCoupons(eval *coupon.Evaluation, userID uuid.UUID) []AppliedCoupon {
	if eval == nil || len(eval.Applied) == 0 {
		return nil
	}
	out := make([]AppliedCoupon, len(eval.Applied))
	for i, a := range eval.Applied {
		out[i] = AppliedCoupon{
			CouponID:       a.Coupon.ID,
			UserID:         userID,
			OfferCode:      a.Coupon.OfferCode,
			DiscountType:   a.Coupon.DiscountType,
			DiscountAmount: a.DiscountAmount,
		}
	}
	return out
}
