package order

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/apperr"
	"github.com/xenking/shop-orders/internal/domain/notification"
)

// UpdateStatusRequest moves an order to a new status on behalf of an admin.
type UpdateStatusRequest struct {
	OrderID uuid.UUID
	Status  Status
	Comment string
}

// UpdateStatus validates the transition, updates the order and appends a
// history row in one transaction, then notifies the customer in the background.
func (s *Service) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if !req.Status.Valid() {
		return nil, apperr.Validation(CodeInvalidStatus, fmt.Sprintf("unknown order status %q", req.Status), string(req.Status))
	}

	o, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("order_not_found", "order not found")
		}
		return nil, errors.Wrap(err, "get order")
	}
	if err := CheckTransition(o.Status, req.Status); err != nil {
		return nil, err
	}

	from := o.Status
	now := s.now()
	o.Status = req.Status
	o.UpdatedAt = now
	switch req.Status {
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCancelled, StatusRejected:
		if req.Comment != "" {
			reason := req.Comment
			o.CancellationReason = &reason
		}
	}

	h := HistoryEntry{
		ID:        s.newID(),
		OrderID:   o.ID,
		Status:    req.Status,
		Comment:   req.Comment,
		UpdatedBy: ActorAdmin,
		CreatedAt: now,
	}
	if err := s.saveStatus(ctx, o, h); err != nil {
		return nil, err
	}
	o.History = append(o.History, h)

	s.metrics.statusChanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(req.Status)),
	))
	zctx.From(ctx).Info("Order status updated",
		zap.Stringer("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(req.Status)),
	)

	if o.Customer != nil && o.Customer.Email != "" {
		s.notifyStatus(ctx, o, req.Comment)
	}
	return o, nil
}

func (s *Service) saveStatus(ctx context.Context, o *Order, h HistoryEntry) error {
	uow, err := s.tx.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer rollback(ctx, uow)

	if err := uow.UpdateStatus(ctx, o); err != nil {
		return errors.Wrap(err, "update status")
	}
	if err := uow.AddHistory(ctx, h); err != nil {
		return errors.Wrap(err, "add history")
	}
	if err := uow.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit status")
	}
	return nil
}

// notifyStatus sends the status email on a detached context. Failures are
// logged and never reach the caller.
func (s *Service) notifyStatus(ctx context.Context, o *Order, comment string) {
	if s.notifier == nil {
		return
	}
	msg, err := statusMessage(o, comment)
	if err != nil {
		zctx.From(ctx).Error("Render status email", zap.Error(err))
		return
	}

	lg := zctx.From(ctx).With(zap.Stringer("order_id", o.ID))
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := s.notifier.Send(ctx, msg); err != nil {
			lg.Warn("Status notification failed", zap.Error(err))
		}
	}()
}

var statusEmail = template.Must(template.New("status").Parse(`<p>Hi {{.Name}},</p>
<p>Your order <strong>#{{.Number}}</strong> is now <strong>{{.Status}}</strong>.</p>
{{- if .Comment}}
<p>{{.Comment}}</p>
{{- end}}
<p>Thank you for shopping with us.</p>
`))

func statusMessage(o *Order, comment string) (notification.Message, error) {
	var buf bytes.Buffer
	err := statusEmail.Execute(&buf, struct {
		Name    string
		Number  int64
		Status  string
		Comment string
	}{
		Name:    o.Customer.FirstName,
		Number:  o.DisplayNumber(),
		Status:  statusLabel(o.Status),
		Comment: comment,
	})
	if err != nil {
		return notification.Message{}, err
	}
	return notification.Message{
		To:      o.Customer.Email,
		Subject: fmt.Sprintf("Update on your order #%d", o.DisplayNumber()),
		HTML:    buf.String(),
	}, nil
}

func statusLabel(s Status) string {
	if s == StatusOutForDelivery {
		return "out for delivery"
	}
	return string(s)
}
