package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/notification"
)

var _ notification.Sender = LogSender{}

// LogSender writes notifications to the context logger instead of delivering
// them. It is used when no transport is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg notification.Message) error {
	zctx.From(ctx).Info("Notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
