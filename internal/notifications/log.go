package notifications

import (
	"context"

	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
)

// LogNotifier writes events to the structured log. Used when no broker is
// configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) {
	if n == nil || n.log == nil {
		return
	}
	fields := map[string]any{
		"notification_type": event.Type.String(),
		"recipient_id":      event.RecipientID.String(),
		"status":            event.Status,
	}
	if event.OrderID != nil {
		fields["order_id"] = event.OrderID.String()
	}
	if event.GroupOrderID != nil {
		fields["group_order_id"] = event.GroupOrderID.String()
	}
	n.log.Info(n.log.WithFields(ctx, fields), "notification")
}
