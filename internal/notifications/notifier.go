// Package notifications hands order and group-order events to the external
// notification collaborator. Delivery is fire-and-forget: Notify never blocks
// on the transport and never returns an error to the caller.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
)

// Event is one notification for one recipient.
type Event struct {
	Type         enums.NotificationType `json:"type"`
	OrderID      *uuid.UUID             `json:"order_id,omitempty"`
	GroupOrderID *uuid.UUID             `json:"group_order_id,omitempty"`
	Status       string                 `json:"status"`
	RecipientID  uuid.UUID              `json:"recipient_id"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// Notifier delivers events best effort.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// OrderStatusChanged builds the event sent whenever an order changes status.
func OrderStatusChanged(orderID, recipientID uuid.UUID, status enums.OrderStatus) Event {
	id := orderID
	return Event{
		Type:        enums.NotificationTypeOrderStatusChanged,
		OrderID:     &id,
		Status:      status.String(),
		RecipientID: recipientID,
		OccurredAt:  time.Now().UTC(),
	}
}

// GroupOrderEvent builds a group order lifecycle event for one member.
func GroupOrderEvent(typ enums.NotificationType, groupOrderID, recipientID uuid.UUID, status enums.GroupOrderStatus) Event {
	id := groupOrderID
	return Event{
		Type:         typ,
		GroupOrderID: &id,
		Status:       status.String(),
		RecipientID:  recipientID,
		OccurredAt:   time.Now().UTC(),
	}
}
