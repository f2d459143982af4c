package enums

import "fmt"

// OrderStatus tracks the fulfillment lifecycle of a supplier-scoped order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// IsTerminal reports whether no further status transition is allowed.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusDelivered || o == OrderStatusCancelled
}

// CanTransitionTo reports whether a supplier may move an order from o to next.
// Forward moves are pending -> processing -> delivered; any non-terminal
// status may be cancelled.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if o.IsTerminal() {
		return false
	}
	switch next {
	case OrderStatusCancelled:
		return true
	case OrderStatusProcessing:
		return o == OrderStatusPending
	case OrderStatusDelivered:
		return o == OrderStatusProcessing
	default:
		return false
	}
}
