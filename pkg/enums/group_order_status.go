package enums

import "fmt"

// GroupOrderStatus is the lifecycle of a pooled purchase.
type GroupOrderStatus string

const (
	GroupOrderStatusOpen      GroupOrderStatus = "open"
	GroupOrderStatusClosed    GroupOrderStatus = "closed"
	GroupOrderStatusCancelled GroupOrderStatus = "cancelled"
	GroupOrderStatusFulfilled GroupOrderStatus = "fulfilled"
)

var validGroupOrderStatuses = []GroupOrderStatus{
	GroupOrderStatusOpen,
	GroupOrderStatusClosed,
	GroupOrderStatusCancelled,
	GroupOrderStatusFulfilled,
}

// String implements fmt.Stringer.
func (g GroupOrderStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GroupOrderStatus.
func (g GroupOrderStatus) IsValid() bool {
	for _, candidate := range validGroupOrderStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGroupOrderStatus converts raw input into a GroupOrderStatus.
func ParseGroupOrderStatus(value string) (GroupOrderStatus, error) {
	for _, candidate := range validGroupOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid group order status %q", value)
}
