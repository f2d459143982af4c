package enums

import "fmt"

// NotificationType identifies the event sent to the notification collaborator.
type NotificationType string

const (
	NotificationTypeOrderStatusChanged  NotificationType = "order_status_changed"
	NotificationTypeOrderPaid           NotificationType = "order_paid"
	NotificationTypeOrderRefunded       NotificationType = "order_refunded"
	NotificationTypeGroupOrderClosed    NotificationType = "group_order_closed"
	NotificationTypeGroupOrderCancelled NotificationType = "group_order_cancelled"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderStatusChanged,
	NotificationTypeOrderPaid,
	NotificationTypeOrderRefunded,
	NotificationTypeGroupOrderClosed,
	NotificationTypeGroupOrderCancelled,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
