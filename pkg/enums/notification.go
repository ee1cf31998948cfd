package enums

// NotificationType is carried in the "kind" attribute of notification messages.
type NotificationType string

const (
	NotificationTypeOrderConfirmation NotificationType = "order_confirmation"
)
