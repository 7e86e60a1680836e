package models

import "time"

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventDeliveryAssigned   = "delivery.assigned"
	EventDeliveryUpdated    = "delivery.status_changed"
	EventCommissionPaid     = "commission.paid"
)

// OrderEvent is published to the order exchange after a committed change.
type OrderEvent struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OrderID    uint        `json:"order_id"`
	StoreID    uint        `json:"store_id"`
	FromStatus OrderStatus `json:"from_status,omitempty"`
	ToStatus   OrderStatus `json:"to_status,omitempty"`
	Total      Money       `json:"total"`
	ActorID    uint        `json:"actor_id"`
	Occurred   time.Time   `json:"occurred"`
}

// TrackingNotification asks the mail collaborator to send a tracking link.
type TrackingNotification struct {
	RecipientEmail string    `json:"recipient_email"`
	OrderID        uint      `json:"order_id"`
	StoreID        uint      `json:"store_id"`
	OrderTotal     Money     `json:"order_total"`
	TrackingURL    string    `json:"tracking_url"`
	RequestedAt    time.Time `json:"requested_at"`
}
