package models

import "time"

type DeliveryStatus string

const (
	DeliveryPending        DeliveryStatus = "PENDING"
	DeliveryAssigned       DeliveryStatus = "ASSIGNED"
	DeliveryPickedUp       DeliveryStatus = "PICKED_UP"
	DeliveryInTransit      DeliveryStatus = "IN_TRANSIT"
	DeliveryOutForDelivery DeliveryStatus = "OUT_FOR_DELIVERY"
	DeliveryDelivered      DeliveryStatus = "DELIVERED"
	DeliveryFailed         DeliveryStatus = "FAILED"
	DeliveryReturned       DeliveryStatus = "RETURNED"
)

var DeliveryChain = []DeliveryStatus{
	DeliveryPending,
	DeliveryAssigned,
	DeliveryPickedUp,
	DeliveryInTransit,
	DeliveryOutForDelivery,
	DeliveryDelivered,
}

func (s DeliveryStatus) Valid() bool {
	return s == DeliveryFailed || s == DeliveryReturned || s.position() >= 0
}

func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed || s == DeliveryReturned
}

// InProgress is true once the parcel left the merchant and before any outcome.
func (s DeliveryStatus) InProgress() bool {
	return s == DeliveryPickedUp || s == DeliveryInTransit || s == DeliveryOutForDelivery
}

// HandedOver is true at or after OUT_FOR_DELIVERY on the happy path.
func (s DeliveryStatus) HandedOver() bool {
	return s == DeliveryOutForDelivery || s == DeliveryDelivered
}

func (s DeliveryStatus) Next() (DeliveryStatus, bool) {
	i := s.position()
	if i < 0 || i == len(DeliveryChain)-1 {
		return "", false
	}
	return DeliveryChain[i+1], true
}

func (s DeliveryStatus) position() int {
	for i, c := range DeliveryChain {
		if c == s {
			return i
		}
	}
	return -1
}

// Delivery is the logistics leg of one home-delivery order.
type Delivery struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrderID        uint           `gorm:"not null;uniqueIndex" json:"orderId"`
	AgentID        *uint          `gorm:"index" json:"agentId"`
	Status         DeliveryStatus `gorm:"size:32;not null" json:"status"`
	Version        int            `gorm:"not null;default:0" json:"version"`
	CODAmount      *Money         `json:"codAmount"`
	CODCollected   bool           `gorm:"not null;default:false" json:"codCollected"`
	CODCollectedAt *time.Time     `json:"codCollectedAt,omitempty"`
	CODTransferred bool           `gorm:"not null;default:false" json:"codTransferred"`
	CODTransferAt  *time.Time     `json:"codTransferredAt,omitempty"`
	TrackingNumber string         `gorm:"size:64;uniqueIndex" json:"trackingNumber"`
	TrackingURL    string         `gorm:"size:500" json:"trackingUrl"`
	AgentNotes     string         `gorm:"size:1000" json:"agentNotes"`
	AssignedAt     *time.Time     `json:"assignedAt,omitempty"`
	DeliveredAt    *time.Time     `json:"deliveredAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// DeliveryAgent carries per-agent counters; agents are identified by user id.
type DeliveryAgent struct {
	UserID              uint      `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	Name                string    `gorm:"size:128" json:"name"`
	Active              bool      `gorm:"not null;default:true" json:"active"`
	CompletedDeliveries int64     `gorm:"not null;default:0" json:"completedDeliveries"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// WilayaAgent maps a delivery region to its default agent.
type WilayaAgent struct {
	Wilaya    string    `gorm:"primaryKey;size:64" json:"wilaya"`
	AgentID   uint      `gorm:"not null" json:"agentId"`
	UpdatedAt time.Time `json:"updatedAt"`
}
