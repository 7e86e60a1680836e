package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending           OrderStatus = "PENDING"
	OrderPaymentPending    OrderStatus = "PAYMENT_PENDING"
	OrderConfirmed         OrderStatus = "CONFIRMED"
	OrderAtMerchant        OrderStatus = "AT_MERCHANT"
	OrderReadyForPickup    OrderStatus = "READY_FOR_PICKUP"
	OrderWithDeliveryAgent OrderStatus = "WITH_DELIVERY_AGENT"
	OrderOutForDelivery    OrderStatus = "OUT_FOR_DELIVERY"
	OrderDelivered         OrderStatus = "DELIVERED"
	OrderCancelled         OrderStatus = "CANCELLED"
	OrderReturned          OrderStatus = "RETURNED"
)

// OrderChain is the linear forward progression of an order.
var OrderChain = []OrderStatus{
	OrderPending,
	OrderPaymentPending,
	OrderConfirmed,
	OrderAtMerchant,
	OrderReadyForPickup,
	OrderWithDeliveryAgent,
	OrderOutForDelivery,
	OrderDelivered,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderCancelled, OrderReturned:
		return true
	}
	return s.position() >= 0
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderReturned
}

// IsEscape reports whether s is reachable from any non-terminal status.
func (s OrderStatus) IsEscape() bool {
	return s == OrderCancelled || s == OrderReturned
}

// Next returns the immediate successor in OrderChain.
func (s OrderStatus) Next() (OrderStatus, bool) {
	i := s.position()
	if i < 0 || i == len(OrderChain)-1 {
		return "", false
	}
	return OrderChain[i+1], true
}

func (s OrderStatus) position() int {
	for i, c := range OrderChain {
		if c == s {
			return i
		}
	}
	return -1
}

type DeliveryType string

const (
	HomeDelivery DeliveryType = "HOME_DELIVERY"
	ClickCollect DeliveryType = "CLICK_COLLECT"
)

func (t DeliveryType) Valid() bool { return t == HomeDelivery || t == ClickCollect }

type PaymentMethod string

const (
	CashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	Card           PaymentMethod = "CARD"
	BankTransfer   PaymentMethod = "BANK_TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case CashOnDelivery, Card, BankTransfer:
		return true
	}
	return false
}

// Order is one buyer purchase from one store.
type Order struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	BuyerID       uint          `gorm:"not null;index" json:"buyerId"`
	BuyerEmail    string        `gorm:"size:255" json:"buyerEmail"`
	StoreID       uint          `gorm:"not null;index" json:"storeId"`
	Wilaya        string        `gorm:"size:64" json:"wilaya"`
	Subtotal      Money         `gorm:"not null" json:"subtotal"`
	DeliveryFee   Money         `gorm:"not null" json:"deliveryFee"`
	Total         Money         `gorm:"not null" json:"total"`
	DeliveryType  DeliveryType  `gorm:"size:32;not null" json:"deliveryType"`
	PaymentMethod PaymentMethod `gorm:"size:32;not null" json:"paymentMethod"`
	Status        OrderStatus   `gorm:"size:32;not null;index" json:"status"`
	Version       int           `gorm:"not null;default:0" json:"version"`

	// Snapshotted when the order is confirmed, never re-read from settings.
	CommissionRate     decimal.NullDecimal `gorm:"type:decimal(6,3)" json:"commissionRate"`
	CommissionAmount   Money               `gorm:"not null;default:0" json:"commissionAmount"`
	CommissionLockedAt *time.Time          `json:"commissionLockedAt,omitempty"`
	CommissionPaid     bool                `gorm:"not null;default:false;index" json:"commissionPaid"`
	CommissionPaidAt   *time.Time          `json:"commissionPaidAt,omitempty"`
	CommissionPayoutID *string             `gorm:"size:36;index" json:"commissionPayoutId,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckTotals verifies total == subtotal + deliveryFee.
func (o *Order) CheckTotals() error {
	if err := o.Subtotal.Validate(); err != nil {
		return err
	}
	if err := o.DeliveryFee.Validate(); err != nil {
		return err
	}
	if o.Total != o.Subtotal+o.DeliveryFee {
		return fmt.Errorf("%w: %d != %d + %d", ErrTotalMismatch, o.Total, o.Subtotal, o.DeliveryFee)
	}
	return nil
}

// IsCOD reports whether the agent collects payment at handoff.
func (o *Order) IsCOD() bool { return o.PaymentMethod == CashOnDelivery }

// OrderItem is an immutable line captured at purchase time.
type OrderItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"orderId"`
	VariantID uint      `gorm:"not null" json:"variantId"`
	Quantity  Quantity  `gorm:"not null" json:"quantity"`
	UnitPrice Money     `gorm:"not null" json:"unitPrice"`
	LineTotal Money     `gorm:"not null" json:"lineTotal"`
	CreatedAt time.Time `json:"createdAt"`
}

// OrderStatusHistory is one append-only transition record.
type OrderStatusHistory struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uint        `gorm:"not null;index" json:"orderId"`
	FromStatus OrderStatus `gorm:"size:32;not null" json:"from"`
	ToStatus   OrderStatus `gorm:"size:32;not null" json:"to"`
	ActorID    uint        `gorm:"not null" json:"actorId"`
	ActorRole  Role        `gorm:"size:32;not null" json:"actorRole"`
	Note       string      `gorm:"size:500" json:"note"`
	At         time.Time   `gorm:"not null" json:"at"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }

// Variant is the sellable unit whose live price is copied into order items.
type Variant struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	StoreID uint   `gorm:"not null;index" json:"storeId"`
	SKU     string `gorm:"size:64" json:"sku"`
	Price   Money  `gorm:"not null" json:"price"`
}
