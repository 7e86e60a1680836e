package services

import (
	"context"
	"time"

	"achrilik/models"

	"github.com/shopspring/decimal"
)

// Notifier tells the buyer where to follow a parcel. Delivery is best effort.
type Notifier interface {
	NotifyTrackingURL(ctx context.Context, recipientEmail string, order *models.Order, trackingURL string) error
}

// EventPublisher receives committed order and ledger changes.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev models.OrderEvent) error
}

// AgentResolver maps a wilaya to its default delivery agent.
type AgentResolver interface {
	ResolveDefaultAgent(ctx context.Context, wilaya string) (agentID uint, ok bool, err error)
}

// RateSource returns the commission percentage in force for a store.
type RateSource interface {
	CurrentCommissionRate(ctx context.Context, storeID uint, at time.Time) (decimal.Decimal, error)
}
