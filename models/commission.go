package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionSetting is one version of the commission rate. A nil StoreID is
// the platform-wide rate; a set StoreID overrides it for that store.
type CommissionSetting struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	StoreID       *uint           `gorm:"index" json:"storeId,omitempty"`
	Rate          decimal.Decimal `gorm:"type:decimal(6,3);not null" json:"rate"`
	EffectiveFrom time.Time       `gorm:"not null;index" json:"effectiveFrom"`
	CreatedBy     uint            `gorm:"not null" json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// CommissionPayout logs one mark-paid batch.
type CommissionPayout struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	StoreID    uint      `gorm:"not null;index" json:"storeId"`
	OrderCount int64     `gorm:"not null" json:"orderCount"`
	Amount     Money     `gorm:"not null" json:"amount"`
	Note       string    `gorm:"size:500" json:"note"`
	PaidBy     uint      `gorm:"not null" json:"paidBy"`
	PaidAt     time.Time `gorm:"not null" json:"paidAt"`
}

type StoreCommission struct {
	StoreID          uint  `json:"storeId"`
	OrderCount       int64 `json:"orderCount"`
	TotalSales       Money `json:"totalSales"`
	CommissionDue    Money `json:"commissionDue"`
	CommissionPaid   Money `json:"commissionPaid"`
	CommissionUnpaid Money `json:"commissionUnpaid"`
}

type CommissionSummary struct {
	OrderCount  int64             `json:"orderCount"`
	TotalSales  Money             `json:"totalSales"`
	TotalDue    Money             `json:"totalDue"`
	TotalPaid   Money             `json:"totalPaid"`
	TotalUnpaid Money             `json:"totalUnpaid"`
	ByStore     []StoreCommission `json:"byStore"`
}
