package repository

import (
	"context"
	"errors"
	"time"

	"achrilik/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CommissionRepository struct {
	DB          *gorm.DB
	DefaultRate decimal.Decimal
}

func NewCommissionRepository(db *gorm.DB, defaultRate decimal.Decimal) *CommissionRepository {
	return &CommissionRepository{DB: db, DefaultRate: defaultRate}
}

// CurrentCommissionRate returns the rate in force for storeID at the given
// time. A store override wins over the platform rate; without any setting
// the configured default applies.
func (r *CommissionRepository) CurrentCommissionRate(ctx context.Context, storeID uint, at time.Time) (decimal.Decimal, error) {
	var s models.CommissionSetting
	err := r.DB.WithContext(ctx).
		Where("(store_id = ? OR store_id IS NULL) AND effective_from <= ?", storeID, at).
		Order("CASE WHEN store_id IS NULL THEN 1 ELSE 0 END").
		Order("effective_from DESC").
		Order("id DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.DefaultRate, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return s.Rate, nil
}

func (r *CommissionRepository) AddSetting(ctx context.Context, s *models.CommissionSetting) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

// StoreTotals aggregates delivered orders per store in a single statement so
// every row comes from the same snapshot.
func (r *CommissionRepository) StoreTotals(ctx context.Context) ([]models.StoreCommission, error) {
	var rows []models.StoreCommission
	err := r.DB.WithContext(ctx).
		Model(&models.Order{}).
		Select(`store_id,
			COUNT(*) AS order_count,
			COALESCE(SUM(total), 0) AS total_sales,
			COALESCE(SUM(commission_amount), 0) AS commission_due,
			COALESCE(SUM(CASE WHEN commission_paid = ? THEN commission_amount ELSE 0 END), 0) AS commission_paid`, true).
		Where("status = ?", models.OrderDelivered).
		Group("store_id").
		Order("store_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].CommissionUnpaid = rows[i].CommissionDue - rows[i].CommissionPaid
	}
	return rows, nil
}

// MarkPaid stamps every unpaid delivered order of storeID with payoutID and
// returns how many rows changed.
func (r *CommissionRepository) MarkPaid(tx *gorm.DB, storeID uint, payoutID string, at time.Time) (int64, error) {
	res := tx.Model(&models.Order{}).
		Where("store_id = ? AND status = ? AND commission_paid = ?", storeID, models.OrderDelivered, false).
		Updates(map[string]any{
			"commission_paid":      true,
			"commission_paid_at":   at,
			"commission_payout_id": payoutID,
		})
	return res.RowsAffected, res.Error
}

func (r *CommissionRepository) PayoutAmount(tx *gorm.DB, payoutID string) (models.Money, error) {
	var sum int64
	err := tx.Model(&models.Order{}).
		Select("COALESCE(SUM(commission_amount), 0)").
		Where("commission_payout_id = ?", payoutID).
		Scan(&sum).Error
	return models.Money(sum), err
}

func (r *CommissionRepository) CreatePayout(tx *gorm.DB, p *models.CommissionPayout) error {
	return tx.Create(p).Error
}

// Payouts lists payout batches, newest first. A zero storeID lists all stores.
func (r *CommissionRepository) Payouts(ctx context.Context, storeID uint) ([]models.CommissionPayout, error) {
	q := r.DB.WithContext(ctx).Order("paid_at DESC")
	if storeID != 0 {
		q = q.Where("store_id = ?", storeID)
	}
	var out []models.CommissionPayout
	err := q.Find(&out).Error
	return out, err
}
