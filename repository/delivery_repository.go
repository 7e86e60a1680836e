package repository

import (
	"context"
	"errors"
	"time"

	"achrilik/models"

	"gorm.io/gorm"
)

type DeliveryRepository struct {
	DB *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{DB: db}
}

func (r *DeliveryRepository) Create(tx *gorm.DB, d *models.Delivery) error {
	return tx.Create(d).Error
}

func (r *DeliveryRepository) Get(ctx context.Context, tx *gorm.DB, id uint) (*models.Delivery, error) {
	var d models.Delivery
	err := tx.WithContext(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByOrder returns ErrNotFound when the order has no delivery yet.
func (r *DeliveryRepository) GetByOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*models.Delivery, error) {
	var d models.Delivery
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateGuard applies updates only if the delivery is still at d.Version.
func (r *DeliveryRepository) UpdateGuard(tx *gorm.DB, d *models.Delivery, updates map[string]any, at time.Time) (int64, error) {
	cols := map[string]any{
		"version":    gorm.Expr("version + 1"),
		"updated_at": at,
	}
	for k, v := range updates {
		cols[k] = v
	}
	res := tx.Model(&models.Delivery{}).
		Where("id = ? AND version = ?", d.ID, d.Version).
		Updates(cols)
	return res.RowsAffected, res.Error
}
