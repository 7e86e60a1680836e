package repository

import (
	"context"
	"errors"
	"time"

	"achrilik/models"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type OrderRepository struct {
	DB *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{DB: db}
}

// Create inserts the order header and its items in tx.
func (r *OrderRepository) Create(tx *gorm.DB, o *models.Order) error {
	return tx.Create(o).Error
}

func (r *OrderRepository) Get(ctx context.Context, tx *gorm.DB, id uint) (*models.Order, error) {
	var o models.Order
	err := tx.WithContext(ctx).Preload("Items").First(&o, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateStatusGuard moves the order from (status, version) to next, applying
// extra column updates in the same statement. A zero row count means somebody
// else changed the order first.
func (r *OrderRepository) UpdateStatusGuard(tx *gorm.DB, o *models.Order, next models.OrderStatus, extra map[string]any, at time.Time) (int64, error) {
	updates := map[string]any{
		"status":     next,
		"version":    gorm.Expr("version + 1"),
		"updated_at": at,
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ? AND version = ?", o.ID, o.Status, o.Version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *OrderRepository) AppendHistory(tx *gorm.DB, h *models.OrderStatusHistory) error {
	return tx.Create(h).Error
}

func (r *OrderRepository) History(ctx context.Context, orderID uint) ([]models.OrderStatusHistory, error) {
	var out []models.OrderStatusHistory
	err := r.DB.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// VariantsByIDs returns the live variants keyed by id.
func (r *OrderRepository) VariantsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]models.Variant, error) {
	var rows []models.Variant
	if err := tx.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]models.Variant, len(rows))
	for _, v := range rows {
		out[v.ID] = v
	}
	return out, nil
}
