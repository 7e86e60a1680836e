package repository

import (
	"context"
	"errors"
	"strings"

	"achrilik/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AgentRepository holds delivery agents and the wilaya -> agent routing table.
type AgentRepository struct {
	DB *gorm.DB
}

func NewAgentRepository(db *gorm.DB) *AgentRepository {
	return &AgentRepository{DB: db}
}

// NormalizeWilaya makes region keys case and whitespace insensitive.
func NormalizeWilaya(w string) string {
	return strings.ToUpper(strings.TrimSpace(w))
}

// ResolveDefaultAgent returns the active agent configured for wilaya, or
// ok=false when the region is not covered.
func (r *AgentRepository) ResolveDefaultAgent(ctx context.Context, wilaya string) (uint, bool, error) {
	var row struct{ AgentID uint }
	err := r.DB.WithContext(ctx).
		Table("wilaya_agents AS w").
		Select("w.agent_id").
		Joins("JOIN delivery_agents a ON a.user_id = w.agent_id").
		Where("w.wilaya = ? AND a.active = ?", NormalizeWilaya(wilaya), true).
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return 0, false, err
	}
	return row.AgentID, row.AgentID != 0, nil
}

func (r *AgentRepository) SetWilayaAgent(ctx context.Context, wilaya string, agentID uint) (*models.WilayaAgent, error) {
	wa := models.WilayaAgent{Wilaya: NormalizeWilaya(wilaya), AgentID: agentID}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wilaya"}},
		DoUpdates: clause.AssignmentColumns([]string{"agent_id", "updated_at"}),
	}).Create(&wa).Error
	if err != nil {
		return nil, err
	}
	return &wa, nil
}

func (r *AgentRepository) Get(ctx context.Context, tx *gorm.DB, userID uint) (*models.DeliveryAgent, error) {
	var a models.DeliveryAgent
	err := tx.WithContext(ctx).First(&a, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Upsert registers an agent, keeping its counters when it already exists.
func (r *AgentRepository) Upsert(ctx context.Context, a *models.DeliveryAgent) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "active", "updated_at"}),
	}).Create(a).Error
}

func (r *AgentRepository) IncrementCompleted(tx *gorm.DB, userID uint) error {
	return tx.Model(&models.DeliveryAgent{}).
		Where("user_id = ?", userID).
		UpdateColumn("completed_deliveries", gorm.Expr("completed_deliveries + 1")).Error
}
