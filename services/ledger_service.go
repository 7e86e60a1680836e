package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"achrilik/models"
	"achrilik/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService derives commission balances from delivered orders and
// records payouts.
type LedgerService struct {
	db          *gorm.DB
	commissions *repository.CommissionRepository
	events      EventPublisher
	dispatch    *Dispatcher
	log         *slog.Logger
}

func NewLedgerService(db *gorm.DB, commissions *repository.CommissionRepository, events EventPublisher, dispatch *Dispatcher, log *slog.Logger) *LedgerService {
	if log == nil {
		log = slog.Default()
	}
	return &LedgerService{db: db, commissions: commissions, events: events, dispatch: dispatch, log: log}
}

func (s *LedgerService) Summarize(ctx context.Context) (*models.CommissionSummary, error) {
	rows, err := s.commissions.StoreTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("commission totals: %w", err)
	}
	sum := &models.CommissionSummary{ByStore: rows}
	if sum.ByStore == nil {
		sum.ByStore = []models.StoreCommission{}
	}
	for _, r := range rows {
		sum.OrderCount += r.OrderCount
		sum.TotalSales += r.TotalSales
		sum.TotalDue += r.CommissionDue
		sum.TotalPaid += r.CommissionPaid
		sum.TotalUnpaid += r.CommissionUnpaid
	}
	return sum, nil
}

type MarkPaidResult struct {
	UpdatedCount int64        `json:"updatedCount"`
	PayoutID     string       `json:"payoutId,omitempty"`
	Amount       models.Money `json:"amount"`
}

// MarkPaid settles every unpaid delivered order of a store in one batch.
// Running it again with nothing outstanding returns a zero count.
func (s *LedgerService) MarkPaid(ctx context.Context, storeID uint, note string, actor models.Actor) (*MarkPaidResult, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins mark commissions paid", ErrForbidden)
	}
	if storeID == 0 {
		return nil, fmt.Errorf("%w: storeId is required", ErrValidation)
	}
	if len(note) > 500 {
		return nil, fmt.Errorf("%w: note is too long", ErrValidation)
	}

	now := time.Now().UTC()
	res := &MarkPaidResult{}
	payoutID := uuid.NewString()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.commissions.MarkPaid(tx, storeID, payoutID, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		amount, err := s.commissions.PayoutAmount(tx, payoutID)
		if err != nil {
			return err
		}
		if err := s.commissions.CreatePayout(tx, &models.CommissionPayout{
			ID:         payoutID,
			StoreID:    storeID,
			OrderCount: n,
			Amount:     amount,
			Note:       note,
			PaidBy:     actor.ID,
			PaidAt:     now,
		}); err != nil {
			return err
		}
		res.UpdatedCount, res.PayoutID, res.Amount = n, payoutID, amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.UpdatedCount > 0 {
		s.log.Info("commission marked paid", "store_id", storeID, "orders", res.UpdatedCount, "amount", res.Amount, "payout_id", payoutID)
		ev := models.OrderEvent{
			ID:       payoutID,
			Type:     models.EventCommissionPaid,
			StoreID:  storeID,
			Total:    res.Amount,
			ActorID:  actor.ID,
			Occurred: now,
		}
		s.dispatch.Go(models.EventCommissionPaid, func(ctx context.Context) error {
			return s.events.PublishOrderEvent(ctx, ev)
		})
	}
	return res, nil
}

type SetRateInput struct {
	StoreID       *uint
	Rate          decimal.Decimal
	EffectiveFrom *time.Time
	Actor         models.Actor
}

// SetRate adds a new rate version. Orders confirmed earlier keep the rate
// they were confirmed with.
func (s *LedgerService) SetRate(ctx context.Context, in SetRateInput) (*models.CommissionSetting, error) {
	if in.Actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins change commission rates", ErrForbidden)
	}
	if err := models.ValidateRate(in.Rate); err != nil {
		return nil, invalid(err)
	}
	from := time.Now().UTC()
	if in.EffectiveFrom != nil {
		from = in.EffectiveFrom.UTC()
	}
	setting := &models.CommissionSetting{
		StoreID:       in.StoreID,
		Rate:          in.Rate,
		EffectiveFrom: from,
		CreatedBy:     in.Actor.ID,
	}
	if err := s.commissions.AddSetting(ctx, setting); err != nil {
		return nil, err
	}
	return setting, nil
}

func (s *LedgerService) Payouts(ctx context.Context, storeID uint) ([]models.CommissionPayout, error) {
	return s.commissions.Payouts(ctx, storeID)
}
