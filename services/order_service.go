package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"achrilik/models"
	"achrilik/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderService struct {
	db         *gorm.DB
	orders     *repository.OrderRepository
	deliveries *repository.DeliveryRepository
	rates      RateSource
	events     EventPublisher
	dispatch   *Dispatcher
	log        *slog.Logger
}

func NewOrderService(
	db *gorm.DB,
	orders *repository.OrderRepository,
	deliveries *repository.DeliveryRepository,
	rates RateSource,
	events EventPublisher,
	dispatch *Dispatcher,
	log *slog.Logger,
) *OrderService {
	if log == nil {
		log = slog.Default()
	}
	return &OrderService{
		db:         db,
		orders:     orders,
		deliveries: deliveries,
		rates:      rates,
		events:     events,
		dispatch:   dispatch,
		log:        log,
	}
}

type ItemInput struct {
	VariantID uint
	Quantity  models.Quantity
}

type CreateOrderInput struct {
	Actor         models.Actor
	StoreID       uint
	BuyerEmail    string
	Wilaya        string
	DeliveryType  models.DeliveryType
	PaymentMethod models.PaymentMethod
	DeliveryFee   models.Money
	Items         []ItemInput
}

func (in CreateOrderInput) validate() error {
	if in.Actor.Role != models.RoleBuyer {
		return fmt.Errorf("%w: only buyers can place orders", ErrForbidden)
	}
	if in.StoreID == 0 {
		return fmt.Errorf("%w: storeId is required", ErrValidation)
	}
	if !in.DeliveryType.Valid() {
		return fmt.Errorf("%w: unknown delivery type %q", ErrValidation, in.DeliveryType)
	}
	if !in.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.PaymentMethod)
	}
	if in.DeliveryType == models.HomeDelivery && strings.TrimSpace(in.Wilaya) == "" {
		return fmt.Errorf("%w: wilaya is required for home delivery", ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	if err := in.DeliveryFee.Validate(); err != nil {
		return invalid(err)
	}
	for _, it := range in.Items {
		if err := it.Quantity.Validate(); err != nil {
			return invalid(err)
		}
	}
	return nil
}

// Create places a PENDING order, pricing every line from the live variant
// price at this moment.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var created *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]uint, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.VariantID)
		}
		variants, err := s.orders.VariantsByIDs(ctx, tx, ids)
		if err != nil {
			return err
		}

		o := &models.Order{
			BuyerID:       in.Actor.ID,
			BuyerEmail:    in.BuyerEmail,
			StoreID:       in.StoreID,
			Wilaya:        repository.NormalizeWilaya(in.Wilaya),
			DeliveryFee:   in.DeliveryFee,
			DeliveryType:  in.DeliveryType,
			PaymentMethod: in.PaymentMethod,
			Status:        models.OrderPending,
		}
		for _, it := range in.Items {
			v, ok := variants[it.VariantID]
			if !ok || v.StoreID != in.StoreID {
				return fmt.Errorf("%w: variant %d is not sold by store %d", ErrValidation, it.VariantID, in.StoreID)
			}
			line, err := v.Price.Times(it.Quantity)
			if err != nil {
				return invalid(err)
			}
			if o.Subtotal > models.Money(1<<63-1)-line {
				return invalid(models.ErrMoneyOverflow)
			}
			o.Subtotal += line
			o.Items = append(o.Items, models.OrderItem{
				VariantID: v.ID,
				Quantity:  it.Quantity,
				UnitPrice: v.Price,
				LineTotal: line,
			})
		}
		if o.Subtotal > models.Money(1<<63-1)-o.DeliveryFee {
			return invalid(models.ErrMoneyOverflow)
		}
		o.Total = o.Subtotal + o.DeliveryFee
		if err := o.CheckTotals(); err != nil {
			return invalid(err)
		}

		if err := s.orders.Create(tx, o); err != nil {
			return err
		}
		if err := s.orders.AppendHistory(tx, &models.OrderStatusHistory{
			OrderID:   o.ID,
			ToStatus:  models.OrderPending,
			ActorID:   in.Actor.ID,
			ActorRole: in.Actor.Role,
			Note:      "order placed",
			At:        now,
		}); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(models.EventOrderCreated, created, "", in.Actor, now)
	return created, nil
}

type TransitionInput struct {
	OrderID uint
	Target  models.OrderStatus
	Actor   models.Actor
	Note    string
	// ExpectedVersion, when set, makes the call fail with
	// ErrConcurrentModification unless the order is still at that version.
	ExpectedVersion *int
}

// Transition moves an order one step along its lifecycle. Asking for the
// status the order is already in succeeds without writing anything.
func (s *OrderService) Transition(ctx context.Context, in TransitionInput) (*models.Order, error) {
	if !in.Target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, in.Target)
	}
	if len(in.Note) > 500 {
		return nil, fmt.Errorf("%w: note is too long", ErrValidation)
	}

	// The rate is resolved before the transaction opens; only the snapshot
	// is written inside it.
	var rate decimal.Decimal
	if in.Target == models.OrderConfirmed {
		o, err := s.orders.Get(ctx, s.db, in.OrderID)
		if err != nil {
			return nil, notFound(err, "order", in.OrderID)
		}
		if rate, err = s.rates.CurrentCommissionRate(ctx, o.StoreID, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("resolve commission rate: %w", err)
		}
	}

	now := time.Now().UTC()
	var (
		result *models.Order
		from   models.OrderStatus
		noop   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.orders.Get(ctx, tx, in.OrderID)
		if err != nil {
			return notFound(err, "order", in.OrderID)
		}
		delivery, err := s.deliveries.GetByOrder(ctx, tx, o.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := authorizeOrder(o, delivery, in.Actor); err != nil {
			return err
		}
		if o.Status == in.Target {
			result, noop = o, true
			return nil
		}
		if in.ExpectedVersion != nil && *in.ExpectedVersion != o.Version {
			return fmt.Errorf("%w: order %d is at version %d, expected %d",
				ErrConcurrentModification, o.ID, o.Version, *in.ExpectedVersion)
		}
		if err := checkTransition(o, in.Target, in.Actor); err != nil {
			return err
		}

		extra := map[string]any{}
		switch in.Target {
		case models.OrderConfirmed:
			amount, err := models.CommissionFor(o.Subtotal, rate)
			if err != nil {
				return invalid(err)
			}
			extra["commission_rate"] = decimal.NewNullDecimal(rate)
			extra["commission_amount"] = amount
		case models.OrderWithDeliveryAgent:
			// Assign only accepts orders still at the merchant.
			if o.DeliveryType == models.HomeDelivery && (delivery == nil || delivery.AgentID == nil) {
				return fmt.Errorf("%w: order %d has no delivery agent assigned", ErrInvalidTransition, o.ID)
			}
		case models.OrderDelivered:
			if o.DeliveryType == models.HomeDelivery &&
				(delivery == nil || delivery.Status != models.DeliveryDelivered) {
				return fmt.Errorf("%w: delivery for order %d is not delivered yet", ErrInvalidTransition, o.ID)
			}
			extra["commission_locked_at"] = now
		}

		n, err := s.orders.UpdateStatusGuard(tx, o, in.Target, extra, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: order %d changed while updating", ErrConcurrentModification, o.ID)
		}
		if err := s.orders.AppendHistory(tx, &models.OrderStatusHistory{
			OrderID:    o.ID,
			FromStatus: o.Status,
			ToStatus:   in.Target,
			ActorID:    in.Actor.ID,
			ActorRole:  in.Actor.Role,
			Note:       in.Note,
			At:         now,
		}); err != nil {
			return err
		}

		from = o.Status
		result, err = s.orders.Get(ctx, tx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !noop {
		s.log.Info("order transitioned", "order_id", result.ID, "from", from, "to", result.Status, "actor_id", in.Actor.ID)
		s.publish(models.EventOrderStatusChanged, result, from, in.Actor, now)
	}
	return result, nil
}

func (s *OrderService) Get(ctx context.Context, id uint, actor models.Actor) (*models.Order, error) {
	o, err := s.orders.Get(ctx, s.db, id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	d, err := s.deliveries.GetByOrder(ctx, s.db, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err := authorizeOrder(o, d, actor); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderService) History(ctx context.Context, id uint, actor models.Actor) ([]models.OrderStatusHistory, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.orders.History(ctx, id)
}

func (s *OrderService) publish(kind string, o *models.Order, from models.OrderStatus, actor models.Actor, at time.Time) {
	ev := models.OrderEvent{
		ID:         uuid.NewString(),
		Type:       kind,
		OrderID:    o.ID,
		StoreID:    o.StoreID,
		FromStatus: from,
		ToStatus:   o.Status,
		Total:      o.Total,
		ActorID:    actor.ID,
		Occurred:   at,
	}
	s.dispatch.Go(kind, func(ctx context.Context) error {
		return s.events.PublishOrderEvent(ctx, ev)
	})
}

// authorizeOrder checks that actor is a party to the order. d may be nil.
func authorizeOrder(o *models.Order, d *models.Delivery, actor models.Actor) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleBuyer:
		if o.BuyerID == actor.ID {
			return nil
		}
	case models.RoleStore:
		if actor.OwnsStore(o.StoreID) {
			return nil
		}
	case models.RoleDeliveryAgent:
		if d != nil && d.AgentID != nil && *d.AgentID == actor.ID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %d has no access to order %d", ErrForbidden, actor.Role, actor.ID, o.ID)
}
