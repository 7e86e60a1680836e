package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"achrilik/models"
	"achrilik/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeliveryService struct {
	db         *gorm.DB
	orders     *repository.OrderRepository
	deliveries *repository.DeliveryRepository
	agents     *repository.AgentRepository
	resolver   AgentResolver
	notifier   Notifier
	events     EventPublisher
	dispatch   *Dispatcher
	log        *slog.Logger
}

func NewDeliveryService(
	db *gorm.DB,
	orders *repository.OrderRepository,
	deliveries *repository.DeliveryRepository,
	agents *repository.AgentRepository,
	resolver AgentResolver,
	notifier Notifier,
	events EventPublisher,
	dispatch *Dispatcher,
	log *slog.Logger,
) *DeliveryService {
	if log == nil {
		log = slog.Default()
	}
	return &DeliveryService{
		db:         db,
		orders:     orders,
		deliveries: deliveries,
		agents:     agents,
		resolver:   resolver,
		notifier:   notifier,
		events:     events,
		dispatch:   dispatch,
		log:        log,
	}
}

type AssignInput struct {
	OrderID uint
	AgentID *uint
	Actor   models.Actor
}

// Assign routes a home-delivery order to an agent, creating its delivery on
// first use. Without an explicit agent the order's wilaya decides.
func (s *DeliveryService) Assign(ctx context.Context, in AssignInput) (*models.Delivery, error) {
	if in.Actor.Role != models.RoleAdmin && in.Actor.Role != models.RoleStore {
		return nil, fmt.Errorf("%w: %s may not assign deliveries", ErrForbidden, in.Actor.Role)
	}

	agentID := in.AgentID
	if agentID == nil {
		o, err := s.orders.Get(ctx, s.db, in.OrderID)
		if err != nil {
			return nil, notFound(err, "order", in.OrderID)
		}
		id, ok, err := s.resolver.ResolveDefaultAgent(ctx, o.Wilaya)
		if err != nil {
			return nil, fmt.Errorf("resolve agent for wilaya %q: %w", o.Wilaya, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: no agent covers wilaya %q", ErrNoAgentAvailable, o.Wilaya)
		}
		agentID = &id
	}

	now := time.Now().UTC()
	var (
		result  *models.Delivery
		order   *models.Order
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.orders.Get(ctx, tx, in.OrderID)
		if err != nil {
			return notFound(err, "order", in.OrderID)
		}
		if in.Actor.Role == models.RoleStore && !in.Actor.OwnsStore(o.StoreID) {
			return fmt.Errorf("%w: order %d belongs to another store", ErrForbidden, o.ID)
		}
		if o.DeliveryType != models.HomeDelivery {
			return fmt.Errorf("%w: order %d is click & collect", ErrValidation, o.ID)
		}
		if !assignableOrderStatuses[o.Status] {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, o.ID, o.Status)
		}

		agent, err := s.agents.Get(ctx, tx, *agentID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !agent.Active) {
			return fmt.Errorf("%w: agent %d is unknown or inactive", ErrNoAgentAvailable, *agentID)
		}
		if err != nil {
			return err
		}

		d, err := s.deliveries.GetByOrder(ctx, tx, o.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			d = &models.Delivery{
				OrderID:        o.ID,
				AgentID:        agentID,
				Status:         models.DeliveryAssigned,
				TrackingNumber: newTrackingNumber(),
				AssignedAt:     &now,
			}
			if o.IsCOD() {
				cod := o.Total
				d.CODAmount = &cod
			}
			if err := s.deliveries.Create(tx, d); err != nil {
				return err
			}
		case err != nil:
			return err
		case d.AgentID != nil && *d.AgentID == *agentID:
			result, order = d, o
			return nil
		case !reassignable(d.Status):
			return fmt.Errorf("%w: delivery %d is already %s", ErrInvalidTransition, d.ID, d.Status)
		default:
			n, err := s.deliveries.UpdateGuard(tx, d, map[string]any{
				"agent_id":    *agentID,
				"status":      models.DeliveryAssigned,
				"assigned_at": now,
			}, now)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: delivery %d changed while reassigning", ErrConcurrentModification, d.ID)
			}
		}

		changed = true
		order = o
		result, err = s.deliveries.Get(ctx, tx, d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("delivery assigned", "delivery_id", result.ID, "order_id", order.ID, "agent_id", *result.AgentID)
		s.publish(models.EventDeliveryAssigned, order, in.Actor, now)
	}
	return result, nil
}

type UpdateDeliveryInput struct {
	DeliveryID   uint
	Actor        models.Actor
	Status       *models.DeliveryStatus
	CODCollected *bool
	TrackingURL  *string
	AgentNotes   *string
}

func (in UpdateDeliveryInput) empty() bool {
	return in.Status == nil && in.CODCollected == nil && in.TrackingURL == nil && in.AgentNotes == nil
}

// Update applies an agent's report on a delivery. Only the assigned agent may
// call it. A changed tracking URL notifies the buyer once the update commits.
func (s *DeliveryService) Update(ctx context.Context, in UpdateDeliveryInput) (*models.Delivery, error) {
	if in.empty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	if in.TrackingURL != nil && *in.TrackingURL != "" {
		if err := validateTrackingURL(*in.TrackingURL); err != nil {
			return nil, err
		}
	}
	if in.AgentNotes != nil && len(*in.AgentNotes) > 1000 {
		return nil, fmt.Errorf("%w: agent notes are too long", ErrValidation)
	}

	now := time.Now().UTC()
	var (
		result        *models.Delivery
		order         *models.Order
		statusChanged bool
		notifyURL     string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.deliveries.Get(ctx, tx, in.DeliveryID)
		if err != nil {
			return notFound(err, "delivery", in.DeliveryID)
		}
		if in.Actor.Role != models.RoleDeliveryAgent || d.AgentID == nil || *d.AgentID != in.Actor.ID {
			return fmt.Errorf("%w: delivery %d is not assigned to %s %d", ErrForbidden, d.ID, in.Actor.Role, in.Actor.ID)
		}
		o, err := s.orders.Get(ctx, tx, d.OrderID)
		if err != nil {
			return notFound(err, "order", d.OrderID)
		}

		// A cancelled or returned order only lets the parcel come back.
		orderClosed := o.Status == models.OrderCancelled || o.Status == models.OrderReturned

		updates := map[string]any{}
		status := d.Status
		if in.Status != nil && *in.Status != d.Status {
			if err := checkDeliveryStep(d.Status, *in.Status); err != nil {
				return err
			}
			if orderClosed && *in.Status != models.DeliveryFailed && *in.Status != models.DeliveryReturned {
				return fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, o.ID, o.Status)
			}
			status = *in.Status
			updates["status"] = status
			if status == models.DeliveryDelivered {
				updates["delivered_at"] = now
			}
		}

		if in.CODCollected != nil {
			switch {
			case !o.IsCOD():
				return fmt.Errorf("%w: order %d is not cash on delivery", ErrValidation, o.ID)
			case *in.CODCollected && !d.CODCollected:
				if orderClosed {
					return fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, o.ID, o.Status)
				}
				if !status.HandedOver() {
					return fmt.Errorf("%w: cash cannot be collected while delivery is %s", ErrInvalidTransition, status)
				}
				updates["cod_collected"] = true
				updates["cod_collected_at"] = now
			case !*in.CODCollected && d.CODCollected:
				return fmt.Errorf("%w: collected cash cannot be un-collected", ErrValidation)
			}
		}

		if in.TrackingURL != nil && *in.TrackingURL != d.TrackingURL {
			updates["tracking_url"] = *in.TrackingURL
			if *in.TrackingURL != "" {
				notifyURL = *in.TrackingURL
			}
		}
		if in.AgentNotes != nil && *in.AgentNotes != d.AgentNotes {
			updates["agent_notes"] = *in.AgentNotes
		}

		if len(updates) == 0 {
			result, order = d, o
			return nil
		}
		n, err := s.deliveries.UpdateGuard(tx, d, updates, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: delivery %d changed while updating", ErrConcurrentModification, d.ID)
		}
		// The guarded update lets exactly one caller reach DELIVERED.
		if status == models.DeliveryDelivered && d.Status != models.DeliveryDelivered {
			if err := s.agents.IncrementCompleted(tx, *d.AgentID); err != nil {
				return err
			}
		}

		statusChanged = status != d.Status
		order = o
		result, err = s.deliveries.Get(ctx, tx, d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if notifyURL != "" {
		s.notifyTracking(order, notifyURL)
	}
	if statusChanged {
		s.log.Info("delivery status changed", "delivery_id", result.ID, "status", result.Status, "agent_id", in.Actor.ID)
		s.publish(models.EventDeliveryUpdated, order, in.Actor, now)
	}
	return result, nil
}

// MarkCODTransferred records that collected cash reached the platform.
func (s *DeliveryService) MarkCODTransferred(ctx context.Context, deliveryID uint, actor models.Actor) (*models.Delivery, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins confirm cash transfers", ErrForbidden)
	}
	now := time.Now().UTC()
	var result *models.Delivery
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.deliveries.Get(ctx, tx, deliveryID)
		if err != nil {
			return notFound(err, "delivery", deliveryID)
		}
		if !d.CODCollected {
			return fmt.Errorf("%w: cash for delivery %d has not been collected", ErrInvalidTransition, d.ID)
		}
		if d.CODTransferred {
			result = d
			return nil
		}
		n, err := s.deliveries.UpdateGuard(tx, d, map[string]any{
			"cod_transferred": true,
			"cod_transfer_at": now,
		}, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: delivery %d changed while updating", ErrConcurrentModification, d.ID)
		}
		result, err = s.deliveries.Get(ctx, tx, d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *DeliveryService) Get(ctx context.Context, id uint, actor models.Actor) (*models.Delivery, error) {
	d, err := s.deliveries.Get(ctx, s.db, id)
	if err != nil {
		return nil, notFound(err, "delivery", id)
	}
	o, err := s.orders.Get(ctx, s.db, d.OrderID)
	if err != nil {
		return nil, notFound(err, "order", d.OrderID)
	}
	if err := authorizeOrder(o, d, actor); err != nil {
		return nil, err
	}
	return d, nil
}

type WilayaAgentInput struct {
	Wilaya    string
	AgentID   uint
	AgentName string
	Actor     models.Actor
}

// SetWilayaAgent registers the agent if needed and makes it the default for
// the wilaya.
func (s *DeliveryService) SetWilayaAgent(ctx context.Context, in WilayaAgentInput) (*models.WilayaAgent, error) {
	if in.Actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins configure wilaya routing", ErrForbidden)
	}
	if strings.TrimSpace(in.Wilaya) == "" || in.AgentID == 0 {
		return nil, fmt.Errorf("%w: wilaya and agentId are required", ErrValidation)
	}
	if err := s.agents.Upsert(ctx, &models.DeliveryAgent{UserID: in.AgentID, Name: in.AgentName, Active: true}); err != nil {
		return nil, err
	}
	return s.agents.SetWilayaAgent(ctx, in.Wilaya, in.AgentID)
}

func (s *DeliveryService) notifyTracking(o *models.Order, trackingURL string) {
	if o.BuyerEmail == "" {
		s.log.Warn("tracking url set but buyer has no email", "order_id", o.ID)
		return
	}
	order := *o
	s.dispatch.Go("notify_tracking_url", func(ctx context.Context) error {
		return s.notifier.NotifyTrackingURL(ctx, order.BuyerEmail, &order, trackingURL)
	})
}

func (s *DeliveryService) publish(kind string, o *models.Order, actor models.Actor, at time.Time) {
	ev := models.OrderEvent{
		ID:       uuid.NewString(),
		Type:     kind,
		OrderID:  o.ID,
		StoreID:  o.StoreID,
		ToStatus: o.Status,
		Total:    o.Total,
		ActorID:  actor.ID,
		Occurred: at,
	}
	s.dispatch.Go(kind, func(ctx context.Context) error {
		return s.events.PublishOrderEvent(ctx, ev)
	})
}

func validateTrackingURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: tracking url must be an absolute http(s) url", ErrValidation)
	}
	return nil
}

func newTrackingNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ACH-" + strings.ToUpper(id[:12])
}
