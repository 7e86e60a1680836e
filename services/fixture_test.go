package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"achrilik/database"
	"achrilik/models"
	"achrilik/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	storeID     uint = 1
	otherStore  uint = 2
	agentID     uint = 300
	otherAgent  uint = 301
	testWilaya       = "ALGER"
	buyerEmail       = "buyer@example.com"
	defaultRate      = 5
)

var (
	buyer      = models.Actor{ID: 100, Role: models.RoleBuyer}
	otherBuyer = models.Actor{ID: 101, Role: models.RoleBuyer}
	admin      = models.Actor{ID: 1, Role: models.RoleAdmin}
	agent      = models.Actor{ID: agentID, Role: models.RoleDeliveryAgent}
	agent2     = models.Actor{ID: otherAgent, Role: models.RoleDeliveryAgent}
)

func storeActor(id uint) models.Actor {
	return models.Actor{ID: 200 + id, Role: models.RoleStore, StoreID: &id}
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (r *recordingEvents) PublishOrderEvent(_ context.Context, ev models.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) ofType(kind string) []models.OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OrderEvent
	for _, ev := range r.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

type notification struct {
	email string
	order uint
	url   string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

func (r *recordingNotifier) NotifyTrackingURL(_ context.Context, email string, o *models.Order, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, notification{email, o.ID, url})
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fixture struct {
	db          *gorm.DB
	orders      *OrderService
	deliveries  *DeliveryService
	ledger      *LedgerService
	commissions *repository.CommissionRepository
	agents      *repository.AgentRepository
	events      *recordingEvents
	notifier    *recordingNotifier
	dispatch    *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orderRepo := repository.NewOrderRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)
	agentRepo := repository.NewAgentRepository(db)
	commissionRepo := repository.NewCommissionRepository(db, decimal.NewFromInt(defaultRate))

	f := &fixture{
		db:          db,
		commissions: commissionRepo,
		agents:      agentRepo,
		events:      &recordingEvents{},
		notifier:    &recordingNotifier{},
		dispatch:    NewDispatcher(log),
	}
	f.orders = NewOrderService(db, orderRepo, deliveryRepo, commissionRepo, f.events, f.dispatch, log)
	f.deliveries = NewDeliveryService(db, orderRepo, deliveryRepo, agentRepo, agentRepo, f.notifier, f.events, f.dispatch, log)
	f.ledger = NewLedgerService(db, commissionRepo, f.events, f.dispatch, log)
	t.Cleanup(f.dispatch.Wait)

	ctx := context.Background()
	require.NoError(t, agentRepo.Upsert(ctx, &models.DeliveryAgent{UserID: agentID, Name: "Karim", Active: true}))
	require.NoError(t, agentRepo.Upsert(ctx, &models.DeliveryAgent{UserID: otherAgent, Name: "Nadia", Active: true}))
	_, err = agentRepo.SetWilayaAgent(ctx, testWilaya, agentID)
	require.NoError(t, err)
	return f
}

func (f *fixture) variant(t *testing.T, store uint, price models.Money) models.Variant {
	t.Helper()
	v := models.Variant{StoreID: store, SKU: "SKU", Price: price}
	require.NoError(t, f.db.Create(&v).Error)
	return v
}

type orderSpec struct {
	store    uint
	price    models.Money
	qty      models.Quantity
	fee      models.Money
	delivery models.DeliveryType
	payment  models.PaymentMethod
}

func (s orderSpec) withDefaults() orderSpec {
	if s.store == 0 {
		s.store = storeID
	}
	if s.price == 0 {
		s.price = 5000
	}
	if s.qty == 0 {
		s.qty = 2
	}
	if s.delivery == "" {
		s.delivery = models.HomeDelivery
	}
	if s.payment == "" {
		s.payment = models.Card
	}
	return s
}

func (f *fixture) place(t *testing.T, want orderSpec) *models.Order {
	t.Helper()
	want = want.withDefaults()
	v := f.variant(t, want.store, want.price)
	o, err := f.orders.Create(context.Background(), CreateOrderInput{
		Actor:         buyer,
		StoreID:       want.store,
		BuyerEmail:    buyerEmail,
		Wilaya:        "alger",
		DeliveryType:  want.delivery,
		PaymentMethod: want.payment,
		DeliveryFee:   want.fee,
		Items:         []ItemInput{{VariantID: v.ID, Quantity: want.qty}},
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) move(t *testing.T, id uint, actor models.Actor, targets ...models.OrderStatus) *models.Order {
	t.Helper()
	var o *models.Order
	for _, to := range targets {
		var err error
		o, err = f.orders.Transition(context.Background(), TransitionInput{OrderID: id, Target: to, Actor: actor})
		require.NoError(t, err, "transition to %s", to)
	}
	return o
}

func (f *fixture) deliveryStep(t *testing.T, id uint, actor models.Actor, targets ...models.DeliveryStatus) *models.Delivery {
	t.Helper()
	var d *models.Delivery
	for _, to := range targets {
		var err error
		d, err = f.deliveries.Update(context.Background(), UpdateDeliveryInput{DeliveryID: id, Actor: actor, Status: &to})
		require.NoError(t, err, "delivery to %s", to)
	}
	return d
}

// readyForPickup places a card order and takes it to READY_FOR_PICKUP.
func (f *fixture) readyForPickup(t *testing.T, want orderSpec) *models.Order {
	t.Helper()
	want = want.withDefaults()
	o := f.place(t, want)
	return f.move(t, o.ID, storeActor(want.store),
		models.OrderPaymentPending,
		models.OrderConfirmed,
		models.OrderAtMerchant,
		models.OrderReadyForPickup,
	)
}

// delivered runs a home-delivery order through the whole lifecycle.
func (f *fixture) delivered(t *testing.T, want orderSpec) *models.Order {
	t.Helper()
	want = want.withDefaults()
	want.delivery = models.HomeDelivery
	o := f.readyForPickup(t, want)
	a := agentID
	d, err := f.deliveries.Assign(context.Background(), AssignInput{OrderID: o.ID, AgentID: &a, Actor: admin})
	require.NoError(t, err)
	f.move(t, o.ID, storeActor(want.store), models.OrderWithDeliveryAgent)
	f.deliveryStep(t, d.ID, agent,
		models.DeliveryPickedUp,
		models.DeliveryInTransit,
		models.DeliveryOutForDelivery,
		models.DeliveryDelivered,
	)
	return f.move(t, o.ID, agent, models.OrderOutForDelivery, models.OrderDelivered)
}

// collected runs a click & collect order to DELIVERED.
func (f *fixture) collected(t *testing.T, want orderSpec) *models.Order {
	t.Helper()
	want = want.withDefaults()
	want.delivery = models.ClickCollect
	o := f.readyForPickup(t, want)
	return f.move(t, o.ID, storeActor(want.store), models.OrderDelivered)
}

func (f *fixture) reload(t *testing.T, id uint) *models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, f.db.Preload("Items").First(&o, id).Error)
	return &o
}
