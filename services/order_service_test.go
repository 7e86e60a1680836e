package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"achrilik/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_CapturesPricesAndTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v1 := f.variant(t, storeID, 1250)
	v2 := f.variant(t, storeID, 300)

	o, err := f.orders.Create(ctx, CreateOrderInput{
		Actor:         buyer,
		StoreID:       storeID,
		BuyerEmail:    buyerEmail,
		Wilaya:        " Oran ",
		DeliveryType:  models.HomeDelivery,
		PaymentMethod: models.CashOnDelivery,
		DeliveryFee:   400,
		Items:         []ItemInput{{VariantID: v1.ID, Quantity: 3}, {VariantID: v2.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, o.Status)
	assert.Equal(t, models.Money(4050), o.Subtotal)
	assert.Equal(t, models.Money(4450), o.Total)
	assert.Equal(t, "ORAN", o.Wilaya)
	assert.NoError(t, o.CheckTotals())

	// Later price changes do not reach existing lines.
	require.NoError(t, f.db.Model(&models.Variant{}).Where("id = ?", v1.ID).Update("price", 9999).Error)
	got := f.reload(t, o.ID)
	require.Len(t, got.Items, 2)
	assert.Equal(t, models.Money(1250), got.Items[0].UnitPrice)
	assert.Equal(t, models.Money(3750), got.Items[0].LineTotal)
	assert.Equal(t, models.Money(4450), got.Total)

	f.dispatch.Wait()
	assert.Len(t, f.events.ofType(models.EventOrderCreated), 1)
}

func TestCreate_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.variant(t, storeID, 1000)
	foreign := f.variant(t, otherStore, 1000)

	base := CreateOrderInput{
		Actor:         buyer,
		StoreID:       storeID,
		Wilaya:        testWilaya,
		DeliveryType:  models.HomeDelivery,
		PaymentMethod: models.Card,
		Items:         []ItemInput{{VariantID: v.ID, Quantity: 1}},
	}

	cases := map[string]func(in *CreateOrderInput){
		"no items":         func(in *CreateOrderInput) { in.Items = nil },
		"zero quantity":    func(in *CreateOrderInput) { in.Items[0].Quantity = 0 },
		"negative fee":     func(in *CreateOrderInput) { in.DeliveryFee = -1 },
		"foreign variant":  func(in *CreateOrderInput) { in.Items[0].VariantID = foreign.ID },
		"unknown variant":  func(in *CreateOrderInput) { in.Items[0].VariantID = 9999 },
		"missing wilaya":   func(in *CreateOrderInput) { in.Wilaya = "" },
		"unknown payment":  func(in *CreateOrderInput) { in.PaymentMethod = "BARTER" },
		"unknown delivery": func(in *CreateOrderInput) { in.DeliveryType = "DRONE" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			in.Items = append([]ItemInput(nil), base.Items...)
			mutate(&in)
			_, err := f.orders.Create(ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	in := base
	in.Actor = storeActor(storeID)
	_, err := f.orders.Create(ctx, in)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTransition_SkippingStatesFails(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, orderSpec{})

	_, err := f.orders.Transition(context.Background(), TransitionInput{OrderID: o.ID, Target: models.OrderDelivered, Actor: admin})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got := f.move(t, o.ID, buyer, models.OrderCancelled)
	assert.Equal(t, models.OrderCancelled, got.Status)
}

func TestTransition_SameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, orderSpec{})

	got, err := f.orders.Transition(context.Background(), TransitionInput{OrderID: o.ID, Target: models.OrderPending, Actor: buyer})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)
	assert.Equal(t, o.Version, got.Version)

	// A retried request with a stale version still succeeds.
	f.move(t, o.ID, storeActor(storeID), models.OrderPaymentPending)
	stale := 0
	got, err = f.orders.Transition(context.Background(), TransitionInput{
		OrderID: o.ID, Target: models.OrderPaymentPending, Actor: storeActor(storeID), ExpectedVersion: &stale,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	history, err := f.orders.History(context.Background(), o.ID, admin)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestTransition_CashOnDeliverySkipsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cod := f.place(t, orderSpec{payment: models.CashOnDelivery})
	got := f.move(t, cod.ID, storeActor(storeID), models.OrderConfirmed)
	assert.Equal(t, models.OrderConfirmed, got.Status)

	card := f.place(t, orderSpec{payment: models.Card})
	_, err := f.orders.Transition(ctx, TransitionInput{OrderID: card.ID, Target: models.OrderConfirmed, Actor: storeActor(storeID)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_RoleCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, orderSpec{})
	f.move(t, o.ID, storeActor(storeID), models.OrderPaymentPending)

	try := func(actor models.Actor, to models.OrderStatus) error {
		_, err := f.orders.Transition(ctx, TransitionInput{OrderID: o.ID, Target: to, Actor: actor})
		return err
	}

	assert.ErrorIs(t, try(buyer, models.OrderConfirmed), ErrForbidden, "buyer cannot confirm")
	assert.ErrorIs(t, try(otherBuyer, models.OrderCancelled), ErrForbidden, "not the buyer's order")
	assert.ErrorIs(t, try(storeActor(otherStore), models.OrderConfirmed), ErrForbidden, "another store")
	assert.ErrorIs(t, try(agent, models.OrderConfirmed), ErrForbidden, "agent without delivery")

	f.move(t, o.ID, storeActor(storeID), models.OrderConfirmed, models.OrderAtMerchant)
	assert.ErrorIs(t, try(buyer, models.OrderCancelled), ErrForbidden, "too late for the buyer")
	assert.NoError(t, try(admin, models.OrderReadyForPickup))
}

func TestTransition_AgentEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.readyForPickup(t, orderSpec{})
	_, err := f.deliveries.Assign(ctx, AssignInput{OrderID: o.ID, Actor: storeActor(storeID)})
	require.NoError(t, err)

	_, err = f.orders.Transition(ctx, TransitionInput{OrderID: o.ID, Target: models.OrderWithDeliveryAgent, Actor: agent})
	assert.ErrorIs(t, err, ErrForbidden, "agents do not take the parcel from the merchant")

	f.move(t, o.ID, storeActor(storeID), models.OrderWithDeliveryAgent)

	_, err = f.orders.Transition(ctx, TransitionInput{OrderID: o.ID, Target: models.OrderOutForDelivery, Actor: agent2})
	assert.ErrorIs(t, err, ErrForbidden, "not the assigned agent")

	got := f.move(t, o.ID, agent, models.OrderOutForDelivery)
	assert.Equal(t, models.OrderOutForDelivery, got.Status)

	_, err = f.orders.Transition(ctx, TransitionInput{OrderID: o.ID, Target: models.OrderCancelled, Actor: agent})
	assert.ErrorIs(t, err, ErrForbidden)

	got = f.move(t, o.ID, agent, models.OrderReturned)
	assert.Equal(t, models.OrderReturned, got.Status)
}

func TestTransition_HomeDeliveryWaitsForDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.readyForPickup(t, orderSpec{})
	d, err := f.deliveries.Assign(ctx, AssignInput{OrderID: o.ID, Actor: admin})
	require.NoError(t, err)
	f.move(t, o.ID, storeActor(storeID), models.OrderWithDeliveryAgent)
	f.move(t, o.ID, agent, models.OrderOutForDelivery)
	f.deliveryStep(t, d.ID, agent, models.DeliveryPickedUp, models.DeliveryInTransit, models.DeliveryOutForDelivery)

	_, err = f.orders.Transition(ctx, TransitionInput{OrderID: o.ID, Target: models.OrderDelivered, Actor: agent})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.deliveryStep(t, d.ID, agent, models.DeliveryDelivered)
	// The delivery finishing does not move the order on its own.
	assert.Equal(t, models.OrderOutForDelivery, f.reload(t, o.ID).Status)

	got := f.move(t, o.ID, agent, models.OrderDelivered)
	assert.Equal(t, models.OrderDelivered, got.Status)
	assert.NotNil(t, got.CommissionLockedAt)
}

func TestTransition_ClickCollectGoesStraightToDelivered(t *testing.T) {
	f := newFixture(t)
	o := f.readyForPickup(t, orderSpec{delivery: models.ClickCollect})

	_, err := f.orders.Transition(context.Background(), TransitionInput{OrderID: o.ID, Target: models.OrderWithDeliveryAgent, Actor: storeActor(storeID)})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got := f.move(t, o.ID, storeActor(storeID), models.OrderDelivered)
	assert.Equal(t, models.OrderDelivered, got.Status)
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, orderSpec{})
	f.move(t, o.ID, buyer, models.OrderCancelled)

	for _, to := range []models.OrderStatus{models.OrderPaymentPending, models.OrderReturned, models.OrderDelivered} {
		_, err := f.orders.Transition(ctx, TransitionInput{OrderID: o.ID, Target: to, Actor: admin})
		assert.ErrorIs(t, err, ErrInvalidTransition, "cancelled -> %s", to)
	}
}

func TestTransition_UnknownStatusAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, orderSpec{})

	_, err := f.orders.Transition(ctx, TransitionInput{OrderID: o.ID, Target: "SHIPPED", Actor: admin})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.Transition(ctx, TransitionInput{OrderID: 4242, Target: models.OrderCancelled, Actor: admin})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransition_ExpectedVersionMismatch(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, orderSpec{})
	f.move(t, o.ID, storeActor(storeID), models.OrderPaymentPending)

	stale := 0
	_, err := f.orders.Transition(context.Background(), TransitionInput{
		OrderID: o.ID, Target: models.OrderConfirmed, Actor: storeActor(storeID), ExpectedVersion: &stale,
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestTransition_ConcurrentConfirmAndCancel(t *testing.T) {
	for i := 0; i < 5; i++ {
		f := newFixture(t)
		o := f.place(t, orderSpec{payment: models.CashOnDelivery})
		version := o.Version

		var wg sync.WaitGroup
		errs := make([]error, 2)
		requests := []TransitionInput{
			{OrderID: o.ID, Target: models.OrderConfirmed, Actor: storeActor(storeID), ExpectedVersion: &version},
			{OrderID: o.ID, Target: models.OrderCancelled, Actor: buyer, ExpectedVersion: &version},
		}
		for n, in := range requests {
			n, in := n, in
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[n] = f.orders.Transition(context.Background(), in)
			}()
		}
		wg.Wait()

		var winners []models.OrderStatus
		for n, err := range errs {
			if err == nil {
				winners = append(winners, requests[n].Target)
				continue
			}
			assert.True(t,
				errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrInvalidTransition),
				"unexpected error %v", err)
		}
		require.Len(t, winners, 1)
		assert.Equal(t, winners[0], f.reload(t, o.ID).Status)

		history, err := f.orders.History(context.Background(), o.ID, admin)
		require.NoError(t, err)
		assert.Len(t, history, 2, "creation plus exactly one transition")
	}
}

func TestTransition_ConfirmSnapshotsCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.SetRate(ctx, SetRateInput{StoreID: ptr(storeID), Rate: decimal.RequireFromString("2.5"), Actor: admin})
	require.NoError(t, err)

	o := f.place(t, orderSpec{price: 1999, qty: 1, payment: models.CashOnDelivery})
	got := f.move(t, o.ID, storeActor(storeID), models.OrderConfirmed)

	require.True(t, got.CommissionRate.Valid)
	assert.True(t, got.CommissionRate.Decimal.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, models.Money(50), got.CommissionAmount)
	assert.Nil(t, got.CommissionLockedAt)
}

func TestHistory_RecordsEveryTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, orderSpec{})
	_, err := f.orders.Transition(ctx, TransitionInput{OrderID: o.ID, Target: models.OrderPaymentPending, Actor: storeActor(storeID), Note: "awaiting transfer"})
	require.NoError(t, err)
	f.move(t, o.ID, buyer, models.OrderCancelled)

	history, err := f.orders.History(ctx, o.ID, buyer)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.OrderStatus(""), history[0].FromStatus)
	assert.Equal(t, models.OrderPending, history[1].FromStatus)
	assert.Equal(t, models.OrderPaymentPending, history[1].ToStatus)
	assert.Equal(t, "awaiting transfer", history[1].Note)
	assert.Equal(t, storeActor(storeID).ID, history[1].ActorID)
	assert.Equal(t, models.OrderCancelled, history[2].ToStatus)
	assert.Equal(t, models.RoleBuyer, history[2].ActorRole)

	_, err = f.orders.History(ctx, o.ID, otherBuyer)
	assert.ErrorIs(t, err, ErrForbidden)

	f.dispatch.Wait()
	assert.Len(t, f.events.ofType(models.EventOrderStatusChanged), 2)
}

func TestTotalsHoldThroughLifecycle(t *testing.T) {
	f := newFixture(t)
	o := f.delivered(t, orderSpec{fee: 500})
	got := f.reload(t, o.ID)
	assert.NoError(t, got.CheckTotals())
	assert.Equal(t, models.Money(10500), got.Total)
}

func ptr[T any](v T) *T { return &v }

func TestTransition_AgentLegNeedsAssignedDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.readyForPickup(t, orderSpec{})

	_, err := f.orders.Transition(ctx, TransitionInput{OrderID: o.ID, Target: models.OrderWithDeliveryAgent, Actor: storeActor(storeID)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.OrderReadyForPickup, f.reload(t, o.ID).Status, "order stays assignable")

	_, err = f.deliveries.Assign(ctx, AssignInput{OrderID: o.ID, Actor: admin})
	require.NoError(t, err)
	got := f.move(t, o.ID, storeActor(storeID), models.OrderWithDeliveryAgent)
	assert.Equal(t, models.OrderWithDeliveryAgent, got.Status)
}
