package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"achrilik/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeRow(t *testing.T, sum *models.CommissionSummary, store uint) models.StoreCommission {
	t.Helper()
	for _, r := range sum.ByStore {
		if r.StoreID == store {
			return r
		}
	}
	t.Fatalf("store %d missing from summary", store)
	return models.StoreCommission{}
}

func assertDecomposes(t *testing.T, sum *models.CommissionSummary) {
	t.Helper()
	for _, r := range sum.ByStore {
		assert.Equal(t, r.CommissionDue, r.CommissionPaid+r.CommissionUnpaid, "store %d", r.StoreID)
	}
	assert.Equal(t, sum.TotalDue, sum.TotalPaid+sum.TotalUnpaid)
}

func TestLedger_ExampleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.delivered(t, orderSpec{price: 5000, qty: 2, fee: 500})
	assert.Equal(t, models.Money(10500), o.Total)
	assert.Equal(t, models.Money(500), o.CommissionAmount)
	require.NotNil(t, o.CommissionLockedAt)

	sum, err := f.ledger.Summarize(ctx)
	require.NoError(t, err)
	row := storeRow(t, sum, storeID)
	assert.Equal(t, int64(1), row.OrderCount)
	assert.Equal(t, models.Money(10500), row.TotalSales)
	assert.Equal(t, models.Money(500), row.CommissionUnpaid)

	res, err := f.ledger.MarkPaid(ctx, storeID, "october payout", admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.UpdatedCount)
	assert.Equal(t, models.Money(500), res.Amount)

	sum, err = f.ledger.Summarize(ctx)
	require.NoError(t, err)
	row = storeRow(t, sum, storeID)
	assert.Equal(t, models.Money(500), row.CommissionDue)
	assert.Equal(t, models.Money(500), row.CommissionPaid)
	assert.Equal(t, models.Money(0), row.CommissionUnpaid)
	assert.Equal(t, models.Money(500), sum.TotalPaid)

	paid := f.reload(t, o.ID)
	assert.True(t, paid.CommissionPaid)
	assert.NotNil(t, paid.CommissionPaidAt)
	require.NotNil(t, paid.CommissionPayoutID)
	assert.Equal(t, res.PayoutID, *paid.CommissionPayoutID)
}

func TestLedger_MarkPaidTwiceReturnsZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.collected(t, orderSpec{})
	f.collected(t, orderSpec{})

	first, err := f.ledger.MarkPaid(ctx, storeID, "", admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.UpdatedCount)

	second, err := f.ledger.MarkPaid(ctx, storeID, "", admin)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.UpdatedCount)
	assert.Empty(t, second.PayoutID)

	payouts, err := f.ledger.Payouts(ctx, storeID)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, int64(2), payouts[0].OrderCount)
	assert.Equal(t, models.Money(1000), payouts[0].Amount)
	assert.Equal(t, admin.ID, payouts[0].PaidBy)

	f.dispatch.Wait()
	assert.Len(t, f.events.ofType(models.EventCommissionPaid), 1)
}

func TestLedger_RateChangeDoesNotRewriteHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.delivered(t, orderSpec{fee: 500})
	require.Equal(t, models.Money(500), o.CommissionAmount)

	past := time.Now().Add(-time.Hour)
	_, err := f.ledger.SetRate(ctx, SetRateInput{Rate: decimal.NewFromInt(12), EffectiveFrom: &past, Actor: admin})
	require.NoError(t, err)
	_, err = f.ledger.SetRate(ctx, SetRateInput{StoreID: ptr(storeID), Rate: decimal.NewFromInt(20), EffectiveFrom: &past, Actor: admin})
	require.NoError(t, err)

	sum, err := f.ledger.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Money(500), storeRow(t, sum, storeID).CommissionDue)

	got := f.reload(t, o.ID)
	assert.Equal(t, models.Money(500), got.CommissionAmount)
	assert.True(t, got.CommissionRate.Decimal.Equal(decimal.NewFromInt(defaultRate)))

	// Orders confirmed after the change pick up the store override.
	next := f.collected(t, orderSpec{})
	assert.Equal(t, models.Money(2000), next.CommissionAmount)
}

func TestLedger_ExcludesUndeliveredOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled := f.place(t, orderSpec{})
	f.move(t, cancelled.ID, buyer, models.OrderCancelled)

	confirmed := f.place(t, orderSpec{payment: models.CashOnDelivery})
	f.move(t, confirmed.ID, storeActor(storeID), models.OrderConfirmed)

	returned, d := f.assigned(t, orderSpec{})
	f.move(t, returned.ID, storeActor(storeID), models.OrderWithDeliveryAgent)
	f.deliveryStep(t, d.ID, agent, models.DeliveryPickedUp, models.DeliveryReturned)
	f.move(t, returned.ID, agent, models.OrderReturned)

	f.collected(t, orderSpec{store: otherStore, price: 3000, qty: 1})

	sum, err := f.ledger.Summarize(ctx)
	require.NoError(t, err)
	require.Len(t, sum.ByStore, 1)
	assert.Equal(t, otherStore, sum.ByStore[0].StoreID)
	assert.Equal(t, models.Money(150), sum.TotalDue)
	assert.Equal(t, int64(1), sum.OrderCount)

	n, err := f.ledger.MarkPaid(ctx, storeID, "", admin)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n.UpdatedCount)
}

func TestLedger_ConcurrentMarkPaidKeepsDecomposition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const orders = 6
	for i := 0; i < orders; i++ {
		f.collected(t, orderSpec{price: models.Money(1000 + 37*i), qty: 1})
	}
	f.collected(t, orderSpec{store: otherStore})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		updated int64
	)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := f.ledger.MarkPaid(ctx, storeID, "", admin)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			updated += res.UpdatedCount
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			sum, err := f.ledger.Summarize(ctx)
			if assert.NoError(t, err) {
				assertDecomposes(t, sum)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(orders), updated, "every order paid exactly once")
	sum, err := f.ledger.Summarize(ctx)
	require.NoError(t, err)
	assertDecomposes(t, sum)
	assert.Equal(t, models.Money(0), storeRow(t, sum, storeID).CommissionUnpaid)
	assert.Equal(t, models.Money(0), storeRow(t, sum, otherStore).CommissionPaid)

	payouts, err := f.ledger.Payouts(ctx, storeID)
	require.NoError(t, err)
	var total models.Money
	for _, p := range payouts {
		total += p.Amount
	}
	assert.Equal(t, storeRow(t, sum, storeID).CommissionPaid, total)
}

func TestLedger_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.MarkPaid(ctx, storeID, "", storeActor(storeID))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.ledger.SetRate(ctx, SetRateInput{Rate: decimal.NewFromInt(101), Actor: admin})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.ledger.SetRate(ctx, SetRateInput{Rate: decimal.NewFromInt(3), Actor: buyer})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.ledger.SetRate(ctx, SetRateInput{Rate: decimal.RequireFromString("4.1234"), Actor: admin})
	assert.ErrorIs(t, err, ErrValidation, "finer than the stored scale")
	assert.ErrorIs(t, err, models.ErrRatePrecision)

	sum, err := f.ledger.Summarize(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sum.ByStore)
	assert.Equal(t, models.Money(0), sum.TotalDue)
}
