package transaction_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketly/internal/models"
	"ticketly/internal/transaction"
)

func TestSweeperExpiresOverduePayments(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	f.giveReferralPoints(t, 30, now)
	trx := createTrx(t, f, transaction.CreateRequest{
		EventID:    f.eventID,
		TicketID:   f.ticketID,
		Qty:        2,
		CouponCode: "SAVE50",
		PointsUsed: 30,
	})

	sweeper := transaction.NewSweeper(f.svc, 0, 0)

	// inside the window nothing happens
	sweeper.Sweep(ctx)
	got, err := f.store.GetTransaction(ctx, trx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForPayment, got.Status)

	f.svc.Now = func() time.Time { return now.Add(3 * time.Hour) }
	sweeper.Sweep(ctx)

	got, err = f.store.GetTransaction(ctx, trx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)

	// full compensation: stock, quota and points all restored
	tier, err := f.store.GetTier(ctx, f.ticketID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), tier.Stock)
	coupon, err := f.store.GetCoupon(ctx, f.couponID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), coupon.Quota)
	user, err := f.store.GetUser(ctx, f.buyerID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), user.PointsBalance)

	// sweeping again is a no-op
	sweeper.Sweep(ctx)
	tier, err = f.store.GetTier(ctx, f.ticketID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), tier.Stock)
}

func TestSweeperLeavesProofedTransactionsAlone(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	trx := createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 1})
	_, err := f.svc.UploadProof(ctx, f.buyerID, trx.TransactionID, "proof.png", []byte("png"))
	require.NoError(t, err)

	f.svc.Now = func() time.Time { return now.Add(3 * time.Hour) }
	sweeper := transaction.NewSweeper(f.svc, 0, 0)
	sweeper.Sweep(ctx)

	got, err := f.store.GetTransaction(ctx, trx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForConfirmation, got.Status)
}

func TestSweeperCancelsStaleConfirmations(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	trx := createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 2})
	_, err := f.svc.UploadProof(ctx, f.buyerID, trx.TransactionID, "proof.png", []byte("png"))
	require.NoError(t, err)

	// past the 3-day confirmation window with no organizer decision
	f.svc.Now = func() time.Time { return now.Add(73 * time.Hour) }
	sweeper := transaction.NewSweeper(f.svc, 0, 0)
	sweeper.Sweep(ctx)

	got, err := f.store.GetTransaction(ctx, trx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, got.Status)

	tier, err := f.store.GetTier(ctx, f.ticketID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), tier.Stock)
}

func TestSweeperDefaults(t *testing.T) {
	f := setupFixture(t, time.Now())
	defer f.bunDB.Close()

	sweeper := transaction.NewSweeper(f.svc, 0, 0)
	assert.Equal(t, 2*time.Minute, sweeper.Interval)
	assert.Equal(t, 200, sweeper.BatchSize)
}
