package transaction_test

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ticketly/internal/apperror"
	"ticketly/internal/events"
	"ticketly/internal/ledger"
	"ticketly/internal/logger"
	"ticketly/internal/models"
	"ticketly/internal/points"
	"ticketly/internal/transaction"
)

type fakeUploader struct {
	calls int
	fail  bool
}

func (u *fakeUploader) Upload(_ context.Context, filename string, _ []byte) (string, error) {
	u.calls++
	if u.fail {
		return "", apperror.New(apperror.KindUpstream, "upload failed")
	}
	return "https://cdn.test/" + filename, nil
}

type fakeMailer struct {
	sent []string
}

func (m *fakeMailer) Send(_ context.Context, to, subject, _ string) error {
	m.sent = append(m.sent, subject+" -> "+to)
	return nil
}

type fakePublisher struct {
	published []events.TransactionEvent
}

func (p *fakePublisher) PublishTransactionEvent(_ context.Context, e events.TransactionEvent) error {
	p.published = append(p.published, e)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fixture struct {
	svc       *transaction.Service
	store     *ledger.Store
	bunDB     *bun.DB
	uploader  *fakeUploader
	mailer    *fakeMailer
	publisher *fakePublisher

	buyerID     string
	organizerID string // user id of the event owner
	eventID     string
	ticketID    string
	couponCode  string
	couponID    string
}

func setupFixture(t *testing.T, now time.Time) *fixture {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.Organizer)(nil),
		(*models.Event)(nil),
		(*models.TicketTier)(nil),
		(*models.Coupon)(nil),
		(*models.PointEntry)(nil),
		(*models.Transaction)(nil),
		(*models.Payment)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	f := &fixture{
		bunDB:     bunDB,
		uploader:  &fakeUploader{},
		mailer:    &fakeMailer{},
		publisher: &fakePublisher{},
	}

	buyer := &models.User{UserID: uuid.NewString(), FullName: "Buyer", Email: "buyer@example.com", CreatedAt: now}
	owner := &models.User{UserID: uuid.NewString(), FullName: "Owner", Email: "owner@example.com", CreatedAt: now}
	for _, u := range []*models.User{buyer, owner} {
		_, err := bunDB.NewInsert().Model(u).Exec(ctx)
		require.NoError(t, err)
	}
	f.buyerID = buyer.UserID
	f.organizerID = owner.UserID

	org := &models.Organizer{
		OrganizerID:      uuid.NewString(),
		UserID:           owner.UserID,
		OrganizationName: "Test Org",
		CreatedAt:        now,
	}
	_, err = bunDB.NewInsert().Model(org).Exec(ctx)
	require.NoError(t, err)

	event := &models.Event{
		EventID:     uuid.NewString(),
		OrganizerID: org.OrganizerID,
		Title:       "Test Concert",
		Slug:        "test-concert",
		StartDate:   now.Add(24 * time.Hour),
		EndDate:     now.Add(30 * time.Hour),
		CreatedAt:   now,
	}
	_, err = bunDB.NewInsert().Model(event).Exec(ctx)
	require.NoError(t, err)
	f.eventID = event.EventID

	tier := &models.TicketTier{
		TicketID:  uuid.NewString(),
		EventID:   event.EventID,
		Name:      "Regular",
		Price:     100,
		Stock:     10,
		CreatedAt: now,
	}
	_, err = bunDB.NewInsert().Model(tier).Exec(ctx)
	require.NoError(t, err)
	f.ticketID = tier.TicketID

	coupon := &models.Coupon{
		CouponID:       uuid.NewString(),
		EventID:        event.EventID,
		OrganizerID:    org.OrganizerID,
		Code:           "SAVE50",
		DiscountName:   "Fifty off",
		DiscountAmount: 50,
		Quota:          2,
		ExpiresAt:      now.Add(48 * time.Hour),
		CreatedAt:      now,
	}
	_, err = bunDB.NewInsert().Model(coupon).Exec(ctx)
	require.NoError(t, err)
	f.couponCode = coupon.Code
	f.couponID = coupon.CouponID

	f.store = ledger.NewStore(bunDB)
	calc := points.NewCalculator(points.NewCache(nil, logger.New(io.Discard)))
	f.svc = transaction.NewService(f.store, calc, f.uploader, f.mailer, f.publisher, logger.New(io.Discard), "test-secret")
	f.svc.Now = func() time.Time { return now }
	return f
}

func (f *fixture) giveReferralPoints(t *testing.T, amount int64, now time.Time) {
	require.NoError(t, f.store.InsertPointEntry(context.Background(), &models.PointEntry{
		PointID:   uuid.NewString(),
		UserID:    f.buyerID,
		Source:    models.PointReferral,
		Amount:    amount,
		ExpiresAt: now.Add(100 * time.Hour),
		CreatedAt: now,
	}))
}

func TestCreatePlainPurchase(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	trx, quote, err := f.svc.Create(ctx, f.buyerID, transaction.CreateRequest{
		EventID:  f.eventID,
		TicketID: f.ticketID,
		Qty:      2,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusWaitingForPayment, trx.Status)
	assert.Equal(t, int64(200), quote.Total)
	assert.Equal(t, int64(100), trx.BasePriceAtPurchase)
	assert.Equal(t, now.Add(2*time.Hour).Unix(), trx.PaymentDeadline.Unix())

	tier, err := f.store.GetTier(ctx, f.ticketID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), tier.Stock)

	assert.Len(t, f.publisher.published, 1)
}

func TestCreateWithCouponAndPoints(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	// balance 30, requesting 50: applied points clamp to the balance
	f.giveReferralPoints(t, 30, now)

	trx, quote, err := f.svc.Create(ctx, f.buyerID, transaction.CreateRequest{
		EventID:    f.eventID,
		TicketID:   f.ticketID,
		Qty:        2,
		CouponCode: "save50",
		PointsUsed: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(50), quote.CouponDiscount)
	assert.Equal(t, int64(30), quote.PointsApplied)
	assert.Equal(t, int64(120), quote.Total)
	assert.Equal(t, f.couponID, trx.CouponID)

	coupon, err := f.store.GetCoupon(ctx, f.couponID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), coupon.Quota)

	// the REDEEM entry drained the balance
	redeemed, err := f.store.SumRedeemedForTransaction(ctx, trx.TransactionID, f.buyerID)
	require.NoError(t, err)
	assert.Equal(t, int64(-30), redeemed)

	user, err := f.store.GetUser(ctx, f.buyerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.PointsBalance)
}

func TestCreateFailsOnInsufficientStock(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, f.buyerID, transaction.CreateRequest{
		EventID:  f.eventID,
		TicketID: f.ticketID,
		Qty:      11,
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	// nothing committed
	tier, err := f.store.GetTier(ctx, f.ticketID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), tier.Stock)
}

func TestCreateFailsAfterEventEnded(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()

	f.svc.Now = func() time.Time { return now.Add(31 * time.Hour) }
	_, _, err := f.svc.Create(context.Background(), f.buyerID, transaction.CreateRequest{
		EventID:  f.eventID,
		TicketID: f.ticketID,
		Qty:      1,
	})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func createTrx(t *testing.T, f *fixture, req transaction.CreateRequest) *models.Transaction {
	trx, _, err := f.svc.Create(context.Background(), f.buyerID, req)
	require.NoError(t, err)
	return trx
}

func TestUploadProofMovesToWaitingForConfirmation(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	trx := createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 1})

	later := now.Add(time.Hour)
	f.svc.Now = func() time.Time { return later }

	updated, err := f.svc.UploadProof(ctx, f.buyerID, trx.TransactionID, "proof.png", []byte("png"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusWaitingForConfirmation, updated.Status)
	assert.Equal(t, "https://cdn.test/proof.png", updated.PaymentProof)
	// confirmation window restarts at upload time
	assert.Equal(t, later.Add(72*time.Hour).Unix(), updated.ConfirmationDeadline.Unix())
	assert.Equal(t, 1, f.uploader.calls)
}

func TestUploadProofAfterDeadlineConflicts(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()

	trx := createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 1})

	f.svc.Now = func() time.Time { return now.Add(3 * time.Hour) }
	_, err := f.svc.UploadProof(context.Background(), f.buyerID, trx.TransactionID, "proof.png", []byte("png"))
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	assert.Equal(t, 0, f.uploader.calls)
}

func TestAcceptFlow(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	trx := createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 1})
	_, err := f.svc.UploadProof(ctx, f.buyerID, trx.TransactionID, "proof.png", []byte("png"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Accept(ctx, f.organizerID, trx.TransactionID))

	got, err := f.store.GetTransaction(ctx, trx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, got.Status)
	assert.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0], "Payment Accepted")

	// accepting twice conflicts
	err = f.svc.Accept(ctx, f.organizerID, trx.TransactionID)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestAcceptByWrongOrganizerForbidden(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	trx := createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 1})
	_, err := f.svc.UploadProof(ctx, f.buyerID, trx.TransactionID, "proof.png", []byte("png"))
	require.NoError(t, err)

	intruder := &models.User{UserID: uuid.NewString(), FullName: "Other", Email: "other@example.com"}
	_, err = f.bunDB.NewInsert().Model(intruder).Exec(ctx)
	require.NoError(t, err)
	otherOrg := &models.Organizer{OrganizerID: uuid.NewString(), UserID: intruder.UserID, OrganizationName: "Other Org"}
	_, err = f.bunDB.NewInsert().Model(otherOrg).Exec(ctx)
	require.NoError(t, err)

	err = f.svc.Accept(ctx, intruder.UserID, trx.TransactionID)
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
}

func TestRejectRollsBackEverythingOnce(t *testing.T) {
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
	_, err := f.svc.UploadProof(ctx, f.buyerID, trx.TransactionID, "proof.png", []byte("png"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Reject(ctx, f.organizerID, trx.TransactionID))

	got, err := f.store.GetTransaction(ctx, trx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReject, got.Status)

	tier, err := f.store.GetTier(ctx, f.ticketID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), tier.Stock)

	coupon, err := f.store.GetCoupon(ctx, f.couponID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), coupon.Quota)

	// redeemed points returned via ROLLBACK_REDEEM, REDEEM untouched
	has, err := f.store.HasEntry(ctx, trx.TransactionID, f.buyerID, models.PointRollbackRedeem)
	require.NoError(t, err)
	assert.True(t, has)
	user, err := f.store.GetUser(ctx, f.buyerID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), user.PointsBalance)

	// a second reject conflicts and must not roll back twice
	err = f.svc.Reject(ctx, f.organizerID, trx.TransactionID)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	tier, err = f.store.GetTier(ctx, f.ticketID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), tier.Stock)

	assert.Contains(t, f.mailer.sent[len(f.mailer.sent)-1], "Payment Rejected")
}

func TestRejectDropsCachedBalance(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := points.NewCache(client, logger.New(io.Discard))
	f.svc.Calculator = points.NewCalculator(cache)

	f.giveReferralPoints(t, 30, now)
	trx := createTrx(t, f, transaction.CreateRequest{
		EventID:    f.eventID,
		TicketID:   f.ticketID,
		Qty:        1,
		PointsUsed: 30,
	})
	_, err = f.svc.UploadProof(ctx, f.buyerID, trx.TransactionID, "proof.png", []byte("png"))
	require.NoError(t, err)

	// the purchase warmed the Redis copy
	_, warm := cache.GetBalance(ctx, f.buyerID)
	require.True(t, warm)

	require.NoError(t, f.svc.Reject(ctx, f.organizerID, trx.TransactionID))

	// rollback dropped the copy; the next read goes through the ledger
	_, warm = cache.GetBalance(ctx, f.buyerID)
	assert.False(t, warm)

	user, err := f.store.GetUser(ctx, f.buyerID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), user.PointsBalance)
}

func TestGetEnforcesOwnership(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	trx := createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 1})

	_, err := f.svc.Get(ctx, f.organizerID, trx.TransactionID)
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))

	got, err := f.svc.Get(ctx, f.buyerID, trx.TransactionID)
	assert.NoError(t, err)
	assert.Equal(t, trx.TransactionID, got.TransactionID)
}

func TestListForEvent(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()
	ctx := context.Background()

	trx := createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 1})
	_, err := f.svc.UploadProof(ctx, f.buyerID, trx.TransactionID, "proof.png", []byte("png"))
	require.NoError(t, err)
	createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 1})

	pending, err := f.svc.ListForEvent(ctx, f.organizerID, f.eventID, models.StatusWaitingForConfirmation)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, trx.TransactionID, pending[0].TransactionID)

	all, err := f.svc.ListForEvent(ctx, f.organizerID, f.eventID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// buyers have no organizer profile
	_, err = f.svc.ListForEvent(ctx, f.buyerID, f.eventID, "")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	_, err = f.svc.ListForEvent(ctx, f.organizerID, f.eventID, "BOGUS")
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestEntryPassVerification(t *testing.T) {
	now := time.Now()
	f := setupFixture(t, now)
	defer f.bunDB.Close()

	trx := createTrx(t, f, transaction.CreateRequest{EventID: f.eventID, TicketID: f.ticketID, Qty: 1})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": f.buyerID,
		"trx": trx.TransactionID,
		"evt": f.eventID,
		"qty": int64(1),
		"iat": now.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	got, err := f.svc.VerifyEntryPass(signed)
	assert.NoError(t, err)
	assert.Equal(t, trx.TransactionID, got)

	// tampered secret fails
	forged, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	_, err = f.svc.VerifyEntryPass(forged)
	assert.Error(t, err)

	_, err = f.svc.VerifyEntryPass("not-a-token")
	assert.Error(t, err)
}
