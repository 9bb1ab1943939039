package catalog_test

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ticketly/internal/apperror"
	"ticketly/internal/catalog"
	"ticketly/internal/logger"
	"ticketly/internal/models"
)

type fakeUploader struct{}

func (fakeUploader) Upload(_ context.Context, filename string, _ []byte) (string, error) {
	return "https://cdn.test/" + filename, nil
}

func setupService(t *testing.T) (*catalog.Service, *bun.DB, string) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.Organizer)(nil),
		(*models.Category)(nil),
		(*models.Event)(nil),
		(*models.TicketTier)(nil),
		(*models.Coupon)(nil),
		(*models.Transaction)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	user := &models.User{UserID: uuid.NewString(), FullName: "Organizer", Email: "org@example.com", CreatedAt: time.Now()}
	_, err = bunDB.NewInsert().Model(user).Exec(ctx)
	require.NoError(t, err)

	svc := catalog.NewService(&catalog.DB{Bun: bunDB}, fakeUploader{}, logger.New(io.Discard))
	return svc, bunDB, user.UserID
}

func createOrganizer(t *testing.T, svc *catalog.Service, userID string) *models.Organizer {
	org, err := svc.CreateOrganizer(context.Background(), userID, catalog.CreateOrganizerRequest{
		OrganizationName: "Test Org",
	})
	require.NoError(t, err)
	return org
}

func createEvent(t *testing.T, svc *catalog.Service, userID, title string) *models.Event {
	event, err := svc.CreateEvent(context.Background(), userID, catalog.CreateEventRequest{
		Title:     title,
		StartDate: time.Now().Add(24 * time.Hour),
		EndDate:   time.Now().Add(30 * time.Hour),
	})
	require.NoError(t, err)
	return event
}

func TestCreateOrganizerOncePerUser(t *testing.T) {
	svc, bunDB, userID := setupService(t)
	defer bunDB.Close()

	createOrganizer(t, svc, userID)

	_, err := svc.CreateOrganizer(context.Background(), userID, catalog.CreateOrganizerRequest{
		OrganizationName: "Second Org",
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestCreateEventSlugs(t *testing.T) {
	svc, bunDB, userID := setupService(t)
	defer bunDB.Close()

	createOrganizer(t, svc, userID)

	first := createEvent(t, svc, userID, "Summer Jazz Night!")
	assert.Equal(t, "summer-jazz-night", first.Slug)

	// same title gets a suffixed slug instead of failing
	second := createEvent(t, svc, userID, "Summer Jazz Night!")
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.True(t, strings.HasPrefix(second.Slug, "summer-jazz-night-"))

	detail, err := svc.GetEventBySlug(context.Background(), first.Slug)
	assert.NoError(t, err)
	assert.Equal(t, first.EventID, detail.Event.EventID)
}

func TestCreateEventRequiresOrganizerProfile(t *testing.T) {
	svc, bunDB, userID := setupService(t)
	defer bunDB.Close()

	_, err := svc.CreateEvent(context.Background(), userID, catalog.CreateEventRequest{
		Title:     "No Profile Yet",
		StartDate: time.Now(),
		EndDate:   time.Now().Add(time.Hour),
	})
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestCreateTierChecksOwnership(t *testing.T) {
	svc, bunDB, userID := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	createOrganizer(t, svc, userID)
	event := createEvent(t, svc, userID, "Owned Event")

	tier, err := svc.CreateTier(ctx, userID, catalog.CreateTierRequest{
		EventID: event.EventID,
		Name:    "VIP",
		Price:   500,
		Stock:   20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), tier.Price)

	// a different organizer cannot attach tiers to this event
	other := &models.User{UserID: uuid.NewString(), FullName: "Other", Email: "other@example.com"}
	_, err = bunDB.NewInsert().Model(other).Exec(ctx)
	require.NoError(t, err)
	_, err = svc.CreateOrganizer(ctx, other.UserID, catalog.CreateOrganizerRequest{OrganizationName: "Other Org"})
	require.NoError(t, err)

	_, err = svc.CreateTier(ctx, other.UserID, catalog.CreateTierRequest{
		EventID: event.EventID,
		Name:    "Sneaky",
		Price:   1,
		Stock:   1,
	})
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
}

func TestCreateCouponDuplicates(t *testing.T) {
	svc, bunDB, userID := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	createOrganizer(t, svc, userID)
	event := createEvent(t, svc, userID, "Coupon Event")

	req := catalog.CreateCouponRequest{
		EventID:        event.EventID,
		Code:           "launch10",
		DiscountName:   "Launch promo",
		DiscountAmount: 10,
		Quota:          5,
		ExpiresAt:      time.Now().Add(48 * time.Hour),
	}
	coupon, err := svc.CreateCoupon(ctx, userID, req)
	require.NoError(t, err)
	assert.Equal(t, "LAUNCH10", coupon.Code)

	// same name elsewhere conflicts, case-insensitive
	dup := req
	dup.Code = "OTHER"
	dup.DiscountName = "LAUNCH PROMO"
	_, err = svc.CreateCoupon(ctx, userID, dup)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	// same code on the same event conflicts
	dup = req
	dup.DiscountName = "Different name"
	dup.Code = "LAUNCH10"
	_, err = svc.CreateCoupon(ctx, userID, dup)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestAttendeesOnlyListPaid(t *testing.T) {
	svc, bunDB, userID := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	createOrganizer(t, svc, userID)
	event := createEvent(t, svc, userID, "Attendee Event")

	buyer := &models.User{UserID: uuid.NewString(), FullName: "Paid Buyer", Email: "paid@example.com"}
	_, err := bunDB.NewInsert().Model(buyer).Exec(ctx)
	require.NoError(t, err)

	for _, status := range []models.TransactionStatus{models.StatusPaid, models.StatusWaitingForPayment, models.StatusExpired} {
		trx := &models.Transaction{
			TransactionID:        uuid.NewString(),
			UserID:               buyer.UserID,
			EventID:              event.EventID,
			TicketID:             uuid.NewString(),
			Qty:                  2,
			BasePriceAtPurchase:  150,
			Status:               status,
			PaymentDeadline:      time.Now(),
			ConfirmationDeadline: time.Now(),
			CreatedAt:            time.Now(),
			UpdatedAt:            time.Now(),
		}
		_, err := bunDB.NewInsert().Model(trx).Exec(ctx)
		require.NoError(t, err)
	}

	attendees, err := svc.ListAttendees(ctx, userID, event.EventID)
	require.NoError(t, err)
	require.Len(t, attendees, 1)
	assert.Equal(t, "Paid Buyer", attendees[0].FullName)
	assert.Equal(t, int64(300), attendees[0].TotalPrice)

	stats, err := svc.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.EventCount)
	assert.Equal(t, int64(300), stats.TotalRevenue)
}
