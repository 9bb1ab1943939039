package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ticketly/internal/apperror"
	"ticketly/internal/models"
)

// DB is the catalog's own query layer. Catalog writes are single-row and
// never span the transaction engine's atomic units, so it talks to bun
// directly instead of going through the ledger store.
type DB struct {
	Bun *bun.DB
}

func (d *DB) InsertOrganizer(ctx context.Context, org *models.Organizer) error {
	_, err := d.Bun.NewInsert().Model(org).Exec(ctx)
	return err
}

func (d *DB) GetOrganizerByUserID(ctx context.Context, userID string) (*models.Organizer, error) {
	var org models.Organizer
	err := d.Bun.NewSelect().Model(&org).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("organizer profile not found for this user")
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (d *DB) InsertEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

func (d *DB) SlugExists(ctx context.Context, slug string) (bool, error) {
	count, err := d.Bun.NewSelect().Model((*models.Event)(nil)).Where("slug = ?", slug).Count(ctx)
	return count > 0, err
}

func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().Model(&event).Where("event_id = ?", eventID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("event not found")
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().Model(&event).Where("slug = ?", slug).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("event not found")
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) ListEvents(ctx context.Context, categoryID string, limit, offset int) ([]models.Event, error) {
	var events []models.Event
	q := d.Bun.NewSelect().Model(&events)
	if categoryID != "" {
		q = q.Where("category_id = ?", categoryID)
	}
	err := q.Order("start_date ASC").Limit(limit).Offset(offset).Scan(ctx)
	return events, err
}

func (d *DB) ListEventsByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().Model(&events).
		Where("organizer_id = ?", organizerID).
		Order("created_at DESC").
		Scan(ctx)
	return events, err
}

func (d *DB) InsertTier(ctx context.Context, tier *models.TicketTier) error {
	_, err := d.Bun.NewInsert().Model(tier).Exec(ctx)
	return err
}

func (d *DB) ListTiersByEvent(ctx context.Context, eventID string) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	err := d.Bun.NewSelect().Model(&tiers).Where("event_id = ?", eventID).Order("price ASC").Scan(ctx)
	return tiers, err
}

func (d *DB) InsertCoupon(ctx context.Context, coupon *models.Coupon) error {
	_, err := d.Bun.NewInsert().Model(coupon).Exec(ctx)
	return err
}

func (d *DB) CouponNameExists(ctx context.Context, name string) (bool, error) {
	count, err := d.Bun.NewSelect().Model((*models.Coupon)(nil)).
		Where("lower(discount_name) = lower(?)", name).
		Count(ctx)
	return count > 0, err
}

func (d *DB) CouponCodeExists(ctx context.Context, eventID, code string) (bool, error) {
	count, err := d.Bun.NewSelect().Model((*models.Coupon)(nil)).
		Where("event_id = ?", eventID).
		Where("lower(code) = lower(?)", code).
		Count(ctx)
	return count > 0, err
}

func (d *DB) ListCouponsByOrganizer(ctx context.Context, organizerID string) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := d.Bun.NewSelect().Model(&coupons).
		Where("organizer_id = ?", organizerID).
		Order("created_at DESC").
		Scan(ctx)
	return coupons, err
}

func (d *DB) InsertCategory(ctx context.Context, category *models.Category) error {
	_, err := d.Bun.NewInsert().Model(category).Exec(ctx)
	return err
}

func (d *DB) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := d.Bun.NewSelect().Model(&categories).Order("name ASC").Scan(ctx)
	return categories, err
}

// Attendee is a PAID purchase for an event with the buyer's display data.
type Attendee struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Qty        int64  `json:"qty"`
	TotalPrice int64  `json:"total_price"`
}

// ListAttendees returns the confirmed purchases for an event. The total
// is derived from the captured purchase-time price, not the current tier
// price.
func (d *DB) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	var trxs []models.Transaction
	err := d.Bun.NewSelect().Model(&trxs).
		Where("event_id = ?", eventID).
		Where("status = ?", models.StatusPaid).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attendees for %s: %w", eventID, err)
	}
	if len(trxs) == 0 {
		return []Attendee{}, nil
	}

	userIDs := make([]string, 0, len(trxs))
	for _, t := range trxs {
		userIDs = append(userIDs, t.UserID)
	}
	var users []models.User
	err = d.Bun.NewSelect().Model(&users).Where("user_id IN (?)", bun.In(userIDs)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attendee users: %w", err)
	}
	usersByID := make(map[string]models.User, len(users))
	for _, u := range users {
		usersByID[u.UserID] = u
	}

	attendees := make([]Attendee, 0, len(trxs))
	for _, t := range trxs {
		u := usersByID[t.UserID]
		attendees = append(attendees, Attendee{
			FullName:   u.FullName,
			Email:      u.Email,
			Qty:        t.Qty,
			TotalPrice: t.BasePriceAtPurchase * t.Qty,
		})
	}
	return attendees, nil
}

// RevenuePoint is one PAID transaction's contribution to organizer
// revenue over time.
type RevenuePoint struct {
	CreatedAt  string `json:"created_at"`
	TotalPrice int64  `json:"total_price"`
}

func (d *DB) OrganizerRevenue(ctx context.Context, organizerID string) ([]RevenuePoint, error) {
	var points []RevenuePoint
	err := d.Bun.NewSelect().
		TableExpr("transactions AS t").
		ColumnExpr("t.created_at AS created_at").
		ColumnExpr("t.base_price_at_purchase * t.qty AS total_price").
		Join("JOIN events AS e ON e.event_id = t.event_id").
		Where("e.organizer_id = ?", organizerID).
		Where("t.status = ?", models.StatusPaid).
		OrderExpr("t.created_at ASC").
		Scan(ctx, &points)
	if err != nil {
		return nil, fmt.Errorf("organizer revenue for %s: %w", organizerID, err)
	}
	return points, nil
}
