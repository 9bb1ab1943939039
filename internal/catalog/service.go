// Package catalog manages organizer profiles, events, ticket tiers and
// coupons. It owns catalog writes; stock and quota consumption stay with
// the transaction engine.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketly/internal/apperror"
	"ticketly/internal/logger"
	"ticketly/internal/models"
	"ticketly/internal/storage"
	"ticketly/internal/utils"
)

type Service struct {
	DB       *DB
	Uploader storage.Uploader
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(db *DB, uploader storage.Uploader, log *logger.Logger) *Service {
	return &Service{DB: db, Uploader: uploader, Logger: log, Now: time.Now}
}

type CreateOrganizerRequest struct {
	OrganizationName string `json:"organization_name"`
	Description      string `json:"description"`
}

func (s *Service) CreateOrganizer(ctx context.Context, userID string, req CreateOrganizerRequest) (*models.Organizer, error) {
	if strings.TrimSpace(req.OrganizationName) == "" {
		return nil, apperror.Validation("organization name is required")
	}
	if existing, err := s.DB.GetOrganizerByUserID(ctx, userID); err == nil && existing != nil {
		return nil, apperror.Conflict("user already has an organizer profile")
	} else if err != nil && !apperror.IsKind(err, apperror.KindNotFound) {
		return nil, err
	}

	org := &models.Organizer{
		OrganizerID:      uuid.NewString(),
		UserID:           userID,
		OrganizationName: strings.TrimSpace(req.OrganizationName),
		Description:      strings.TrimSpace(req.Description),
		CreatedAt:        s.Now(),
	}
	if err := s.DB.InsertOrganizer(ctx, org); err != nil {
		return nil, fmt.Errorf("insert organizer: %w", err)
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("organizer %s created for user %s", org.OrganizerID, userID))
	return org, nil
}

type CreateEventRequest struct {
	Title       string    `json:"title"`
	CategoryID  string    `json:"category_id"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Image       []byte    `json:"-"`
	ImageName   string    `json:"-"`
}

// CreateEvent derives a URL slug from the title; a taken slug gets a
// timestamp suffix instead of failing. The banner upload happens before
// the insert so a failed upload leaves no half-created event behind.
func (s *Service) CreateEvent(ctx context.Context, userID string, req CreateEventRequest) (*models.Event, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperror.Validation("event title is required")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, apperror.Validation("event end date must not be before start date")
	}

	org, err := s.DB.GetOrganizerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	slug := utils.Slugify(req.Title)
	taken, err := s.DB.SlugExists(ctx, slug)
	if err != nil {
		return nil, err
	}
	if taken {
		slug = utils.UniqueSlug(slug)
	}

	var imageURL string
	if len(req.Image) > 0 {
		imageURL, err = s.Uploader.Upload(ctx, req.ImageName, req.Image)
		if err != nil {
			return nil, err
		}
	}

	event := &models.Event{
		EventID:     uuid.NewString(),
		OrganizerID: org.OrganizerID,
		CategoryID:  req.CategoryID,
		Title:       strings.TrimSpace(req.Title),
		Slug:        slug,
		Description: req.Description,
		Location:    req.Location,
		Image:       imageURL,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		CreatedAt:   s.Now(),
	}
	if err := s.DB.InsertEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("event %s (%s) created by organizer %s", event.EventID, slug, org.OrganizerID))
	return event, nil
}

type CreateTierRequest struct {
	EventID string `json:"event_id"`
	Name    string `json:"name"`
	Price   int64  `json:"price"`
	Stock   int64  `json:"stock"`
}

func (s *Service) CreateTier(ctx context.Context, userID string, req CreateTierRequest) (*models.TicketTier, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperror.Validation("tier name is required")
	}
	if req.Price < 0 {
		return nil, apperror.Validation("price must not be negative")
	}
	if req.Stock < 0 {
		return nil, apperror.Validation("stock must not be negative")
	}

	event, err := s.requireOwnedEvent(ctx, userID, req.EventID)
	if err != nil {
		return nil, err
	}

	tier := &models.TicketTier{
		TicketID:  uuid.NewString(),
		EventID:   event.EventID,
		Name:      strings.TrimSpace(req.Name),
		Price:     req.Price,
		Stock:     req.Stock,
		CreatedAt: s.Now(),
	}
	if err := s.DB.InsertTier(ctx, tier); err != nil {
		return nil, fmt.Errorf("insert ticket tier: %w", err)
	}
	return tier, nil
}

type CreateCouponRequest struct {
	EventID        string    `json:"event_id"`
	Code           string    `json:"code"`
	DiscountName   string    `json:"discount_name"`
	DiscountAmount int64     `json:"discount_amount"`
	Quota          int64     `json:"quota"`
	ExpiresAt      time.Time `json:"expires_at"`
	Image          []byte    `json:"-"`
	ImageName      string    `json:"-"`
}

// CreateCoupon enforces a globally unique name and a per-event unique
// code, both case-insensitive.
func (s *Service) CreateCoupon(ctx context.Context, userID string, req CreateCouponRequest) (*models.Coupon, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, apperror.Validation("coupon code is required")
	}
	if strings.TrimSpace(req.DiscountName) == "" {
		return nil, apperror.Validation("coupon name is required")
	}
	if req.DiscountAmount < 1 {
		return nil, apperror.Validation("discount amount must be at least 1")
	}
	if req.Quota < 1 {
		return nil, apperror.Validation("quota must be at least 1")
	}
	if !req.ExpiresAt.After(s.Now()) {
		return nil, apperror.Validation("coupon expiry must be in the future")
	}

	event, err := s.requireOwnedEvent(ctx, userID, req.EventID)
	if err != nil {
		return nil, err
	}

	nameTaken, err := s.DB.CouponNameExists(ctx, req.DiscountName)
	if err != nil {
		return nil, err
	}
	if nameTaken {
		return nil, apperror.Conflict("coupon name already exists")
	}
	codeTaken, err := s.DB.CouponCodeExists(ctx, event.EventID, req.Code)
	if err != nil {
		return nil, err
	}
	if codeTaken {
		return nil, apperror.Conflict("coupon code already exists for this event")
	}

	var imageURL string
	if len(req.Image) > 0 {
		imageURL, err = s.Uploader.Upload(ctx, req.ImageName, req.Image)
		if err != nil {
			return nil, err
		}
	}

	coupon := &models.Coupon{
		CouponID:       uuid.NewString(),
		EventID:        event.EventID,
		OrganizerID:    event.OrganizerID,
		Code:           strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountName:   strings.TrimSpace(req.DiscountName),
		DiscountAmount: req.DiscountAmount,
		Quota:          req.Quota,
		Image:          imageURL,
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      s.Now(),
	}
	if err := s.DB.InsertCoupon(ctx, coupon); err != nil {
		return nil, fmt.Errorf("insert coupon: %w", err)
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("coupon %s (%s) created for event %s", coupon.CouponID, coupon.Code, event.EventID))
	return coupon, nil
}

type EventDetail struct {
	Event models.Event        `json:"event"`
	Tiers []models.TicketTier `json:"tiers"`
}

func (s *Service) GetEventBySlug(ctx context.Context, slug string) (*EventDetail, error) {
	event, err := s.DB.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	tiers, err := s.DB.ListTiersByEvent(ctx, event.EventID)
	if err != nil {
		return nil, err
	}
	return &EventDetail{Event: *event, Tiers: tiers}, nil
}

func (s *Service) ListEvents(ctx context.Context, categoryID string, limit, offset int) ([]models.Event, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.DB.ListEvents(ctx, categoryID, limit, offset)
}

func (s *Service) ListMyEvents(ctx context.Context, userID string) ([]models.Event, error) {
	org, err := s.DB.GetOrganizerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.DB.ListEventsByOrganizer(ctx, org.OrganizerID)
}

func (s *Service) ListMyCoupons(ctx context.Context, userID string) ([]models.Coupon, error) {
	org, err := s.DB.GetOrganizerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.DB.ListCouponsByOrganizer(ctx, org.OrganizerID)
}

// ListAttendees is organizer-only and shows confirmed purchases.
func (s *Service) ListAttendees(ctx context.Context, userID, eventID string) ([]Attendee, error) {
	if _, err := s.requireOwnedEvent(ctx, userID, eventID); err != nil {
		return nil, err
	}
	return s.DB.ListAttendees(ctx, eventID)
}

type OrganizerStats struct {
	EventCount   int64          `json:"event_count"`
	TotalRevenue int64          `json:"total_revenue"`
	Revenue      []RevenuePoint `json:"revenue"`
}

func (s *Service) Stats(ctx context.Context, userID string) (*OrganizerStats, error) {
	org, err := s.DB.GetOrganizerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	events, err := s.DB.ListEventsByOrganizer(ctx, org.OrganizerID)
	if err != nil {
		return nil, err
	}
	revenue, err := s.DB.OrganizerRevenue(ctx, org.OrganizerID)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, p := range revenue {
		total += p.TotalPrice
	}
	return &OrganizerStats{
		EventCount:   int64(len(events)),
		TotalRevenue: total,
		Revenue:      revenue,
	}, nil
}

func (s *Service) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperror.Validation("category name is required")
	}
	category := &models.Category{
		CategoryID: uuid.NewString(),
		Name:       strings.TrimSpace(name),
	}
	if err := s.DB.InsertCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.DB.ListCategories(ctx)
}

func (s *Service) requireOwnedEvent(ctx context.Context, userID, eventID string) (*models.Event, error) {
	org, err := s.DB.GetOrganizerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != org.OrganizerID {
		return nil, apperror.Forbidden("event does not belong to this organizer")
	}
	return event, nil
}
