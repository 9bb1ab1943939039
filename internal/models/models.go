package models

import (
	"time"

	"github.com/uptrace/bun"
)

// All monetary amounts are integers in the smallest currency unit.

type User struct {
	bun.BaseModel `bun:"table:users"`

	UserID      string `bun:"user_id,pk"`
	FullName    string `bun:"full_name"`
	Email       string `bun:"email"`
	PhoneNumber string `bun:"phone_number"`
	// PointsBalance is an advisory cache of the ledger-derived balance.
	// The point ledger is the source of truth; see points.Calculator.
	PointsBalance int64     `bun:"points_balance"`
	CreatedAt     time.Time `bun:"created_at"`
}

type Organizer struct {
	bun.BaseModel `bun:"table:organizers"`

	OrganizerID      string    `bun:"organizer_id,pk"`
	UserID           string    `bun:"user_id"`
	OrganizationName string    `bun:"organization_name"`
	Description      string    `bun:"description"`
	AverageRating    float64   `bun:"average_rating"`
	TotalReviews     int64     `bun:"total_reviews"`
	CreatedAt        time.Time `bun:"created_at"`
}

type Category struct {
	bun.BaseModel `bun:"table:categories"`

	CategoryID string `bun:"category_id,pk"`
	Name       string `bun:"name"`
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	EventID     string    `bun:"event_id,pk"`
	OrganizerID string    `bun:"organizer_id"`
	CategoryID  string    `bun:"category_id"`
	Title       string    `bun:"title"`
	Slug        string    `bun:"slug"`
	Description string    `bun:"description"`
	Location    string    `bun:"location"`
	Image       string    `bun:"image"`
	StartDate   time.Time `bun:"start_date"`
	EndDate     time.Time `bun:"end_date"`
	CreatedAt   time.Time `bun:"created_at"`
}

// TicketTier is a priced stock bucket within an event. Stock is only ever
// decremented through the ledger store's conditional update and never goes
// negative.
type TicketTier struct {
	bun.BaseModel `bun:"table:ticket_tiers"`

	TicketID  string    `bun:"ticket_id,pk"`
	EventID   string    `bun:"event_id"`
	Name      string    `bun:"name"`
	Price     int64     `bun:"price"`
	Stock     int64     `bun:"stock"`
	CreatedAt time.Time `bun:"created_at"`
}

type Coupon struct {
	bun.BaseModel `bun:"table:coupons"`

	CouponID       string    `bun:"coupon_id,pk"`
	EventID        string    `bun:"event_id"`
	OrganizerID    string    `bun:"organizer_id"`
	Code           string    `bun:"code"`
	DiscountName   string    `bun:"discount_name"`
	DiscountAmount int64     `bun:"discount_amount"`
	Quota          int64     `bun:"quota"`
	Image          string    `bun:"image"`
	ExpiresAt      time.Time `bun:"expires_at"`
	CreatedAt      time.Time `bun:"created_at"`
}

// PointEntry is an immutable, append-only ledger row. Amount is signed:
// positive for EARN/REFERRAL/ROLLBACK_REDEEM, negative for REDEEM.
type PointEntry struct {
	bun.BaseModel `bun:"table:points"`

	PointID       string      `bun:"point_id,pk"`
	UserID        string      `bun:"user_id"`
	TransactionID string      `bun:"transaction_id,nullzero"`
	Source        PointSource `bun:"source"`
	Amount        int64       `bun:"amount"`
	ExpiresAt     time.Time   `bun:"expires_at"`
	CreatedAt     time.Time   `bun:"created_at"`
}

// Transaction is the central aggregate, owned by the transaction state
// machine. BasePriceAtPurchase is captured at creation time and immutable,
// so later tier price changes never affect an open transaction.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	TransactionID        string            `bun:"transaction_id,pk"`
	UserID               string            `bun:"user_id"`
	EventID              string            `bun:"event_id"`
	TicketID             string            `bun:"ticket_id"`
	Qty                  int64             `bun:"qty"`
	CouponID             string            `bun:"coupon_id,nullzero"`
	BasePriceAtPurchase  int64             `bun:"base_price_at_purchase"`
	PaymentProof         string            `bun:"payment_proof,nullzero"`
	Status               TransactionStatus `bun:"status"`
	PaymentDeadline      time.Time         `bun:"payment_deadline"`
	ConfirmationDeadline time.Time         `bun:"confirmation_deadline"`
	CreatedAt            time.Time         `bun:"created_at"`
	UpdatedAt            time.Time         `bun:"updated_at"`
}

// Payment records a submitted proof-of-payment image.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	PaymentID     string    `bun:"payment_id,pk"`
	TransactionID string    `bun:"transaction_id"`
	ImageURL      string    `bun:"image_url"`
	PaymentTime   time.Time `bun:"payment_time"`
}

type Review struct {
	bun.BaseModel `bun:"table:reviews"`

	ReviewID      string    `bun:"review_id,pk"`
	TransactionID string    `bun:"transaction_id"`
	EventID       string    `bun:"event_id"`
	UserID        string    `bun:"user_id"`
	Rating        int       `bun:"rating"`
	Comment       string    `bun:"comment"`
	CreatedAt     time.Time `bun:"created_at"`
}
