// Package ledger is the transactional store behind the transaction state
// machine: inventory counters, coupon quotas, the append-only point ledger
// and transaction records. Conditional updates (rows-affected checks) are
// the only concurrency-control primitive; no pessimistic locks.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ticketly/internal/apperror"
	"ticketly/internal/models"
)

type Store struct {
	db bun.IDB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// RunInTx executes fn against a store bound to a single database
// transaction. Every multi-step mutation in the system goes through here;
// partial application of its writes is a correctness bug. Calling RunInTx
// on an already-bound store just runs fn in the same transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	db, ok := s.db.(*bun.DB)
	if !ok {
		return fn(ctx, s)
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{db: tx})
	})
}

// ---------------- CATALOG READS ----------------

func (s *Store) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := s.db.NewSelect().Model(&event).Where("event_id = ?", eventID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("event not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

func (s *Store) GetTier(ctx context.Context, ticketID string) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := s.db.NewSelect().Model(&tier).Where("ticket_id = ?", ticketID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("ticket not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get tier %s: %w", ticketID, err)
	}
	return &tier, nil
}

func (s *Store) GetCoupon(ctx context.Context, couponID string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.NewSelect().Model(&coupon).Where("coupon_id = ?", couponID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("coupon not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon %s: %w", couponID, err)
	}
	return &coupon, nil
}

// GetCouponByCode resolves a coupon code within one event. Codes are
// case-insensitive.
func (s *Store) GetCouponByCode(ctx context.Context, eventID, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.NewSelect().Model(&coupon).
		Where("event_id = ?", eventID).
		Where("lower(code) = lower(?)", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("coupon code not found for this event")
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return &coupon, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.NewSelect().Model(&user).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &user, nil
}

// ---------------- CONDITIONAL COUNTERS ----------------

// DecrementStock subtracts qty if and only if the tier still holds at
// least qty. Returns false when the guard did not match, which callers
// must treat as inventory exhausted.
func (s *Store) DecrementStock(ctx context.Context, ticketID string, qty int64) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*models.TicketTier)(nil)).
		Set("stock = stock - ?", qty).
		Where("ticket_id = ?", ticketID).
		Where("stock >= ?", qty).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("decrement stock for %s: %w", ticketID, err)
	}
	return rowsAffected(res), nil
}

func (s *Store) RestoreStock(ctx context.Context, ticketID string, qty int64) error {
	_, err := s.db.NewUpdate().
		Model((*models.TicketTier)(nil)).
		Set("stock = stock + ?", qty).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("restore stock for %s: %w", ticketID, err)
	}
	return nil
}

// DecrementCouponQuota takes one use off the coupon, guarded against
// exhaustion and expiry.
func (s *Store) DecrementCouponQuota(ctx context.Context, couponID string, now time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("quota = quota - 1").
		Where("coupon_id = ?", couponID).
		Where("quota > 0").
		Where("expires_at >= ?", now).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("decrement coupon quota for %s: %w", couponID, err)
	}
	return rowsAffected(res), nil
}

func (s *Store) RestoreCouponQuota(ctx context.Context, couponID string) error {
	_, err := s.db.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("quota = quota + 1").
		Where("coupon_id = ?", couponID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("restore coupon quota for %s: %w", couponID, err)
	}
	return nil
}

// ---------------- TRANSACTIONS ----------------

func (s *Store) InsertTransaction(ctx context.Context, trx *models.Transaction) error {
	if _, err := s.db.NewInsert().Model(trx).Exec(ctx); err != nil {
		return fmt.Errorf("insert transaction %s: %w", trx.TransactionID, err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var trx models.Transaction
	err := s.db.NewSelect().Model(&trx).Where("transaction_id = ?", transactionID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("transaction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", transactionID, err)
	}
	return &trx, nil
}

// TransitionStatus flips status from→to only while the row is still in
// from. A false return means the caller lost the race to a concurrent
// transition and must not apply side effects.
func (s *Store) TransitionStatus(ctx context.Context, transactionID string, from, to models.TransactionStatus, now time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*models.Transaction)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("transaction_id = ?", transactionID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition %s %s->%s: %w", transactionID, from, to, err)
	}
	return rowsAffected(res), nil
}

// TransitionStatusNoProof is the expiry guard: it additionally requires
// that no proof has been attached, so a concurrently landed upload wins.
func (s *Store) TransitionStatusNoProof(ctx context.Context, transactionID string, from, to models.TransactionStatus, now time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*models.Transaction)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("transaction_id = ?", transactionID).
		Where("status = ?", from).
		Where("payment_proof IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition %s %s->%s: %w", transactionID, from, to, err)
	}
	return rowsAffected(res), nil
}

// AttachProof stores the proof URL, moves the transaction to
// WAITING_FOR_CONFIRMATION and re-sets the confirmation deadline, guarded
// on the row still waiting for payment.
func (s *Store) AttachProof(ctx context.Context, transactionID, proofURL string, confirmationDeadline, now time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*models.Transaction)(nil)).
		Set("payment_proof = ?", proofURL).
		Set("status = ?", models.StatusWaitingForConfirmation).
		Set("confirmation_deadline = ?", confirmationDeadline).
		Set("updated_at = ?", now).
		Where("transaction_id = ?", transactionID).
		Where("status = ?", models.StatusWaitingForPayment).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("attach proof to %s: %w", transactionID, err)
	}
	return rowsAffected(res), nil
}

func (s *Store) InsertPayment(ctx context.Context, payment *models.Payment) error {
	if _, err := s.db.NewInsert().Model(payment).Exec(ctx); err != nil {
		return fmt.Errorf("insert payment for %s: %w", payment.TransactionID, err)
	}
	return nil
}

// ListExpiredUnpaid returns ids of transactions past their payment
// deadline with no proof attached, bounded by limit.
func (s *Store) ListExpiredUnpaid(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*models.Transaction)(nil)).
		Column("transaction_id").
		Where("status = ?", models.StatusWaitingForPayment).
		Where("payment_deadline < ?", now).
		Where("payment_proof IS NULL").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list expired unpaid: %w", err)
	}
	return ids, nil
}

// ListStaleConfirmations returns ids of transactions whose organizer never
// acted before the confirmation deadline, bounded by limit.
func (s *Store) ListStaleConfirmations(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*models.Transaction)(nil)).
		Column("transaction_id").
		Where("status = ?", models.StatusWaitingForConfirmation).
		Where("confirmation_deadline < ?", now).
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list stale confirmations: %w", err)
	}
	return ids, nil
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	var trxs []models.Transaction
	err := s.db.NewSelect().
		Model(&trxs).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions for user %s: %w", userID, err)
	}
	return trxs, nil
}

func (s *Store) ListTransactionsByEvent(ctx context.Context, eventID string, status models.TransactionStatus) ([]models.Transaction, error) {
	var trxs []models.Transaction
	q := s.db.NewSelect().
		Model(&trxs).
		Where("event_id = ?", eventID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions for event %s: %w", eventID, err)
	}
	return trxs, nil
}

// ---------------- POINT LEDGER ----------------

func (s *Store) InsertPointEntry(ctx context.Context, entry *models.PointEntry) error {
	if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("insert point entry for %s: %w", entry.UserID, err)
	}
	return nil
}

// SumActivePositive sums the non-expired positive entries of a user.
func (s *Store) SumActivePositive(ctx context.Context, userID string, now time.Time) (int64, error) {
	var sum sql.NullInt64
	err := s.db.NewSelect().
		Model((*models.PointEntry)(nil)).
		ColumnExpr("SUM(amount)").
		Where("user_id = ?", userID).
		Where("source IN (?)", bun.In([]models.PointSource{models.PointEarn, models.PointReferral, models.PointRollbackRedeem})).
		Where("expires_at > ?", now).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("sum active positive points for %s: %w", userID, err)
	}
	return sum.Int64, nil
}

// SumRedeemed sums all REDEEM entries of a user; the result is <= 0.
func (s *Store) SumRedeemed(ctx context.Context, userID string) (int64, error) {
	var sum sql.NullInt64
	err := s.db.NewSelect().
		Model((*models.PointEntry)(nil)).
		ColumnExpr("SUM(amount)").
		Where("user_id = ?", userID).
		Where("source = ?", models.PointRedeem).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("sum redeemed points for %s: %w", userID, err)
	}
	return sum.Int64, nil
}

// SumRedeemedForTransaction sums the REDEEM entries tied to one
// transaction; the result is <= 0.
func (s *Store) SumRedeemedForTransaction(ctx context.Context, transactionID, userID string) (int64, error) {
	var sum sql.NullInt64
	err := s.db.NewSelect().
		Model((*models.PointEntry)(nil)).
		ColumnExpr("SUM(amount)").
		Where("transaction_id = ?", transactionID).
		Where("user_id = ?", userID).
		Where("source = ?", models.PointRedeem).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("sum redeemed points for transaction %s: %w", transactionID, err)
	}
	return sum.Int64, nil
}

// HasEntry reports whether the transaction already carries an entry of the
// given source for the user. Used as the rollback and earn idempotency
// marker.
func (s *Store) HasEntry(ctx context.Context, transactionID, userID string, source models.PointSource) (bool, error) {
	count, err := s.db.NewSelect().
		Model((*models.PointEntry)(nil)).
		Where("transaction_id = ?", transactionID).
		Where("user_id = ?", userID).
		Where("source = ?", source).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("check %s entry for transaction %s: %w", source, transactionID, err)
	}
	return count > 0, nil
}

func (s *Store) ListPointEntries(ctx context.Context, userID string, limit, offset int) ([]models.PointEntry, error) {
	var entries []models.PointEntry
	err := s.db.NewSelect().
		Model(&entries).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list point entries for %s: %w", userID, err)
	}
	return entries, nil
}

// UpdateUserBalance writes the advisory balance cache on the user row.
func (s *Store) UpdateUserBalance(ctx context.Context, userID string, balance int64) error {
	_, err := s.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("points_balance = ?", balance).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update balance cache for %s: %w", userID, err)
	}
	return nil
}

// ---------------- REVIEWS & ORGANIZERS ----------------

func (s *Store) GetOrganizer(ctx context.Context, organizerID string) (*models.Organizer, error) {
	var org models.Organizer
	err := s.db.NewSelect().Model(&org).Where("organizer_id = ?", organizerID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("organizer not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get organizer %s: %w", organizerID, err)
	}
	return &org, nil
}

func (s *Store) GetOrganizerByUserID(ctx context.Context, userID string) (*models.Organizer, error) {
	var org models.Organizer
	err := s.db.NewSelect().Model(&org).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("organizer profile not found for this user")
	}
	if err != nil {
		return nil, fmt.Errorf("get organizer by user %s: %w", userID, err)
	}
	return &org, nil
}

func (s *Store) InsertReview(ctx context.Context, review *models.Review) error {
	if _, err := s.db.NewInsert().Model(review).Exec(ctx); err != nil {
		return fmt.Errorf("insert review for %s: %w", review.TransactionID, err)
	}
	return nil
}

func (s *Store) HasReviewForTransaction(ctx context.Context, transactionID string) (bool, error) {
	count, err := s.db.NewSelect().
		Model((*models.Review)(nil)).
		Where("transaction_id = ?", transactionID).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("check review for transaction %s: %w", transactionID, err)
	}
	return count > 0, nil
}

func (s *Store) ListReviewsByEvent(ctx context.Context, eventID string) ([]models.Review, error) {
	var reviews []models.Review
	err := s.db.NewSelect().
		Model(&reviews).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reviews for event %s: %w", eventID, err)
	}
	return reviews, nil
}

func (s *Store) UpdateOrganizerRating(ctx context.Context, organizerID string, averageRating float64, totalReviews int64) error {
	_, err := s.db.NewUpdate().
		Model((*models.Organizer)(nil)).
		Set("average_rating = ?", averageRating).
		Set("total_reviews = ?", totalReviews).
		Where("organizer_id = ?", organizerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update rating for organizer %s: %w", organizerID, err)
	}
	return nil
}

func rowsAffected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}
