// Package transaction implements the purchase lifecycle: creation with
// inventory and discount handling, proof submission, organizer
// confirmation and the compensating rollback shared by every failure
// path.
package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketly/internal/apperror"
	"ticketly/internal/events"
	"ticketly/internal/ledger"
	"ticketly/internal/logger"
	"ticketly/internal/mail"
	"ticketly/internal/models"
	"ticketly/internal/points"
	"ticketly/internal/pricing"
	"ticketly/internal/storage"
)

const (
	// paymentWindow is how long the buyer has to upload a proof.
	paymentWindow = 2 * time.Hour
	// confirmationWindow is how long the organizer has after a proof
	// lands; it is re-set at upload time.
	confirmationWindow = 3 * 24 * time.Hour
	// rollback point entries stay spendable this long.
	rollbackPointValidity = 3 * 30 * 24 * time.Hour
)

type Service struct {
	Store      *ledger.Store
	Calculator *points.Calculator
	Uploader   storage.Uploader
	Mailer     mail.Notifier
	Events     events.Publisher
	Logger     *logger.Logger
	QRSecret   string
	Now        func() time.Time
}

func NewService(store *ledger.Store, calc *points.Calculator, uploader storage.Uploader, mailer mail.Notifier, publisher events.Publisher, log *logger.Logger, qrSecret string) *Service {
	return &Service{
		Store:      store,
		Calculator: calc,
		Uploader:   uploader,
		Mailer:     mailer,
		Events:     publisher,
		Logger:     log,
		QRSecret:   qrSecret,
		Now:        time.Now,
	}
}

type CreateRequest struct {
	EventID    string `json:"event_id"`
	TicketID   string `json:"ticket_id"`
	Qty        int64  `json:"qty"`
	CouponCode string `json:"coupon_code"`
	PointsUsed int64  `json:"points_used"`
}

// Create runs the whole purchase as one atomic unit: validation, the
// conditional stock and quota decrements, the transaction row and the
// REDEEM ledger entry either all commit or none do.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*models.Transaction, pricing.Quote, error) {
	qty := req.Qty
	if qty == 0 {
		qty = 1
	}
	if qty < 1 {
		return nil, pricing.Quote{}, apperror.Validation("qty must be at least 1")
	}
	if req.PointsUsed < 0 {
		return nil, pricing.Quote{}, apperror.Validation("points_used must be an integer and >= 0")
	}

	now := s.Now()

	var trx *models.Transaction
	var quote pricing.Quote

	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		event, err := tx.GetEvent(ctx, req.EventID)
		if err != nil {
			return err
		}
		if !event.EndDate.After(now) {
			return apperror.Validation("cannot buy ticket: event has ended")
		}

		tier, err := tx.GetTier(ctx, req.TicketID)
		if err != nil {
			return err
		}
		if tier.EventID != req.EventID {
			return apperror.Validation("ticket does not belong to this event")
		}

		var couponID string
		var discount int64
		if code := strings.TrimSpace(req.CouponCode); code != "" {
			coupon, err := tx.GetCouponByCode(ctx, req.EventID, code)
			if err != nil {
				return err
			}
			if coupon.ExpiresAt.Before(now) {
				return apperror.Validation("coupon has expired")
			}
			if coupon.Quota <= 0 {
				return apperror.Validation("coupon quota is empty")
			}
			if coupon.DiscountAmount < 0 {
				return apperror.Validation("invalid discount amount: must be a non-negative integer")
			}
			couponID = coupon.CouponID
			discount = coupon.DiscountAmount
		}

		// balance read and REDEEM write share this transaction; two
		// concurrent redemptions cannot both validate against a stale
		// balance
		balance, err := s.Calculator.EffectiveBalance(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		quote, err = pricing.Resolve(tier.Price, qty, discount, req.PointsUsed, balance)
		if err != nil {
			return err
		}

		applied, err := tx.DecrementStock(ctx, req.TicketID, qty)
		if err != nil {
			return err
		}
		if !applied {
			return apperror.Conflict("ticket stock is not enough")
		}

		if couponID != "" {
			applied, err := tx.DecrementCouponQuota(ctx, couponID, now)
			if err != nil {
				return err
			}
			if !applied {
				return apperror.Conflict("coupon is no longer available")
			}
		}

		trx = &models.Transaction{
			TransactionID:        uuid.NewString(),
			UserID:               userID,
			EventID:              req.EventID,
			TicketID:             req.TicketID,
			Qty:                  qty,
			CouponID:             couponID,
			BasePriceAtPurchase:  tier.Price,
			Status:               models.StatusWaitingForPayment,
			PaymentDeadline:      now.Add(paymentWindow),
			ConfirmationDeadline: now.Add(confirmationWindow),
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := tx.InsertTransaction(ctx, trx); err != nil {
			return err
		}

		if quote.PointsApplied > 0 {
			entry := &models.PointEntry{
				PointID:       uuid.NewString(),
				UserID:        userID,
				TransactionID: trx.TransactionID,
				Source:        models.PointRedeem,
				Amount:        -quote.PointsApplied,
				ExpiresAt:     now,
				CreatedAt:     now,
			}
			if err := tx.InsertPointEntry(ctx, entry); err != nil {
				return err
			}
		}

		_, err = s.Calculator.RefreshBalanceCache(ctx, tx, userID, now)
		return err
	})
	if err != nil {
		return nil, pricing.Quote{}, err
	}

	s.Logger.LogTransaction("CREATE", trx.TransactionID,
		fmt.Sprintf("user=%s total=%d points_applied=%d", userID, quote.Total, quote.PointsApplied))
	s.publish(ctx, trx)

	return trx, quote, nil
}

// Get returns a transaction to its owner.
func (s *Service) Get(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	trx, err := s.Store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if trx.UserID != userID {
		return nil, apperror.Forbidden("transaction does not belong to this user")
	}
	return trx, nil
}

func (s *Service) ListMine(ctx context.Context, userID string) ([]models.Transaction, error) {
	return s.Store.ListTransactionsByUser(ctx, userID)
}

// ListForEvent returns an event's transactions to its organizer, used to
// review pending confirmations. An empty status means all.
func (s *Service) ListForEvent(ctx context.Context, organizerUserID, eventID string, status models.TransactionStatus) ([]models.Transaction, error) {
	if status != "" && !status.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown status %q", status))
	}
	org, err := s.Store.GetOrganizerByUserID(ctx, organizerUserID)
	if err != nil {
		return nil, err
	}
	event, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != org.OrganizerID {
		return nil, apperror.Forbidden("event does not belong to this organizer")
	}
	return s.Store.ListTransactionsByEvent(ctx, eventID, status)
}

// UploadProof stores the image before the atomic unit begins, then
// attaches it with a status-guarded update. If the sweeper expired the
// transaction in between, the guarded update affects zero rows and the
// upload fails with a conflict.
func (s *Service) UploadProof(ctx context.Context, userID, transactionID, filename string, content []byte) (*models.Transaction, error) {
	now := s.Now()

	trx, err := s.Store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if trx.UserID != userID {
		return nil, apperror.Forbidden("transaction does not belong to this user")
	}
	if trx.Status != models.StatusWaitingForPayment {
		return nil, apperror.Conflict("transaction is not waiting for payment")
	}
	if trx.PaymentDeadline.Before(now) {
		return nil, apperror.Conflict("payment deadline has passed")
	}
	if len(content) == 0 {
		return nil, apperror.Validation("payment proof image is required")
	}

	// external call stays outside the store transaction
	proofURL, err := s.Uploader.Upload(ctx, filename, content)
	if err != nil {
		return nil, err
	}

	confirmationDeadline := now.Add(confirmationWindow)
	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		applied, err := tx.AttachProof(ctx, transactionID, proofURL, confirmationDeadline, now)
		if err != nil {
			return err
		}
		if !applied {
			return apperror.Conflict("transaction is not waiting for payment")
		}
		return tx.InsertPayment(ctx, &models.Payment{
			PaymentID:     uuid.NewString(),
			TransactionID: transactionID,
			ImageURL:      proofURL,
			PaymentTime:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	trx, err = s.Store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	s.Logger.LogTransaction("PROOF", transactionID, "payment proof uploaded")
	s.publish(ctx, trx)
	return trx, nil
}

// Accept moves a transaction to PAID on behalf of the organizer who owns
// the event. The acceptance email carries a signed entry-pass QR and is
// sent after commit, best-effort.
func (s *Service) Accept(ctx context.Context, organizerUserID, transactionID string) error {
	now := s.Now()

	trx, event, err := s.authorizeOrganizer(ctx, organizerUserID, transactionID)
	if err != nil {
		return err
	}

	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		applied, err := tx.TransitionStatus(ctx, transactionID, models.StatusWaitingForConfirmation, models.StatusPaid, now)
		if err != nil {
			return err
		}
		if !applied {
			return apperror.Conflict("transaction already processed or invalid status")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Logger.LogTransaction("ACCEPT", transactionID, fmt.Sprintf("accepted by organizer user %s", organizerUserID))

	trx.Status = models.StatusPaid
	s.publish(ctx, trx)
	s.notify(ctx, trx.UserID, "Payment Accepted", func(qrPNG []byte) string {
		return mail.PaymentAcceptedBody(event.Title, qrPNG)
	}, trx)
	return nil
}

// Reject flips to REJECT and compensates in the same atomic unit. A
// second invocation after the state already changed fails with a
// conflict and performs no second rollback.
func (s *Service) Reject(ctx context.Context, organizerUserID, transactionID string) error {
	now := s.Now()

	trx, event, err := s.authorizeOrganizer(ctx, organizerUserID, transactionID)
	if err != nil {
		return err
	}

	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		applied, err := tx.TransitionStatus(ctx, transactionID, models.StatusWaitingForConfirmation, models.StatusReject, now)
		if err != nil {
			return err
		}
		if !applied {
			return apperror.Conflict("transaction already processed or invalid status")
		}
		return s.rollback(ctx, tx, trx, now)
	})
	if err != nil {
		return err
	}

	s.Logger.LogTransaction("REJECT", transactionID, fmt.Sprintf("rejected by organizer user %s", organizerUserID))

	trx.Status = models.StatusReject
	s.publish(ctx, trx)
	s.notify(ctx, trx.UserID, "Payment Rejected", func([]byte) string {
		return mail.PaymentRejectedBody(event.Title)
	}, nil)
	return nil
}

// expireOne is the sweeper's payment-deadline transition. The no-proof
// guard makes a concurrently landed upload win the race; rollback runs
// only when the transition actually applied.
func (s *Service) expireOne(ctx context.Context, transactionID string, now time.Time) (bool, error) {
	var applied bool
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		var err error
		applied, err = tx.TransitionStatusNoProof(ctx, transactionID, models.StatusWaitingForPayment, models.StatusExpired, now)
		if err != nil || !applied {
			return err
		}
		trx, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		return s.rollback(ctx, tx, trx, now)
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.publishByID(ctx, transactionID)
	}
	return applied, err
}

// cancelOne is the sweeper's confirmation-deadline transition.
func (s *Service) cancelOne(ctx context.Context, transactionID string, now time.Time) (bool, error) {
	var applied bool
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		var err error
		applied, err = tx.TransitionStatus(ctx, transactionID, models.StatusWaitingForConfirmation, models.StatusCanceled, now)
		if err != nil || !applied {
			return err
		}
		trx, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		return s.rollback(ctx, tx, trx, now)
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.publishByID(ctx, transactionID)
	}
	return applied, err
}

// rollback restores stock and coupon quota and reverses redeemed points
// via a positive ROLLBACK_REDEEM entry. The marker lookup makes it
// idempotent: invoking it twice changes ledger state only once. The
// original REDEEM entry is never mutated.
func (s *Service) rollback(ctx context.Context, tx *ledger.Store, trx *models.Transaction, now time.Time) error {
	if err := tx.RestoreStock(ctx, trx.TicketID, trx.Qty); err != nil {
		return err
	}

	if trx.CouponID != "" {
		if err := tx.RestoreCouponQuota(ctx, trx.CouponID); err != nil {
			return err
		}
	}

	alreadyRolledBack, err := tx.HasEntry(ctx, trx.TransactionID, trx.UserID, models.PointRollbackRedeem)
	if err != nil {
		return err
	}
	if alreadyRolledBack {
		return nil
	}

	redeemed, err := tx.SumRedeemedForTransaction(ctx, trx.TransactionID, trx.UserID)
	if err != nil {
		return err
	}
	redeemedAbs := -redeemed
	if redeemedAbs <= 0 {
		return nil
	}

	entry := &models.PointEntry{
		PointID:       uuid.NewString(),
		UserID:        trx.UserID,
		TransactionID: trx.TransactionID,
		Source:        models.PointRollbackRedeem,
		Amount:        redeemedAbs,
		ExpiresAt:     now.Add(rollbackPointValidity),
		CreatedAt:     now,
	}
	if err := tx.InsertPointEntry(ctx, entry); err != nil {
		return err
	}

	balance, err := s.Calculator.EffectiveBalance(ctx, tx, trx.UserID, now)
	if err != nil {
		return err
	}
	if err := tx.UpdateUserBalance(ctx, trx.UserID, balance); err != nil {
		return err
	}
	// the surrounding transaction has not committed yet, so drop the Redis
	// copy instead of writing a value that may never land
	s.Calculator.Cache.Invalidate(ctx, trx.UserID)
	return nil
}

// authorizeOrganizer loads the transaction and checks that the caller's
// organizer profile owns the referenced event.
func (s *Service) authorizeOrganizer(ctx context.Context, organizerUserID, transactionID string) (*models.Transaction, *models.Event, error) {
	trx, err := s.Store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	org, err := s.Store.GetOrganizerByUserID(ctx, organizerUserID)
	if err != nil {
		return nil, nil, err
	}
	event, err := s.Store.GetEvent(ctx, trx.EventID)
	if err != nil {
		return nil, nil, err
	}
	if event.OrganizerID != org.OrganizerID {
		return nil, nil, apperror.Forbidden("transaction belongs to another organizer's event")
	}
	return trx, event, nil
}

func (s *Service) publish(ctx context.Context, trx *models.Transaction) {
	if s.Events == nil {
		return
	}
	err := s.Events.PublishTransactionEvent(ctx, events.TransactionEvent{
		TransactionID: trx.TransactionID,
		UserID:        trx.UserID,
		EventID:       trx.EventID,
		Status:        trx.Status,
		OccurredAt:    s.Now(),
	})
	if err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish failed for %s: %v", trx.TransactionID, err))
	}
}

func (s *Service) publishByID(ctx context.Context, transactionID string) {
	trx, err := s.Store.GetTransaction(ctx, transactionID)
	if err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish skipped, reload failed for %s: %v", transactionID, err))
		return
	}
	s.publish(ctx, trx)
}

// notify sends an email to the transaction owner. Upstream failures are
// logged and never surfaced to the triggering transition.
func (s *Service) notify(ctx context.Context, userID, subject string, body func(qrPNG []byte) string, passFor *models.Transaction) {
	if s.Mailer == nil {
		return
	}
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		s.Logger.Warn("MAIL", fmt.Sprintf("skipping %q: %v", subject, err))
		return
	}

	var qrPNG []byte
	if passFor != nil {
		qrPNG, err = s.entryPassPNG(passFor)
		if err != nil {
			s.Logger.Warn("MAIL", fmt.Sprintf("entry pass QR failed for %s: %v", passFor.TransactionID, err))
			qrPNG = nil
		}
	}

	if err := s.Mailer.Send(ctx, user.Email, subject, body(qrPNG)); err != nil {
		s.Logger.Warn("MAIL", fmt.Sprintf("send %q to %s failed: %v", subject, user.Email, err))
		return
	}
	s.Logger.LogMail(subject, user.Email)
}
