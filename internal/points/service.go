package points

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ticketly/internal/apperror"
	"ticketly/internal/ledger"
	"ticketly/internal/logger"
	"ticketly/internal/models"
	"ticketly/internal/pricing"
)

// Positive entries live this long before they expire out of the balance.
const pointValidity = 3 * 30 * 24 * time.Hour

type Service struct {
	Store      *ledger.Store
	Calculator *Calculator
	Logger     *logger.Logger
	Now        func() time.Time
}

func NewService(store *ledger.Store, calc *Calculator, log *logger.Logger) *Service {
	return &Service{Store: store, Calculator: calc, Logger: log, Now: time.Now}
}

// Balance serves the Redis copy when it is warm; on a miss it recomputes
// from the ledger and refreshes both caches on the way out.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		return 0, err
	}
	if cached, ok := s.Calculator.Cache.GetBalance(ctx, userID); ok {
		return cached, nil
	}
	var balance int64
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		var err error
		balance, err = s.Calculator.RefreshBalanceCache(ctx, tx, userID, s.Now())
		return err
	})
	return balance, err
}

func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]models.PointEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.Store.ListPointEntries(ctx, userID, limit, offset)
}

type CreateEntryRequest struct {
	Source        models.PointSource
	Amount        int64
	TransactionID string
	ExpiresAt     time.Time
}

// CreateEntry appends a point record subject to the per-source rules:
// EARN needs a PAID transaction and at most one EARN per transaction;
// REDEEM needs a WAITING_FOR_PAYMENT transaction and enough balance;
// REFERRAL needs no transaction. The balance check and the REDEEM write
// share one atomic scope so two concurrent redemptions cannot both pass
// against a stale balance.
func (s *Service) CreateEntry(ctx context.Context, userID string, req CreateEntryRequest) (*models.PointEntry, int64, error) {
	if !req.Source.Valid() {
		return nil, 0, apperror.Validation(fmt.Sprintf("unknown point source %q", req.Source))
	}
	if req.Source == models.PointRollbackRedeem {
		return nil, 0, apperror.Validation("ROLLBACK_REDEEM entries are created only by transaction rollback")
	}
	if req.Amount < 1 {
		return nil, 0, apperror.Validation("amount must be an integer and >= 1")
	}

	now := s.Now()
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(pointValidity)
	}

	var created *models.PointEntry
	var balance int64
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}

		switch req.Source {
		case models.PointEarn, models.PointRedeem:
			if req.TransactionID == "" {
				return apperror.Validation("transaction_id is required")
			}
			trx, err := tx.GetTransaction(ctx, req.TransactionID)
			if err != nil {
				return err
			}
			if trx.UserID != userID {
				return apperror.Forbidden("transaction does not belong to this user")
			}
			if req.Source == models.PointEarn {
				if trx.Status != models.StatusPaid {
					return apperror.Conflict("points can only be earned when transaction is PAID")
				}
				already, err := tx.HasEntry(ctx, trx.TransactionID, userID, models.PointEarn)
				if err != nil {
					return err
				}
				if already {
					return apperror.Conflict("points already earned for this transaction")
				}
			}
			if req.Source == models.PointRedeem {
				if trx.Status != models.StatusWaitingForPayment {
					return apperror.Conflict("points can only be redeemed while waiting for payment")
				}
				current, err := s.Calculator.EffectiveBalance(ctx, tx, userID, now)
				if err != nil {
					return err
				}
				if current < req.Amount {
					return apperror.Validation("not enough points balance")
				}
			}
		case models.PointReferral:
			// no transaction required
		}

		amount := req.Amount
		entryExpiry := expiresAt
		if req.Source == models.PointRedeem {
			amount = -req.Amount
			// expiry is meaningless for REDEEM entries; they always count
			entryExpiry = now
		}

		created = &models.PointEntry{
			PointID:       uuid.NewString(),
			UserID:        userID,
			TransactionID: req.TransactionID,
			Source:        req.Source,
			Amount:        amount,
			ExpiresAt:     entryExpiry,
			CreatedAt:     now,
		}
		if err := tx.InsertPointEntry(ctx, created); err != nil {
			return err
		}

		var err error
		balance, err = s.Calculator.RefreshBalanceCache(ctx, tx, userID, now)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return created, balance, nil
}

// AwardFromPaidTransaction grants the loyalty award for a PAID transaction
// and moves it to WAITING_FOR_REVIEW. The award is
// floor((baseTotal - couponDiscount)/1000) and is skipped entirely when
// any points were redeemed on the transaction.
func (s *Service) AwardFromPaidTransaction(ctx context.Context, userID, transactionID string) (int64, error) {
	now := s.Now()

	var earned int64
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		trx, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if trx.UserID != userID {
			return apperror.Forbidden("transaction does not belong to this user")
		}
		if trx.Status != models.StatusPaid {
			return apperror.Conflict("transaction must be PAID to earn points")
		}

		already, err := tx.HasEntry(ctx, transactionID, userID, models.PointEarn)
		if err != nil {
			return err
		}
		if already {
			return apperror.Conflict("points already earned for this transaction")
		}

		redeemed, err := tx.SumRedeemedForTransaction(ctx, transactionID, userID)
		if err != nil {
			return err
		}

		applied, err := tx.TransitionStatus(ctx, transactionID, models.StatusPaid, models.StatusWaitingForReview, now)
		if err != nil {
			return err
		}
		if !applied {
			return apperror.Conflict("transaction already processed")
		}

		if redeemed < 0 {
			// points were used on this purchase; no award
			earned = 0
			return nil
		}

		var couponDiscount int64
		if trx.CouponID != "" {
			coupon, err := tx.GetCoupon(ctx, trx.CouponID)
			if err != nil {
				return err
			}
			couponDiscount = coupon.DiscountAmount
		}

		earned = pricing.EarnedPoints(trx.BasePriceAtPurchase*trx.Qty, couponDiscount)
		if earned <= 0 {
			earned = 0
			return nil
		}

		entry := &models.PointEntry{
			PointID:       uuid.NewString(),
			UserID:        userID,
			TransactionID: transactionID,
			Source:        models.PointEarn,
			Amount:        earned,
			ExpiresAt:     now.Add(pointValidity),
			CreatedAt:     now,
		}
		if err := tx.InsertPointEntry(ctx, entry); err != nil {
			return err
		}

		_, err = s.Calculator.RefreshBalanceCache(ctx, tx, userID, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.Logger.LogTransaction("EARN", transactionID, fmt.Sprintf("awarded %d points to %s", earned, userID))
	return earned, nil
}
