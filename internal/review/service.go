// Package review handles post-event reviews and the organizer rating
// aggregate.
package review

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketly/internal/apperror"
	"ticketly/internal/ledger"
	"ticketly/internal/logger"
	"ticketly/internal/models"
)

type Service struct {
	Store  *ledger.Store
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(store *ledger.Store, log *logger.Logger) *Service {
	return &Service{Store: store, Logger: log, Now: time.Now}
}

type CreateRequest struct {
	TransactionID string `json:"transaction_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
}

// Create accepts one review per transaction, only after the event has
// ended and payment completed. The review insert, the organizer rating
// update and the WAITING_FOR_REVIEW -> REVIEW_DONE flip commit together.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*models.Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperror.Validation("rating must be between 1 and 5")
	}

	now := s.Now()

	var review *models.Review
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx *ledger.Store) error {
		trx, err := tx.GetTransaction(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		if trx.UserID != userID {
			return apperror.Forbidden("transaction does not belong to this user")
		}

		event, err := tx.GetEvent(ctx, trx.EventID)
		if err != nil {
			return err
		}
		if event.EndDate.After(now) {
			return apperror.Validation("you can review only after the event has ended")
		}

		switch trx.Status {
		case models.StatusPaid, models.StatusWaitingForReview, models.StatusReviewDone:
			// reviewable
		default:
			return apperror.Conflict("you can review only after payment is completed")
		}

		exists, err := tx.HasReviewForTransaction(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Conflict("review for this transaction already exists")
		}

		review = &models.Review{
			ReviewID:      uuid.NewString(),
			TransactionID: req.TransactionID,
			EventID:       trx.EventID,
			UserID:        userID,
			Rating:        req.Rating,
			Comment:       strings.TrimSpace(req.Comment),
			CreatedAt:     now,
		}
		if err := tx.InsertReview(ctx, review); err != nil {
			return err
		}

		org, err := tx.GetOrganizer(ctx, event.OrganizerID)
		if err != nil {
			return err
		}
		newTotal := org.TotalReviews + 1
		newAvg := round2((org.AverageRating*float64(org.TotalReviews) + float64(req.Rating)) / float64(newTotal))
		if err := tx.UpdateOrganizerRating(ctx, org.OrganizerID, newAvg, newTotal); err != nil {
			return err
		}

		// advance the lifecycle when the transaction is still waiting
		// for this review; PAID/REVIEW_DONE rows keep their status
		_, err = tx.TransitionStatus(ctx, req.TransactionID, models.StatusWaitingForReview, models.StatusReviewDone, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogTransaction("REVIEW", req.TransactionID, fmt.Sprintf("rating=%d by %s", req.Rating, userID))
	return review, nil
}

func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]models.Review, error) {
	return s.Store.ListReviewsByEvent(ctx, eventID)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
