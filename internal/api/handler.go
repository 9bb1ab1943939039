// Package api exposes the HTTP surface over chi. Handlers decode, call a
// service and write a uniform envelope; all domain rules live below.
package api

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ticketly/internal/apperror"
	"ticketly/internal/auth"
	"ticketly/internal/catalog"
	"ticketly/internal/logger"
	"ticketly/internal/points"
	"ticketly/internal/review"
	"ticketly/internal/transaction"
)

// uploads above this size are rejected before reading the body
const maxUploadBytes = 5 << 20

type Handler struct {
	Transactions *transaction.Service
	Points       *points.Service
	Catalog      *catalog.Service
	Reviews      *review.Service
	Logger       *logger.Logger
}

func NewHandler(trx *transaction.Service, pts *points.Service, cat *catalog.Service, rev *review.Service, log *logger.Logger) *Handler {
	return &Handler{
		Transactions: trx,
		Points:       pts,
		Catalog:      cat,
		Reviews:      rev,
		Logger:       log,
	}
}

// Routes mounts the public and authenticated route trees.
func (h *Handler) Routes(verifier auth.TokenVerifier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// public catalog reads
		r.Get("/events", h.ListEvents)
		r.Get("/events/{slug}", h.GetEvent)
		r.Get("/events/{slug}/reviews", h.ListEventReviews)
		r.Get("/categories", h.ListCategories)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))

			r.Post("/transactions", h.CreateTransaction)
			r.Get("/transactions", h.ListMyTransactions)
			r.Get("/transactions/{transactionId}", h.GetTransaction)
			r.Post("/transactions/{transactionId}/payment-proof", h.UploadPaymentProof)
			r.Post("/transactions/{transactionId}/accept", h.AcceptTransaction)
			r.Post("/transactions/{transactionId}/reject", h.RejectTransaction)
			r.Post("/transactions/{transactionId}/claim-points", h.ClaimPoints)

			r.Get("/points/balance", h.PointsBalance)
			r.Get("/points/history", h.PointsHistory)
			r.Post("/points", h.CreatePointEntry)

			r.Post("/reviews", h.CreateReview)

			r.Get("/entry-pass/verify", h.VerifyEntryPass)

			r.Post("/organizers", h.CreateOrganizer)
			r.Get("/organizers/me/events/{slug}/transactions", h.ListEventTransactions)
			r.Get("/organizers/me/events", h.ListMyEvents)
			r.Get("/organizers/me/coupons", h.ListMyCoupons)
			r.Get("/organizers/me/stats", h.OrganizerStats)
			r.Post("/events", h.CreateEvent)
			r.Get("/events/{slug}/attendees", h.ListAttendees)
			r.Post("/tickets", h.CreateTier)
			r.Post("/coupons", h.CreateCoupon)
			r.Post("/categories", h.CreateCategory)
		})
	})

	return r
}

// readFormFile pulls one file out of a multipart form, bounded by
// maxUploadBytes.
func readFormFile(r *http.Request, field string) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, apperror.Validation("request must be multipart/form-data")
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, apperror.Validation(field + " file is required")
	}
	defer file.Close()

	content, err := readAll(file)
	if err != nil {
		return "", nil, apperror.Validation("could not read " + field + " file")
	}
	return header.Filename, content, nil
}

// readOptionalFormFile is readFormFile for fields that may be absent.
func readOptionalFormFile(r *http.Request, field string) (string, []byte, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, apperror.Validation("could not read " + field + " file")
	}
	defer file.Close()

	content, err := readAll(file)
	if err != nil {
		return "", nil, apperror.Validation("could not read " + field + " file")
	}
	return header.Filename, content, nil
}

func readAll(file multipart.File) ([]byte, error) {
	return io.ReadAll(io.LimitReader(file, maxUploadBytes))
}
