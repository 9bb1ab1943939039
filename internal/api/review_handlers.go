package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketly/internal/auth"
	"ticketly/internal/review"
	"ticketly/internal/utils"
)

func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req review.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.LogAPI("CreateReview", fmt.Sprintf("user=%s trx=%s rating=%d", userID, req.TransactionID, req.Rating))

	created, err := h.Reviews.Create(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateReview: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "review created", created)
}

func (h *Handler) ListEventReviews(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	detail, err := h.Catalog.GetEventBySlug(r.Context(), slug)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	reviews, err := h.Reviews.ListByEvent(r.Context(), detail.Event.EventID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListEventReviews: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "reviews listed", reviews)
}
