package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ticketly/internal/apperror"
	"ticketly/internal/auth"
	"ticketly/internal/models"
	"ticketly/internal/points"
	"ticketly/internal/utils"
)

func (h *Handler) PointsBalance(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.LogAPI("PointsBalance", "user="+userID)

	balance, err := h.Points.Balance(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PointsBalance: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "points balance", map[string]int64{"balance": balance})
}

func (h *Handler) PointsHistory(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	h.Logger.LogAPI("PointsHistory", fmt.Sprintf("user=%s limit=%d offset=%d", userID, limit, offset))

	entries, err := h.Points.History(r.Context(), userID, limit, offset)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PointsHistory: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "points history", entries)
}

type createPointEntryBody struct {
	Source        string    `json:"source"`
	Amount        int64     `json:"amount"`
	TransactionID string    `json:"transaction_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (h *Handler) CreatePointEntry(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var body createPointEntryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePointEntry: bad body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.LogAPI("CreatePointEntry", fmt.Sprintf("user=%s source=%s amount=%d", userID, body.Source, body.Amount))

	source, err := models.ParsePointSource(body.Source)
	if err != nil {
		utils.WriteError(w, apperror.Validation(err.Error()))
		return
	}

	entry, balance, err := h.Points.CreateEntry(r.Context(), userID, points.CreateEntryRequest{
		Source:        source,
		Amount:        body.Amount,
		TransactionID: body.TransactionID,
		ExpiresAt:     body.ExpiresAt,
	})
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePointEntry: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "point entry created", map[string]interface{}{
		"entry":   entry,
		"balance": balance,
	})
}
