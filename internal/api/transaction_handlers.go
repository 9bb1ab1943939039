package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketly/internal/apperror"
	"ticketly/internal/auth"
	"ticketly/internal/models"
	"ticketly/internal/pricing"
	"ticketly/internal/transaction"
	"ticketly/internal/utils"
)

type transactionResponse struct {
	Transaction interface{}   `json:"transaction"`
	Quote       pricing.Quote `json:"quote"`
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req transaction.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateTransaction: bad body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.LogAPI("CreateTransaction", fmt.Sprintf("user=%s event=%s ticket=%s qty=%d", userID, req.EventID, req.TicketID, req.Qty))

	trx, quote, err := h.Transactions.Create(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateTransaction: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "transaction created", transactionResponse{Transaction: trx, Quote: quote})
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	transactionID := chi.URLParam(r, "transactionId")
	h.Logger.LogAPI("GetTransaction", fmt.Sprintf("user=%s trx=%s", userID, transactionID))

	trx, err := h.Transactions.Get(r.Context(), userID, transactionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTransaction: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "transaction found", trx)
}

func (h *Handler) ListMyTransactions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.LogAPI("ListMyTransactions", "user="+userID)

	trxs, err := h.Transactions.ListMine(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyTransactions: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "transactions listed", trxs)
}

func (h *Handler) UploadPaymentProof(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	transactionID := chi.URLParam(r, "transactionId")
	h.Logger.LogAPI("UploadPaymentProof", fmt.Sprintf("user=%s trx=%s", userID, transactionID))

	filename, content, err := readFormFile(r, "payment_proof")
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	trx, err := h.Transactions.UploadProof(r.Context(), userID, transactionID, filename, content)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UploadPaymentProof: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "payment proof uploaded", trx)
}

func (h *Handler) AcceptTransaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	transactionID := chi.URLParam(r, "transactionId")
	h.Logger.LogAPI("AcceptTransaction", fmt.Sprintf("organizer_user=%s trx=%s", userID, transactionID))

	if err := h.Transactions.Accept(r.Context(), userID, transactionID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("AcceptTransaction: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "transaction accepted", nil)
}

func (h *Handler) RejectTransaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	transactionID := chi.URLParam(r, "transactionId")
	h.Logger.LogAPI("RejectTransaction", fmt.Sprintf("organizer_user=%s trx=%s", userID, transactionID))

	if err := h.Transactions.Reject(r.Context(), userID, transactionID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("RejectTransaction: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "transaction rejected", nil)
}

// ListEventTransactions lets the organizer inspect an event's purchases,
// typically filtered to WAITING_FOR_CONFIRMATION for the accept/reject
// queue.
func (h *Handler) ListEventTransactions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	slug := chi.URLParam(r, "slug")
	status := models.TransactionStatus(r.URL.Query().Get("status"))
	h.Logger.LogAPI("ListEventTransactions", fmt.Sprintf("user=%s slug=%s status=%s", userID, slug, status))

	detail, err := h.Catalog.GetEventBySlug(r.Context(), slug)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	trxs, err := h.Transactions.ListForEvent(r.Context(), userID, detail.Event.EventID, status)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListEventTransactions: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "transactions listed", trxs)
}

// VerifyEntryPass validates a scanned QR payload and reports whether the
// underlying transaction is still PAID or further along.
func (h *Handler) VerifyEntryPass(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		utils.WriteError(w, apperror.Validation("token query parameter is required"))
		return
	}

	transactionID, err := h.Transactions.VerifyEntryPass(token)
	if err != nil {
		utils.WriteError(w, apperror.New(apperror.KindUnauthenticated, "invalid entry pass"))
		return
	}

	trx, err := h.Transactions.Store.GetTransaction(r.Context(), transactionID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	valid := trx.Status == models.StatusPaid ||
		trx.Status == models.StatusWaitingForReview ||
		trx.Status == models.StatusReviewDone
	utils.WriteJSON(w, http.StatusOK, "entry pass verified", map[string]interface{}{
		"transaction_id": trx.TransactionID,
		"status":         trx.Status,
		"valid":          valid,
	})
}

// ClaimPoints grants the loyalty award for a PAID transaction and moves
// it on to WAITING_FOR_REVIEW.
func (h *Handler) ClaimPoints(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	transactionID := chi.URLParam(r, "transactionId")
	h.Logger.LogAPI("ClaimPoints", fmt.Sprintf("user=%s trx=%s", userID, transactionID))

	earned, err := h.Points.AwardFromPaidTransaction(r.Context(), userID, transactionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ClaimPoints: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "points claimed", map[string]int64{"earned": earned})
}
