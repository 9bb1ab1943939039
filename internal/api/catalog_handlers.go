package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ticketly/internal/apperror"
	"ticketly/internal/auth"
	"ticketly/internal/catalog"
	"ticketly/internal/utils"
)

func (h *Handler) CreateOrganizer(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req catalog.CreateOrganizerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.LogAPI("CreateOrganizer", fmt.Sprintf("user=%s name=%s", userID, req.OrganizationName))

	org, err := h.Catalog.CreateOrganizer(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrganizer: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "organizer profile created", org)
}

// CreateEvent accepts multipart/form-data so the banner image can ride
// along with the fields.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.WriteError(w, apperror.Validation("request must be multipart/form-data"))
		return
	}

	startDate, err := parseFormTime(r, "start_date")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	endDate, err := parseFormTime(r, "end_date")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	imageName, image, err := readOptionalFormFile(r, "image")
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	req := catalog.CreateEventRequest{
		Title:       r.FormValue("title"),
		CategoryID:  r.FormValue("category_id"),
		Description: r.FormValue("description"),
		Location:    r.FormValue("location"),
		StartDate:   startDate,
		EndDate:     endDate,
		Image:       image,
		ImageName:   imageName,
	}
	h.Logger.LogAPI("CreateEvent", fmt.Sprintf("user=%s title=%s", userID, req.Title))

	event, err := h.Catalog.CreateEvent(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateEvent: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "event created", event)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	categoryID := r.URL.Query().Get("category_id")

	events, err := h.Catalog.ListEvents(r.Context(), categoryID, limit, offset)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListEvents: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "events listed", events)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	detail, err := h.Catalog.GetEventBySlug(r.Context(), slug)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetEvent: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "event found", detail)
}

func (h *Handler) ListMyEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.LogAPI("ListMyEvents", "user="+userID)

	events, err := h.Catalog.ListMyEvents(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyEvents: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "events listed", events)
}

func (h *Handler) ListMyCoupons(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.LogAPI("ListMyCoupons", "user="+userID)

	coupons, err := h.Catalog.ListMyCoupons(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyCoupons: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "coupons listed", coupons)
}

func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	slug := chi.URLParam(r, "slug")
	h.Logger.LogAPI("ListAttendees", fmt.Sprintf("user=%s slug=%s", userID, slug))

	detail, err := h.Catalog.GetEventBySlug(r.Context(), slug)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	attendees, err := h.Catalog.ListAttendees(r.Context(), userID, detail.Event.EventID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListAttendees: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "attendees listed", attendees)
}

func (h *Handler) OrganizerStats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.LogAPI("OrganizerStats", "user="+userID)

	stats, err := h.Catalog.Stats(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("OrganizerStats: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "organizer stats", stats)
}

func (h *Handler) CreateTier(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req catalog.CreateTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.LogAPI("CreateTier", fmt.Sprintf("user=%s event=%s name=%s", userID, req.EventID, req.Name))

	tier, err := h.Catalog.CreateTier(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateTier: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "ticket tier created", tier)
}

// CreateCoupon accepts multipart/form-data for the same reason as
// CreateEvent.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.WriteError(w, apperror.Validation("request must be multipart/form-data"))
		return
	}

	discountAmount, err := parseFormInt(r, "discount_amount")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	quota, err := parseFormInt(r, "quota")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	expiresAt, err := parseFormTime(r, "expires_at")
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	imageName, image, err := readOptionalFormFile(r, "image")
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	req := catalog.CreateCouponRequest{
		EventID:        r.FormValue("event_id"),
		Code:           r.FormValue("code"),
		DiscountName:   r.FormValue("discount_name"),
		DiscountAmount: discountAmount,
		Quota:          quota,
		ExpiresAt:      expiresAt,
		Image:          image,
		ImageName:      imageName,
	}
	h.Logger.LogAPI("CreateCoupon", fmt.Sprintf("user=%s event=%s code=%s", userID, req.EventID, req.Code))

	coupon, err := h.Catalog.CreateCoupon(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateCoupon: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "coupon created", coupon)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.LogAPI("CreateCategory", "name="+body.Name)

	category, err := h.Catalog.CreateCategory(r.Context(), body.Name)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateCategory: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "category created", category)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Catalog.ListCategories(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListCategories: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "categories listed", categories)
}

func parseFormTime(r *http.Request, field string) (time.Time, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return time.Time{}, apperror.Validation(field + " is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperror.Validation(field + " must be RFC3339")
	}
	return t, nil
}

func parseFormInt(r *http.Request, field string) (int64, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return 0, apperror.Validation(field + " is required")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperror.Validation(field + " must be an integer")
	}
	return n, nil
}
