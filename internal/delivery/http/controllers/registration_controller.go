package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"
)

// RegistrationSuccessResponse is the success response envelope for POST /registrations/{eventID} (201).
type RegistrationSuccessResponse struct {
	Data  *domain.Registration `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// AvailabilitySuccessResponse is the success response envelope for GET /events/{eventID}/availability (200).
type AvailabilitySuccessResponse struct {
	Data  *domain.SeatAvailability `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

type RegistrationController struct {
	Logger  *slog.Logger
	Service domain.RegistrationService
}

func NewRegistrationController(logger *slog.Logger, svc domain.RegistrationService) *RegistrationController {
	return &RegistrationController{
		Logger:  logger,
		Service: svc,
	}
}

// parseStatusFilter reads the optional ?status= query parameter.
func parseStatusFilter(r *http.Request) (domain.RegistrationFilter, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return domain.RegistrationFilter{}, true
	}
	status := domain.RegistrationStatus(strings.ToUpper(raw))
	if !status.Valid() {
		return domain.RegistrationFilter{}, false
	}
	return domain.RegistrationFilter{Status: status}, true
}

// Register godoc
// @Summary Register for an event
// @Description Reserve one seat for the authenticated participant. Send X-Idempotency-Key to make retries safe; a repeated key replays the first response.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param X-Idempotency-Key header string false "Client-chosen key for safe retries"
// @Success 201 {object} controllers.RegistrationSuccessResponse "data contains the confirmed registration"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (already registered, event full or not open) or request_in_progress"
// @Failure 503 {object} helpers.APIResponse "error.code: transient_conflict or store_unavailable"
// @Router /registrations/{eventID} [post]
func (c *RegistrationController) Register(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	reg, err := c.Service.Register(r.Context(), userID, eventID)
	if err != nil {
		helpers.WriteDomainError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, reg)
}

// Cancel godoc
// @Summary Cancel my registration
// @Description Cancel the authenticated participant's confirmed registration and release the seat.
// @Tags registrations
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 204 "No Content"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 503 {object} helpers.APIResponse "error.code: transient_conflict or store_unavailable"
// @Router /registrations/{eventID} [delete]
func (c *RegistrationController) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	if err := c.Service.Cancel(r.Context(), userID, eventID); err != nil {
		helpers.WriteDomainError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMyRegistrations godoc
// @Summary List my registrations
// @Description Returns the authenticated participant's registrations, oldest first, each with its event. Optional status filter.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param status query string false "CONFIRMED or CANCELLED"
// @Success 200 {object} helpers.APIResponse "data is an array of registration and event pairs"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 503 {object} helpers.APIResponse "error.code: store_unavailable"
// @Router /registrations/me [get]
func (c *RegistrationController) ListMyRegistrations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	filter, ok := parseStatusFilter(r)
	if !ok {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "status must be CONFIRMED or CANCELLED")
		return
	}
	list, err := c.Service.ListMyRegistrations(r.Context(), userID, filter)
	if err != nil {
		helpers.WriteDomainError(w, r, c.Logger, err)
		return
	}
	if list == nil {
		list = []*domain.RegistrationWithEvent{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, list)
}

// ListEventRegistrations godoc
// @Summary List an event's registrations
// @Description Returns the registrations for an event, oldest first. Only the owning organizer may list them.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param status query string false "CONFIRMED or CANCELLED"
// @Success 200 {object} helpers.APIResponse "data is an array of registrations"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/registrations [get]
func (c *RegistrationController) ListEventRegistrations(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	filter, ok := parseStatusFilter(r)
	if !ok {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "status must be CONFIRMED or CANCELLED")
		return
	}
	list, err := c.Service.ListEventRegistrations(r.Context(), eventID, userID, filter)
	if err != nil {
		helpers.WriteDomainError(w, r, c.Logger, err)
		return
	}
	if list == nil {
		list = []*domain.Registration{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, list)
}

// GetAvailability godoc
// @Summary Get seat availability
// @Description Returns total, available and confirmed seat counts for a published or cancelled event.
// @Tags registrations
// @Produce json
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.AvailabilitySuccessResponse "data contains the seat counters"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 503 {object} helpers.APIResponse "error.code: store_unavailable"
// @Router /events/{eventID}/availability [get]
func (c *RegistrationController) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	availability, err := c.Service.GetAvailability(r.Context(), eventID)
	if err != nil {
		helpers.WriteDomainError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, availability)
}
