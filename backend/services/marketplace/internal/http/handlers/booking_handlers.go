package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/booking"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/realtime"
	"plugin/backend/services/marketplace/internal/store"
)

// BookingHandlers serves the booking lifecycle.
type BookingHandlers struct {
	svc          *booking.Service
	subs         realtime.BookingSubscriber
	awaitTimeout time.Duration
	logger       *zap.Logger
}

// NewBookingHandlers returns handler struct. Creation waits up to awaitTimeout for the new
// booking to show up on its status subscription.
func NewBookingHandlers(svc *booking.Service, subs realtime.BookingSubscriber, awaitTimeout time.Duration, logger *zap.Logger) *BookingHandlers {
	return &BookingHandlers{svc: svc, subs: subs, awaitTimeout: awaitTimeout, logger: logger}
}

type createBookingRequest struct {
	ChargerID          string             `json:"chargerId" validate:"required"`
	DurationMinutes    int                `json:"durationMinutes" validate:"required,gt=0,lte=1440"`
	PaymentMode        models.PaymentMode `json:"paymentMode" validate:"omitempty,oneof=credits currency"`
	ScheduledStartTime *time.Time         `json:"scheduledStartTime"`
}

type rateRequest struct {
	Rating int `json:"rating" validate:"required,min=1,max=5"`
}

// Create handles POST /api/bookings.
func (h *BookingHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	b, err := h.svc.Create(r.Context(), actor(r), booking.CreateRequest{
		ChargerID:      req.ChargerID,
		Duration:       time.Duration(req.DurationMinutes) * time.Minute,
		PaymentMode:    req.PaymentMode,
		ScheduledStart: req.ScheduledStartTime,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	confirmed, err := realtime.AwaitFirst(r.Context(), h.awaitTimeout,
		func(ctx context.Context, fn func(models.Booking, error)) (store.CancelFunc, error) {
			return h.subs.SubscribeBookingStatus(ctx, b.ID, fn)
		})
	if err != nil {
		h.logger.Warn("booking created but not yet observable", zap.String("booking_id", b.ID), zap.Error(err))
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, confirmed)
}

// Estimate handles GET /api/bookings/estimate.
func (h *BookingHandlers) Estimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minutes, err := strconv.Atoi(q.Get("durationMinutes"))
	if err != nil || minutes <= 0 {
		writeServiceError(w, h.logger, apperr.Validation("durationMinutes must be a positive integer"))
		return
	}
	est, err := h.svc.Estimate(r.Context(), q.Get("chargerId"), time.Duration(minutes)*time.Minute, models.PaymentMode(q.Get("paymentMode")))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// History handles GET /api/bookings/history.
func (h *BookingHandlers) History(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.History(r.Context(), actor(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// Incoming handles GET /api/bookings/incoming.
func (h *BookingHandlers) Incoming(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.IncomingRequests(r.Context(), actor(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// Get handles GET /api/bookings/{id}.
func (h *BookingHandlers) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.Get)
}

// Accept handles POST /api/bookings/{id}/accept.
func (h *BookingHandlers) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.Accept)
}

// Decline handles POST /api/bookings/{id}/decline.
func (h *BookingHandlers) Decline(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.Decline)
}

// Cancel handles POST /api/bookings/{id}/cancel.
func (h *BookingHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.Cancel)
}

// Start handles POST /api/bookings/{id}/start.
func (h *BookingHandlers) Start(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.Start)
}

// Complete handles POST /api/bookings/{id}/complete.
func (h *BookingHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.Complete)
}

// Rate handles POST /api/bookings/{id}/rate.
func (h *BookingHandlers) Rate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.respond(w, r, func(ctx context.Context, actorID, id string) (models.Booking, error) {
		return h.svc.Rate(ctx, actorID, id, req.Rating)
	})
}

func (h *BookingHandlers) respond(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actorID, id string) (models.Booking, error)) {
	b, err := op(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
