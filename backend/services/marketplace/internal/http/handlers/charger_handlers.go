package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/availability"
	"plugin/backend/services/marketplace/internal/charger"
	"plugin/backend/services/marketplace/internal/models"
)

// ChargerHandlers serves host listings and driver search.
type ChargerHandlers struct {
	svc    *charger.Service
	logger *zap.Logger
}

// NewChargerHandlers returns handler struct.
func NewChargerHandlers(svc *charger.Service, logger *zap.Logger) *ChargerHandlers {
	return &ChargerHandlers{svc: svc, logger: logger}
}

type createChargerRequest struct {
	Location struct {
		Latitude  float64 `json:"latitude" validate:"latitude"`
		Longitude float64 `json:"longitude" validate:"longitude"`
	} `json:"location"`
	Address              string                   `json:"address" validate:"required"`
	Type                 models.ChargerType       `json:"type" validate:"required"`
	ConnectorType        models.ConnectorType     `json:"connectorType" validate:"required"`
	PricePerHour         float64                  `json:"pricePerHour" validate:"gte=0"`
	CreditsPerHour       int                      `json:"creditsPerHour" validate:"gte=0"`
	MaxSpeed             float64                  `json:"maxSpeed" validate:"required,gt=0"`
	HasTetheredCable     bool                     `json:"hasTetheredCable"`
	AccessInstructions   string                   `json:"accessInstructions" validate:"max=1000"`
	AvailabilitySchedule []models.DayAvailability `json:"availabilitySchedule"`
}

type setStatusRequest struct {
	Status models.ChargerStatus `json:"status" validate:"required,oneof=available offline"`
}

type chargerResponse struct {
	models.Charger
	AvailableNow bool `json:"availableNow"`
}

// Create handles POST /api/chargers.
func (h *ChargerHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createChargerRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	c, err := h.svc.Create(r.Context(), actor(r), charger.CreateRequest{
		Location:           models.Location{Latitude: req.Location.Latitude, Longitude: req.Location.Longitude},
		Address:            req.Address,
		Type:               req.Type,
		ConnectorType:      req.ConnectorType,
		PricePerHour:       req.PricePerHour,
		CreditsPerHour:     req.CreditsPerHour,
		MaxSpeed:           req.MaxSpeed,
		HasTetheredCable:   req.HasTetheredCable,
		AccessInstructions: req.AccessInstructions,
		Schedule:           req.AvailabilitySchedule,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// List handles GET /api/chargers.
func (h *ChargerHandlers) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseChargerFilter(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	chargers, err := h.svc.ListAvailable(r.Context(), actor(r), filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chargers)
}

func parseChargerFilter(r *http.Request) (availability.Filter, error) {
	q := r.URL.Query()
	var f availability.Filter
	for _, t := range q["type"] {
		ct := models.ChargerType(t)
		if !ct.IsValid() {
			return f, apperr.Validationf("unknown charger type %q", t)
		}
		f.Types = append(f.Types, ct)
	}
	for _, c := range q["connector"] {
		conn := models.ConnectorType(c)
		if !conn.IsValid() {
			return f, apperr.Validationf("unknown connector type %q", c)
		}
		f.Connectors = append(f.Connectors, conn)
	}
	if raw := q.Get("maxCredits"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, apperr.Validation("maxCredits must be a non-negative integer")
		}
		f.MaxCreditsPerHour = n
	}
	if raw := q.Get("at"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, apperr.Validation("at must be an RFC3339 timestamp")
		}
		f.At = &at
	}
	return f, nil
}

// Mine handles GET /api/chargers/mine.
func (h *ChargerHandlers) Mine(w http.ResponseWriter, r *http.Request) {
	chargers, err := h.svc.ListMine(r.Context(), actor(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chargers)
}

// Get handles GET /api/chargers/{id}.
func (h *ChargerHandlers) Get(w http.ResponseWriter, r *http.Request) {
	c, open, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chargerResponse{Charger: c, AvailableNow: open})
}

// SetStatus handles PATCH /api/chargers/{id}/status.
func (h *ChargerHandlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	c, err := h.svc.SetStatus(r.Context(), actor(r), r.PathValue("id"), req.Status)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/chargers/{id}.
func (h *ChargerHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), actor(r), r.PathValue("id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
