// Package charger manages host listings and the driver-facing charger search.
package charger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/availability"
	"plugin/backend/services/marketplace/internal/models"
)

const (
	MinPricePerHour  = 0.50
	MaxPricePerHour  = 20.00
	minAddressLength = 5
)

// Store is the charger persistence contract.
type Store interface {
	Create(ctx context.Context, c *models.Charger) error
	Get(ctx context.Context, id string) (models.Charger, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	ListByHost(ctx context.Context, hostID string) ([]models.Charger, error)
	ListAvailable(ctx context.Context) ([]models.Charger, error)
}

// RoleGranter adds roles to users.
type RoleGranter interface {
	AddRole(ctx context.Context, id string, role models.Role) (models.User, error)
}

// Service handles charger listings.
type Service struct {
	chargers Store
	users    RoleGranter
	logger   *zap.Logger
	now      func() time.Time
	loc      *time.Location
}

// NewService builds Service. loc is the zone schedules are evaluated in.
func NewService(chargers Store, users RoleGranter, loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{chargers: chargers, users: users, logger: logger, now: time.Now, loc: loc}
}

// CreateRequest describes a new listing.
type CreateRequest struct {
	Location           models.Location
	Address            string
	Type               models.ChargerType
	ConnectorType      models.ConnectorType
	PricePerHour       float64
	CreditsPerHour     int
	MaxSpeed           float64
	HasTetheredCable   bool
	AccessInstructions string
	// Schedule nil means the default week.
	Schedule []models.DayAvailability
}

// Create validates and stores a listing and makes its owner a host.
func (s *Service) Create(ctx context.Context, hostID string, req CreateRequest) (models.Charger, error) {
	if hostID == "" {
		return models.Charger{}, apperr.Unauthenticated("sign in to list a charger")
	}
	if err := validate(&req); err != nil {
		return models.Charger{}, err
	}

	c := models.Charger{
		HostID:               hostID,
		Location:             req.Location,
		Address:              strings.TrimSpace(req.Address),
		Type:                 req.Type,
		ConnectorType:        req.ConnectorType,
		PricePerHour:         req.PricePerHour,
		CreditsPerHour:       req.CreditsPerHour,
		Status:               models.ChargerAvailable,
		MaxSpeed:             req.MaxSpeed,
		HasTetheredCable:     req.HasTetheredCable,
		CreatedAt:            s.now().UTC(),
		AvailabilitySchedule: req.Schedule,
	}
	if instructions := strings.TrimSpace(req.AccessInstructions); instructions != "" {
		c.AccessInstructions = &instructions
	}

	if err := s.chargers.Create(ctx, &c); err != nil {
		return models.Charger{}, err
	}
	if _, err := s.users.AddRole(ctx, hostID, models.RoleHost); err != nil {
		s.logger.Warn("failed to grant host role", zap.String("user_id", hostID), zap.Error(err))
	}

	s.logger.Info("charger listed", zap.String("charger_id", c.ID), zap.String("host_id", hostID))
	return c, nil
}

func validate(req *CreateRequest) error {
	if len(strings.TrimSpace(req.Address)) < minAddressLength {
		return apperr.Validationf("address must be at least %d characters", minAddressLength)
	}
	if !req.Type.IsValid() {
		return apperr.Validationf("unknown charger type %q", req.Type)
	}
	if !req.ConnectorType.IsValid() {
		return apperr.Validationf("unknown connector type %q", req.ConnectorType)
	}
	if req.PricePerHour == 0 {
		req.PricePerHour = models.DefaultPricePerHour
	}
	if req.PricePerHour < MinPricePerHour || req.PricePerHour > MaxPricePerHour {
		return apperr.Validationf("price per hour must be between %.2f and %.2f", MinPricePerHour, MaxPricePerHour)
	}
	if req.CreditsPerHour == 0 {
		req.CreditsPerHour = models.DefaultCreditsPerHour
	}
	if req.CreditsPerHour < 0 {
		return apperr.Validation("credits per hour must be positive")
	}
	if req.MaxSpeed <= 0 {
		return apperr.Validation("max speed must be positive")
	}
	if req.Schedule == nil {
		req.Schedule = models.DefaultWeek()
	}
	return validateSchedule(req.Schedule)
}

func validateSchedule(schedule []models.DayAvailability) error {
	if len(schedule) != 7 {
		return apperr.Validation("schedule must have one entry per day")
	}
	var seen [7]bool
	for _, d := range schedule {
		if d.Day < 0 || d.Day > 6 || seen[d.Day] {
			return apperr.Validationf("schedule has an invalid or repeated day %d", d.Day)
		}
		seen[d.Day] = true
		if d.StartHour < 0 || d.StartHour >= d.EndHour || d.EndHour > 24 {
			return apperr.Validationf("schedule hours for day %d are out of range", d.Day)
		}
	}
	return nil
}

// Get returns a charger and whether it can be booked right now.
func (s *Service) Get(ctx context.Context, id string) (models.Charger, bool, error) {
	c, err := s.chargers.Get(ctx, id)
	if err != nil {
		return models.Charger{}, false, err
	}
	open := c.Status == models.ChargerAvailable && availability.IsAvailable(c, s.now(), s.loc)
	return c, open, nil
}

// ListMine returns the host's chargers.
func (s *Service) ListMine(ctx context.Context, hostID string) ([]models.Charger, error) {
	if hostID == "" {
		return nil, apperr.Unauthenticated("sign in to see your chargers")
	}
	return s.chargers.ListByHost(ctx, hostID)
}

// ListAvailable applies filter to the available chargers, never listing the caller's own.
func (s *Service) ListAvailable(ctx context.Context, userID string, filter availability.Filter) ([]models.Charger, error) {
	chargers, err := s.chargers.ListAvailable(ctx)
	if err != nil && len(chargers) == 0 {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("skipping undecodable chargers", zap.Error(err))
	}
	filter.ExcludeHostID = userID
	return filter.Apply(chargers, s.now(), s.loc), nil
}

// SetStatus lets the host switch a charger between available and offline.
func (s *Service) SetStatus(ctx context.Context, hostID, id string, status models.ChargerStatus) (models.Charger, error) {
	if status != models.ChargerAvailable && status != models.ChargerOffline {
		return models.Charger{}, apperr.Validationf("status must be %s or %s", models.ChargerAvailable, models.ChargerOffline)
	}
	c, err := s.owned(ctx, hostID, id)
	if err != nil {
		return models.Charger{}, err
	}
	if err := s.chargers.Update(ctx, id, map[string]any{"status": string(status)}); err != nil {
		return models.Charger{}, err
	}
	c.Status = status
	s.logger.Info("charger status changed", zap.String("charger_id", id), zap.String("status", string(status)))
	return c, nil
}

// Delete removes the host's charger.
func (s *Service) Delete(ctx context.Context, hostID, id string) error {
	if _, err := s.owned(ctx, hostID, id); err != nil {
		return err
	}
	if err := s.chargers.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("charger removed", zap.String("charger_id", id), zap.String("host_id", hostID))
	return nil
}

func (s *Service) owned(ctx context.Context, hostID, id string) (models.Charger, error) {
	if hostID == "" {
		return models.Charger{}, apperr.Unauthenticated("sign in to manage chargers")
	}
	c, err := s.chargers.Get(ctx, id)
	if err != nil {
		return models.Charger{}, err
	}
	if c.HostID != hostID {
		return models.Charger{}, apperr.Forbidden("only the host can manage this charger")
	}
	return c, nil
}
