// Package booking implements the booking lifecycle: creation, guarded status transitions and
// cost calculation.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/availability"
	"plugin/backend/services/marketplace/internal/metrics"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/repository"
	"plugin/backend/services/marketplace/internal/store"
)

// ErrInvalidTransition is returned when the requested status change is not legal from the
// booking's current status. It is a validation error.
var ErrInvalidTransition = fmt.Errorf("booking: invalid status transition: %w", apperr.ErrValidation)

// UnavailableMessage is shown when the charger's schedule rejects the requested time.
const UnavailableMessage = "This charger is not available at the requested time. Please choose a different time."

// Store is the booking persistence contract.
type Store interface {
	Create(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id string) (models.Booking, error)
	Transition(ctx context.Context, id string, from models.BookingStatus, fields map[string]any, guards ...store.Where) error
	ListForHost(ctx context.Context, hostID string) ([]models.Booking, error)
	ListForDriver(ctx context.Context, driverID string) ([]models.Booking, error)
	ListIncoming(ctx context.Context, hostID string) ([]models.Booking, error)
}

// ChargerReader resolves chargers.
type ChargerReader interface {
	Get(ctx context.Context, id string) (models.Charger, error)
}

// HostLedger credits the host of an accepted booking.
type HostLedger interface {
	CreditHost(ctx context.Context, b models.Booking) error
}

// Option customises Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service drives booking state.
type Service struct {
	bookings Store
	chargers ChargerReader
	ledger   HostLedger
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	loc      *time.Location
}

// NewService builds Service.
func NewService(bookings Store, chargers ChargerReader, ledger HostLedger, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		bookings: bookings,
		chargers: chargers,
		ledger:   ledger,
		logger:   logger,
		tracer:   otel.Tracer("plugin/marketplace/booking"),
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest is a driver's booking request.
type CreateRequest struct {
	ChargerID   string
	Duration    time.Duration
	PaymentMode models.PaymentMode
	// ScheduledStart nil means as soon as possible.
	ScheduledStart *time.Time
}

// Create validates the request against the charger and persists a pending booking.
func (s *Service) Create(ctx context.Context, driverID string, req CreateRequest) (models.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Create", trace.WithAttributes(
		attribute.String("charger.id", req.ChargerID),
		attribute.String("payment.mode", string(req.PaymentMode)),
	))
	defer span.End()

	b, err := s.create(ctx, driverID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
		return models.Booking{}, err
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))
	return b, nil
}

func (s *Service) create(ctx context.Context, driverID string, req CreateRequest) (models.Booking, error) {
	if driverID == "" {
		return models.Booking{}, apperr.Unauthenticated("sign in to book a charger")
	}
	if req.ChargerID == "" {
		return models.Booking{}, apperr.Validation("charger id is required")
	}
	if req.Duration <= 0 {
		return models.Booking{}, apperr.Validation("duration must be positive")
	}
	if req.PaymentMode == "" {
		req.PaymentMode = models.PaymentCredits
	}
	if !req.PaymentMode.IsValid() {
		return models.Booking{}, apperr.Validationf("unknown payment mode %q", req.PaymentMode)
	}

	now := s.now().UTC()
	at := now
	if req.ScheduledStart != nil {
		if !req.ScheduledStart.After(now) {
			return models.Booking{}, apperr.Validation("scheduled start must be in the future")
		}
		at = *req.ScheduledStart
	}

	charger, err := s.chargers.Get(ctx, req.ChargerID)
	if err != nil {
		return models.Booking{}, err
	}
	switch {
	case charger.Status != models.ChargerAvailable:
		return models.Booking{}, apperr.Validationf("This charger is %s and not accepting bookings.", charger.Status)
	case charger.HostID == driverID:
		return models.Booking{}, apperr.Validation("You cannot book your own charger.")
	case !availability.IsAvailable(charger, at, s.loc):
		return models.Booking{}, apperr.Validation(UnavailableMessage)
	}

	est := EstimateCost(charger, req.Duration, req.PaymentMode)
	b := models.Booking{
		ChargerID:         charger.ID,
		HostID:            charger.HostID,
		DriverID:          driverID,
		Status:            models.StatusPending,
		RequestedAt:       now,
		EstimatedDuration: req.Duration.Seconds(),
		CreditsUsed:       est.EstimatedCredits,
		AmountPaid:        est.EstimatedCost,
	}
	if req.ScheduledStart != nil {
		start := req.ScheduledStart.UTC()
		b.ScheduledStartTime = &start
	}

	if err := s.bookings.Create(ctx, &b); err != nil {
		return models.Booking{}, err
	}
	s.metrics.BookingCreated(string(req.PaymentMode))
	s.logger.Info("booking requested",
		zap.String("booking_id", b.ID),
		zap.String("charger_id", b.ChargerID),
		zap.String("driver_id", driverID),
		zap.String("payment_mode", string(req.PaymentMode)),
	)
	return b, nil
}

// Estimate previews the cost of booking chargerID.
func (s *Service) Estimate(ctx context.Context, chargerID string, d time.Duration, mode models.PaymentMode) (Estimate, error) {
	if d <= 0 {
		return Estimate{}, apperr.Validation("duration must be positive")
	}
	if mode == "" {
		mode = models.PaymentCredits
	}
	if !mode.IsValid() {
		return Estimate{}, apperr.Validationf("unknown payment mode %q", mode)
	}
	charger, err := s.chargers.Get(ctx, chargerID)
	if err != nil {
		return Estimate{}, err
	}
	return EstimateCost(charger, d, mode), nil
}

// Accept moves a pending booking to accepted and credits the host. A ledger failure is logged
// and does not undo the transition.
func (s *Service) Accept(ctx context.Context, hostID, bookingID string) (models.Booking, error) {
	now := s.now().UTC()
	b, err := s.transition(ctx, hostID, bookingID, models.StatusAccepted, hostOnly, map[string]any{"acceptedAt": now})
	if err != nil {
		return models.Booking{}, err
	}
	b.AcceptedAt = &now

	if err := s.ledger.CreditHost(context.WithoutCancel(ctx), b); err != nil {
		s.logger.Error("host credit failed",
			zap.String("booking_id", b.ID),
			zap.String("host_id", b.HostID),
			zap.Int("credits", b.Credits()),
			zap.Error(err),
		)
	}
	return b, nil
}

// Decline moves a pending booking to declined.
func (s *Service) Decline(ctx context.Context, hostID, bookingID string) (models.Booking, error) {
	return s.transition(ctx, hostID, bookingID, models.StatusDeclined, hostOnly, nil)
}

// Cancel withdraws a pending or accepted booking. Credits already moved stay moved.
func (s *Service) Cancel(ctx context.Context, driverID, bookingID string) (models.Booking, error) {
	return s.transition(ctx, driverID, bookingID, models.StatusCancelled, driverOnly, nil)
}

// Start begins an accepted session.
func (s *Service) Start(ctx context.Context, actorID, bookingID string) (models.Booking, error) {
	now := s.now().UTC()
	b, err := s.transition(ctx, actorID, bookingID, models.StatusActive, participant, map[string]any{"startedAt": now})
	if err != nil {
		return models.Booking{}, err
	}
	b.StartedAt = &now
	return b, nil
}

// Complete ends a running session.
func (s *Service) Complete(ctx context.Context, actorID, bookingID string) (models.Booking, error) {
	now := s.now().UTC()
	b, err := s.transition(ctx, actorID, bookingID, models.StatusCompleted, participant, map[string]any{"endedAt": now})
	if err != nil {
		return models.Booking{}, err
	}
	b.EndedAt = &now
	return b, nil
}

// Rate records the actor's rating of a completed booking. The driver's rating goes to
// driverRating and the host's to hostRating; each is set once, even under concurrent calls.
func (s *Service) Rate(ctx context.Context, actorID, bookingID string, stars int) (models.Booking, error) {
	if stars < 1 || stars > 5 {
		return models.Booking{}, apperr.Validation("rating must be between 1 and 5")
	}
	b, err := s.load(ctx, actorID, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if err := participant(b, actorID); err != nil {
		return models.Booking{}, err
	}
	if b.Status != models.StatusCompleted {
		return models.Booking{}, apperr.New(ErrInvalidTransition, "only completed bookings can be rated")
	}

	field, current := "hostRating", &b.HostRating
	if actorID == b.DriverID {
		field, current = "driverRating", &b.DriverRating
	}
	if *current != nil {
		return models.Booking{}, apperr.Validation("booking already rated")
	}

	err = s.bookings.Transition(ctx, bookingID, models.StatusCompleted, map[string]any{field: stars}, store.Missing(field))
	if errors.Is(err, repository.ErrStatusChanged) {
		if latest, getErr := s.bookings.Get(ctx, bookingID); getErr == nil && latest.Status == models.StatusCompleted {
			return models.Booking{}, apperr.Validation("booking already rated")
		}
	}
	if err != nil {
		return models.Booking{}, s.mapTransitionErr(err, b.Status, b.Status)
	}
	*current = &stars
	return b, nil
}

// Get returns a booking the actor takes part in.
func (s *Service) Get(ctx context.Context, actorID, bookingID string) (models.Booking, error) {
	b, err := s.load(ctx, actorID, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if err := participant(b, actorID); err != nil {
		return models.Booking{}, err
	}
	return b, nil
}

// IncomingRequests lists the host's pending bookings, newest first.
func (s *Service) IncomingRequests(ctx context.Context, hostID string) ([]models.Booking, error) {
	if hostID == "" {
		return nil, apperr.Unauthenticated("sign in to see requests")
	}
	bookings, err := s.bookings.ListIncoming(ctx, hostID)
	return s.dropUndecodable(bookings, err)
}

var historyStatuses = map[models.BookingStatus]bool{
	models.StatusAccepted:  true,
	models.StatusDeclined:  true,
	models.StatusCompleted: true,
	models.StatusActive:    true,
}

// History lists the bookings the user drove or hosted, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]models.Booking, error) {
	if userID == "" {
		return nil, apperr.Unauthenticated("sign in to see history")
	}

	driven, err := s.dropUndecodable(s.bookings.ListForDriver(ctx, userID))
	if err != nil {
		return nil, err
	}
	hosted, err := s.dropUndecodable(s.bookings.ListForHost(ctx, userID))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(driven)+len(hosted))
	out := make([]models.Booking, 0, len(driven)+len(hosted))
	for _, b := range append(driven, hosted...) {
		if _, dup := seen[b.ID]; dup || !historyStatuses[b.Status] {
			continue
		}
		seen[b.ID] = struct{}{}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

type authorizer func(b models.Booking, actorID string) error

func hostOnly(b models.Booking, actorID string) error {
	if b.HostID != actorID {
		return apperr.Forbidden("only the host can respond to this booking")
	}
	return nil
}

func driverOnly(b models.Booking, actorID string) error {
	if b.DriverID != actorID {
		return apperr.Forbidden("only the driver can cancel this booking")
	}
	return nil
}

func participant(b models.Booking, actorID string) error {
	if !b.HasParticipant(actorID) {
		return apperr.Forbidden("you are not part of this booking")
	}
	return nil
}

func (s *Service) transition(ctx context.Context, actorID, bookingID string, to models.BookingStatus, authorize authorizer, fields map[string]any) (models.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Transition", trace.WithAttributes(
		attribute.String("booking.id", bookingID),
		attribute.String("booking.to", string(to)),
	))
	defer span.End()

	b, err := s.load(ctx, actorID, bookingID)
	if err == nil {
		err = authorize(b, actorID)
	}
	if err == nil && !b.Status.CanTransitionTo(to) {
		err = invalidTransition(b.Status, to)
	}
	if err == nil {
		update := map[string]any{"status": string(to)}
		for k, v := range fields {
			update[k] = v
		}
		err = s.mapTransitionErr(s.bookings.Transition(ctx, bookingID, b.Status, update), b.Status, to)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
		return models.Booking{}, err
	}

	from := b.Status
	b.Status = to
	s.metrics.Transition(string(to))
	s.logger.Info("booking status changed",
		zap.String("booking_id", bookingID),
		zap.String("actor_id", actorID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return b, nil
}

func (s *Service) load(ctx context.Context, actorID, bookingID string) (models.Booking, error) {
	if actorID == "" {
		return models.Booking{}, apperr.Unauthenticated("sign in to manage bookings")
	}
	if bookingID == "" {
		return models.Booking{}, apperr.Validation("booking id is required")
	}
	return s.bookings.Get(ctx, bookingID)
}

func (s *Service) mapTransitionErr(err error, from, to models.BookingStatus) error {
	if errors.Is(err, repository.ErrStatusChanged) {
		return apperr.Wrap(ErrInvalidTransition,
			fmt.Sprintf("booking is no longer %s and cannot become %s", from, to), err)
	}
	return err
}

func invalidTransition(from, to models.BookingStatus) error {
	return apperr.New(ErrInvalidTransition, fmt.Sprintf("cannot move a %s booking to %s", from, to))
}

// dropUndecodable keeps the decoded bookings when the only failure is an undecodable document.
func (s *Service) dropUndecodable(bookings []models.Booking, err error) ([]models.Booking, error) {
	if err == nil {
		return bookings, nil
	}
	if errors.Is(err, apperr.ErrValidation) && !errors.Is(err, apperr.ErrTransient) {
		s.logger.Warn("skipping undecodable bookings", zap.Error(err))
		return bookings, nil
	}
	return nil, err
}
