package ws

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/availability"
	"plugin/backend/services/marketplace/internal/ledger"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/realtime"
	"plugin/backend/services/marketplace/internal/store"
)

// BookingFeed is the booking side of the realtime sources.
type BookingFeed interface {
	realtime.BookingSubscriber
	Get(ctx context.Context, id string) (models.Booking, error)
	SubscribeIncomingRequests(ctx context.Context, hostID string, fn func([]models.Booking, error)) (store.CancelFunc, error)
}

// ChargerFeed is the charger side of the realtime sources.
type ChargerFeed interface {
	SubscribeHostChargers(ctx context.Context, hostID string, fn func([]models.Charger, error)) (store.CancelFunc, error)
	SubscribeAvailableChargers(ctx context.Context, fn func([]models.Charger, error)) (store.CancelFunc, error)
}

// SessionDeps are shared by every session.
type SessionDeps struct {
	Bookings BookingFeed
	Chargers ChargerFeed
	Ledger   *ledger.Coordinator
	Location *time.Location
	Logger   *zap.Logger
}

// Session is one device's realtime state: a driver observer with its own debit guard and one
// slot per watch kind.
type Session struct {
	userID string
	deps   SessionDeps
	send   func([]byte) bool
	logger *zap.Logger

	observer     *realtime.DriverObserver
	incoming     realtime.Slot
	hostChargers realtime.Slot
	available    realtime.Slot
}

// NewSession builds a session for userID that writes frames through send.
func NewSession(userID string, deps SessionDeps, send func([]byte) bool) *Session {
	s := &Session{
		userID: userID,
		deps:   deps,
		send:   send,
		logger: deps.Logger.With(zap.String("user_id", userID)),
	}
	s.observer = realtime.NewDriverObserver(deps.Bookings, deps.Ledger.NewDriverLedger(userID), realtime.DriverHandlers{
		OnBooking: func(b models.Booking) {
			s.emit(Event{Type: EventBooking, Data: b, BookingID: b.ID})
		},
		OnNotice: func(n realtime.Notice) {
			s.emit(Event{Type: EventNotice, BookingID: n.BookingID, Message: n.Message})
		},
		OnDebit: func(b models.Booking, credits int) {
			s.emit(Event{Type: EventDebit, BookingID: b.ID, Credits: credits})
		},
		OnError: s.emitError,
	}, s.logger)
	return s
}

// Process decodes and runs one client command. Failures are reported to the client and never
// end the session.
func (s *Session) Process(ctx context.Context, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.emitError(apperr.Validation("invalid command"))
		return
	}
	if err := s.handle(ctx, cmd); err != nil {
		s.logger.Debug("command failed", zap.String("action", cmd.Action), zap.Error(err))
		s.emitError(err)
	}
}

func (s *Session) handle(ctx context.Context, cmd Command) error {
	switch cmd.Action {
	case ActionWatchBooking:
		return s.watchBooking(ctx, cmd.ID)
	case ActionWatchIncoming:
		return s.incoming.Subscribe(func() (store.CancelFunc, error) {
			return s.deps.Bookings.SubscribeIncomingRequests(ctx, s.userID, func(bs []models.Booking, err error) {
				s.reportPartial(err)
				s.emit(Event{Type: EventIncoming, Data: nonNil(bs)})
			})
		})
	case ActionWatchHostChargers:
		return s.hostChargers.Subscribe(func() (store.CancelFunc, error) {
			return s.deps.Chargers.SubscribeHostChargers(ctx, s.userID, func(cs []models.Charger, err error) {
				s.reportPartial(err)
				s.emit(Event{Type: EventChargers, Data: nonNil(cs)})
			})
		})
	case ActionWatchAvailable:
		filter := availability.Filter{ExcludeHostID: s.userID}
		return s.available.Subscribe(func() (store.CancelFunc, error) {
			return s.deps.Chargers.SubscribeAvailableChargers(ctx, func(cs []models.Charger, err error) {
				s.reportPartial(err)
				s.emit(Event{Type: EventAvailable, Data: filter.Apply(cs, time.Now(), s.deps.Location)})
			})
		})
	case ActionUnwatch:
		return s.unwatch(cmd.ID)
	}
	return apperr.Validationf("unknown action %q", cmd.Action)
}

func (s *Session) watchBooking(ctx context.Context, id string) error {
	if id == "" {
		return apperr.Validation("booking id is required")
	}
	b, err := s.deps.Bookings.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.DriverID != s.userID {
		return apperr.Forbidden("only the driver can watch this booking")
	}
	return s.observer.Watch(ctx, id)
}

func (s *Session) unwatch(kind string) error {
	switch kind {
	case kindBooking:
		s.observer.Close()
	case kindIncoming:
		s.incoming.Close()
	case kindHostChargers:
		s.hostChargers.Close()
	case kindAvailable:
		s.available.Close()
	case "":
		s.Close()
	default:
		return apperr.Validationf("unknown watch kind %q", kind)
	}
	return nil
}

// Close drops every subscription of the session.
func (s *Session) Close() {
	s.observer.Close()
	s.incoming.Close()
	s.hostChargers.Close()
	s.available.Close()
}

func (s *Session) reportPartial(err error) {
	if err != nil {
		s.emitError(err)
	}
}

func (s *Session) emitError(err error) {
	s.emit(Event{Type: EventError, Message: apperr.Message(err)})
}

func (s *Session) emit(ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	s.send(raw)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
