package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/store"
)

// DeclinedNotice is shown to the driver when the host declines the awaited request.
const DeclinedNotice = "Host declined your request"

// BookingSubscriber opens booking status subscriptions.
type BookingSubscriber interface {
	SubscribeBookingStatus(ctx context.Context, id string, fn func(models.Booking, error)) (store.CancelFunc, error)
}

// Debiter charges the driver for an accepted booking at most once, across sessions.
type Debiter interface {
	DebitOnce(ctx context.Context, b models.Booking) (bool, error)
}

// Notice is a user-facing message about a booking.
type Notice struct {
	BookingID string `json:"bookingId"`
	Message   string `json:"message"`
}

// DriverHandlers receive observer output. Nil handlers are skipped.
type DriverHandlers struct {
	OnBooking func(models.Booking)
	OnNotice  func(Notice)
	OnDebit   func(b models.Booking, credits int)
	OnError   func(error)
}

// DriverObserver follows the booking a driver is waiting on.
type DriverObserver struct {
	subs     BookingSubscriber
	ledger   Debiter
	handlers DriverHandlers
	logger   *zap.Logger
	slot     Slot

	mu       sync.Mutex
	gen      uint64
	awaiting string
	current  *models.Booking
}

// NewDriverObserver builds DriverObserver.
func NewDriverObserver(subs BookingSubscriber, ledger Debiter, handlers DriverHandlers, logger *zap.Logger) *DriverObserver {
	return &DriverObserver{subs: subs, ledger: ledger, handlers: handlers, logger: logger}
}

// Watch starts following bookingID and drops whatever was watched before. Deliveries from the
// previous subscription that are still in flight are ignored.
func (o *DriverObserver) Watch(ctx context.Context, bookingID string) error {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.awaiting = bookingID
	o.current = nil
	o.mu.Unlock()

	return o.slot.Subscribe(func() (store.CancelFunc, error) {
		return o.subs.SubscribeBookingStatus(ctx, bookingID, func(b models.Booking, err error) {
			o.handle(ctx, gen, b, err)
		})
	})
}

// Current returns the latest booking state seen, if any.
func (o *DriverObserver) Current() (models.Booking, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return models.Booking{}, false
	}
	return *o.current, true
}

// Close stops observing.
func (o *DriverObserver) Close() {
	o.mu.Lock()
	o.gen++
	o.awaiting = ""
	o.current = nil
	o.mu.Unlock()
	o.slot.Close()
}

func (o *DriverObserver) handle(ctx context.Context, gen uint64, b models.Booking, err error) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.mu.Unlock()
		o.emitError(err)
		return
	}

	var notice *Notice
	switch b.Status {
	case models.StatusDeclined:
		if o.awaiting == b.ID {
			notice = &Notice{BookingID: b.ID, Message: DeclinedNotice}
			o.awaiting = ""
		}
		o.current = nil
	default:
		snapshot := b
		o.current = &snapshot
	}
	o.mu.Unlock()

	// Snapshots coalesce and late watchers start mid-lifecycle, so the accepted state itself
	// may never be delivered.
	if b.WasAccepted() {
		applied, err := o.ledger.DebitOnce(ctx, b)
		switch {
		case err != nil:
			o.logger.Warn("driver debit failed, will retry on next update",
				zap.String("booking_id", b.ID),
				zap.Error(err),
			)
			o.emitError(err)
		case applied && o.handlers.OnDebit != nil:
			o.handlers.OnDebit(b, b.Credits())
		}
	}

	if o.handlers.OnBooking != nil {
		o.handlers.OnBooking(b)
	}
	if notice != nil && o.handlers.OnNotice != nil {
		o.handlers.OnNotice(*notice)
	}
}

func (o *DriverObserver) emitError(err error) {
	if o.handlers.OnError != nil {
		o.handlers.OnError(err)
	}
}
