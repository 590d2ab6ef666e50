// Package ledger moves green credits between users. Each side of a booking transfer is a
// separate atomic increment issued by the party that owns the balance. There is no
// compensation when one side fails permanently.
package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/metrics"
	"plugin/backend/services/marketplace/internal/models"
)

// CreditStore is the balance storage contract.
type CreditStore interface {
	IncrementCredits(ctx context.Context, userID string, delta int) error
	Get(ctx context.Context, userID string) (models.User, error)
}

// DebitClaims records on the booking itself that its driver debit was taken, so every session
// and every process sees the same claim.
type DebitClaims interface {
	MarkDriverDebited(ctx context.Context, bookingID string, at time.Time) (bool, error)
	ClearDriverDebited(ctx context.Context, bookingID string) error
}

// Coordinator applies credit deltas.
type Coordinator struct {
	users   CreditStore
	claims  DebitClaims
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewCoordinator builds Coordinator. m may be nil.
func NewCoordinator(users CreditStore, claims DebitClaims, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{users: users, claims: claims, logger: logger, metrics: m, now: time.Now}
}

// ApplyCreditDelta atomically adds delta to the user's balance.
func (c *Coordinator) ApplyCreditDelta(ctx context.Context, userID string, delta int) error {
	if userID == "" {
		return apperr.Unauthenticated("no user to apply credits to")
	}
	if delta == 0 {
		return nil
	}

	err := c.users.IncrementCredits(ctx, userID, delta)
	c.metrics.LedgerDelta(delta, err)
	if err != nil {
		c.logger.Warn("credit delta failed",
			zap.String("user_id", userID),
			zap.Int("delta", delta),
			zap.Error(err),
		)
		return err
	}
	c.logger.Info("credit delta applied", zap.String("user_id", userID), zap.Int("delta", delta))
	return nil
}

// CreditHost pays the host for an accepted booking. Bookings paid in currency carry no credits.
func (c *Coordinator) CreditHost(ctx context.Context, b models.Booking) error {
	credits := b.Credits()
	if credits <= 0 {
		return nil
	}
	return c.ApplyCreditDelta(ctx, b.HostID, credits)
}

// Balance returns the user's current balance.
func (c *Coordinator) Balance(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, apperr.Unauthenticated("no user")
	}
	u, err := c.users.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.GreenCredits, nil
}

// NewDriverLedger returns the debit guard for one observing session of driverID.
func (c *Coordinator) NewDriverLedger(driverID string) *DriverLedger {
	return &DriverLedger{
		coordinator: c,
		driverID:    driverID,
		debited:     make(map[string]struct{}),
	}
}

// DriverLedger debits a driver at most once per booking. The session keeps a local set of
// settled bookings; the durable claim on the booking decides across sessions.
type DriverLedger struct {
	coordinator *Coordinator
	driverID    string

	mu      sync.Mutex
	debited map[string]struct{}
}

// DebitOnce charges the driver for an accepted booking. It reports whether this call applied
// the debit. The claim is taken before the increment is issued so concurrent duplicates cannot
// both pass, and released again when the increment fails so the next notification retries.
func (d *DriverLedger) DebitOnce(ctx context.Context, b models.Booking) (bool, error) {
	if b.ID == "" {
		return false, apperr.Validation("booking has no id")
	}
	if b.DriverID != d.driverID {
		return false, apperr.Forbidden("only the booking's driver can be debited in this session")
	}
	credits := b.Credits()
	if credits <= 0 {
		return false, nil
	}

	d.mu.Lock()
	if _, ok := d.debited[b.ID]; ok {
		d.mu.Unlock()
		d.coordinator.metrics.DebitDeduplicated()
		return false, nil
	}
	d.debited[b.ID] = struct{}{}
	d.mu.Unlock()

	c := d.coordinator
	claimed, err := c.claims.MarkDriverDebited(ctx, b.ID, c.now())
	if err != nil {
		d.forget(b.ID)
		return false, err
	}
	if !claimed {
		c.metrics.DebitDeduplicated()
		c.logger.Debug("driver debit already claimed", zap.String("booking_id", b.ID))
		return false, nil
	}

	if err := c.ApplyCreditDelta(ctx, d.driverID, -credits); err != nil {
		if clearErr := c.claims.ClearDriverDebited(context.WithoutCancel(ctx), b.ID); clearErr != nil {
			c.logger.Error("failed to release driver debit claim",
				zap.String("booking_id", b.ID),
				zap.Error(clearErr),
			)
		}
		d.forget(b.ID)
		return false, err
	}
	return true, nil
}

// Debited reports whether this session settled the booking.
func (d *DriverLedger) Debited(bookingID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.debited[bookingID]
	return ok
}

func (d *DriverLedger) forget(bookingID string) {
	d.mu.Lock()
	delete(d.debited, bookingID)
	d.mu.Unlock()
}
