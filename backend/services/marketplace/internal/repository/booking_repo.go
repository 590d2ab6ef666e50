package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/store"
)

const fieldDriverDebitedAt = "driverDebitedAt"

// BookingRepository persists bookings.
type BookingRepository struct {
	store store.Store
}

// NewBookingRepository returns repository instance.
func NewBookingRepository(s store.Store) *BookingRepository {
	return &BookingRepository{store: s}
}

// Create stores b and assigns its id.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	doc, err := models.EncodeBooking(*b)
	if err != nil {
		return err
	}
	id, err := r.store.Add(ctx, CollectionBookings, doc)
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

// Get fetches a booking by id.
func (r *BookingRepository) Get(ctx context.Context, id string) (models.Booking, error) {
	doc, err := r.store.Get(ctx, CollectionBookings, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Booking{}, apperr.NotFound("booking", id)
		}
		return models.Booking{}, err
	}
	return models.DecodeBooking(doc.ID, doc.Data)
}

// Transition writes fields only while the stored status still equals from and every extra guard
// holds.
func (r *BookingRepository) Transition(ctx context.Context, id string, from models.BookingStatus, fields map[string]any, guards ...store.Where) error {
	conds := append([]store.Where{{Field: "status", Value: string(from)}}, guards...)
	err := r.store.SetIf(ctx, CollectionBookings, id, conds, fields)
	switch {
	case errors.Is(err, store.ErrPreconditionFailed):
		return fmt.Errorf("%w: booking %s is no longer %s", ErrStatusChanged, id, from)
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("booking", id)
	}
	return err
}

// MarkDriverDebited claims the driver debit of a booking. It reports false when another
// session already holds the claim.
func (r *BookingRepository) MarkDriverDebited(ctx context.Context, id string, at time.Time) (bool, error) {
	err := r.store.SetIf(ctx, CollectionBookings, id, []store.Where{store.Missing(fieldDriverDebitedAt)},
		map[string]any{fieldDriverDebitedAt: at.UTC()})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrPreconditionFailed):
		return false, nil
	case errors.Is(err, store.ErrNotFound):
		return false, apperr.NotFound("booking", id)
	}
	return false, err
}

// ClearDriverDebited releases the claim after a failed debit.
func (r *BookingRepository) ClearDriverDebited(ctx context.Context, id string) error {
	return r.store.Set(ctx, CollectionBookings, id, map[string]any{fieldDriverDebitedAt: nil}, true)
}

// Update merges fields into the booking.
func (r *BookingRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.store.Set(ctx, CollectionBookings, id, fields, true)
}

// ListForHost returns every booking on the host's chargers.
func (r *BookingRepository) ListForHost(ctx context.Context, hostID string) ([]models.Booking, error) {
	return r.list(ctx, store.Eq("hostId", hostID))
}

// ListForDriver returns every booking the driver requested.
func (r *BookingRepository) ListForDriver(ctx context.Context, driverID string) ([]models.Booking, error) {
	return r.list(ctx, store.Eq("driverId", driverID))
}

// ListIncoming returns the host's pending requests, newest first.
func (r *BookingRepository) ListIncoming(ctx context.Context, hostID string) ([]models.Booking, error) {
	return r.list(ctx, incomingFilter(hostID))
}

// SubscribeBookingStatus pushes the booking on every change. A deleted booking is reported as a
// not-found error.
func (r *BookingRepository) SubscribeBookingStatus(ctx context.Context, id string, fn func(models.Booking, error)) (store.CancelFunc, error) {
	return r.store.Subscribe(ctx, CollectionBookings, store.Filter{ID: id}, func(snap store.Snapshot) {
		if snap.Err != nil {
			fn(models.Booking{}, snap.Err)
			return
		}
		if len(snap.Documents) == 0 {
			fn(models.Booking{}, apperr.NotFound("booking", id))
			return
		}
		doc := snap.Documents[0]
		fn(models.DecodeBooking(doc.ID, doc.Data))
	})
}

// SubscribeIncomingRequests pushes the host's pending set on every change to it.
func (r *BookingRepository) SubscribeIncomingRequests(ctx context.Context, hostID string, fn func([]models.Booking, error)) (store.CancelFunc, error) {
	return r.store.Subscribe(ctx, CollectionBookings, incomingFilter(hostID), func(snap store.Snapshot) {
		if snap.Err != nil {
			fn(nil, snap.Err)
			return
		}
		bookings, err := decodeAll(snap.Documents, models.DecodeBooking)
		sortNewestFirst(bookings)
		fn(bookings, err)
	})
}

func (r *BookingRepository) list(ctx context.Context, filter store.Filter) ([]models.Booking, error) {
	docs, err := r.store.Query(ctx, CollectionBookings, filter)
	if err != nil {
		return nil, err
	}
	bookings, err := decodeAll(docs, models.DecodeBooking)
	sortNewestFirst(bookings)
	return bookings, err
}

func incomingFilter(hostID string) store.Filter {
	return store.Eq("hostId", hostID).And("status", string(models.StatusPending))
}

func sortNewestFirst(bookings []models.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].RequestedAt.After(bookings[j].RequestedAt)
	})
}
