package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/ledger"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/repository"
	"plugin/backend/services/marketplace/internal/store/memory"
)

// Monday 10:00 UTC.
var monday = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	bookings *repository.BookingRepository
	chargers *repository.ChargerRepository
	users    *repository.UserRepository
	charger  models.Charger
}

func newFixture(t *testing.T, hostLedger HostLedger) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New(nil)
	t.Cleanup(s.Close)

	f := &fixture{
		bookings: repository.NewBookingRepository(s),
		chargers: repository.NewChargerRepository(s),
		users:    repository.NewUserRepository(s),
	}
	require.NoError(t, f.users.Create(ctx, models.User{ID: "host", Email: "host@example.com"}))
	require.NoError(t, f.users.Create(ctx, models.User{ID: "driver", Email: "driver@example.com", GreenCredits: 10}))

	f.charger = models.Charger{
		HostID:               "host",
		Address:              "1 Main Street",
		Type:                 models.ChargerLevel2,
		ConnectorType:        models.ConnectorJ1772,
		PricePerHour:         3.0,
		CreditsPerHour:       3,
		Status:               models.ChargerAvailable,
		MaxSpeed:             7.2,
		AvailabilitySchedule: models.DefaultWeek(),
	}
	require.NoError(t, f.chargers.Create(ctx, &f.charger))

	if hostLedger == nil {
		hostLedger = ledger.NewCoordinator(f.users, f.bookings, zap.NewNop(), nil)
	}
	f.svc = NewService(f.bookings, f.chargers, hostLedger, zap.NewNop(),
		WithClock(func() time.Time { return monday }),
		WithLocation(time.UTC),
	)
	return f
}

func (f *fixture) credits(t *testing.T, userID string) int {
	t.Helper()
	u, err := f.users.Get(context.Background(), userID)
	require.NoError(t, err)
	return u.GreenCredits
}

func (f *fixture) create(t *testing.T) models.Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), "driver", CreateRequest{
		ChargerID: f.charger.ID,
		Duration:  2 * time.Hour,
	})
	require.NoError(t, err)
	return b
}

func TestCreateChargesWholeHoursInCredits(t *testing.T) {
	f := newFixture(t, nil)

	b, err := f.svc.Create(context.Background(), "driver", CreateRequest{
		ChargerID: f.charger.ID,
		Duration:  2*time.Hour + 40*time.Minute,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, "host", b.HostID)
	assert.Equal(t, monday, b.RequestedAt)
	require.NotNil(t, b.CreditsUsed)
	assert.Equal(t, 6, *b.CreditsUsed)
	assert.Nil(t, b.AmountPaid)
	assert.Nil(t, b.ScheduledStartTime)

	stored, err := f.bookings.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.CreditsUsed, stored.CreditsUsed)
	assert.InDelta(t, (2*time.Hour + 40*time.Minute).Seconds(), stored.EstimatedDuration, 0.001)
}

func TestCreateCurrencyProratesPrice(t *testing.T) {
	f := newFixture(t, nil)

	b, err := f.svc.Create(context.Background(), "driver", CreateRequest{
		ChargerID:   f.charger.ID,
		Duration:    90 * time.Minute,
		PaymentMode: models.PaymentCurrency,
	})
	require.NoError(t, err)
	require.NotNil(t, b.AmountPaid)
	assert.InDelta(t, 4.5, *b.AmountPaid, 1e-9)
	assert.Nil(t, b.CreditsUsed)
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	evening := time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC)
	past := monday.Add(-time.Hour)

	cases := []struct {
		name   string
		driver string
		req    CreateRequest
		kind   error
		msg    string
	}{
		{name: "no driver", req: CreateRequest{ChargerID: f.charger.ID, Duration: time.Hour}, kind: apperr.ErrAuth},
		{name: "no charger id", driver: "driver", req: CreateRequest{Duration: time.Hour}, kind: apperr.ErrValidation},
		{name: "zero duration", driver: "driver", req: CreateRequest{ChargerID: f.charger.ID}, kind: apperr.ErrValidation},
		{name: "unknown charger", driver: "driver", req: CreateRequest{ChargerID: "nope", Duration: time.Hour}, kind: apperr.ErrNotFound},
		{name: "own charger", driver: "host", req: CreateRequest{ChargerID: f.charger.ID, Duration: time.Hour}, kind: apperr.ErrValidation},
		{name: "bad mode", driver: "driver", req: CreateRequest{ChargerID: f.charger.ID, Duration: time.Hour, PaymentMode: "barter"}, kind: apperr.ErrValidation},
		{name: "past start", driver: "driver", req: CreateRequest{ChargerID: f.charger.ID, Duration: time.Hour, ScheduledStart: &past}, kind: apperr.ErrValidation},
		{
			name:   "outside schedule",
			driver: "driver",
			req:    CreateRequest{ChargerID: f.charger.ID, Duration: time.Hour, ScheduledStart: &evening},
			kind:   apperr.ErrValidation,
			msg:    UnavailableMessage,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.driver, tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, apperr.Message(err))
			}
		})
	}
}

func TestCreateRejectsOfflineCharger(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.chargers.Update(context.Background(), f.charger.ID, map[string]any{"status": "offline"}))

	_, err := f.svc.Create(context.Background(), "driver", CreateRequest{ChargerID: f.charger.ID, Duration: time.Hour})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateScheduledKeepsStart(t *testing.T) {
	f := newFixture(t, nil)
	start := monday.Add(3 * time.Hour)

	b, err := f.svc.Create(context.Background(), "driver", CreateRequest{
		ChargerID:      f.charger.ID,
		Duration:       time.Hour,
		ScheduledStart: &start,
	})
	require.NoError(t, err)
	require.NotNil(t, b.ScheduledStartTime)
	assert.True(t, start.Equal(*b.ScheduledStartTime))
	end, ok := b.ScheduledEnd()
	assert.True(t, ok)
	assert.True(t, start.Add(time.Hour).Equal(end))
}

func TestAcceptCreditsHost(t *testing.T) {
	f := newFixture(t, nil)
	b := f.create(t)

	accepted, err := f.svc.Accept(context.Background(), "host", b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)

	assert.Equal(t, 6, f.credits(t, "host"))
	assert.Equal(t, 10, f.credits(t, "driver"))

	stored, err := f.bookings.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	require.NotNil(t, stored.AcceptedAt)
	assert.True(t, monday.Equal(*stored.AcceptedAt))
}

func TestAcceptRequiresHost(t *testing.T) {
	f := newFixture(t, nil)
	b := f.create(t)

	_, err := f.svc.Accept(context.Background(), "driver", b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Accept(context.Background(), "", b.ID)
	assert.ErrorIs(t, err, apperr.ErrAuth)

	stored, err := f.bookings.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestDeclineAfterTerminalOrAcceptedIsRejected(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		setup func(f *fixture, id string) error
		want  models.BookingStatus
	}{
		{
			name:  "declined",
			setup: func(f *fixture, id string) error { _, err := f.svc.Decline(ctx, "host", id); return err },
			want:  models.StatusDeclined,
		},
		{
			name:  "accepted",
			setup: func(f *fixture, id string) error { _, err := f.svc.Accept(ctx, "host", id); return err },
			want:  models.StatusAccepted,
		},
		{
			name:  "cancelled",
			setup: func(f *fixture, id string) error { _, err := f.svc.Cancel(ctx, "driver", id); return err },
			want:  models.StatusCancelled,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			b := f.create(t)
			require.NoError(t, tc.setup(f, b.ID))
			hostBefore := f.credits(t, "host")

			_, err := f.svc.Decline(ctx, "host", b.ID)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.ErrorIs(t, err, apperr.ErrValidation)

			stored, err := f.bookings.Get(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, stored.Status)
			assert.Equal(t, hostBefore, f.credits(t, "host"))
		})
	}
}

func TestCancelPendingMovesNoCredits(t *testing.T) {
	f := newFixture(t, nil)
	b := f.create(t)

	cancelled, err := f.svc.Cancel(context.Background(), "driver", b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, 0, f.credits(t, "host"))
	assert.Equal(t, 10, f.credits(t, "driver"))

	_, err = f.svc.Cancel(context.Background(), "host", b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestConcurrentAcceptAppliesOnce(t *testing.T) {
	f := newFixture(t, nil)
	b := f.create(t)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Accept(context.Background(), "host", b.ID); err == nil {
				success.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), success.Load())
	assert.Equal(t, 6, f.credits(t, "host"))
}

type failingLedger struct{ calls atomic.Int32 }

func (l *failingLedger) CreditHost(context.Context, models.Booking) error {
	l.calls.Add(1)
	return apperr.Transient("increment", errors.New("connection reset"))
}

func TestAcceptSurvivesLedgerFailure(t *testing.T) {
	l := &failingLedger{}
	f := newFixture(t, l)
	b := f.create(t)

	accepted, err := f.svc.Accept(context.Background(), "host", b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	assert.Equal(t, int32(1), l.calls.Load())
}

func TestSessionLifecycleAndRating(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	b := f.create(t)

	_, err := f.svc.Start(ctx, "driver", b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Accept(ctx, "host", b.ID)
	require.NoError(t, err)

	_, err = f.svc.Rate(ctx, "driver", b.ID, 5)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	started, err := f.svc.Start(ctx, "driver", b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, started.Status)
	require.NotNil(t, started.StartedAt)

	_, err = f.svc.Cancel(ctx, "driver", b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	completed, err := f.svc.Complete(ctx, "host", b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	_, err = f.svc.Rate(ctx, "driver", b.ID, 6)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	rated, err := f.svc.Rate(ctx, "driver", b.ID, 4)
	require.NoError(t, err)
	require.NotNil(t, rated.DriverRating)
	assert.Equal(t, 4, *rated.DriverRating)
	assert.Nil(t, rated.HostRating)

	_, err = f.svc.Rate(ctx, "driver", b.ID, 3)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	rated, err = f.svc.Rate(ctx, "host", b.ID, 5)
	require.NoError(t, err)
	require.NotNil(t, rated.HostRating)
	require.NotNil(t, rated.DriverRating)
	assert.Equal(t, 5, *rated.HostRating)

	_, err = f.svc.Rate(ctx, "stranger", b.ID, 5)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestConcurrentRatingsKeepTheFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	b := f.create(t)
	_, err := f.svc.Accept(ctx, "host", b.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "driver", b.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, "host", b.ID)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		won      atomic.Int32
		rejected atomic.Int32
		winner   atomic.Int32
	)
	for i := 0; i < 8; i++ {
		stars := i%5 + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Rate(ctx, "driver", b.ID, stars)
			if err == nil {
				won.Add(1)
				winner.Store(int32(stars))
				return
			}
			if assert.ErrorIs(t, err, apperr.ErrValidation) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(7), rejected.Load())

	stored, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DriverRating)
	assert.Equal(t, int(winner.Load()), *stored.DriverRating)
	assert.Nil(t, stored.HostRating)
}

func TestGetRequiresParticipant(t *testing.T) {
	f := newFixture(t, nil)
	b := f.create(t)

	got, err := f.svc.Get(context.Background(), "host", b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = f.svc.Get(context.Background(), "stranger", b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Get(context.Background(), "host", "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHistoryAndIncoming(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.create(t)
	second := f.create(t)
	third := f.create(t)

	_, err := f.svc.Accept(ctx, "host", first.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, "driver", second.ID)
	require.NoError(t, err)

	incoming, err := f.svc.IncomingRequests(ctx, "host")
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, third.ID, incoming[0].ID)

	for _, user := range []string{"host", "driver"} {
		history, err := f.svc.History(ctx, user)
		require.NoError(t, err)
		require.Len(t, history, 1, user)
		assert.Equal(t, first.ID, history[0].ID)
	}

	_, err = f.svc.History(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestEstimate(t *testing.T) {
	f := newFixture(t, nil)

	est, err := f.svc.Estimate(context.Background(), f.charger.ID, 2*time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCredits, est.PaymentMode)
	require.NotNil(t, est.EstimatedCredits)
	assert.Equal(t, 6, *est.EstimatedCredits)

	est = EstimateCost(f.charger, 30*time.Minute, models.PaymentCredits)
	assert.Equal(t, 0, *est.EstimatedCredits)

	est = EstimateCost(f.charger, 30*time.Minute, models.PaymentCurrency)
	assert.InDelta(t, 1.5, *est.EstimatedCost, 1e-9)
}
