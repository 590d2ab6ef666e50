package charger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/availability"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/repository"
	"plugin/backend/services/marketplace/internal/store/memory"
)

func newService(t *testing.T, now time.Time) (*Service, *repository.UserRepository) {
	t.Helper()
	s := memory.New(nil)
	t.Cleanup(s.Close)
	users := repository.NewUserRepository(s)
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, models.User{ID: "host", Email: "h@example.com"}))
	require.NoError(t, users.Create(ctx, models.User{ID: "driver", Email: "d@example.com"}))

	svc := NewService(repository.NewChargerRepository(s), users, time.UTC, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, users
}

func validRequest() CreateRequest {
	return CreateRequest{
		Address:       "  42 Harbour Road ",
		Type:          models.ChargerLevel2,
		ConnectorType: models.ConnectorCCS,
		MaxSpeed:      11,
	}
}

func TestCreateAppliesDefaultsAndGrantsHost(t *testing.T) {
	svc, users := newService(t, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))

	c, err := svc.Create(context.Background(), "host", validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "42 Harbour Road", c.Address)
	assert.Equal(t, models.DefaultPricePerHour, c.PricePerHour)
	assert.Equal(t, models.DefaultCreditsPerHour, c.CreditsPerHour)
	assert.Equal(t, models.ChargerAvailable, c.Status)
	assert.Equal(t, models.DefaultWeek(), c.AvailabilitySchedule)
	assert.Nil(t, c.AccessInstructions)

	u, err := users.Get(context.Background(), "host")
	require.NoError(t, err)
	assert.True(t, u.HasRole(models.RoleHost))
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t, time.Now())

	cases := map[string]func(r *CreateRequest){
		"short address":  func(r *CreateRequest) { r.Address = " abc " },
		"cheap":          func(r *CreateRequest) { r.PricePerHour = 0.25 },
		"expensive":      func(r *CreateRequest) { r.PricePerHour = 20.5 },
		"credits":        func(r *CreateRequest) { r.CreditsPerHour = -1 },
		"speed":          func(r *CreateRequest) { r.MaxSpeed = 0 },
		"type":           func(r *CreateRequest) { r.Type = "Level 9" },
		"connector":      func(r *CreateRequest) { r.ConnectorType = "USB" },
		"short schedule": func(r *CreateRequest) { r.Schedule = models.DefaultWeek()[:6] },
		"bad hours": func(r *CreateRequest) {
			r.Schedule = models.DefaultWeek()
			r.Schedule[2].StartHour, r.Schedule[2].EndHour = 20, 10
		},
		"repeated day": func(r *CreateRequest) {
			r.Schedule = models.DefaultWeek()
			r.Schedule[3].Day = 2
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := svc.Create(context.Background(), "host", req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	_, err := svc.Create(context.Background(), "", validRequest())
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestListAvailableFiltersAndExcludesOwn(t *testing.T) {
	// Monday 23:00, outside the default week.
	late := time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC)
	svc, _ := newService(t, late)
	ctx := context.Background()

	req := validRequest()
	_, err := svc.Create(ctx, "host", req)
	require.NoError(t, err)

	allDay := validRequest()
	allDay.ConnectorType = models.ConnectorTeslaNACS
	allDay.Schedule = models.DefaultWeek()
	for i := range allDay.Schedule {
		allDay.Schedule[i].StartHour, allDay.Schedule[i].EndHour = 0, 24
	}
	open, err := svc.Create(ctx, "host", allDay)
	require.NoError(t, err)

	got, err := svc.ListAvailable(ctx, "driver", availability.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)

	noon := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	got, err = svc.ListAvailable(ctx, "driver", availability.Filter{At: &noon, Connectors: []models.ConnectorType{models.ConnectorCCS}})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.ListAvailable(ctx, "host", availability.Filter{At: &noon})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSetStatusAndDeleteAreHostOnly(t *testing.T) {
	svc, _ := newService(t, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	c, err := svc.Create(ctx, "host", validRequest())
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, "driver", c.ID, models.ChargerOffline)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.SetStatus(ctx, "host", c.ID, models.ChargerInUse)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	updated, err := svc.SetStatus(ctx, "host", c.ID, models.ChargerOffline)
	require.NoError(t, err)
	assert.Equal(t, models.ChargerOffline, updated.Status)

	got, openNow, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChargerOffline, got.Status)
	assert.False(t, openNow)

	mine, err := svc.ListMine(ctx, "host")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	assert.ErrorIs(t, svc.Delete(ctx, "driver", c.ID), apperr.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, "host", c.ID))
	_, _, err = svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
