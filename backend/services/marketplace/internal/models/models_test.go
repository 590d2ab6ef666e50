package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugin/backend/services/marketplace/internal/apperr"
)

func intPtr(v int) *int { return &v }

func TestBookingTransitions(t *testing.T) {
	cases := []struct {
		from, to BookingStatus
		ok       bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusDeclined, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusActive, false},
		{StatusAccepted, StatusActive, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusDeclined, false},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusCancelled, false},
		{StatusDeclined, StatusDeclined, false},
		{StatusCancelled, StatusAccepted, false},
		{StatusCompleted, StatusActive, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	for _, s := range []BookingStatus{StatusDeclined, StatusCancelled, StatusCompleted, "bogus"} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, BookingStatus("bogus").IsValid())
}

func TestEncodeBookingOmitsNilFieldsAndID(t *testing.T) {
	b := Booking{
		ID:                "b1",
		ChargerID:         "c1",
		HostID:            "h1",
		DriverID:          "d1",
		Status:            StatusPending,
		RequestedAt:       time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		EstimatedDuration: 7200,
		CreditsUsed:       intPtr(6),
	}

	doc, err := EncodeBooking(b)
	require.NoError(t, err)

	assert.NotContains(t, doc, "id")
	assert.NotContains(t, doc, "amountPaid")
	assert.NotContains(t, doc, "acceptedAt")
	assert.NotContains(t, doc, "scheduledStartTime")
	assert.Equal(t, "pending", doc["status"])

	decoded, err := DecodeBooking("b1", doc)
	require.NoError(t, err)
	assert.Equal(t, b, decoded)
	assert.Equal(t, 2*time.Hour, decoded.Duration())
	assert.Equal(t, 6, decoded.Credits())
}

func TestDecodeBookingRejectsIncompleteDocuments(t *testing.T) {
	base := map[string]any{
		"chargerId":         "c1",
		"hostId":            "h1",
		"driverId":          "d1",
		"status":            "pending",
		"requestedAt":       "2024-03-04T10:00:00Z",
		"estimatedDuration": 3600,
		"creditsUsed":       3,
	}

	_, err := DecodeBooking("ok", base)
	require.NoError(t, err)

	for _, field := range []string{"chargerId", "hostId", "status", "requestedAt", "creditsUsed"} {
		doc := make(map[string]any, len(base))
		for k, v := range base {
			if k != field {
				doc[k] = v
			}
		}
		_, err := DecodeBooking("bad", doc)
		assert.ErrorIs(t, err, apperr.ErrValidation, field)
	}

	both := map[string]any{}
	for k, v := range base {
		both[k] = v
	}
	both["amountPaid"] = 6.0
	_, err = DecodeBooking("both", both)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = DecodeBooking("gone", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = DecodeBooking("typed", map[string]any{"estimatedDuration": "long"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDecodeUserDefaults(t *testing.T) {
	u, err := DecodeUser("u1", map[string]any{"email": "a@b.co", "greenCredits": 12})
	require.NoError(t, err)
	assert.Equal(t, DefaultUserName, u.Name)
	assert.Equal(t, []Role{RoleDriver}, u.Roles)
	assert.Equal(t, 12, u.GreenCredits)
	assert.False(t, u.HasRole(RoleHost))

	_, err = DecodeUser("u2", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDecodeChargerKeepsNilSchedule(t *testing.T) {
	c := Charger{
		HostID:         "h1",
		Address:        "1 Main Street",
		Type:           ChargerLevel2,
		ConnectorType:  ConnectorJ1772,
		PricePerHour:   DefaultPricePerHour,
		CreditsPerHour: DefaultCreditsPerHour,
		Status:         ChargerAvailable,
	}
	doc, err := EncodeCharger(c)
	require.NoError(t, err)
	assert.Equal(t, "J1772 (Type 1)", doc["connectorType"])
	assert.NotContains(t, doc, "availabilitySchedule")

	decoded, err := DecodeCharger("c1", doc)
	require.NoError(t, err)
	assert.Nil(t, decoded.AvailabilitySchedule)

	doc["status"] = "busy"
	_, err = DecodeCharger("c1", doc)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Len(t, DefaultWeek(), 7)
}
