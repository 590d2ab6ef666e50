package models

import "time"

// Booking is one charge-session request between a driver and a host's charger.
type Booking struct {
	ID                 string        `json:"id,omitempty"`
	ChargerID          string        `json:"chargerId"`
	HostID             string        `json:"hostId"`
	DriverID           string        `json:"driverId"`
	Status             BookingStatus `json:"status"`
	RequestedAt        time.Time     `json:"requestedAt"`
	AcceptedAt         *time.Time    `json:"acceptedAt,omitempty"`
	StartedAt          *time.Time    `json:"startedAt,omitempty"`
	EndedAt            *time.Time    `json:"endedAt,omitempty"`
	EstimatedDuration  float64       `json:"estimatedDuration"`
	CreditsUsed        *int          `json:"creditsUsed,omitempty"`
	AmountPaid         *float64      `json:"amountPaid,omitempty"`
	DriverRating       *int          `json:"driverRating,omitempty"`
	HostRating         *int          `json:"hostRating,omitempty"`
	ScheduledStartTime *time.Time    `json:"scheduledStartTime,omitempty"`
	DriverDebitedAt    *time.Time    `json:"driverDebitedAt,omitempty"`
}

// Duration returns EstimatedDuration as a time.Duration.
func (b Booking) Duration() time.Duration {
	return time.Duration(b.EstimatedDuration * float64(time.Second))
}

// IsActive reports whether the session is agreed or running.
func (b Booking) IsActive() bool {
	return b.Status == StatusAccepted || b.Status == StatusActive
}

// WasAccepted reports whether the host accepted the booking at some point, even when the
// accepted state itself was never observed. A booking cancelled after acceptance counts: its
// host credit is not reversed.
func (b Booking) WasAccepted() bool {
	switch b.Status {
	case StatusAccepted, StatusActive, StatusCompleted:
		return true
	case StatusCancelled:
		return b.AcceptedAt != nil
	}
	return false
}

// Credits returns CreditsUsed or zero.
func (b Booking) Credits() int {
	if b.CreditsUsed == nil {
		return 0
	}
	return *b.CreditsUsed
}

// ScheduledEnd returns the expected end of a scheduled session.
func (b Booking) ScheduledEnd() (time.Time, bool) {
	if b.ScheduledStartTime == nil {
		return time.Time{}, false
	}
	return b.ScheduledStartTime.Add(b.Duration()), true
}

// HasParticipant reports whether userID is the driver or the host.
func (b Booking) HasParticipant(userID string) bool {
	return userID != "" && (userID == b.DriverID || userID == b.HostID)
}

// EncodeBooking converts b into a store document body.
func EncodeBooking(b Booking) (map[string]any, error) {
	return encodeDocument(b)
}

// DecodeBooking converts a store document into a Booking, validating required fields.
func DecodeBooking(id string, data map[string]any) (Booking, error) {
	var b Booking
	if err := decodeDocument("booking", id, data, &b); err != nil {
		return Booking{}, err
	}
	b.ID = id

	switch {
	case b.ChargerID == "":
		return Booking{}, missingField("booking", id, "chargerId")
	case b.HostID == "":
		return Booking{}, missingField("booking", id, "hostId")
	case b.DriverID == "":
		return Booking{}, missingField("booking", id, "driverId")
	case !b.Status.IsValid():
		return Booking{}, invalidField("booking", id, "status")
	case b.RequestedAt.IsZero():
		return Booking{}, missingField("booking", id, "requestedAt")
	case b.EstimatedDuration <= 0:
		return Booking{}, invalidField("booking", id, "estimatedDuration")
	case (b.CreditsUsed == nil) == (b.AmountPaid == nil):
		return Booking{}, invalidField("booking", id, "creditsUsed/amountPaid")
	}
	return b, nil
}
