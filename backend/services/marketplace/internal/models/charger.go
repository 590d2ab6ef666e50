package models

import "time"

// ChargerType is the charging level. Values match the stored document encoding.
type ChargerType string

const (
	ChargerLevel1 ChargerType = "Level 1"
	ChargerLevel2 ChargerType = "Level 2"
	ChargerDCFast ChargerType = "DC Fast Charge"
)

// IsValid reports whether t is a known charger type.
func (t ChargerType) IsValid() bool {
	switch t {
	case ChargerLevel1, ChargerLevel2, ChargerDCFast:
		return true
	}
	return false
}

// ConnectorType is the plug standard.
type ConnectorType string

const (
	ConnectorTeslaNACS ConnectorType = "Tesla NACS"
	ConnectorJ1772     ConnectorType = "J1772 (Type 1)"
	ConnectorCCS       ConnectorType = "CCS"
	ConnectorCHAdeMO   ConnectorType = "CHAdeMO"
)

// IsValid reports whether c is a known connector.
func (c ConnectorType) IsValid() bool {
	switch c {
	case ConnectorTeslaNACS, ConnectorJ1772, ConnectorCCS, ConnectorCHAdeMO:
		return true
	}
	return false
}

// ChargerStatus is the host-controlled listing status.
type ChargerStatus string

const (
	ChargerAvailable ChargerStatus = "available"
	ChargerInUse     ChargerStatus = "in_use"
	ChargerOffline   ChargerStatus = "offline"
)

// IsValid reports whether s is a known charger status.
func (s ChargerStatus) IsValid() bool {
	switch s {
	case ChargerAvailable, ChargerInUse, ChargerOffline:
		return true
	}
	return false
}

const (
	DefaultPricePerHour   = 3.00
	DefaultCreditsPerHour = 3
)

// Location is a lat/lon pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DayAvailability is the bookable hour range for one weekday. Day 0 is Sunday and EndHour is
// exclusive.
type DayAvailability struct {
	Day         int  `json:"day"`
	StartHour   int  `json:"startHour"`
	EndHour     int  `json:"endHour"`
	IsAvailable bool `json:"isAvailable"`
}

// DefaultWeek returns every day open from 8 to 22.
func DefaultWeek() []DayAvailability {
	week := make([]DayAvailability, 7)
	for day := range week {
		week[day] = DayAvailability{Day: day, StartHour: 8, EndHour: 22, IsAvailable: true}
	}
	return week
}

// Charger is a charging point listed by a host.
type Charger struct {
	ID                   string            `json:"id,omitempty"`
	HostID               string            `json:"hostId"`
	Location             Location          `json:"location"`
	Address              string            `json:"address"`
	Type                 ChargerType       `json:"type"`
	ConnectorType        ConnectorType     `json:"connectorType"`
	PricePerHour         float64           `json:"pricePerHour"`
	CreditsPerHour       int               `json:"creditsPerHour"`
	Status               ChargerStatus     `json:"status"`
	MaxSpeed             float64           `json:"maxSpeed"`
	HasTetheredCable     bool              `json:"hasTetheredCable"`
	AccessInstructions   *string           `json:"accessInstructions,omitempty"`
	CurrentBookingID     *string           `json:"currentBookingId,omitempty"`
	Rating               float64           `json:"rating"`
	TotalBookings        int               `json:"totalBookings"`
	CreatedAt            time.Time         `json:"createdAt"`
	AvailabilitySchedule []DayAvailability `json:"availabilitySchedule,omitempty"`
}

// EncodeCharger converts c into a store document body.
func EncodeCharger(c Charger) (map[string]any, error) {
	return encodeDocument(c)
}

// DecodeCharger converts a store document into a Charger.
func DecodeCharger(id string, data map[string]any) (Charger, error) {
	var c Charger
	if err := decodeDocument("charger", id, data, &c); err != nil {
		return Charger{}, err
	}
	c.ID = id

	switch {
	case c.HostID == "":
		return Charger{}, missingField("charger", id, "hostId")
	case !c.Type.IsValid():
		return Charger{}, invalidField("charger", id, "type")
	case !c.ConnectorType.IsValid():
		return Charger{}, invalidField("charger", id, "connectorType")
	case !c.Status.IsValid():
		return Charger{}, invalidField("charger", id, "status")
	}
	return c, nil
}
