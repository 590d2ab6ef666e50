// Package availability decides whether a charger can be booked at a point in time.
package availability

import (
	"slices"
	"time"

	"plugin/backend/services/marketplace/internal/models"
)

// IsAvailable evaluates the charger's weekly schedule at t in loc (t's own location when loc is
// nil). A missing schedule means always available. A schedule without an entry for the weekday
// also yields true.
func IsAvailable(c models.Charger, t time.Time, loc *time.Location) bool {
	if c.AvailabilitySchedule == nil {
		return true
	}
	if loc != nil {
		t = t.In(loc)
	}

	day := int(t.Weekday())
	hour := t.Hour()
	for _, entry := range c.AvailabilitySchedule {
		if entry.Day != day {
			continue
		}
		return entry.IsAvailable && hour >= entry.StartHour && hour < entry.EndHour
	}
	return true
}

// Filter narrows a charger list the way the driver map does.
type Filter struct {
	ExcludeHostID     string
	Types             []models.ChargerType
	Connectors        []models.ConnectorType
	MaxCreditsPerHour int
	// At is the candidate booking time. Nil means now.
	At *time.Time
}

// Apply keeps available chargers that match every criterion and are bookable at the candidate
// time.
func (f Filter) Apply(chargers []models.Charger, now time.Time, loc *time.Location) []models.Charger {
	at := now
	if f.At != nil {
		at = *f.At
	}

	out := make([]models.Charger, 0, len(chargers))
	for _, c := range chargers {
		if !f.matches(c) {
			continue
		}
		if !IsAvailable(c, at, loc) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f Filter) matches(c models.Charger) bool {
	if c.Status != models.ChargerAvailable {
		return false
	}
	if f.ExcludeHostID != "" && c.HostID == f.ExcludeHostID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, c.Type) {
		return false
	}
	if len(f.Connectors) > 0 && !slices.Contains(f.Connectors, c.ConnectorType) {
		return false
	}
	if f.MaxCreditsPerHour > 0 && c.CreditsPerHour > f.MaxCreditsPerHour {
		return false
	}
	return true
}
