package booking

import (
	"math"
	"time"

	"plugin/backend/services/marketplace/internal/models"
)

// Estimate is the cost preview of a booking.
type Estimate struct {
	PaymentMode      models.PaymentMode `json:"paymentMode"`
	EstimatedCredits *int               `json:"estimatedCredits,omitempty"`
	EstimatedCost    *float64           `json:"estimatedCost,omitempty"`
}

// EstimateCost prices a session of d on c. Credits are charged per whole hour; currency is
// prorated.
func EstimateCost(c models.Charger, d time.Duration, mode models.PaymentMode) Estimate {
	hours := d.Hours()
	if mode == models.PaymentCurrency {
		cost := c.PricePerHour * hours
		return Estimate{PaymentMode: mode, EstimatedCost: &cost}
	}
	credits := c.CreditsPerHour * int(math.Floor(hours))
	return Estimate{PaymentMode: models.PaymentCredits, EstimatedCredits: &credits}
}
