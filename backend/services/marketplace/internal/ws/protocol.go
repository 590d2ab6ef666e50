package ws

// Client actions.
const (
	ActionWatchBooking      = "watch_booking"
	ActionWatchIncoming     = "watch_incoming"
	ActionWatchHostChargers = "watch_host_chargers"
	ActionWatchAvailable    = "watch_available"
	ActionUnwatch           = "unwatch"
)

// Server event types.
const (
	EventBooking   = "booking"
	EventIncoming  = "incoming"
	EventChargers  = "chargers"
	EventAvailable = "available"
	EventNotice    = "notice"
	EventDebit     = "debit"
	EventError     = "error"
)

// Watch kinds accepted by unwatch.
const (
	kindBooking      = "booking"
	kindIncoming     = "incoming"
	kindHostChargers = "host_chargers"
	kindAvailable    = "available"
)

// Command is a client request.
type Command struct {
	Action string `json:"action"`
	// ID is the booking id for watch_booking and the watch kind for unwatch.
	ID string `json:"id,omitempty"`
}

// Event is pushed to the client.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	BookingID string `json:"bookingId,omitempty"`
	Credits   int    `json:"credits,omitempty"`
	Message   string `json:"message,omitempty"`
}
