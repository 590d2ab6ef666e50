package httpserver

import (
	"net/http"

	"plugin/backend/services/marketplace/internal/http/handlers"
	"plugin/backend/services/marketplace/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	AuthHandlers    *handlers.AuthHandlers
	ChargerHandlers *handlers.ChargerHandlers
	BookingHandlers *handlers.BookingHandlers
	CreditHandlers  *handlers.CreditHandlers
	HealthHandler   http.HandlerFunc
	MetricsHandler  http.Handler
	// Realtime authenticates on its own; browsers cannot set headers on websocket upgrades.
	Realtime http.Handler
}

// NewRouter wires HTTP routes. authMiddleware guards everything except health, metrics, signup,
// login and the realtime endpoint.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	mux.Handle("GET /health", deps.HealthHandler)
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}
	if deps.Realtime != nil {
		mux.Handle("GET /ws", deps.Realtime)
	}

	a := deps.AuthHandlers
	mux.HandleFunc("POST /api/auth/signup", a.Signup)
	mux.HandleFunc("POST /api/auth/login", a.Login)
	mux.Handle("GET /api/users/me", authenticated(a.Me))
	mux.Handle("POST /api/users/me/host", authenticated(a.BecomeHost))

	c := deps.ChargerHandlers
	mux.Handle("POST /api/chargers", authenticated(c.Create))
	mux.Handle("GET /api/chargers", authenticated(c.List))
	mux.Handle("GET /api/chargers/mine", authenticated(c.Mine))
	mux.Handle("GET /api/chargers/{id}", authenticated(c.Get))
	mux.Handle("PATCH /api/chargers/{id}/status", authenticated(c.SetStatus))
	mux.Handle("DELETE /api/chargers/{id}", authenticated(c.Delete))

	b := deps.BookingHandlers
	mux.Handle("POST /api/bookings", authenticated(b.Create))
	mux.Handle("GET /api/bookings/estimate", authenticated(b.Estimate))
	mux.Handle("GET /api/bookings/history", authenticated(b.History))
	mux.Handle("GET /api/bookings/incoming", authenticated(b.Incoming))
	mux.Handle("GET /api/bookings/{id}", authenticated(b.Get))
	mux.Handle("POST /api/bookings/{id}/accept", authenticated(b.Accept))
	mux.Handle("POST /api/bookings/{id}/decline", authenticated(b.Decline))
	mux.Handle("POST /api/bookings/{id}/cancel", authenticated(b.Cancel))
	mux.Handle("POST /api/bookings/{id}/start", authenticated(b.Start))
	mux.Handle("POST /api/bookings/{id}/complete", authenticated(b.Complete))
	mux.Handle("POST /api/bookings/{id}/rate", authenticated(b.Rate))

	cr := deps.CreditHandlers
	mux.HandleFunc("GET /api/credits/packages", cr.Packages)
	mux.Handle("POST /api/credits/purchase", authenticated(cr.Purchase))

	return mux
}
