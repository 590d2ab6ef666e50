package models

import "slices"

// BookingStatus is a booking lifecycle state.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusAccepted  BookingStatus = "accepted"
	StatusActive    BookingStatus = "active"
	StatusCompleted BookingStatus = "completed"
	StatusDeclined  BookingStatus = "declined"
	StatusCancelled BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusAccepted, StatusDeclined, StatusCancelled},
	StatusAccepted:  {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted},
	StatusCompleted: {},
	StatusDeclined:  {},
	StatusCancelled: {},
}

// IsValid reports whether s is a known status.
func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to target is legal.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	return slices.Contains(bookingTransitions[s], target)
}

// IsTerminal reports whether no transition leaves s. Unknown statuses are terminal.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// PaymentMode selects how a booking is paid.
type PaymentMode string

const (
	PaymentCredits  PaymentMode = "credits"
	PaymentCurrency PaymentMode = "currency"
)

// IsValid reports whether m is a known payment mode.
func (m PaymentMode) IsValid() bool {
	return m == PaymentCredits || m == PaymentCurrency
}
