package eversports

import "encoding/json"

// Slot is a single bookable (court, date, time) unit.
type Slot struct {
	// Date is an iso date, ex. "2025-06-01".
	Date string `json:"date"`
	// Start is a 24h time without separator, ex. "1430".
	Start              string          `json:"start"`
	Court              int             `json:"court"`
	Title              *string         `json:"title"`
	Present            bool            `json:"present"`
	IsUserBookingOwner bool            `json:"isUserBookingOwner"`
	Booking            json.RawMessage `json:"booking"`
}

// SlotsResponse is the body returned by the slot api.
type SlotsResponse struct {
	Slots []Slot `json:"slots"`
}

// Booked reports if somebody holds the slot.
func (s Slot) Booked() bool {
	return len(s.Booking) > 0 && string(s.Booking) != "null"
}
