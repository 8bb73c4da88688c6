package domain

import "time"

// Handle is the capability contract of an authenticated connection to the remote portal.
// The session cache never looks inside it: it only needs to ship it to a sibling
// instance (Marshal) and to know whether it can still be used.
// The matching decoder lives in ports.HandleCodec.
type Handle interface {
	// Marshal captures everything needed to resume the connection elsewhere
	// (cookies, portal endpoint, cached selections) without logging in again.
	Marshal() ([]byte, error)

	// Usable reports whether the handle is still authenticated.
	Usable() bool
}

// Record pairs a Handle with the time it was last looked up successfully.
type Record struct {
	Handle          Handle
	LastInteraction time.Time
}

// NewRecord stamps a handle with the given time.
func NewRecord(h Handle, now time.Time) Record {
	return Record{Handle: h, LastInteraction: now}
}

// Live reports whether the record is still inside the inactivity window at now.
func (r Record) Live(now time.Time, timeout time.Duration) bool {
	return now.Sub(r.LastInteraction) < timeout
}

// Touch returns a copy of the record refreshed to now.
func (r Record) Touch(now time.Time) Record {
	r.LastInteraction = now
	return r
}
