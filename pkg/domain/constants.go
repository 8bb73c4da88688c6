package domain

import "time"

const (
	// DefaultTimeout is the sliding inactivity window after which a record expires.
	DefaultTimeout = 300 * time.Second

	// DefaultPeerTimeout bounds a single query to a sibling instance.
	DefaultPeerTimeout = 5 * time.Second

	// TokenBytes is the amount of entropy in a generated token.
	TokenBytes = 16
)
