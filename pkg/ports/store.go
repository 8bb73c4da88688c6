package ports

import (
	"context"

	"github.com/aretw0/portalgate/pkg/domain"
)

// SessionStore defines the interface for the token-keyed session cache.
// Implementations own the expiry policy: liveness is evaluated lazily on Get.
//
// Lookup outcomes are values, never errors. The error return is reserved for
// backend faults (e.g. a shared store being unreachable).
type SessionStore interface {
	// Put inserts or overwrites the record for token, stamped with the current time.
	Put(ctx context.Context, token string, handle domain.Handle) error

	// Get returns Found and refreshes the record when it is live.
	// An expired record is evicted and reported as Expired exactly once;
	// unknown or empty tokens are NotFound.
	Get(ctx context.Context, token string) (domain.Outcome, domain.Record, error)

	// Import stores a record obtained from a peer verbatim, keeping its timestamp.
	Import(ctx context.Context, token string, record domain.Record) error

	// Len returns the number of records currently held, live or not.
	Len(ctx context.Context) (int, error)
}
