package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StubHandle is a Handle whose whole state is its payload. Useful for tests.
type StubHandle struct {
	Payload string
	Broken  bool
}

// Marshal implements domain.Handle.
func (h *StubHandle) Marshal() ([]byte, error) {
	return []byte(h.Payload), nil
}

// Usable implements domain.Handle.
func (h *StubHandle) Usable() bool {
	return !h.Broken
}

// StubCodec rebuilds StubHandles.
var StubCodec = HandleCodecFunc(func(data []byte) (domain.Handle, error) {
	return &StubHandle{Payload: string(data)}, nil
})

// FakeClock is a manually advanced time source.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StoreFactory builds a fresh, empty store bound to the given clock and timeout.
type StoreFactory func(t *testing.T, now func() time.Time, timeout time.Duration) SessionStore

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the expiry and eviction contract.
// Handles are compared through Marshal, so stores that serialize must be built with StubCodec.
func RunSessionStoreContract(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	timeout := 300 * time.Second
	epsilon := time.Second
	start := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

	payloadOf := func(t *testing.T, rec domain.Record) string {
		t.Helper()
		require.NotNil(t, rec.Handle)
		data, err := rec.Handle.Marshal()
		require.NoError(t, err)
		return string(data)
	}

	t.Run("Unknown token", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)

		outcome, rec, err := store.Get(ctx, "never-issued")
		require.NoError(t, err)
		assert.Equal(t, domain.NotFound, outcome)
		assert.Nil(t, rec.Handle)
	})

	t.Run("Empty token", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)

		outcome, _, err := store.Get(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, domain.NotFound, outcome)
	})

	t.Run("Arbitrary tokens are plain misses", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)
		require.NoError(t, store.Put(ctx, "tok", &StubHandle{Payload: "alice"}))

		for _, token := range []string{"index", "lock:x", "lock:tok", "rec:tok", "../tok", "tok*", "tok\x00"} {
			outcome, rec, err := store.Get(ctx, token)
			require.NoError(t, err, "token %q", token)
			assert.Equal(t, domain.NotFound, outcome, "token %q", token)
			assert.Nil(t, rec.Handle)
		}

		require.NoError(t, store.Put(ctx, "index", &StubHandle{Payload: "eve"}))
		outcome, rec, err := store.Get(ctx, "index")
		require.NoError(t, err)
		assert.Equal(t, domain.Found, outcome)
		assert.Equal(t, "eve", payloadOf(t, rec))

		outcome, rec, err = store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.Found, outcome)
		assert.Equal(t, "alice", payloadOf(t, rec))

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Put and Get", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)

		require.NoError(t, store.Put(ctx, "tok", &StubHandle{Payload: "alice"}))

		outcome, rec, err := store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.Found, outcome)
		assert.Equal(t, "alice", payloadOf(t, rec))
		assert.True(t, rec.LastInteraction.Equal(start))
	})

	t.Run("Sliding window", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)
		require.NoError(t, store.Put(ctx, "tok", &StubHandle{Payload: "alice"}))

		clock.Advance(timeout - epsilon)
		outcome, rec, err := store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.Found, outcome)
		assert.True(t, rec.LastInteraction.Equal(clock.Now()), "Get must refresh the timestamp")

		// A full window measured from the refresh, not from Put.
		clock.Advance(timeout - epsilon)
		outcome, _, err = store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.Found, outcome)
	})

	t.Run("Expiry evicts once", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)
		require.NoError(t, store.Put(ctx, "tok", &StubHandle{Payload: "alice"}))

		clock.Advance(timeout + epsilon)
		outcome, rec, err := store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.Expired, outcome)
		assert.Nil(t, rec.Handle)

		outcome, _, err = store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.NotFound, outcome, "second Get after eviction")
	})

	t.Run("Boundary is exclusive", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)
		require.NoError(t, store.Put(ctx, "tok", &StubHandle{Payload: "alice"}))

		clock.Advance(timeout)
		outcome, _, err := store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.Expired, outcome)
	})

	t.Run("Put overwrites", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)
		require.NoError(t, store.Put(ctx, "tok", &StubHandle{Payload: "alice"}))
		require.NoError(t, store.Put(ctx, "tok", &StubHandle{Payload: "bob"}))

		outcome, rec, err := store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.Found, outcome)
		assert.Equal(t, "bob", payloadOf(t, rec))

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Import keeps timestamp", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)

		imported := domain.Record{
			Handle:          &StubHandle{Payload: "carol"},
			LastInteraction: start.Add(-(timeout - 2*epsilon)),
		}
		require.NoError(t, store.Import(ctx, "tok", imported))

		// Still live for one more second by the exporter's clock.
		clock.Advance(epsilon)
		outcome, rec, err := store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.Found, outcome)
		assert.Equal(t, "carol", payloadOf(t, rec))
	})

	t.Run("Import of stale record", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)

		imported := domain.Record{
			Handle:          &StubHandle{Payload: "dave"},
			LastInteraction: start.Add(-timeout - epsilon),
		}
		require.NoError(t, store.Import(ctx, "tok", imported))

		outcome, _, err := store.Get(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.Expired, outcome)
	})

	t.Run("Concurrent eviction", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := factory(t, clock.Now, timeout)
		require.NoError(t, store.Put(ctx, "tok", &StubHandle{Payload: "alice"}))
		clock.Advance(timeout + epsilon)

		const workers = 8
		outcomes := make(chan domain.Outcome, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcome, _, err := store.Get(ctx, "tok")
				assert.NoError(t, err)
				outcomes <- outcome
			}()
		}
		wg.Wait()
		close(outcomes)

		counts := map[domain.Outcome]int{}
		for o := range outcomes {
			counts[o]++
		}
		assert.Equal(t, 1, counts[domain.Expired], "exactly one caller observes the eviction")
		assert.Equal(t, workers-1, counts[domain.NotFound])
	})
}
