package channels

import (
	"sync"
	"time"
)

// echoKey identifies one (channelID, seq) pair.
type echoKey struct {
	channelID string
	seq       int64
}

// EchoTracker is a short-lived TTL map preventing a message relayed inbound
// from a bridge being relayed back outbound to the same bridge. A
// mutex-guarded map with time-based expiry checked lazily on read, plus a
// periodic sweeper with a stoppable handle for clean shutdown.
type EchoTracker struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[echoKey]time.Time // value is expiresAt

	sweepTicker *time.Ticker
	stopOnce    sync.Once
	stopCh      chan struct{}
}

// NewEchoTracker creates an EchoTracker with the given TTL, sweeping stale
// entries every sweepInterval.
func NewEchoTracker(ttl, sweepInterval time.Duration) *EchoTracker {
	t := &EchoTracker{
		ttl:     ttl,
		entries: map[echoKey]time.Time{},
		stopCh:  make(chan struct{}),
	}
	t.sweepTicker = time.NewTicker(sweepInterval)
	go t.sweepLoop()
	return t
}

func (t *EchoTracker) sweepLoop() {
	for {
		select {
		case <-t.sweepTicker.C:
			t.sweep()
		case <-t.stopCh:
			return
		}
	}
}

func (t *EchoTracker) sweep() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, expiresAt := range t.entries {
		if !expiresAt.After(now) {
			delete(t.entries, k)
		}
	}
}

// MarkBridgedIn records that (channelID, seq) arrived via a bridge and
// should be suppressed on relay-out for the TTL window.
func (t *EchoTracker) MarkBridgedIn(channelID string, seq int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[echoKey{channelID, seq}] = time.Now().Add(t.ttl)
}

// WasBridgedIn reports whether (channelID, seq) is still within its TTL
// window, lazily purging the entry if it has expired.
func (t *EchoTracker) WasBridgedIn(channelID string, seq int64) bool {
	key := echoKey{channelID, seq}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	expiresAt, ok := t.entries[key]
	if !ok {
		return false
	}
	if !expiresAt.After(now) {
		delete(t.entries, key)
		return false
	}
	return true
}

// Dispose stops the sweeper goroutine. Safe to call more than once.
func (t *EchoTracker) Dispose() {
	t.stopOnce.Do(func() {
		t.sweepTicker.Stop()
		close(t.stopCh)
	})
}
