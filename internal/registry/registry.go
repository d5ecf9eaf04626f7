// Package registry implements the concurrent session-key → session-record
// map at the heart of the broker: lifecycle, lookup, removal and the idle
// reaper.
package registry

import (
	"crypto/sha1" //nolint:gosec // not a security digest, just a stable opaque key
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/modnetconf/broker/internal/ncadapter"
	"github.com/modnetconf/broker/internal/protocol"
)

// IdleTimeout is the inactivity cutoff after which the reaper removes a
// session.
const IdleTimeout = 3600 * time.Second

// ReapInterval is the tick period of the idle reaper.
const ReapInterval = 10 * time.Second

// NotificationBufferSize is the capacity of a SessionRecord's pending
// notification ring buffer.
const NotificationBufferSize = 10

// Key is an opaque printable session identifier: lowercase-hex SHA-1 of
// the (host, port, device session id) triple. Collisions are treated as a
// programming error, never handled at runtime.
type Key string

// NewKey derives a Key from the triple that identifies a NETCONF session.
// The components are pipe-joined before hashing so that, e.g., host="1"
// port="23" sid="4" cannot collide with host="12" port="3" sid="4".
func NewKey(host, port, sid string) Key {
	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "%s|%s|%s", host, port, sid)
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Record is the central entity: one NETCONF session plus the state the
// broker needs to serialize and eventually tear it down.
type Record struct {
	Key Key

	// mu guards NetconfSession and every mutable field below. Holding mu
	// is necessary and sufficient for exclusive use of NetconfSession.
	mu sync.Mutex

	NetconfSession ncadapter.Session

	Hello *protocol.Hello

	lastActivity time.Time
	closed       bool

	notificationsSubscribed bool
	notifications           []protocol.Notification
}

// Lock acquires the record's exclusive lock. Callers must always acquire
// the registry lock first and release it before calling Lock, never the
// reverse.
func (r *Record) Lock()   { r.mu.Lock() }
func (r *Record) Unlock() { r.mu.Unlock() }

// Closed reports whether the record has been torn down. Must be called
// while holding the record lock.
func (r *Record) Closed() bool { return r.closed }

// MarkClosed marks the record terminal. Must be called while holding the
// record lock, after the record has been removed from the registry.
func (r *Record) MarkClosed() { r.closed = true }

// Touch updates last_activity to now. last_activity is monotonically
// non-decreasing per record: Touch never moves it backwards even if
// called with an out-of-order timestamp source, by always using the
// wall-clock at call time.
func (r *Record) Touch() {
	now := time.Now()
	if now.After(r.lastActivity) {
		r.lastActivity = now
	}
}

// LastActivity returns the timestamp of the most recent successful RPC.
func (r *Record) LastActivity() time.Time { return r.lastActivity }

// SetLastActivityForTesting backdates or advances last_activity directly,
// for tests that need to simulate idle time without waiting for
// IdleTimeout to actually elapse. Must be called while holding the
// record lock.
func (r *Record) SetLastActivityForTesting(t time.Time) { r.lastActivity = t }

// SetSubscribed marks the record as having an active notification
// subscription, gating notification queue use.
func (r *Record) SetSubscribed(v bool) { r.notificationsSubscribed = v }

// Subscribed reports whether the record has an active subscription.
func (r *Record) Subscribed() bool { return r.notificationsSubscribed }

// PushNotification appends a notification to the bounded ring, evicting
// the oldest entry once NotificationBufferSize is reached.
func (r *Record) PushNotification(n protocol.Notification) {
	r.notifications = append(r.notifications, n)
	if len(r.notifications) > NotificationBufferSize {
		r.notifications = r.notifications[len(r.notifications)-NotificationBufferSize:]
	}
}

// Notifications returns a snapshot of the buffered notifications.
func (r *Record) Notifications() []protocol.Notification {
	out := make([]protocol.Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// Registry is the concurrent session-key → session-record map. The zero
// value is not usable; construct with New.
type Registry struct {
	mu      sync.RWMutex
	records map[Key]*Record
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[Key]*Record)}
}

// Insert adds rec to the registry under key. Insert never re-inserts a
// key that was previously removed by the caller; that is the caller's
// responsibility to enforce (a removed key has no further claim on this
// Registry).
func (reg *Registry) Insert(key Key, rec *Record) {
	rec.Key = key
	rec.lastActivity = time.Now()
	reg.mu.Lock()
	reg.records[key] = rec
	reg.mu.Unlock()
}

// Lookup returns the record for key, if any, without retaining the
// registry lock past the call. The caller must re-check Closed() under
// the record's own lock before using it, since the record may have been
// concurrently removed and closed.
func (reg *Registry) Lookup(key Key) (*Record, bool) {
	reg.mu.RLock()
	rec, ok := reg.records[key]
	reg.mu.RUnlock()
	return rec, ok
}

// Remove deletes key from the registry and returns the record that was
// present, if any. Remove is atomic with respect to Lookup: once Remove
// returns, no subsequent Lookup will find the key again, transferring
// sole ownership of the record (and its eventual teardown) to the
// caller.
func (reg *Registry) Remove(key Key) (*Record, bool) {
	reg.mu.Lock()
	rec, ok := reg.records[key]
	if ok {
		delete(reg.records, key)
	}
	reg.mu.Unlock()
	return rec, ok
}

// SnapshotKeys returns the keys currently present, for use by callers
// (chiefly the reaper) that need to iterate without holding the registry
// lock across per-record work.
func (reg *Registry) SnapshotKeys() []Key {
	reg.mu.RLock()
	keys := make([]Key, 0, len(reg.records))
	for k := range reg.records {
		keys = append(keys, k)
	}
	reg.mu.RUnlock()
	return keys
}

// Len reports the number of sessions currently registered.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	n := len(reg.records)
	reg.mu.RUnlock()
	return n
}
