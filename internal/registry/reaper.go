package registry

import (
	"context"
	"time"

	"github.com/modnetconf/broker/internal/logging"
)

// Reap removes and closes every record whose last activity is older than
// IdleTimeout. It is called once per reaper tick by the daemon
// supervisor; the supervisor owns the 10-second ticking (see internal/broker).
func (reg *Registry) Reap(ctx context.Context) {
	trace := logging.ContextTrace(ctx)
	keys := reg.SnapshotKeys()
	defer trace.ReaperTick(len(keys))

	for _, key := range keys {
		rec, ok := reg.Lookup(key)
		if !ok {
			continue
		}

		rec.Lock()
		idle := rec.closed || time.Since(rec.lastActivity) > IdleTimeout
		rec.Unlock()
		if !idle {
			continue
		}

		removed, ok := reg.Remove(key)
		if !ok {
			continue
		}

		removed.Lock()
		already := removed.closed
		removed.closed = true
		sess := removed.NetconfSession
		removed.Unlock()

		if already {
			continue
		}
		trace.SessionReaped(string(key))
		go func() {
			if sess != nil {
				sess.Close()
			}
		}()
	}
}

// CloseAll removes and synchronously closes every record still present,
// for use during orderly daemon shutdown: unlike Reap, which closes idle
// sessions in the background while the daemon keeps running, the caller
// here is about to exit and must not return until every NETCONF/SSH
// session has actually been released.
func (reg *Registry) CloseAll(ctx context.Context) {
	trace := logging.ContextTrace(ctx)
	keys := reg.SnapshotKeys()

	for _, key := range keys {
		rec, ok := reg.Remove(key)
		if !ok {
			continue
		}

		rec.Lock()
		already := rec.closed
		rec.closed = true
		sess := rec.NetconfSession
		rec.Unlock()

		if already {
			continue
		}
		trace.SessionClosed(string(key))
		if sess != nil {
			sess.Close()
		}
	}
}
