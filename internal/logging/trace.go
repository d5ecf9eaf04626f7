// Package logging provides a daemon-level structured event-hook tracer,
// mirroring netconf/client.ClientTrace: a struct of function fields with
// NoOp/Default pairs and a context.Context-carried override.
package logging

import (
	"context"
	"log"
	"time"

	"github.com/imdario/mergo"
)

type traceContextKey struct{}

// Trace defines the broker's structured logging hook points.
//
//nolint:golint
type Trace struct {
	// Accepted is called when the supervisor accepts a new front-end
	// connection.
	Accepted func(remote string)

	// ConnectionClosed is called when a front-end connection's loop
	// exits.
	ConnectionClosed func(remote string, err error)

	// Dispatched is called after an opcode has been handled, with the
	// outcome's reply type.
	Dispatched func(opcode int, session string, replyType int, d time.Duration)

	// SessionOpened is called when a connect operation registers a new
	// session.
	SessionOpened func(key string, host, port string)

	// SessionClosed is called when a disconnect operation removes a
	// session.
	SessionClosed func(key string)

	// SessionReaped is called when the idle reaper removes a session.
	SessionReaped func(key string)

	// SessionError is called when a NETCONF transport error causes a
	// session to be scheduled for removal.
	SessionError func(key string, err error)

	// ReaperTick is called once per reaper pass, with the number of
	// sessions inspected.
	ReaperTick func(inspected int)

	// ShutdownStarted is called when the supervisor begins graceful
	// shutdown.
	ShutdownStarted func()

	// ShutdownComplete is called when shutdown finishes, reporting
	// whether the grace period was exceeded.
	ShutdownComplete func(timedOut bool)
}

// DefaultTrace logs with the standard library log package, matching what
// netconf/client.DefaultLoggingHooks does -- no third-party logging
// framework is used anywhere in the underlying NETCONF client stack, so
// none is introduced here either.
var DefaultTrace = &Trace{
	Accepted: func(remote string) {
		log.Printf("broker: accepted connection from %s", remote)
	},
	ConnectionClosed: func(remote string, err error) {
		if err != nil {
			log.Printf("broker: connection %s closed: %v", remote, err)
		}
	},
	SessionOpened: func(key, host, port string) {
		log.Printf("broker: session %s opened (%s:%s)", key, host, port)
	},
	SessionClosed: func(key string) {
		log.Printf("broker: session %s closed", key)
	},
	SessionReaped: func(key string) {
		log.Printf("broker: session %s reaped (idle timeout)", key)
	},
	SessionError: func(key string, err error) {
		log.Printf("broker: session %s transport error: %v", key, err)
	},
	Dispatched: func(opcode int, session string, replyType int, d time.Duration) {
		log.Printf("broker: opcode %d session %s -> reply %d (%s)", opcode, session, replyType, d)
	},
	ReaperTick: func(inspected int) {
		log.Printf("broker: reaper pass inspected %d sessions", inspected)
	},
	ShutdownStarted: func() {
		log.Printf("broker: shutdown started")
	},
	ShutdownComplete: func(timedOut bool) {
		log.Printf("broker: shutdown complete (timed out waiting for workers: %v)", timedOut)
	},
}

// NoOpTrace is a Trace whose hooks all do nothing, used as the base that
// ContextTrace merges caller-supplied hooks over.
var NoOpTrace = &Trace{
	Accepted:         func(remote string) {},
	ConnectionClosed: func(remote string, err error) {},
	Dispatched:       func(opcode int, session string, replyType int, d time.Duration) {},
	SessionOpened:    func(key, host, port string) {},
	SessionClosed:    func(key string) {},
	SessionReaped:    func(key string) {},
	SessionError:     func(key string, err error) {},
	ReaperTick:       func(inspected int) {},
	ShutdownStarted:  func() {},
	ShutdownComplete: func(timedOut bool) {},
}

// ContextTrace returns the Trace associated with ctx, merged over
// NoOpTrace so every field is callable even if the caller only set a few
// hooks. If ctx carries no Trace, NoOpTrace is returned.
func ContextTrace(ctx context.Context) *Trace {
	trace, _ := ctx.Value(traceContextKey{}).(*Trace)
	if trace == nil {
		return NoOpTrace
	}
	merged := *trace
	_ = mergo.Merge(&merged, NoOpTrace)
	return &merged
}

// WithTrace returns a new context based on parent whose ContextTrace
// will be trace.
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}
