package broker

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/modnetconf/broker/internal/dispatch"
	"github.com/modnetconf/broker/internal/logging"
	"github.com/modnetconf/broker/internal/ncadapter"
	"github.com/modnetconf/broker/internal/registry"
)

// shutdownGrace bounds how long Run waits for in-flight connections to
// finish their current operation before returning anyway.
const shutdownGrace = 5 * time.Second

// Supervisor owns the listening socket, the session registry, the idle
// reaper and the set of live connection handlers. Construct with New.
type Supervisor struct {
	SocketPath string
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher

	listener *net.UnixListener
	wg       sync.WaitGroup
}

// New constructs a Supervisor bound to socketPath, wiring a fresh
// registry and dispatcher around cli.
func New(socketPath string, cli ncadapter.Client) *Supervisor {
	reg := registry.New()
	return &Supervisor{
		SocketPath: socketPath,
		Registry:   reg,
		Dispatcher: dispatch.New(reg, cli),
	}
}

// Run binds the UNIX socket (unlinking any stale path first), then
// accepts connections and ticks the idle reaper until ctx is cancelled.
// On cancellation it stops accepting, signals every live connection to
// close after its current operation, waits up to shutdownGrace for them
// to finish, then closes every session still in the registry (idle ones
// have no in-flight worker to wait for) before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := os.Remove(s.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.SocketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("resolving socket address %s: %w", s.SocketPath, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("binding socket %s: %w", s.SocketPath, err)
	}
	s.listener = ln

	trace := logging.ContextTrace(ctx)
	done := make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, done, trace)
	}()

	ticker := time.NewTicker(registry.ReapInterval)
	defer ticker.Stop()

runLoop:
	for {
		select {
		case <-ctx.Done():
			break runLoop
		case <-ticker.C:
			s.Registry.Reap(ctx)
		}
	}

	trace.ShutdownStarted()
	close(done)
	_ = s.listener.Close()

	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()

	var timedOut bool
	select {
	case <-waited:
	case <-time.After(shutdownGrace):
		timedOut = true
	}

	s.Registry.CloseAll(ctx)
	trace.ShutdownComplete(timedOut)

	return nil
}

// acceptLoop accepts front-end connections until done is closed or Accept
// fails because the listener was closed by shutdown.
func (s *Supervisor) acceptLoop(ctx context.Context, done chan struct{}, trace *logging.Trace) {
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			select {
			case <-done:
				return
			default:
				trace.ConnectionClosed("listener", err)
				return
			}
		}

		trace.Accepted(conn.RemoteAddr().String())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handleConnection(ctx, conn, s.Dispatcher, done)
		}()
	}
}
