// Package broker implements the per-connection handler and the daemon
// supervisor: accept loop, idle reaper tick, and orderly shutdown.
package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/modnetconf/broker/internal/dispatch"
	"github.com/modnetconf/broker/internal/framing"
	"github.com/modnetconf/broker/internal/logging"
	"github.com/modnetconf/broker/internal/protocol"
)

// pollTimeout bounds each read so the connection loop can notice
// shutdown without blocking indefinitely, the idiomatic equivalent of
// polling the socket with a 1-second timeout.
const pollTimeout = 1 * time.Second

// handleConnection runs the per-front-end-connection loop: read one framed
// message, dispatch it, write one framed reply, until the peer closes
// the connection, a framing/parse error occurs, or shutdown is
// signalled. There is no pipelining: request and reply strictly
// alternate on a connection.
func handleConnection(ctx context.Context, conn *net.UnixConn, d *dispatch.Dispatcher, done <-chan struct{}) {
	trace := logging.ContextTrace(ctx)
	remote := conn.RemoteAddr().String()
	defer conn.Close()

	br := bufio.NewReader(conn)

	var loopErr error
	for {
		select {
		case <-done:
			trace.ConnectionClosed(remote, nil)
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(pollTimeout))
		payload, err := framing.Decode(br)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			loopErr = err
			break
		}

		var req protocol.Request
		if err := json.Unmarshal(payload, &req); err != nil {
			loopErr = err
			break
		}

		reply, closeAfter := d.Handle(ctx, &req)

		encoded, err := json.Marshal(reply)
		if err != nil {
			loopErr = err
			break
		}
		_ = conn.SetWriteDeadline(time.Now().Add(pollTimeout))
		if err := framing.Encode(conn, encoded); err != nil {
			loopErr = err
			break
		}

		if closeAfter {
			break
		}
	}
	trace.ConnectionClosed(remote, loopErr)
}
