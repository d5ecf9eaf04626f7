// Package dispatch implements the JSON-to-NETCONF-RPC operation
// dispatcher: the opcode table, datastore token parsing, and the
// lock/execute/reply sequence every session-bound operation follows.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modnetconf/broker/internal/logging"
	"github.com/modnetconf/broker/internal/ncadapter"
	"github.com/modnetconf/broker/internal/protocol"
	"github.com/modnetconf/broker/internal/registry"
	"github.com/modnetconf/broker/netconf/ops"
)

// Dispatcher routes a parsed Request to the handler for its opcode,
// mediating all access to the session registry and the NETCONF adapter.
type Dispatcher struct {
	Registry *registry.Registry
	Client   ncadapter.Client
}

// New constructs a Dispatcher over reg and cli.
func New(reg *registry.Registry, cli ncadapter.Client) *Dispatcher {
	return &Dispatcher{Registry: reg, Client: cli}
}

type opHandler func(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool)

var handlers = map[protocol.Opcode]opHandler{
	protocol.OpConnect:       connectHandler,
	protocol.OpDisconnect:    disconnectHandler,
	protocol.OpGet:           getHandler,
	protocol.OpGetConfig:     getConfigHandler,
	protocol.OpEditConfig:    editConfigHandler,
	protocol.OpCopyConfig:    copyConfigHandler,
	protocol.OpDeleteConfig:  deleteConfigHandler,
	protocol.OpLock:          lockHandler,
	protocol.OpUnlock:        unlockHandler,
	protocol.OpKill:          killHandler,
	protocol.OpInfo:          infoHandler,
	protocol.OpGeneric:       genericHandler,
	protocol.OpGetSchema:     getSchemaHandler,
	protocol.OpReloadHello:   reloadHelloHandler,
	protocol.OpNtfGetHistory: ntfGetHistoryHandler,
	protocol.OpValidate:      validateHandler,
}

// Handle routes req to its opcode's handler, enforcing the session-key
// requirement shared by every opcode but connect. The returned bool
// reports whether the caller's connection handler must close the
// connection after writing this reply -- true only for the "missing
// session specification" envelope error.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) (*protocol.Reply, bool) {
	start := time.Now()
	trace := logging.ContextTrace(ctx)

	h, ok := handlers[req.Type]
	if !ok {
		reply := protocol.Err(fmt.Sprintf("Unknown operation %d.", req.Type))
		trace.Dispatched(int(req.Type), req.Session, int(reply.ReplyType()), time.Since(start))
		return reply, false
	}

	if req.Type != protocol.OpConnect && req.Session == "" {
		reply := protocol.Err("Missing session specification.")
		trace.Dispatched(int(req.Type), req.Session, int(reply.ReplyType()), time.Since(start))
		return reply, true
	}

	reply, closeConn := h(ctx, d, req)
	trace.Dispatched(int(req.Type), req.Session, int(reply.ReplyType()), time.Since(start))
	return reply, closeConn
}

// withSession acquires the record for sessionKey (registry lookup, then
// the record's exclusive lock) and runs op against it, releasing the
// record lock before returning. Registry errors (unknown key, closed
// record) yield "Invalid session identifier."; a NETCONF rpc-error is
// unwrapped into a structured reply with the session left open; any
// other error is treated as a transport failure and the session is
// scheduled for removal.
func (d *Dispatcher) withSession(ctx context.Context, sessionKey string, op func(rec *registry.Record) (*protocol.Reply, error)) *protocol.Reply {
	rec, ok := d.Registry.Lookup(registry.Key(sessionKey))
	if !ok {
		return protocol.Err("Invalid session identifier.")
	}

	rec.Lock()
	if rec.Closed() {
		rec.Unlock()
		return protocol.Err("Invalid session identifier.")
	}

	reply, err := op(rec)
	if err == nil {
		rec.Touch()
		rec.Unlock()
		return reply
	}

	if rpcErr, isProtocol := ncadapter.IsProtocolError(err); isProtocol {
		rec.Unlock()
		return protocol.ErrRPC(rpcErr.Message, rpcErr.Tag, rpcErr.Type, rpcErr.Severity,
			rpcErr.AppTag, rpcErr.Path, rpcErr.BadAttribute, rpcErr.BadElement,
			rpcErr.BadNamespace, rpcErr.SessionID)
	}

	rec.Unlock()
	d.removeBroken(ctx, registry.Key(sessionKey), err)
	return protocol.Err(err.Error())
}

// removeBroken removes a session whose transport has failed, closing it
// asynchronously, matching the idle reaper's teardown style.
func (d *Dispatcher) removeBroken(ctx context.Context, key registry.Key, cause error) {
	rec, ok := d.Registry.Remove(key)
	if !ok {
		return
	}
	rec.Lock()
	already := rec.Closed()
	rec.MarkClosed()
	sess := rec.NetconfSession
	rec.Unlock()
	if already {
		return
	}

	logging.ContextTrace(ctx).SessionError(string(key), cause)
	go func() {
		if sess != nil {
			sess.Close()
		}
	}()
}

func decodeParams(req *protocol.Request, v interface{}) error {
	if len(req.Raw) == 0 {
		return nil
	}
	return json.Unmarshal(req.Raw, v)
}

// datastoreToken parses a strict running|startup|candidate|url token
// into a ops.CfgDsOpt, resolving "url" against the companion url value.
// kind ("source" or "target") names the field in the error message on an
// invalid token, matching spec.md's "Invalid <kind> repository type
// requested." wording.
func datastoreToken(kind, token, url string) (ops.CfgDsOpt, error) {
	switch token {
	case ops.RunningCfg, ops.StartupCfg, ops.CandidateCfg:
		return ops.DsName(token), nil
	case "url":
		if url == "" {
			return nil, fmt.Errorf("url is required when %s repository type is \"url\"", kind)
		}
		return ops.DsURL(url), nil
	default:
		return nil, invalidRepositoryType(kind)
	}
}

// datastoreName parses a running|startup|candidate token for operations
// whose underlying RPC (edit-config target, lock, unlock) only ever
// targets a named datastore, never a url.
func datastoreName(kind, token string) (string, error) {
	switch token {
	case ops.RunningCfg, ops.StartupCfg, ops.CandidateCfg:
		return token, nil
	default:
		return "", invalidRepositoryType(kind)
	}
}

func invalidRepositoryType(kind string) error {
	return fmt.Errorf("Invalid %s repository type requested.", kind)
}
