package dispatch

import (
	"context"
	"time"

	"github.com/modnetconf/broker/internal/logging"
	"github.com/modnetconf/broker/internal/protocol"
	"github.com/modnetconf/broker/internal/registry"
	"github.com/modnetconf/broker/netconf/ops"
)

func secondsToDuration(s int64) time.Duration { return time.Duration(s) * time.Second }

type connectParams struct {
	Host         string   `json:"host"`
	Port         string   `json:"port"`
	User         string   `json:"user"`
	Pass         string   `json:"pass"`
	Capabilities []string `json:"capabilities"`
}

func connectHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p connectParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid connect parameters."), false
	}
	if p.Host == "" || p.User == "" {
		return protocol.Err("host and user are required."), false
	}

	sess, err := d.Client.Connect(ctx, p.Host, p.Port, p.User, p.Pass, p.Capabilities)
	if err != nil {
		return protocol.Err(err.Error()), false
	}

	port := p.Port
	if port == "" {
		port = sess.Port()
	}
	key := registry.NewKey(p.Host, port, sess.Hello().SID)

	rec := &registry.Record{NetconfSession: sess, Hello: sess.Hello()}
	d.Registry.Insert(key, rec)

	logging.ContextTrace(ctx).SessionOpened(string(key), p.Host, port)
	return protocol.OK(string(key)), false
}

func disconnectHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	key := registry.Key(req.Session)
	rec, ok := d.Registry.Lookup(key)
	if !ok {
		return protocol.Err("Invalid session identifier."), false
	}

	rec.Lock()
	if rec.Closed() {
		rec.Unlock()
		return protocol.Err("Invalid session identifier."), false
	}
	d.Registry.Remove(key)
	rec.MarkClosed()
	sess := rec.NetconfSession
	rec.Unlock()

	if sess != nil {
		sess.Close()
	}
	logging.ContextTrace(ctx).SessionClosed(string(key))
	return protocol.OK(""), false
}

type getParams struct {
	Filter *string `json:"filter"`
}

func getHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p getParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid get parameters."), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		var filter interface{}
		if p.Filter != nil {
			filter = *p.Filter
		}
		var data string
		if err := rec.NetconfSession.GetSubtree(filter, &data); err != nil {
			return nil, err
		}
		return protocol.Data(data), nil
	})
	return reply, false
}

type getConfigParams struct {
	Source string  `json:"source"`
	Filter *string `json:"filter"`
}

// getConfigHandler restricts source to a named datastore (running,
// startup, candidate): GetConfigSubtree always wraps its source argument
// as "<source/>", so it has no way to express a <url> source element --
// the same library limitation that confines edit-config's target, lock
// and unlock to named datastores. A "url" source token therefore fails
// strict datastore parsing here exactly as any other unsupported token
// would.
func getConfigHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p getConfigParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid get-config parameters."), false
	}
	source, err := datastoreName("source", p.Source)
	if err != nil {
		return protocol.Err(err.Error()), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		var filter interface{}
		if p.Filter != nil {
			filter = *p.Filter
		}
		var data string
		if err := rec.NetconfSession.GetConfigSubtree(filter, source, &data); err != nil {
			return nil, err
		}
		return protocol.Data(data), nil
	})
	return reply, false
}

type editConfigParams struct {
	Target           string `json:"target"`
	Config           string `json:"config"`
	DefaultOperation string `json:"default-operation"`
	ErrorOption      string `json:"error-option"`
}

func editConfigHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p editConfigParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid edit-config parameters."), false
	}
	target, err := datastoreName("target", p.Target)
	if err != nil {
		return protocol.Err(err.Error()), false
	}
	if p.Config == "" {
		return protocol.Err("config is required."), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		options := []ops.EditOption{ops.TestOption(ops.TestThenSetOpt)}
		if p.DefaultOperation != "" {
			options = append(options, ops.DefaultOperation(p.DefaultOperation))
		}
		if p.ErrorOption != "" {
			options = append(options, ops.ErrorOption(p.ErrorOption))
		}
		if err := rec.NetconfSession.EditConfig(target, ops.Cfg(p.Config), options...); err != nil {
			return nil, err
		}
		return protocol.OK(""), nil
	})
	return reply, false
}

type copyConfigParams struct {
	Target    string `json:"target"`
	TargetURL string `json:"target_url"`
	Source    string `json:"source"`
	SourceURL string `json:"source_url"`
	Config    string `json:"config"`
}

func copyConfigHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p copyConfigParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid copy-config parameters."), false
	}
	targetOpt, err := datastoreToken("target", p.Target, p.TargetURL)
	if err != nil {
		return protocol.Err(err.Error()), false
	}

	var sourceOpt ops.CfgDsOpt
	switch {
	case p.Source != "":
		// Source datastore takes precedence over an inline config when
		// both are supplied.
		sourceOpt, err = datastoreToken("source", p.Source, p.SourceURL)
		if err != nil {
			return protocol.Err(err.Error()), false
		}
	case p.Config != "":
		sourceOpt = ops.DsConfig(p.Config)
	default:
		return protocol.Err("one of source or config is required."), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		if err := rec.NetconfSession.CopyConfig(sourceOpt, targetOpt); err != nil {
			return nil, err
		}
		return protocol.OK(""), nil
	})
	return reply, false
}

type deleteConfigParams struct {
	Target string `json:"target"`
	URL    string `json:"url"`
}

func deleteConfigHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p deleteConfigParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid delete-config parameters."), false
	}
	targetOpt, err := datastoreToken("target", p.Target, p.URL)
	if err != nil {
		return protocol.Err(err.Error()), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		if err := rec.NetconfSession.DeleteConfig(targetOpt); err != nil {
			return nil, err
		}
		return protocol.OK(""), nil
	})
	return reply, false
}

type targetParams struct {
	Target string `json:"target"`
}

func lockHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p targetParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid lock parameters."), false
	}
	target, err := datastoreName("target", p.Target)
	if err != nil {
		return protocol.Err(err.Error()), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		if err := rec.NetconfSession.Lock(target); err != nil {
			return nil, err
		}
		return protocol.OK(""), nil
	})
	return reply, false
}

func unlockHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p targetParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid unlock parameters."), false
	}
	target, err := datastoreName("target", p.Target)
	if err != nil {
		return protocol.Err(err.Error()), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		if err := rec.NetconfSession.Unlock(target); err != nil {
			return nil, err
		}
		return protocol.OK(""), nil
	})
	return reply, false
}

type killParams struct {
	SessionID uint64 `json:"session-id"`
}

func killHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p killParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid kill parameters."), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		if err := rec.NetconfSession.KillSession(p.SessionID); err != nil {
			return nil, err
		}
		return protocol.OK(""), nil
	})
	return reply, false
}

func infoHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		return protocol.DataHello(rec.Hello), nil
	})
	return reply, false
}

type genericParams struct {
	Content string `json:"content"`
}

func genericHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p genericParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid generic parameters."), false
	}
	if p.Content == "" {
		return protocol.Err("content is required."), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		// Execute wraps req with common.GetUnion internally (in
		// netconf/client); passing the raw XML string here, rather than
		// pre-wrapping it, is what makes it pass through verbatim as
		// the RPC body instead of being treated as a struct to marshal.
		rply, err := rec.NetconfSession.Execute(p.Content)
		if err != nil {
			return nil, err
		}
		if rply != nil && rply.Data != "" {
			return protocol.Data(rply.Data), nil
		}
		return protocol.OK(""), nil
	})
	return reply, false
}

type getSchemaParams struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	Format     string `json:"format"`
}

func getSchemaHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p getSchemaParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid get-schema parameters."), false
	}
	if p.Identifier == "" {
		return protocol.Err("identifier is required."), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		content, err := rec.NetconfSession.GetSchema(p.Identifier, p.Version, p.Format)
		if err != nil {
			return nil, err
		}
		return protocol.Data(content), nil
	})
	return reply, false
}

func reloadHelloHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		hello, err := rec.NetconfSession.ReloadHello(ctx)
		if err != nil {
			return nil, err
		}
		rec.Hello = hello
		return protocol.DataHello(hello), nil
	})
	return reply, false
}

type ntfGetHistoryParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

func ntfGetHistoryHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p ntfGetHistoryParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid ntf-get-history parameters."), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		ns, err := rec.NetconfSession.NotificationHistory(ctx, secondsToDuration(p.From), secondsToDuration(p.To))
		if err != nil {
			return nil, err
		}
		return protocol.DataNotifications(ns), nil
	})
	return reply, false
}

type validateParams struct {
	Target string `json:"target"`
	URL    string `json:"url"`
}

func validateHandler(ctx context.Context, d *Dispatcher, req *protocol.Request) (*protocol.Reply, bool) {
	var p validateParams
	if err := decodeParams(req, &p); err != nil {
		return protocol.Err("Invalid validate parameters."), false
	}
	targetOpt, err := datastoreToken("target", p.Target, p.URL)
	if err != nil {
		return protocol.Err(err.Error()), false
	}

	reply := d.withSession(ctx, req.Session, func(rec *registry.Record) (*protocol.Reply, error) {
		if err := rec.NetconfSession.Validate(targetOpt); err != nil {
			return nil, err
		}
		return protocol.OK(""), nil
	})
	return reply, false
}
