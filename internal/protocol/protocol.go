// Package protocol defines the JSON request/reply envelopes and opcode
// table exchanged between a front-end caller and the broker over the
// local socket.
package protocol

import "encoding/json"

// Opcode identifies the requested operation.
type Opcode int

// Opcode values, exactly as specified for the front-end wire contract.
const (
	OpConnect        Opcode = 1
	OpDisconnect     Opcode = 2
	OpGet            Opcode = 3
	OpGetConfig      Opcode = 4
	OpEditConfig     Opcode = 5
	OpCopyConfig     Opcode = 6
	OpDeleteConfig   Opcode = 7
	OpLock           Opcode = 8
	OpUnlock         Opcode = 9
	OpKill           Opcode = 10
	OpInfo           Opcode = 11
	OpGeneric        Opcode = 12
	OpGetSchema      Opcode = 13
	OpReloadHello    Opcode = 14
	OpNtfGetHistory  Opcode = 15
	OpValidate       Opcode = 16
)

// ReplyType identifies the shape of a Reply. Exact integer values are part
// of the wire contract with the front-end.
type ReplyType int

const (
	ReplyOK    ReplyType = 0
	ReplyData  ReplyType = 1
	ReplyError ReplyType = 2
)

// Request is the JSON envelope sent by a front-end caller. Fields beyond
// Type and Session are opcode-specific and are re-parsed by the handler
// for that opcode via Raw.
type Request struct {
	Type    Opcode          `json:"type"`
	Session string          `json:"session,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw bytes alongside the decoded envelope
// fields, so opcode handlers can re-decode opcode-specific fields without
// the dispatcher needing to know their shape.
func (r *Request) UnmarshalJSON(data []byte) error {
	type alias Request
	a := (*alias)(r)
	if err := json.Unmarshal(data, a); err != nil {
		return err
	}
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Notification is one buffered notification event, as returned by
// ntf-get-history.
type Notification struct {
	EventTime int64  `json:"eventtime"`
	Content   string `json:"content"`
}

// Hello is the cached peer description returned by info/reload-hello. A
// successful connect reply carries only the session key, not the Hello.
type Hello struct {
	SID          string   `json:"sid"`
	Version      string   `json:"version"`
	Host         string   `json:"host"`
	Port         string   `json:"port"`
	User         string   `json:"user"`
	Capabilities []string `json:"capabilities"`
}

// Reply is the JSON envelope returned to a front-end caller. It is never
// constructed directly outside this package: OK, Data, DataHello,
// DataNotifications, Err and ErrRPC are the only constructors, each fixing
// one of the three reply types, which rules out the "reply envelope vs
// reply type" bug class by construction.
type Reply struct {
	Type Opcode `json:"-"`

	replyType ReplyType

	Session string `json:"session,omitempty"`
	Data    string `json:"data,omitempty"`

	Notifications []Notification `json:"notifications,omitempty"`

	Hello *Hello `json:"-"`

	ErrorMessage string `json:"error-message,omitempty"`
	ErrorTag     string `json:"error-tag,omitempty"`
	ErrorType    string `json:"error-type,omitempty"`
	ErrorSev     string `json:"error-severity,omitempty"`
	ErrorAppTag  string `json:"error-app-tag,omitempty"`
	ErrorPath    string `json:"error-path,omitempty"`
	BadAttribute string `json:"bad-attribute,omitempty"`
	BadElement   string `json:"bad-element,omitempty"`
	BadNamespace string `json:"bad-namespace,omitempty"`
	ErrSessionID string `json:"session-id,omitempty"`
}

// ReplyType reports which of OK/DATA/ERROR this Reply is.
func (r *Reply) ReplyType() ReplyType { return r.replyType }

// OK builds a bare success reply, optionally carrying the session key
// minted by a connect operation.
func OK(session string) *Reply {
	return &Reply{replyType: ReplyOK, Session: session}
}

// Data builds a single-blob data reply.
func Data(data string) *Reply {
	return &Reply{replyType: ReplyData, Data: data}
}

// DataHello builds the hello-object reply used by info and reload-hello.
func DataHello(h *Hello) *Reply {
	return &Reply{replyType: ReplyData, Hello: h}
}

// DataNotifications builds the notification-history reply.
func DataNotifications(ns []Notification) *Reply {
	return &Reply{replyType: ReplyData, Notifications: ns}
}

// Err builds a plain error reply carrying only a message.
func Err(message string) *Reply {
	return &Reply{replyType: ReplyError, ErrorMessage: message}
}

// ErrRPC builds an error reply populated with the structured RFC 6241
// rpc-error fields the NETCONF adapter surfaced.
func ErrRPC(message, tag, errType, severity, appTag, path, badAttr, badElem, badNS, sessionID string) *Reply {
	return &Reply{
		replyType:    ReplyError,
		ErrorMessage: message,
		ErrorTag:     tag,
		ErrorType:    errType,
		ErrorSev:     severity,
		ErrorAppTag:  appTag,
		ErrorPath:    path,
		BadAttribute: badAttr,
		BadElement:   badElem,
		BadNamespace: badNS,
		ErrSessionID: sessionID,
	}
}

// MarshalJSON renders the Reply as the wire envelope, picking the shape
// that corresponds to its ReplyType.
func (r *Reply) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type          ReplyType      `json:"type"`
		Session       string         `json:"session,omitempty"`
		Data          string         `json:"data,omitempty"`
		Notifications []Notification `json:"notifications,omitempty"`
		*Hello
		ErrorMessage string `json:"error-message,omitempty"`
		ErrorTag     string `json:"error-tag,omitempty"`
		ErrorType    string `json:"error-type,omitempty"`
		ErrorSev     string `json:"error-severity,omitempty"`
		ErrorAppTag  string `json:"error-app-tag,omitempty"`
		ErrorPath    string `json:"error-path,omitempty"`
		BadAttribute string `json:"bad-attribute,omitempty"`
		BadElement   string `json:"bad-element,omitempty"`
		BadNamespace string `json:"bad-namespace,omitempty"`
		ErrSessionID string `json:"session-id,omitempty"`
	}
	w := wire{
		Type:          r.replyType,
		Session:       r.Session,
		Data:          r.Data,
		Notifications: r.Notifications,
		Hello:         r.Hello,
		ErrorMessage:  r.ErrorMessage,
		ErrorTag:      r.ErrorTag,
		ErrorType:     r.ErrorType,
		ErrorSev:      r.ErrorSev,
		ErrorAppTag:   r.ErrorAppTag,
		ErrorPath:     r.ErrorPath,
		BadAttribute:  r.BadAttribute,
		BadElement:    r.BadElement,
		BadNamespace:  r.BadNamespace,
		ErrSessionID:  r.ErrSessionID,
	}
	return json.Marshal(w)
}
