// Package ncadaptertest provides testify/mock based fakes for
// internal/ncadapter.Session and .Client, for use by internal/registry
// and internal/dispatch tests that want to script replies rather than
// drive a real transport.
package ncadaptertest

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/modnetconf/broker/internal/ncadapter"
	"github.com/modnetconf/broker/internal/protocol"
	"github.com/modnetconf/broker/netconf/client"
	"github.com/modnetconf/broker/netconf/common"
	"github.com/modnetconf/broker/netconf/ops"
)

// FakeSession is a mock.Mock implementation of ncadapter.Session.
type FakeSession struct {
	mock.Mock
}

// NewFakeSession returns a FakeSession with every call unset; tests
// script behaviour with .On(...).Return(...).
func NewFakeSession() *FakeSession {
	return &FakeSession{}
}

func (m *FakeSession) Execute(req common.Request) (*common.RPCReply, error) {
	args := m.Called(req)
	reply, _ := args.Get(0).(*common.RPCReply)
	return reply, args.Error(1)
}

func (m *FakeSession) ExecuteAsync(req common.Request, rchan chan *common.RPCReply) error {
	args := m.Called(req, rchan)
	return args.Error(0)
}

func (m *FakeSession) Subscribe(req common.Request, nchan chan *common.Notification) (*common.RPCReply, error) {
	args := m.Called(req, nchan)
	reply, _ := args.Get(0).(*common.RPCReply)
	return reply, args.Error(1)
}

func (m *FakeSession) Close() { m.Called() }

func (m *FakeSession) ID() uint64 {
	args := m.Called()
	return uint64(args.Int(0))
}

func (m *FakeSession) ServerCapabilities() []string {
	args := m.Called()
	caps, _ := args.Get(0).([]string)
	return caps
}

func (m *FakeSession) GetSubtree(filter interface{}, result interface{}) error {
	args := m.Called(filter, result)
	return args.Error(0)
}

func (m *FakeSession) GetXpath(xpath string, nslist []ops.Namespace, result interface{}) error {
	args := m.Called(xpath, nslist, result)
	return args.Error(0)
}

func (m *FakeSession) GetConfigSubtree(filter interface{}, source string, result interface{}) error {
	args := m.Called(filter, source, result)
	return args.Error(0)
}

func (m *FakeSession) GetConfigXpath(xpath string, nslist []ops.Namespace, source string, result interface{}) error {
	args := m.Called(xpath, nslist, source, result)
	return args.Error(0)
}

func (m *FakeSession) GetSchemas() ([]ops.Schema, error) {
	args := m.Called()
	schemas, _ := args.Get(0).([]ops.Schema)
	return schemas, args.Error(1)
}

func (m *FakeSession) GetSchema(id, version, format string) (string, error) {
	args := m.Called(id, version, format)
	return args.String(0), args.Error(1)
}

func (m *FakeSession) EditConfig(target string, config ops.ConfigOption, options ...ops.EditOption) error {
	args := m.Called(target, config, options)
	return args.Error(0)
}

func (m *FakeSession) EditConfigCfg(target string, config interface{}, options ...ops.EditOption) error {
	args := m.Called(target, config, options)
	return args.Error(0)
}

func (m *FakeSession) CopyConfig(source, target ops.CfgDsOpt) error {
	args := m.Called(source, target)
	return args.Error(0)
}

func (m *FakeSession) DeleteConfig(target ops.CfgDsOpt) error {
	args := m.Called(target)
	return args.Error(0)
}

func (m *FakeSession) Lock(target string) error {
	args := m.Called(target)
	return args.Error(0)
}

func (m *FakeSession) Unlock(target string) error {
	args := m.Called(target)
	return args.Error(0)
}

func (m *FakeSession) Discard() error {
	args := m.Called()
	return args.Error(0)
}

func (m *FakeSession) CloseSession() error {
	args := m.Called()
	return args.Error(0)
}

func (m *FakeSession) KillSession(id uint64) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *FakeSession) Validate(target ops.CfgDsOpt) error {
	args := m.Called(target)
	return args.Error(0)
}

func (m *FakeSession) Host() string { return m.Called().String(0) }
func (m *FakeSession) Port() string { return m.Called().String(0) }
func (m *FakeSession) User() string { return m.Called().String(0) }

func (m *FakeSession) Hello() *protocol.Hello {
	args := m.Called()
	h, _ := args.Get(0).(*protocol.Hello)
	return h
}

func (m *FakeSession) OpenSideChannel(ctx context.Context) (client.Session, error) {
	args := m.Called(ctx)
	cs, _ := args.Get(0).(client.Session)
	return cs, args.Error(1)
}

func (m *FakeSession) ReloadHello(ctx context.Context) (*protocol.Hello, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).(*protocol.Hello)
	return h, args.Error(1)
}

func (m *FakeSession) NotificationHistory(ctx context.Context, from, to time.Duration) ([]protocol.Notification, error) {
	args := m.Called(ctx, from, to)
	ns, _ := args.Get(0).([]protocol.Notification)
	return ns, args.Error(1)
}

var _ ncadapter.Session = (*FakeSession)(nil)

// FakeClient is a mock.Mock implementation of ncadapter.Client.
type FakeClient struct {
	mock.Mock
}

func (m *FakeClient) Connect(ctx context.Context, host, port, user, password string, capabilities []string) (ncadapter.Session, error) {
	args := m.Called(ctx, host, port, user, password, capabilities)
	sess, _ := args.Get(0).(ncadapter.Session)
	return sess, args.Error(1)
}

var _ ncadapter.Client = (*FakeClient)(nil)
