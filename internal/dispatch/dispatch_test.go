package dispatch

import (
	"context"
	"crypto/sha1" //nolint:gosec // matching the key derivation under test, not a security digest
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/modnetconf/broker/internal/ncadapter/ncadaptertest"
	"github.com/modnetconf/broker/internal/protocol"
	"github.com/modnetconf/broker/internal/registry"
	"github.com/modnetconf/broker/netconf/common"
)

func expectedKey(host, port, sid string) string {
	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "%s|%s|%s", host, port, sid)
	return hex.EncodeToString(h.Sum(nil))
}

func decodeJSON(t *testing.T, raw []byte) *protocol.Request {
	t.Helper()
	var req protocol.Request
	require.NoError(t, json.Unmarshal(raw, &req))
	return &req
}

// scenario 1: connect then get-config.
func TestConnectThenGetConfig(t *testing.T) {
	fakeClient := &ncadaptertest.FakeClient{}
	fakeSession := ncadaptertest.NewFakeSession()

	fakeSession.On("Hello").Return(&protocol.Hello{SID: "42"})
	fakeClient.On("Connect", mock.Anything, "h", "830", "u", "p", []string{"urn:ietf:params:netconf:base:1.1"}).
		Return(fakeSession, nil)

	d := New(registry.New(), fakeClient)

	reqA := decodeJSON(t, []byte(`{"type":1,"host":"h","port":"830","user":"u","pass":"p","capabilities":["urn:ietf:params:netconf:base:1.1"]}`))
	replyA, closeA := d.Handle(context.Background(), reqA)
	assert.False(t, closeA)
	assert.Equal(t, protocol.ReplyOK, replyA.ReplyType())

	wantKey := expectedKey("h", "830", "42")
	assert.Equal(t, wantKey, replyA.Session)
	assert.Len(t, wantKey, 40)

	fakeSession.On("GetConfigSubtree", mock.Anything, "running", mock.Anything).
		Run(func(args mock.Arguments) {
			out := args.Get(2).(*string)
			*out = "<data>X</data>"
		}).
		Return(nil)

	reqB := decodeJSON(t, []byte(fmt.Sprintf(`{"type":4,"session":%q,"source":"running"}`, wantKey)))
	replyB, closeB := d.Handle(context.Background(), reqB)
	assert.False(t, closeB)
	assert.Equal(t, protocol.ReplyData, replyB.ReplyType())
	assert.Equal(t, "<data>X</data>", replyB.Data)

	fakeClient.AssertExpectations(t)
	fakeSession.AssertExpectations(t)
}

// scenario 2: unknown session.
func TestUnknownSession(t *testing.T) {
	d := New(registry.New(), &ncadaptertest.FakeClient{})

	req := decodeJSON(t, []byte(`{"type":3,"session":"deadbeef","filter":null}`))
	reply, closeConn := d.Handle(context.Background(), req)

	assert.False(t, closeConn)
	assert.Equal(t, protocol.ReplyError, reply.ReplyType())
	assert.Equal(t, "Invalid session identifier.", reply.ErrorMessage)
}

// scenario 3: bad datastore.
func TestBadDatastore(t *testing.T) {
	reg := registry.New()
	key := registry.NewKey("h", "830", "1")
	reg.Insert(key, &registry.Record{NetconfSession: ncadaptertest.NewFakeSession()})

	d := New(reg, &ncadaptertest.FakeClient{})
	req := decodeJSON(t, []byte(fmt.Sprintf(`{"type":4,"session":%q,"source":"archive"}`, string(key))))
	reply, closeConn := d.Handle(context.Background(), req)

	assert.False(t, closeConn)
	assert.Equal(t, protocol.ReplyError, reply.ReplyType())
	assert.Equal(t, "Invalid source repository type requested.", reply.ErrorMessage)
}

// scenario 4: structured rpc-error passthrough.
func TestStructuredRPCErrorPassthrough(t *testing.T) {
	reg := registry.New()
	key := registry.NewKey("h", "830", "1")
	fakeSession := ncadaptertest.NewFakeSession()
	reg.Insert(key, &registry.Record{NetconfSession: fakeSession})

	rpcErr := &common.RPCError{Tag: "operation-failed", Severity: "error", Message: "boom"}
	fakeSession.On("EditConfig", "running", mock.Anything, mock.Anything).Return(rpcErr)

	d := New(reg, &ncadaptertest.FakeClient{})
	req := decodeJSON(t, []byte(fmt.Sprintf(`{"type":5,"session":%q,"target":"running","config":"<x/>"}`, string(key))))
	reply, closeConn := d.Handle(context.Background(), req)

	assert.False(t, closeConn)
	assert.Equal(t, protocol.ReplyError, reply.ReplyType())
	assert.Equal(t, "operation-failed", reply.ErrorTag)
	assert.Equal(t, "error", reply.ErrorSev)
	assert.Equal(t, "boom", reply.ErrorMessage)

	// a protocol-level rpc-error leaves the session registered and open
	_, stillThere := reg.Lookup(key)
	assert.True(t, stillThere)
}

// scenario 5: idle reap.
func TestIdleReapInvalidatesSession(t *testing.T) {
	reg := registry.New()
	key := registry.NewKey("h", "830", "1")
	fakeSession := ncadaptertest.NewFakeSession()
	fakeSession.On("Close").Return()
	reg.Insert(key, &registry.Record{NetconfSession: fakeSession})

	rec, _ := reg.Lookup(key)
	rec.Lock()
	rec.SetLastActivityForTesting(time.Now().Add(-2 * registry.IdleTimeout))
	rec.Unlock()

	reg.Reap(context.Background())

	d := New(reg, &ncadaptertest.FakeClient{})
	req := decodeJSON(t, []byte(fmt.Sprintf(`{"type":3,"session":%q,"filter":null}`, string(key))))
	reply, _ := d.Handle(context.Background(), req)

	assert.Equal(t, protocol.ReplyError, reply.ReplyType())
	assert.Equal(t, "Invalid session identifier.", reply.ErrorMessage)

	assert.Eventually(t, func() bool {
		return fakeSession.AssertExpectations(quietT{})
	}, time.Second, 5*time.Millisecond)
}

// scenario 6: concurrent dispatch on one session never overlaps send_recv.
func TestConcurrentDispatchDoesNotOverlap(t *testing.T) {
	reg := registry.New()
	key := registry.NewKey("h", "830", "1")
	fakeSession := ncadaptertest.NewFakeSession()
	reg.Insert(key, &registry.Record{NetconfSession: fakeSession})

	var mu sync.Mutex
	inFlight := 0
	maxObserved := 0

	fakeSession.On("GetSubtree", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			inFlight++
			if inFlight > maxObserved {
				maxObserved = inFlight
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()

			out := args.Get(1).(*string)
			*out = "<ok/>"
		}).
		Return(nil)

	d := New(reg, &ncadaptertest.FakeClient{})

	var wg sync.WaitGroup
	replies := make([]*protocol.Reply, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := decodeJSON(t, []byte(fmt.Sprintf(`{"type":3,"session":%q,"filter":null}`, string(key))))
			replies[i], _ = d.Handle(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for _, r := range replies {
		require.Equal(t, protocol.ReplyData, r.ReplyType())
		assert.Equal(t, "<ok/>", r.Data)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxObserved, "GetSubtree calls on the same session must never overlap")
}

type quietT struct{}

func (quietT) Errorf(string, ...interface{}) {}
