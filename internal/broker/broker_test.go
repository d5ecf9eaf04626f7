package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/modnetconf/broker/internal/framing"
	"github.com/modnetconf/broker/internal/ncadapter/ncadaptertest"
	"github.com/modnetconf/broker/internal/protocol"
)

func dial(t *testing.T, socketPath string) (*net.UnixConn, *bufio.Reader) {
	t.Helper()
	var conn *net.UnixConn
	require.Eventually(t, func() bool {
		c, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		conn = c.(*net.UnixConn)
		return true
	}, time.Second, 5*time.Millisecond, "supervisor never bound its socket")
	return conn, bufio.NewReader(conn)
}

func roundTrip(t *testing.T, conn *net.UnixConn, br *bufio.Reader, req map[string]interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, framing.Encode(conn, raw))

	payload, err := framing.Decode(br)
	require.NoError(t, err)

	var reply map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &reply))
	return reply
}

func TestSupervisorServesConnectAndShutsDownGracefully(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "modnetconfd.sock")

	fakeClient := &ncadaptertest.FakeClient{}
	fakeSession := ncadaptertest.NewFakeSession()
	fakeSession.On("Hello").Return(&protocol.Hello{SID: "1"})
	fakeSession.On("Close").Return()
	fakeClient.On("Connect", mock.Anything, "h", "830", "u", "p", mock.Anything).Return(fakeSession, nil)

	sup := New(socketPath, fakeClient)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	conn, br := dial(t, socketPath)
	defer conn.Close()

	reply := roundTrip(t, conn, br, map[string]interface{}{
		"type": 1, "host": "h", "port": "830", "user": "u", "pass": "p",
	})
	assert.Equal(t, float64(protocol.ReplyOK), reply["type"])
	assert.Len(t, reply["session"], 40)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(7 * time.Second):
		t.Fatal("Run did not return after context cancellation within the shutdown grace period")
	}

	fakeSession.AssertExpectations(t)
}

func TestConnectionClosesOnMissingSession(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "modnetconfd.sock")
	sup := New(socketPath, &ncadaptertest.FakeClient{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	conn, br := dial(t, socketPath)
	defer conn.Close()

	// no session on a non-connect opcode: the connection handler must
	// close after this reply, per the missing-session-specification rule.
	reply := roundTrip(t, conn, br, map[string]interface{}{"type": 3})
	assert.Equal(t, float64(protocol.ReplyError), reply["type"])
	assert.Equal(t, "Missing session specification.", reply["error-message"])

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	assert.Error(t, err, "server must close the connection after a missing-session reply")
}
