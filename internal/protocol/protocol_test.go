package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestUnmarshalCapturesRaw(t *testing.T) {
	raw := []byte(`{"type":4,"session":"abc","source":"running"}`)
	var req Request
	require.NoError(t, json.Unmarshal(raw, &req))

	assert.Equal(t, OpGetConfig, req.Type)
	assert.Equal(t, "abc", req.Session)
	assert.JSONEq(t, string(raw), string(req.Raw))
}

func TestOKReplyShape(t *testing.T) {
	b, err := json.Marshal(OK("deadbeef"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":0,"session":"deadbeef"}`, string(b))
}

func TestDataReplyShape(t *testing.T) {
	b, err := json.Marshal(Data("<x/>"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":1,"data":"<x/>"}`, string(b))
}

func TestDataHelloReplyShape(t *testing.T) {
	h := &Hello{SID: "1", Version: "1.1", Host: "h", Port: "830", User: "u", Capabilities: []string{"a"}}
	b, err := json.Marshal(DataHello(h))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":1,"sid":"1","version":"1.1","host":"h","port":"830","user":"u","capabilities":["a"]}`, string(b))
}

func TestErrReplyShape(t *testing.T) {
	b, err := json.Marshal(Err("Invalid session identifier."))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":2,"error-message":"Invalid session identifier."}`, string(b))
}

func TestErrRPCReplyShape(t *testing.T) {
	b, err := json.Marshal(ErrRPC("boom", "operation-failed", "application", "error", "", "", "", "", "", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type":2,
		"error-message":"boom",
		"error-tag":"operation-failed",
		"error-type":"application",
		"error-severity":"error"
	}`, string(b))
}

func TestDataNotificationsReplyShape(t *testing.T) {
	ns := []Notification{{EventTime: 1, Content: "<a/>"}, {EventTime: 2, Content: "<b/>"}}
	b, err := json.Marshal(DataNotifications(ns))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":1,"notifications":[{"eventtime":1,"content":"<a/>"},{"eventtime":2,"content":"<b/>"}]}`, string(b))
}
