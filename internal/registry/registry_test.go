package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modnetconf/broker/internal/ncadapter/ncadaptertest"
	"github.com/modnetconf/broker/internal/protocol"
)

func makeNotification(i int) protocol.Notification {
	return protocol.Notification{EventTime: int64(i), Content: "<event/>"}
}

func TestNewKeyStable(t *testing.T) {
	k1 := NewKey("10.0.0.1", "830", "4")
	k2 := NewKey("10.0.0.1", "830", "4")
	assert.Equal(t, k1, k2)
}

func TestNewKeyDisambiguatesJoin(t *testing.T) {
	// Without a separator, host="1" port="23" sid="4" would collide with
	// host="12" port="3" sid="4".
	a := NewKey("1", "23", "4")
	b := NewKey("12", "3", "4")
	assert.NotEqual(t, a, b)
}

func TestInsertLookupRemove(t *testing.T) {
	reg := New()
	rec := &Record{NetconfSession: ncadaptertest.NewFakeSession()}
	key := NewKey("h", "830", "1")

	reg.Insert(key, rec)
	assert.Equal(t, 1, reg.Len())

	got, ok := reg.Lookup(key)
	require.True(t, ok)
	assert.Same(t, rec, got)

	removed, ok := reg.Remove(key)
	require.True(t, ok)
	assert.Same(t, rec, removed)

	_, ok = reg.Lookup(key)
	assert.False(t, ok, "a removed key must never be found again")

	assert.Equal(t, 0, reg.Len())
}

func TestTouchIsMonotonic(t *testing.T) {
	rec := &Record{}
	rec.lastActivity = time.Now().Add(time.Hour) // pretend an out-of-order future touch happened
	before := rec.LastActivity()

	rec.Touch()

	assert.True(t, !rec.LastActivity().Before(before), "Touch must never move last_activity backwards")
}

func TestRecordLockExclusion(t *testing.T) {
	rec := &Record{}
	rec.Lock()

	acquired := make(chan struct{})
	go func() {
		rec.Lock()
		close(acquired)
		rec.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first Lock still held")
	case <-time.After(20 * time.Millisecond):
	}

	rec.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after Unlock")
	}
}

func TestReapRemovesOnlyIdleSessions(t *testing.T) {
	reg := New()

	fresh := &Record{NetconfSession: ncadaptertest.NewFakeSession()}
	idleSession := ncadaptertest.NewFakeSession()
	idleSession.On("Close").Return()
	idle := &Record{NetconfSession: idleSession}

	freshKey := NewKey("h", "830", "1")
	idleKey := NewKey("h", "830", "2")

	reg.Insert(freshKey, fresh)
	reg.Insert(idleKey, idle)

	idle.mu.Lock()
	idle.lastActivity = time.Now().Add(-2 * IdleTimeout)
	idle.mu.Unlock()

	reg.Reap(context.Background())

	_, stillThere := reg.Lookup(freshKey)
	assert.True(t, stillThere)

	_, gone := reg.Lookup(idleKey)
	assert.False(t, gone)

	assert.Eventually(t, func() bool {
		return idleSession.AssertExpectations(&noopT{})
	}, time.Second, 5*time.Millisecond, "idle session must be closed asynchronously")
}

// noopT swallows AssertExpectations failures so assert.Eventually can
// poll it without printing spurious intermediate failures while the
// reaper's async Close goroutine is still pending.
type noopT struct{}

func (noopT) Errorf(string, ...interface{}) {}

func TestCloseAllClosesEverySessionSynchronously(t *testing.T) {
	reg := New()

	sessA := ncadaptertest.NewFakeSession()
	sessA.On("Close").Return()
	sessB := ncadaptertest.NewFakeSession()
	sessB.On("Close").Return()

	reg.Insert(NewKey("h", "830", "1"), &Record{NetconfSession: sessA})
	reg.Insert(NewKey("h", "830", "2"), &Record{NetconfSession: sessB})

	reg.CloseAll(context.Background())

	assert.Equal(t, 0, reg.Len(), "CloseAll must remove every record")
	sessA.AssertExpectations(t)
	sessB.AssertExpectations(t)
}

func TestNotificationRingBufferBounded(t *testing.T) {
	rec := &Record{}
	for i := 0; i < NotificationBufferSize+5; i++ {
		rec.PushNotification(makeNotification(i))
	}
	assert.Len(t, rec.Notifications(), NotificationBufferSize)
}
