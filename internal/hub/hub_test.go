package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BYTEDz/PCLink-sub000/internal/models"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  []models.Event
	failing bool
	closed  bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, v.(models.Event))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestBroadcastReachesAllRoles(t *testing.T) {
	h := New()
	mobile := &fakeConn{}
	console := &fakeConn{}
	h.Register(mobile, RoleMobile)
	h.Register(console, RoleOperator)
	require.Equal(t, 2, h.Count())

	h.Broadcast(models.Event{Type: models.EventServerStatus, Data: "snapshot"})

	assert.Equal(t, 1, mobile.frameCount())
	assert.Equal(t, 1, console.frameCount())
}

func TestSendFailureEvictsConnection(t *testing.T) {
	h := New()
	healthy := &fakeConn{}
	broken := &fakeConn{failing: true}
	h.Register(healthy, RoleMobile)
	h.Register(broken, RoleMobile)

	// The failure is swallowed; the healthy peer still gets the frame.
	h.Broadcast(models.Event{Type: models.EventUpdate})

	assert.Equal(t, 1, healthy.frameCount())
	assert.Equal(t, 1, h.Count())
	assert.True(t, broken.closed)

	// Next broadcast no longer attempts the evicted connection.
	h.Broadcast(models.Event{Type: models.EventUpdate})
	assert.Equal(t, 2, healthy.frameCount())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := New()
	conn := &fakeConn{}
	h.Register(conn, RoleMobile)
	h.Unregister(conn)
	h.Unregister(conn)
	assert.Equal(t, 0, h.Count())
}

func TestConcurrentBroadcastAndChurn(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := &fakeConn{}
			h.Register(conn, RoleMobile)
			h.Broadcast(models.Event{Type: models.EventServerStatus})
			h.Unregister(conn)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Count())
}
