package pairing

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/hub"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
	"github.com/BYTEDz/PCLink-sub000/internal/store"
)

const testFingerprint = "3a1f0c9d2b4e6f8a7c5d3e1f0a9b8c7d6e5f4a3b2c1d0e9f8a7b6c5d4e3f2a1b"

func newTestCoordinator(t *testing.T, timeout time.Duration) (*Coordinator, *store.Store, *hub.Hub) {
	t.Helper()
	st, _, err := store.Open(filepath.Join(t.TempDir(), "devices.json"))
	require.NoError(t, err)
	h := hub.New()
	return NewCoordinator(st, h, testFingerprint, timeout), st, h
}

// captureConn records broadcast frames so tests can watch for the
// pairing_request notification.
type captureConn struct {
	events chan models.Event
}

func newCaptureConn() *captureConn {
	return &captureConn{events: make(chan models.Event, 16)}
}

func (c *captureConn) WriteJSON(v interface{}) error {
	c.events <- v.(models.Event)
	return nil
}

func (c *captureConn) Close() error { return nil }

func waitForPairingID(t *testing.T, conn *captureConn) string {
	t.Helper()
	select {
	case ev := <-conn.events:
		require.Equal(t, models.EventPairingRequest, ev.Type)
		data := ev.Data.(map[string]interface{})
		return data["pairing_id"].(string)
	case <-time.After(2 * time.Second):
		t.Fatal("no pairing_request broadcast received")
		return ""
	}
}

func TestPairingApproved(t *testing.T) {
	coord, st, h := newTestCoordinator(t, 5*time.Second)
	console := newCaptureConn()
	h.Register(console, hub.RoleOperator)

	type outcome struct {
		result *Result
		err    error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, err := coord.RequestPairing(Request{DeviceName: "Pixel 7", Platform: "android", IP: "10.0.0.5"})
		resCh <- outcome{res, err}
	}()

	pairingID := waitForPairingID(t, console)
	require.NoError(t, coord.Decide(pairingID, true))

	out := <-resCh
	require.NoError(t, out.err)
	assert.Len(t, out.result.APIKey, 36)
	assert.Equal(t, testFingerprint, out.result.CertFingerprint)

	device, ok := st.LookupByKey(out.result.APIKey)
	require.True(t, ok)
	assert.True(t, device.IsApproved)
	assert.Equal(t, "Pixel 7", device.DeviceName)
	assert.Equal(t, 0, coord.Pending())
}

func TestPairingDenied(t *testing.T) {
	coord, st, h := newTestCoordinator(t, 5*time.Second)
	console := newCaptureConn()
	h.Register(console, hub.RoleOperator)

	errCh := make(chan error, 1)
	go func() {
		_, err := coord.RequestPairing(Request{DeviceID: "dev-1", DeviceName: "Pixel 7"})
		errCh <- err
	}()

	pairingID := waitForPairingID(t, console)
	require.NoError(t, coord.Decide(pairingID, false))

	err := <-errCh
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))

	// A denied candidate must not linger.
	_, ok := st.Get("dev-1")
	assert.False(t, ok)
}

func TestPairingTimeoutRevokesDevice(t *testing.T) {
	coord, st, _ := newTestCoordinator(t, 50*time.Millisecond)

	_, err := coord.RequestPairing(Request{DeviceID: "dev-1", DeviceName: "Pixel 7"})
	assert.True(t, apperr.IsKind(err, apperr.KindTimeout))

	_, ok := st.Get("dev-1")
	assert.False(t, ok, "timeout must fully remove the candidate device")
	assert.Equal(t, 0, coord.Pending())
}

func TestPairingSingleDecision(t *testing.T) {
	coord, st, h := newTestCoordinator(t, 5*time.Second)
	console := newCaptureConn()
	h.Register(console, hub.RoleOperator)

	type outcome struct {
		result *Result
		err    error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, err := coord.RequestPairing(Request{DeviceID: "dev-1", DeviceName: "Pixel 7"})
		resCh <- outcome{res, err}
	}()

	pairingID := waitForPairingID(t, console)

	// N concurrent decisions, approve first by construction.
	require.NoError(t, coord.Decide(pairingID, true))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Later decisions are accepted but change nothing.
			assert.NoError(t, coord.Decide(pairingID, false))
		}()
	}
	wg.Wait()

	out := <-resCh
	require.NoError(t, out.err)

	device, ok := st.Get("dev-1")
	require.True(t, ok)
	assert.True(t, device.IsApproved, "only the first decision counts")
}

func TestPairingRejectsEmptyName(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, time.Second)

	_, err := coord.RequestPairing(Request{DeviceName: ""})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestDecideUnknownPairing(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, time.Second)

	err := coord.Decide("no-such-id", true)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
