package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/hub"
	"github.com/BYTEDz/PCLink-sub000/internal/middleware"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
	"github.com/BYTEDz/PCLink-sub000/internal/pairing"
	"github.com/BYTEDz/PCLink-sub000/internal/store"
)

// eventConn records broadcast events so a test can recover the pairing id.
type eventConn struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *eventConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v.(models.Event))
	return nil
}

func (c *eventConn) Close() error { return nil }

func (c *eventConn) pairingID(t *testing.T) string {
	t.Helper()
	var id string
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, ev := range c.events {
			if ev.Type == models.EventPairingRequest {
				id = ev.Data.(map[string]interface{})["pairing_id"].(string)
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	return id
}

// newPairingApp wires the pairing routes the way the server does, with the
// decision endpoints behind the master gate.
func newPairingApp(t *testing.T) (*fiber.App, *store.Store, string, *eventConn) {
	t.Helper()
	st, master, err := store.Open(filepath.Join(t.TempDir(), "devices.json"))
	require.NoError(t, err)

	fanout := hub.New()
	conn := &eventConn{}
	fanout.Register(conn, hub.RoleOperator)

	coordinator := pairing.NewCoordinator(st, fanout, "ab:cd", 2*time.Second)
	h := NewPairingHandler(coordinator)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperr.StatusOf(err)).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})
	app.Post("/pairing/request", h.Request)
	protected := app.Group("", middleware.APIKeyRequired(st))
	protected.Post("/pairing/approve", middleware.MasterOnly(), h.Approve)
	protected.Post("/pairing/deny", middleware.MasterOnly(), h.Deny)
	return app, st, master, conn
}

func postJSON(t *testing.T, app *fiber.App, path, key string, body interface{}) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

// A paired device's key must not be able to decide another device's
// pairing request; that authority belongs to the master key alone.
func TestPairingDecisionRequiresMasterKey(t *testing.T) {
	app, st, master, conn := newPairingApp(t)

	_, err := st.Register("insider", "Insider", "", "android", "1.0", "10.0.0.9")
	require.NoError(t, err)
	insiderKey, err := st.Approve("insider")
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() {
		done <- postJSON(t, app, "/pairing/request", "", pairing.Request{
			DeviceID:   "rogue",
			DeviceName: "Rogue",
			Platform:   "android",
		})
	}()
	pairingID := conn.pairingID(t)

	decision := DecisionRequest{PairingID: pairingID, Approved: true}
	code := postJSON(t, app, "/pairing/approve", insiderKey, decision)
	assert.Equal(t, fiber.StatusForbidden, code)

	d, ok := st.Get("rogue")
	require.True(t, ok)
	assert.False(t, d.IsApproved, "a device key must not approve a pairing request")

	code = postJSON(t, app, "/pairing/deny", insiderKey, decision)
	assert.Equal(t, fiber.StatusForbidden, code)

	// The operator's key still works.
	code = postJSON(t, app, "/pairing/approve", master, decision)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, fiber.StatusOK, <-done)

	d, ok = st.Get("rogue")
	require.True(t, ok)
	assert.True(t, d.IsApproved)
}
