// Package pairing runs the approval handshake between an unpaired client
// and a human operator. The originating HTTP call blocks (up to the
// configured timeout) on a one-shot decision signal resolved by whatever
// presents the request to the operator.
package pairing

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/hub"
	"github.com/BYTEDz/PCLink-sub000/internal/models"
	"github.com/BYTEDz/PCLink-sub000/internal/store"
)

const DefaultTimeout = 60 * time.Second

// Request carries the candidate device's self-description.
type Request struct {
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name"`
	Platform      string `json:"platform"`
	ClientVersion string `json:"client_version"`
	Fingerprint   string `json:"device_fingerprint"`
	IP            string `json:"-"`
}

// Result is returned to the waiting client on approval.
type Result struct {
	DeviceID        string `json:"device_id"`
	APIKey          string `json:"api_key"`
	CertFingerprint string `json:"cert_fingerprint"`
}

// session is the ephemeral handshake state for one in-flight request. It
// never outlives the originating HTTP call.
type session struct {
	pairingID string
	deviceID  string
	decided   bool
	approved  bool
	done      chan struct{}
}

type Coordinator struct {
	store       *store.Store
	hub         *hub.Hub
	fingerprint string
	timeout     time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

func NewCoordinator(st *store.Store, h *hub.Hub, certFingerprint string, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		store:       st,
		hub:         h,
		fingerprint: certFingerprint,
		timeout:     timeout,
		sessions:    make(map[string]*session),
	}
}

// RequestPairing registers the candidate device unapproved, notifies all
// connected clients, and blocks until an operator decision or timeout.
// Denial and timeout both revoke the candidate, closing the trust gap.
func (c *Coordinator) RequestPairing(req Request) (*Result, error) {
	if req.DeviceName == "" {
		return nil, apperr.Validation("device_name is required")
	}

	device, err := c.store.Register(req.DeviceID, req.DeviceName, req.Fingerprint, req.Platform, req.ClientVersion, req.IP)
	if err != nil {
		return nil, err
	}

	sess := &session{
		pairingID: uuid.NewString(),
		deviceID:  device.DeviceID,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.sessions[sess.pairingID] = sess
	c.mu.Unlock()
	defer func() {
		// The session dies with the request, whatever the outcome.
		c.mu.Lock()
		delete(c.sessions, sess.pairingID)
		c.mu.Unlock()
	}()

	c.hub.Broadcast(models.Event{
		Type: models.EventPairingRequest,
		Data: map[string]interface{}{
			"pairing_id":  sess.pairingID,
			"device_id":   device.DeviceID,
			"device_name": device.DeviceName,
			"platform":    device.Platform,
			"ip":          device.CurrentIP,
		},
	})
	log.Printf("Pairing: request %s from %q (%s)", sess.pairingID, device.DeviceName, device.CurrentIP)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-sess.done:
		c.mu.Lock()
		approved := sess.approved
		c.mu.Unlock()
		if !approved {
			c.revoke(device.DeviceID)
			log.Printf("Pairing: %s denied for %q", sess.pairingID, device.DeviceName)
			return nil, apperr.Auth("pairing denied")
		}
		key, err := c.store.Approve(device.DeviceID)
		if err != nil {
			return nil, err
		}
		log.Printf("Pairing: %s approved for %q", sess.pairingID, device.DeviceName)
		return &Result{
			DeviceID:        device.DeviceID,
			APIKey:          key,
			CertFingerprint: c.fingerprint,
		}, nil

	case <-timer.C:
		c.revoke(device.DeviceID)
		log.Printf("Pairing: %s timed out for %q", sess.pairingID, device.DeviceName)
		return nil, apperr.Timeout("pairing request timed out")
	}
}

// Decide records an operator decision. Only the first decision for a
// pairing id takes effect; duplicates (network retries) succeed as no-ops.
func (c *Coordinator) Decide(pairingID string, approved bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[pairingID]
	if !ok {
		return apperr.NotFound("unknown pairing id %s", pairingID)
	}
	if sess.decided {
		return nil
	}
	sess.decided = true
	sess.approved = approved
	close(sess.done)
	return nil
}

// Pending returns the number of in-flight pairing sessions.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *Coordinator) revoke(deviceID string) {
	if err := c.store.Revoke(deviceID); err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		log.Printf("Pairing: failed to revoke device %s: %v", deviceID, err)
	}
}
