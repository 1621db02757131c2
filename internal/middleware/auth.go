package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/BYTEDz/PCLink-sub000/internal/store"
)

// Locals keys set by APIKeyRequired.
const (
	localClientID = "clientID"
	localIsMaster = "isMaster"
)

// authFailed is the single response for every authentication failure.
// Missing, unknown, and unapproved keys are indistinguishable on the wire
// so probing cannot tell a valid-but-unapproved key from garbage.
func authFailed(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"success": false,
		"message": "Invalid API key",
	})
}

// APIKeyRequired authenticates every protected call via the x-api-key
// header: either the master key (full trust) or an approved device's
// issued key. Device authentication updates the device's ip/last_seen as
// a side effect, off the request path.
func APIKeyRequired(st *store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("x-api-key")
		if key == "" {
			return authFailed(c)
		}

		if st.VerifyMasterKey(key) {
			c.Locals(localClientID, store.MasterClientID)
			c.Locals(localIsMaster, true)
			return c.Next()
		}

		device, ok := st.LookupByKey(key)
		if !ok || !device.IsApproved {
			return authFailed(c)
		}

		c.Locals(localClientID, device.DeviceID)
		c.Locals(localIsMaster, false)

		ip := c.IP()
		go func() {
			if err := st.Touch(device.DeviceID, ip); err != nil {
				log.Printf("Auth: failed to touch device %s: %v", device.DeviceID, err)
			}
		}()

		return c.Next()
	}
}

// MasterOnly restricts a route to the master key.
func MasterOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsMaster(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Master key required",
			})
		}
		return c.Next()
	}
}

// ClientID returns the authenticated caller's id: a device id, or
// store.MasterClientID for the master key.
func ClientID(c *fiber.Ctx) string {
	id, ok := c.Locals(localClientID).(string)
	if !ok {
		return ""
	}
	return id
}

// IsMaster reports whether the caller authenticated with the master key.
func IsMaster(c *fiber.Ctx) bool {
	master, ok := c.Locals(localIsMaster).(bool)
	return ok && master
}
