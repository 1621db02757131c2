package models

import "time"

// Device is a paired or pending client. Owned by the credential store;
// other components hold the DeviceID, never a live copy.
type Device struct {
	DeviceID      string    `json:"device_id"`
	DeviceName    string    `json:"device_name"`
	Platform      string    `json:"platform"`
	ClientVersion string    `json:"client_version"`
	Fingerprint   string    `json:"fingerprint"`
	APIKey        string    `json:"api_key,omitempty"`
	IsApproved    bool      `json:"is_approved"`
	CurrentIP     string    `json:"current_ip"`
	LastSeen      time.Time `json:"last_seen"`
	CreatedAt     time.Time `json:"created_at"`
}
