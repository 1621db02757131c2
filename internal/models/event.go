package models

// Event types pushed to connected clients.
const (
	EventPairingRequest = "pairing_request"
	EventUpdate         = "update"
	EventServerStatus   = "server_status"
)

// Event is a server-originated frame broadcast to all live connections.
// Delivery is best-effort; producers that need convergence broadcast full
// snapshots rather than deltas.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
