package dispatch

import "time"

// SendEvent is the bus payload for "dispatch.sent" / "dispatch.failed".
type SendEvent struct {
	Phone string    `json:"phone"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
