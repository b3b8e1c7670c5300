package bulk

import "time"

// SendResult is one recipient's outcome within a run.
type SendResult struct {
	Name   string
	Phone  string
	OK     bool
	Reason string
}

// Outcome sums up a run. Details is in recipient order and always has
// Success+Failed entries.
type Outcome struct {
	Success int
	Failed  int
	Details []SendResult
}

// ProgressEvent is the bus payload for "bulk.progress". Index is 1-based.
type ProgressEvent struct {
	RunID string `json:"run_id"`
	Index int    `json:"index"`
	Total int    `json:"total"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Error string `json:"error,omitempty"`
}

// FinishedEvent is the bus payload for "bulk.finished".
type FinishedEvent struct {
	RunID   string        `json:"run_id"`
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Elapsed time.Duration `json:"elapsed"`
}
