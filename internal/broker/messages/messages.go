package messages

import "time"

// RefreshFailed is published once per refresh that had failures.
type RefreshFailed struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
	Errors  []string  `json:"errors"`
	At      time.Time `json:"at"`
}

// RefreshCompleted is published after every scheduled or triggered refresh.
type RefreshCompleted struct {
	RunID     string    `json:"run_id"`
	Force     bool      `json:"force"`
	Refreshed int       `json:"refreshed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
	Duration  float64   `json:"duration_seconds"`
}
