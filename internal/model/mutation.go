package model

import "time"

// QueuedMutation is a remote write that failed to send and is parked in
// the durable outbox for later replay. Entries are owned exclusively by
// the outbox; callers never mutate them directly.
type QueuedMutation struct {
	Timestamp  time.Time
	Variables  map[string]any
	ID         string
	Mutation   string
	LastError  string
	RetryCount int
}
