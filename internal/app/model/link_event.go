package model

import "time"

// LinkEvent is published to NATS whenever a link's lifecycle changes.
type LinkEvent struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Lifecycle event types.
const (
	LinkEventCreated = "created"
	LinkEventDeleted = "deleted"
	LinkEventPurged  = "purged"
)

const (
	LinkStreamName     = "LINKS"
	LinkStreamSubject  = "links.lifecycle"
	LinkStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
