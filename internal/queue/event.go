// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// Event types published by the lifecycle services.
const (
	RegionCreated = "region.created"
	RegionDeleted = "region.deleted"
	UserCreated   = "user.created"
	UserDeleted   = "user.deleted"
)

// Event is published after a lifecycle mutation commits.  It contains
// enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	RegionID   string    `json:"region_id,omitempty"`
	RegionName string    `json:"region_name,omitempty"`
	RegionIDs  []string  `json:"region_ids,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
