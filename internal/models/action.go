package models

import (
	"encoding/json"
	"time"
)

// PendingAction is a locally durable record of a caller-submitted action
// awaiting confirmed remote delivery. The payload is opaque to the queue.
type PendingAction struct {
	ID         int64           `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	LastError  *string         `json:"last_error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// SyncStatus is the read-only view exposed by the queue facade.
type SyncStatus struct {
	PendingCount int64     `json:"pending_count"`
	IsSyncing    bool      `json:"is_syncing"`
	LastSyncTime time.Time `json:"last_sync_time"`
	Online       bool      `json:"online"`
}
