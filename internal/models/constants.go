package models

const (
	// DefaultSyncTag is the background-delivery tag registered with the
	// platform before each cycle.
	DefaultSyncTag = "driftq-pending-actions"

	// DefaultDeliveryBatchSize caps how many pending actions one cycle posts.
	DefaultDeliveryBatchSize = 50

	// DefaultRetrySpacingSeconds is the minimum spacing between automatic
	// sync retriggers. Manual triggers are not subject to it.
	DefaultRetrySpacingSeconds = 5

	// DefaultWakeChannel is the Redis pub/sub channel external processes can
	// use to nudge the coordinator.
	DefaultWakeChannel = "driftq:wake"
)
