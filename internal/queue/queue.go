// Package queue is the public facade consumers use to enqueue actions and
// observe queue depth and sync status. It is the only component that inserts
// into the durable store.
package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"driftq/internal/events"
	"driftq/internal/metrics"
	"driftq/internal/models"
	"driftq/internal/store"
	"driftq/internal/syncer"

	goccy "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Queue owns the observable counters as instance fields so independent
// queues can coexist without cross-contamination.
type Queue struct {
	store        *store.Store
	coord        *syncer.Coordinator
	connectivity syncer.ConnectivitySource
	bus          *events.EventBus
	logger       *zerolog.Logger

	pending atomic.Int64
}

func New(st *store.Store, coord *syncer.Coordinator, connectivity syncer.ConnectivitySource, bus *events.EventBus, logger *zerolog.Logger) *Queue {
	q := &Queue{
		store:        st,
		coord:        coord,
		connectivity: connectivity,
		bus:          bus,
		logger:       logger,
	}

	// Depth is reconciled against the store after every completed cycle.
	bus.Subscribe(events.EventSyncCompleted, func(event *events.Event) error {
		var payload events.SyncCompletedPayload
		if err := goccy.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		q.pending.Store(payload.Remaining)
		return nil
	})

	return q
}

// Init seeds the depth counter from the store at startup.
func (q *Queue) Init(ctx context.Context) error {
	count, err := q.store.Count(ctx)
	if err != nil {
		return err
	}
	q.pending.Store(count)
	metrics.SetQueueDepth(count)
	return nil
}

// Enqueue durably stores the action and triggers a sync attempt when online.
// It returns once the action is stored, independent of delivery outcome.
// A degraded store surfaces store.ErrUnavailable: the action is lost, the
// caller must not crash, and depth keeps reading from the (empty) store.
func (q *Queue) Enqueue(ctx context.Context, payload json.RawMessage) (int64, error) {
	id, err := q.store.Add(ctx, payload)
	if err != nil {
		q.logger.Warn().Err(err).Msg("enqueue failed, action not stored")
		return 0, err
	}
	metrics.IncEnqueued()

	count, err := q.store.Count(ctx)
	if err != nil {
		q.logger.Error().Err(err).Msg("refresh queue depth failed")
	} else {
		q.pending.Store(count)
		metrics.SetQueueDepth(count)
	}

	_ = q.bus.PublishJSON(events.EventActionEnqueued, events.EnqueuedPayload{ActionID: id})

	if q.connectivity.Online() {
		q.coord.Trigger(syncer.TriggerEnqueue)
	}
	return id, nil
}

// Sync requests a manual sync cycle.
func (q *Queue) Sync() {
	q.coord.Trigger(syncer.TriggerManual)
}

// PendingCount returns the observed queue depth. Eventually consistent with
// the store, bounded by one sync cycle.
func (q *Queue) PendingCount() int64 {
	return q.pending.Load()
}

// IsSyncing reports whether a sync cycle is in flight.
func (q *Queue) IsSyncing() bool {
	return q.coord.IsSyncing()
}

// LastSyncTime returns the completion time of the last cycle that reached
// the network, zero if none has.
func (q *Queue) LastSyncTime() time.Time {
	return q.coord.LastSyncTime()
}

// Status snapshots the observables for UI binding.
func (q *Queue) Status() models.SyncStatus {
	return models.SyncStatus{
		PendingCount: q.pending.Load(),
		IsSyncing:    q.coord.IsSyncing(),
		LastSyncTime: q.coord.LastSyncTime(),
		Online:       q.connectivity.Online(),
	}
}
