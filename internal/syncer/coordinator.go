// Package syncer decides when queued actions get delivered and reconciles the
// durable store afterward. It is the only component that deletes from the
// store.
package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"driftq/internal/events"
	"driftq/internal/metrics"
	"driftq/internal/models"
	"driftq/internal/store"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TriggerReason tags what caused a sync attempt.
type TriggerReason string

const (
	TriggerEnqueue   TriggerReason = "enqueue"
	TriggerReconnect TriggerReason = "reconnect"
	TriggerManual    TriggerReason = "manual"
	TriggerWake      TriggerReason = "wake"
)

// Coordinator runs sync cycles on a single goroutine fed by a capacity-1
// trigger channel. Triggers arriving while a cycle is in flight are dropped;
// whatever is pending at cycle start gets attempted, anything enqueued
// mid-cycle waits for its own trigger.
type Coordinator struct {
	store        *store.Store
	deliverer    Deliverer
	background   BackgroundSync
	connectivity ConnectivitySource
	bus          *events.EventBus
	logger       *zerolog.Logger

	batchSize int
	syncTag   string
	limiter   *rate.Limiter

	trigger  chan TriggerReason
	syncing  atomic.Bool
	lastSync atomic.Int64 // unix milliseconds, 0 = never synced
}

func NewCoordinator(
	st *store.Store,
	deliverer Deliverer,
	connectivity ConnectivitySource,
	bus *events.EventBus,
	batchSize int,
	retrySpacing time.Duration,
	syncTag string,
	logger *zerolog.Logger,
) *Coordinator {
	if batchSize <= 0 {
		batchSize = models.DefaultDeliveryBatchSize
	}
	if retrySpacing <= 0 {
		retrySpacing = models.DefaultRetrySpacingSeconds * time.Second
	}

	c := &Coordinator{
		store:        st,
		deliverer:    deliverer,
		connectivity: connectivity,
		bus:          bus,
		logger:       logger,
		batchSize:    batchSize,
		syncTag:      syncTag,
		limiter:      rate.NewLimiter(rate.Every(retrySpacing), 1),
		trigger:      make(chan TriggerReason, 1),
	}

	bus.Subscribe(events.EventConnectivityChanged, func(event *events.Event) error {
		var payload events.ConnectivityPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		if payload.Online {
			c.Trigger(TriggerReconnect)
		}
		return nil
	})

	return c
}

// SetBackground installs the optional platform background-delivery hook.
func (c *Coordinator) SetBackground(background BackgroundSync) {
	c.background = background
}

// IsSyncing reports whether a cycle is in flight. In-memory only, so it is
// always false after a restart.
func (c *Coordinator) IsSyncing() bool {
	return c.syncing.Load()
}

// LastSyncTime returns when the last cycle that reached (or tried to reach)
// the network completed. Zero when no such cycle has run.
func (c *Coordinator) LastSyncTime() time.Time {
	ms := c.lastSync.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Trigger requests a sync cycle. Dropped when a cycle is already in flight or
// queued. Reconnect and wake triggers additionally pass through the spacing
// limiter so a flapping link cannot tight-loop delivery attempts; enqueue and
// manual triggers are discrete events and bypass it.
func (c *Coordinator) Trigger(reason TriggerReason) {
	if c.syncing.Load() {
		c.logger.Debug().Str("reason", string(reason)).Msg("sync trigger dropped, cycle in flight")
		return
	}

	if reason == TriggerReconnect || reason == TriggerWake {
		if !c.limiter.Allow() {
			c.logger.Debug().Str("reason", string(reason)).Msg("sync trigger dropped by spacing limiter")
			return
		}
	}

	select {
	case c.trigger <- reason:
	default:
		c.logger.Debug().Str("reason", string(reason)).Msg("sync trigger dropped, one already queued")
	}
}

// Run processes triggers until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info().Msg("sync coordinator started")
	defer c.logger.Info().Msg("sync coordinator stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-c.trigger:
			c.runCycle(ctx, reason)
		}
	}
}

func (c *Coordinator) runCycle(ctx context.Context, reason TriggerReason) {
	// Offline cycles are no-ops and must not advance lastSyncTime: only
	// cycles that contacted, or tried to contact, the network count.
	if !c.connectivity.Online() {
		c.logger.Debug().Str("reason", string(reason)).Msg("sync skipped, offline")
		return
	}

	c.syncing.Store(true)
	defer c.syncing.Store(false)

	if c.background != nil {
		if err := c.background.RegisterTag(ctx, c.syncTag); err != nil {
			c.logger.Warn().Err(err).Str("tag", c.syncTag).Msg("background sync registration failed")
		}
	}

	result := "empty"
	delivered := 0

	pending, err := c.store.Pending(ctx, c.batchSize)
	if err != nil {
		c.logger.Error().Err(err).Msg("read pending actions failed")
		result = "failed"
	} else if len(pending) > 0 {
		delivered, result = c.deliver(ctx, pending)
	}

	remaining, err := c.store.Count(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("count pending actions failed")
	}
	metrics.SetQueueDepth(remaining)

	c.lastSync.Store(time.Now().UnixMilli())
	metrics.IncSyncCycle(result)

	c.logger.Info().
		Str("reason", string(reason)).
		Str("result", result).
		Int("delivered", delivered).
		Int64("remaining", remaining).
		Msg("sync cycle completed")

	_ = c.bus.PublishJSON(events.EventSyncCompleted, events.SyncCompletedPayload{
		Delivered: delivered,
		Remaining: remaining,
		Failed:    result == "failed",
	})
}

// deliver posts the batch and reconciles the store: acked ids are removed,
// everything else stays pending with attempt bookkeeping.
func (c *Coordinator) deliver(ctx context.Context, pending []models.PendingAction) (int, string) {
	acked, err := c.deliverer.Deliver(ctx, pending)
	if err != nil {
		c.logger.Error().Err(err).Int("batch", len(pending)).Msg("delivery attempt failed")
		if markErr := c.store.MarkAttempt(ctx, actionIDs(pending), err.Error()); markErr != nil {
			c.logger.Error().Err(markErr).Msg("record delivery attempt failed")
		}
		return 0, "failed"
	}

	if err := c.store.RemoveDelivered(ctx, acked); err != nil {
		c.logger.Error().Err(err).Msg("remove delivered actions failed")
		return 0, "failed"
	}
	metrics.AddDelivered(len(acked))

	if len(acked) == len(pending) {
		return len(acked), "delivered"
	}

	unacked := subtractIDs(actionIDs(pending), acked)
	if err := c.store.MarkAttempt(ctx, unacked, "not acknowledged by remote"); err != nil {
		c.logger.Error().Err(err).Msg("record delivery attempt failed")
	}
	return len(acked), "partial"
}

func actionIDs(actions []models.PendingAction) []int64 {
	ids := make([]int64, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID)
	}
	return ids
}

func subtractIDs(all, remove []int64) []int64 {
	removed := make(map[int64]struct{}, len(remove))
	for _, id := range remove {
		removed[id] = struct{}{}
	}

	var rest []int64
	for _, id := range all {
		if _, ok := removed[id]; !ok {
			rest = append(rest, id)
		}
	}
	return rest
}
