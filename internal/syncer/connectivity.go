package syncer

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"driftq/internal/events"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// ConnectivitySource reports whether the remote endpoint is reachable.
type ConnectivitySource interface {
	Online() bool
}

// Monitor probes the remote health endpoint and publishes online/offline
// transitions on the event bus. While online it probes at a steady interval;
// while offline the re-probe spacing grows exponentially up to that interval.
// External runtime signals can be injected via SetOnline.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client
	bus      *events.EventBus
	logger   *zerolog.Logger
	online   atomic.Bool
}

func NewMonitor(probeURL string, interval, timeout time.Duration, bus *events.EventBus, logger *zerolog.Logger) *Monitor {
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		bus:      bus,
		logger:   logger,
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline injects an externally observed transition (e.g., a runtime
// online/offline signal) without waiting for the next probe.
func (m *Monitor) SetOnline(online bool) {
	m.update(online)
}

// Run probes until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.update(m.probe(ctx))

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = m.interval

	for {
		var wait time.Duration
		if m.online.Load() {
			wait = m.interval
			backoffCfg.Reset()
		} else {
			wait = backoffCfg.NextBackOff()
			if wait == backoff.Stop || wait > m.interval {
				wait = m.interval
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			m.update(m.probe(ctx))
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

func (m *Monitor) update(online bool) {
	prev := m.online.Swap(online)
	if prev == online {
		return
	}

	m.logger.Info().Bool("online", online).Msg("connectivity changed")
	_ = m.bus.PublishJSON(events.EventConnectivityChanged, events.ConnectivityPayload{Online: online})
}
