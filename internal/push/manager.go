package push

import (
	"context"
	"sync"

	"driftq/internal/models"

	"github.com/rs/zerolog"
)

// Outcome is the typed result of a subscription operation. The manager never
// surfaces platform errors as faults; callers branch on the outcome.
type Outcome string

const (
	OutcomeSubscribed       Outcome = "subscribed"
	OutcomeUnsubscribed     Outcome = "unsubscribed"
	OutcomePermissionDenied Outcome = "permission_denied"
	OutcomeUnsupported      Outcome = "unsupported"
	OutcomeInvalidState     Outcome = "invalid_state"
	OutcomeBusy             Outcome = "busy"
	OutcomeFailed           Outcome = "failed"
)

// Manager drives the subscription state machine:
// Unsupported | Unsubscribed | PermissionDenied | Subscribed.
// Exactly one subscription is active per installation; operations are
// serialized, and a platform error reverts to the state held before the
// attempted transition.
type Manager struct {
	capability Capability
	registrar  Registrar
	logger     *zerolog.Logger
	vapidKey   string
	icon       string
	badge      string

	mu    sync.Mutex
	busy  bool
	state models.SubscriptionState
	sub   *models.PushSubscription
}

func NewManager(capability Capability, registrar Registrar, vapidKey, icon, badge string, logger *zerolog.Logger) *Manager {
	return &Manager{
		capability: capability,
		registrar:  registrar,
		logger:     logger,
		vapidKey:   vapidKey,
		icon:       icon,
		badge:      badge,
		state:      models.StateUnsupported,
	}
}

// Init computes the initial state by probing platform capability, the
// existing subscription, and the current permission grant. Called once at
// startup; Refresh re-runs the same probe on demand.
func (m *Manager) Init(ctx context.Context) error {
	return m.Refresh(ctx)
}

func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.capability.Supported() {
		m.state = models.StateUnsupported
		m.sub = nil
		return nil
	}

	perm, err := m.capability.Permission(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("push: permission probe failed")
		m.state = models.StateUnsubscribed
		m.sub = nil
		return err
	}

	if perm == models.PermissionDenied {
		m.state = models.StatePermissionDenied
		m.sub = nil
		return nil
	}

	sub, err := m.capability.Current(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("push: subscription probe failed")
		m.state = models.StateUnsubscribed
		m.sub = nil
		return err
	}

	if sub != nil && perm == models.PermissionGranted {
		m.state = models.StateSubscribed
		m.sub = sub
	} else {
		m.state = models.StateUnsubscribed
		m.sub = nil
	}
	return nil
}

// State returns the current machine state.
func (m *Manager) State() models.SubscriptionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscription returns the active subscription, nil unless Subscribed.
func (m *Manager) Subscription() *models.PushSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub == nil {
		return nil
	}
	copied := *m.sub
	return &copied
}

// Subscribe requests permission, creates the platform subscription, and
// registers it remotely. Valid from Unsubscribed or PermissionDenied.
// A concurrent attempt while one is in flight is rejected with OutcomeBusy.
func (m *Manager) Subscribe(ctx context.Context) Outcome {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return OutcomeBusy
	}
	switch m.state {
	case models.StateUnsupported:
		m.mu.Unlock()
		return OutcomeUnsupported
	case models.StateSubscribed:
		m.mu.Unlock()
		return OutcomeInvalidState
	}
	prev := m.state
	m.busy = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	perm, err := m.capability.RequestPermission(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("push: permission request failed")
		m.setState(prev, nil)
		return OutcomeFailed
	}

	if perm != models.PermissionGranted {
		// No platform subscription is created and the registrar is not
		// contacted; the user may grant later.
		m.setState(models.StatePermissionDenied, nil)
		return OutcomePermissionDenied
	}

	sub, err := m.capability.Subscribe(ctx, m.vapidKey)
	if err != nil || sub == nil {
		m.logger.Error().Err(err).Msg("push: platform subscribe failed")
		m.setState(prev, nil)
		return OutcomeFailed
	}

	// The local subscription is authoritative; the remote mirror is
	// best-effort and a failure does not roll it back.
	if err := m.registrar.Register(ctx, sub); err != nil {
		m.logger.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("push: remote mirror registration failed")
	}

	m.setState(models.StateSubscribed, sub)
	return OutcomeSubscribed
}

// Unsubscribe cancels the platform subscription and asks the registrar to
// drop its record. Valid from Subscribed only.
func (m *Manager) Unsubscribe(ctx context.Context) Outcome {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return OutcomeBusy
	}
	if m.state != models.StateSubscribed {
		m.mu.Unlock()
		return OutcomeInvalidState
	}
	endpoint := ""
	if m.sub != nil {
		endpoint = m.sub.Endpoint
	}
	m.busy = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	if err := m.capability.Unsubscribe(ctx); err != nil {
		m.logger.Error().Err(err).Msg("push: platform unsubscribe failed")
		return OutcomeFailed
	}

	if endpoint != "" {
		if err := m.registrar.Unregister(ctx, endpoint); err != nil {
			m.logger.Error().Err(err).Str("endpoint", endpoint).Msg("push: remote mirror removal failed")
		}
	}

	m.setState(models.StateUnsubscribed, nil)
	return OutcomeUnsubscribed
}

// SendLocalTest emits one immediate local notification. No state transition;
// reported as false (not an error) when permission is not granted.
func (m *Manager) SendLocalTest(ctx context.Context) bool {
	m.mu.Lock()
	supported := m.state != models.StateUnsupported
	m.mu.Unlock()
	if !supported {
		return false
	}

	perm, err := m.capability.Permission(ctx)
	if err != nil || perm != models.PermissionGranted {
		m.logger.Warn().Msg("push: test notification skipped, permission not granted")
		return false
	}

	n := models.Notification{
		Title: "Test notification",
		Body:  "Push notifications are working.",
		Icon:  m.icon,
		Badge: m.badge,
		Tag:   "driftq-test",
	}
	if err := m.capability.Notify(ctx, n); err != nil {
		m.logger.Error().Err(err).Msg("push: local notification failed")
		return false
	}
	return true
}

func (m *Manager) setState(state models.SubscriptionState, sub *models.PushSubscription) {
	m.mu.Lock()
	m.state = state
	m.sub = sub
	m.mu.Unlock()
}
