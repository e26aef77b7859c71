// Package push owns the lifecycle of the single platform push subscription
// and its best-effort mirror on the remote registrar.
package push

import (
	"context"

	"driftq/internal/models"
)

// Capability abstracts the platform push service so the manager can be
// exercised against a fake. Implementations wrap whatever the host runtime
// provides (browser push manager, OS notification service, none).
type Capability interface {
	// Supported reports whether the platform offers push at all.
	Supported() bool

	// Permission returns the current notification grant without prompting.
	Permission(ctx context.Context) (models.Permission, error)

	// RequestPermission prompts the user and returns the resulting grant.
	RequestPermission(ctx context.Context) (models.Permission, error)

	// Subscribe creates a platform subscription using the application-wide
	// public key.
	Subscribe(ctx context.Context, vapidPublicKey string) (*models.PushSubscription, error)

	// Current returns the active subscription, or nil when none exists.
	Current(ctx context.Context) (*models.PushSubscription, error)

	// Unsubscribe cancels the active platform subscription.
	Unsubscribe(ctx context.Context) error

	// Notify delivers one immediate local notification.
	Notify(ctx context.Context, n models.Notification) error
}

// unsupportedCapability is the wiring default for hosts without a push
// service; the manager reports Unsupported and every feature stays disabled.
type unsupportedCapability struct{}

// NewUnsupportedCapability returns a capability that reports no push support.
func NewUnsupportedCapability() Capability {
	return unsupportedCapability{}
}

func (unsupportedCapability) Supported() bool { return false }

func (unsupportedCapability) Permission(context.Context) (models.Permission, error) {
	return models.PermissionDefault, nil
}

func (unsupportedCapability) RequestPermission(context.Context) (models.Permission, error) {
	return models.PermissionDefault, nil
}

func (unsupportedCapability) Subscribe(context.Context, string) (*models.PushSubscription, error) {
	return nil, nil
}

func (unsupportedCapability) Current(context.Context) (*models.PushSubscription, error) {
	return nil, nil
}

func (unsupportedCapability) Unsubscribe(context.Context) error { return nil }

func (unsupportedCapability) Notify(context.Context, models.Notification) error { return nil }
