package models

import "time"

// PushSubscription is the addressable channel issued by the platform push
// service, mirrored on the remote registrar while valid.
type PushSubscription struct {
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

// SubscriptionState enumerates the subscription manager's state machine.
type SubscriptionState string

const (
	StateUnsupported      SubscriptionState = "unsupported"
	StateUnsubscribed     SubscriptionState = "unsubscribed"
	StatePermissionDenied SubscriptionState = "permission_denied"
	StateSubscribed       SubscriptionState = "subscribed"
)

// Permission is the platform notification permission grant.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notification is a single local notification payload.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
	Tag   string `json:"tag,omitempty"`
}
