package push

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"driftq/internal/models"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Registrar mirrors the local subscription on the remote server. Both calls
// are fire-and-forget from the manager's perspective: failures are logged,
// never retried automatically.
type Registrar interface {
	Register(ctx context.Context, sub *models.PushSubscription) error
	Unregister(ctx context.Context, endpoint string) error
}

// HTTPRegistrar talks to the remote registrar endpoint over JSON/HTTP.
type HTTPRegistrar struct {
	baseURL   string
	installID string
	client    *http.Client
	logger    *zerolog.Logger
}

func NewHTTPRegistrar(baseURL, installID string, timeout time.Duration, logger *zerolog.Logger) *HTTPRegistrar {
	return &HTTPRegistrar{
		baseURL:   baseURL,
		installID: installID,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type registerRequest struct {
	InstallationID string           `json:"installation_id"`
	Endpoint       string           `json:"endpoint"`
	Keys           subscriptionKeys `json:"keys"`
}

type subscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type unregisterRequest struct {
	InstallationID string `json:"installation_id"`
	Endpoint       string `json:"endpoint"`
}

func (r *HTTPRegistrar) Register(ctx context.Context, sub *models.PushSubscription) error {
	body := registerRequest{
		InstallationID: r.installID,
		Endpoint:       sub.Endpoint,
		Keys:           subscriptionKeys{P256dh: sub.P256dh, Auth: sub.Auth},
	}
	return r.post(ctx, http.MethodPost, body)
}

func (r *HTTPRegistrar) Unregister(ctx context.Context, endpoint string) error {
	return r.post(ctx, http.MethodDelete, unregisterRequest{
		InstallationID: r.installID,
		Endpoint:       endpoint,
	})
}

func (r *HTTPRegistrar) post(ctx context.Context, method string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode registrar request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+"/api/v1/subscriptions", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build registrar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("registrar call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("registrar returned status %d", resp.StatusCode)
	}
	return nil
}
