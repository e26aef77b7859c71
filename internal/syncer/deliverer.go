package syncer

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

// Deliverer transmits a batch of pending actions to the remote system and
// returns the ids the remote side acknowledged. A record may be removed from
// the store if and only if its id was acked.
type Deliverer interface {
	Deliver(ctx context.Context, actions []models.PendingAction) ([]int64, error)
}

// BackgroundSync registers interest in a named sync tag with the platform's
// background-delivery mechanism, so delivery can continue after the client
// suspends. Optional; registration failures are best-effort.
type BackgroundSync interface {
	RegisterTag(ctx context.Context, tag string) error
}

// HTTPDeliverer posts the batch inline to the remote delivery endpoint.
type HTTPDeliverer struct {
	baseURL   string
	installID string
	client    *http.Client
	logger    *zerolog.Logger
}

func NewHTTPDeliverer(baseURL, installID string, timeout time.Duration, logger *zerolog.Logger) *HTTPDeliverer {
	return &HTTPDeliverer{
		baseURL:   baseURL,
		installID: installID,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type deliveryRequest struct {
	InstallationID string                 `json:"installation_id"`
	Actions        []models.PendingAction `json:"actions"`
}

type deliveryResponse struct {
	Acked []int64 `json:"acked"`
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, actions []models.PendingAction) ([]int64, error) {
	raw, err := json.Marshal(deliveryRequest{InstallationID: d.installID, Actions: actions})
	if err != nil {
		return nil, fmt.Errorf("encode delivery batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/v1/actions/batch", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delivery call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("delivery endpoint returned status %d", resp.StatusCode)
	}

	var decoded deliveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode delivery response: %w", err)
	}
	return decoded.Acked, nil
}
