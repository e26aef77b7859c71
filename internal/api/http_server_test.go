package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"driftq/internal/config"
	"driftq/internal/events"
	"driftq/internal/models"
	"driftq/internal/push"
	"driftq/internal/queue"
	"driftq/internal/store"
	"driftq/internal/syncer"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConnectivity struct{ online bool }

func (s *stubConnectivity) Online() bool { return s.online }

type stubDeliverer struct{}

func (stubDeliverer) Deliver(_ context.Context, actions []models.PendingAction) ([]int64, error) {
	ids := make([]int64, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

type stubCapability struct {
	supported  bool
	permission models.Permission
	granted    models.Permission
	current    *models.PushSubscription
}

func (s *stubCapability) Supported() bool { return s.supported }

func (s *stubCapability) Permission(context.Context) (models.Permission, error) {
	return s.permission, nil
}

func (s *stubCapability) RequestPermission(context.Context) (models.Permission, error) {
	return s.granted, nil
}

func (s *stubCapability) Subscribe(context.Context, string) (*models.PushSubscription, error) {
	sub := &models.PushSubscription{Endpoint: "https://push.example.com/ch/test", P256dh: "p", Auth: "a", CreatedAt: time.Now()}
	s.current = sub
	return sub, nil
}

func (s *stubCapability) Current(context.Context) (*models.PushSubscription, error) {
	return s.current, nil
}

func (s *stubCapability) Unsubscribe(context.Context) error {
	s.current = nil
	return nil
}

func (s *stubCapability) Notify(context.Context, models.Notification) error { return nil }

type stubRegistrar struct{}

func (stubRegistrar) Register(context.Context, *models.PushSubscription) error { return nil }
func (stubRegistrar) Unregister(context.Context, string) error                 { return nil }

func testConfig() config.Config {
	var cfg config.Config
	cfg.API.Enabled = true
	cfg.API.Port = 0
	return cfg
}

func setupServer(t *testing.T, cfg config.Config, capability push.Capability, degraded bool) *HTTPServer {
	t.Helper()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)

	var st *store.Store
	if degraded {
		st = store.Disabled(&logger)
	} else {
		var err error
		st, err = store.Open(filepath.Join(t.TempDir(), "driftq.db"), &logger)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
	}

	bus := events.NewEventBus()
	connectivity := &stubConnectivity{}
	coord := syncer.NewCoordinator(st, stubDeliverer{}, connectivity, bus, 10, time.Millisecond, models.DefaultSyncTag, &logger)
	q := queue.New(st, coord, connectivity, bus, &logger)
	require.NoError(t, q.Init(context.Background()))

	pm := push.NewManager(capability, stubRegistrar{}, "vapid-key", "", "", &logger)
	require.NoError(t, pm.Init(context.Background()))

	return NewHTTPServer(cfg, q, pm, &logger)
}

func doRequest(srv *HTTPServer, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStatusEndpoint(t *testing.T) {
	srv := setupServer(t, testConfig(), &stubCapability{}, false)

	rec := doRequest(srv, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["pending_count"])
	assert.Equal(t, false, body["is_syncing"])
	assert.Equal(t, false, body["online"])
	assert.Equal(t, string(models.StateUnsupported), body["subscription"])
}

func TestEnqueueAction(t *testing.T) {
	srv := setupServer(t, testConfig(), &stubCapability{}, false)

	rec := doRequest(srv, http.MethodPost, "/api/v1/actions", `{"payload":{"type":"create-record","id":7}}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	assert.Greater(t, body["id"].(float64), float64(0))
	assert.Equal(t, float64(1), body["pending_count"])
}

func TestEnqueueActionValidation(t *testing.T) {
	srv := setupServer(t, testConfig(), &stubCapability{}, false)

	rec := doRequest(srv, http.MethodPost, "/api/v1/actions", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/v1/actions", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/actions", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEnqueueActionDegradedStore(t *testing.T) {
	srv := setupServer(t, testConfig(), &stubCapability{}, true)

	rec := doRequest(srv, http.MethodPost, "/api/v1/actions", `{"payload":{"a":1}}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The rest of the surface still answers.
	rec = doRequest(srv, http.MethodGet, "/api/v1/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncEndpoint(t *testing.T) {
	srv := setupServer(t, testConfig(), &stubCapability{}, false)

	rec := doRequest(srv, http.MethodPost, "/api/v1/sync", "", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/sync", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	capability := &stubCapability{supported: true, permission: models.PermissionDefault, granted: models.PermissionGranted}
	srv := setupServer(t, testConfig(), capability, false)

	rec := doRequest(srv, http.MethodGet, "/api/v1/subscription", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.StateUnsubscribed), decodeBody(t, rec)["state"])

	rec = doRequest(srv, http.MethodPost, "/api/v1/subscription", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, string(push.OutcomeSubscribed), body["outcome"])
	assert.Equal(t, string(models.StateSubscribed), body["state"])

	rec = doRequest(srv, http.MethodGet, "/api/v1/subscription", "", nil)
	assert.Equal(t, "https://push.example.com/ch/test", decodeBody(t, rec)["endpoint"])

	rec = doRequest(srv, http.MethodDelete, "/api/v1/subscription", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(push.OutcomeUnsubscribed), decodeBody(t, rec)["outcome"])
}

func TestSubscriptionOutcomeStatusCodes(t *testing.T) {
	srv := setupServer(t, testConfig(), &stubCapability{}, false)

	// Unsupported platform maps to 501.
	rec := doRequest(srv, http.MethodPost, "/api/v1/subscription", "", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	// Unsubscribe with nothing subscribed maps to 409.
	rec = doRequest(srv, http.MethodDelete, "/api/v1/subscription", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Permission denial maps to 403.
	capability := &stubCapability{supported: true, permission: models.PermissionDefault, granted: models.PermissionDenied}
	srv = setupServer(t, testConfig(), capability, false)
	rec = doRequest(srv, http.MethodPost, "/api/v1/subscription", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubscriptionTestEndpoint(t *testing.T) {
	capability := &stubCapability{supported: true, permission: models.PermissionGranted, current: &models.PushSubscription{Endpoint: "e"}}
	srv := setupServer(t, testConfig(), capability, false)

	rec := doRequest(srv, http.MethodPost, "/api/v1/subscription/test", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["sent"])
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.API.Auth.Enabled = true
	cfg.API.Auth.Header = "X-API-Key"
	cfg.API.Auth.APIKeys = []string{"secret-key"}
	srv := setupServer(t, cfg, &stubCapability{}, false)

	rec := doRequest(srv, http.MethodGet, "/api/v1/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/status", "", http.Header{"X-Api-Key": []string{"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/status", "", http.Header{"X-Api-Key": []string{"secret-key"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open without a key.
	rec = doRequest(srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.API.RateLimit.RPS = 1
	cfg.API.RateLimit.Burst = 2
	srv := setupServer(t, cfg, &stubCapability{}, false)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := doRequest(srv, http.MethodGet, "/api/v1/status", "", nil)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestMetricsEndpointToggle(t *testing.T) {
	cfg := testConfig()
	cfg.Monitoring.PrometheusEnabled = true
	srv := setupServer(t, cfg, &stubCapability{}, false)

	rec := doRequest(srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	srv = setupServer(t, testConfig(), &stubCapability{}, false)
	rec = doRequest(srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
