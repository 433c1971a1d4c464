package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/tcpa-compliance-engine/internal/api/rest"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/config"
)

const testSecret = "app-test-secret"

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Environment = "test"
	cfg.Security.JWTSecret = testSecret
	return cfg
}

func get(t *testing.T, srv *httptest.Server, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func issue(t *testing.T, tenantID uuid.UUID) string {
	t.Helper()
	token, err := rest.IssueToken(testSecret, tenantID, "ops@example.com", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	return token
}

func TestNewInMemory(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	require.NotNil(t, a.Store)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	assert.Equal(t, http.StatusOK, get(t, srv, "/healthz", "").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, srv, "/health", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv, "/v1/compliance/config", "").StatusCode)

	tenantID := uuid.New()
	resp := get(t, srv, "/v1/compliance/config", issue(t, tenantID))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			TenantID       uuid.UUID `json:"tenant_id"`
			ComplianceMode string    `json:"compliance_mode"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, tenantID, body.Data.TenantID)
	assert.Equal(t, 1, a.Store.ConfigCount())

	report, err := a.Sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TenantsScanned)

	metrics := get(t, srv, "/metrics", "")
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	tenantID := uuid.New()
	resp := get(t, srv, "/v1/compliance/config", issue(t, tenantID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, mr.Exists("tcpa:config:"+tenantID.String()), "config should be cached")

	status := a.Health.Check(context.Background())
	assert.Equal(t, "healthy", status.Checks["redis"])

	report, err := a.Sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TenantsScanned)
	assert.Zero(t, report.TenantsSkipped)
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.URL = "redis://127.0.0.1:1"
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
