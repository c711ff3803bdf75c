package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/turtacn/credcore/internal/application"
	"github.com/turtacn/credcore/internal/application/service"
	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/models"
	domainService "github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/audit"
	"github.com/turtacn/credcore/internal/infrastructure/cache"
	"github.com/turtacn/credcore/internal/infrastructure/crypto"
	"github.com/turtacn/credcore/internal/infrastructure/directory"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/internal/infrastructure/persistence/memory"
	"github.com/turtacn/credcore/internal/infrastructure/ratelimit"
	"github.com/turtacn/credcore/internal/interfaces/http/handlers"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/logger"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return assert.AnError }

func newTestRouter(t *testing.T, checks map[string]handlers.Pinger) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNoopLogger()

	pemA, err := crypto.GenerateRSAKeyPEM(2048)
	require.NoError(t, err)
	holder, err := crypto.NewKeyringHolder(&models.KeySet{
		Keys:      map[string]models.SigningKey{"A": {Kid: "A", Algorithm: constants.AlgRS256, Material: pemA}},
		ActiveKid: "A",
		Version:   1,
	})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	require.NoError(t, err)
	dir, err := directory.NewStaticDirectory([]config.UserConfig{
		{Username: "alice", PasswordHash: string(hash), Subject: "user-1", Roles: []string{"reader"}},
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	ledger := domainService.NewRefreshTokenLedger(memory.NewRefreshTokenStore(), log)
	limiter, err := ratelimit.NewSlidingWindowLimiter(ratelimit.NewMemoryBucketStore(),
		ratelimit.Config{MaxAttempts: 3, Window: time.Minute}, log)
	require.NoError(t, err)

	authService := service.NewAuthAppService(
		crypto.NewJWTManager(holder, ledger, log), ledger, dir, dir, limiter,
		audit.NewLogAuditService(log),
		service.AuthConfig{AccessTTL: 15 * time.Minute, RefreshTTL: time.Hour},
		log, service.WithAuthMetrics(metrics),
	)
	publisher := application.NewJWKSPublisher(holder, cache.NewJWKSCache(), 5*time.Minute, log)

	cfg := config.ServerConfig{Mode: gin.TestMode}
	return NewRouter(cfg, log, authService, publisher, handlers.NewHealthHandler(checks, log), metrics, reg)
}

func do(t *testing.T, r *Router, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	return w
}

func TestRouter_JWKSDocument(t *testing.T) {
	r := newTestRouter(t, nil)

	w := do(t, r, http.MethodGet, "/.well-known/jwks.json", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var doc models.JWKS
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "A", doc.Keys[0].Kid)
	assert.Equal(t, "RSA", doc.Keys[0].Kty)

	w = do(t, r, http.MethodGet, "/.well-known/jwks.json", nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestRouter_LoginRefreshLogout(t *testing.T) {
	r := newTestRouter(t, nil)

	w := do(t, r, http.MethodPost, "/auth/login", map[string]string{"username": "alice", "password": "correct"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tokens map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))
	access := tokens["access_token"].(string)
	refresh := tokens["refresh_token"].(string)
	assert.Equal(t, "Bearer", tokens["token_type"])

	w = do(t, r, http.MethodGet, "/auth/userinfo", nil, map[string]string{"Authorization": "Bearer " + access})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sub":"user-1"`)

	w = do(t, r, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": refresh}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
}

func TestRouter_FailuresAreIndistinguishable(t *testing.T) {
	r := newTestRouter(t, nil)

	bodies := []*httptest.ResponseRecorder{
		do(t, r, http.MethodGet, "/auth/userinfo", nil, nil),
		do(t, r, http.MethodGet, "/auth/userinfo", nil, map[string]string{"Authorization": "Bearer not.a.jwt"}),
		do(t, r, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": "unknown"}, nil),
		do(t, r, http.MethodPost, "/auth/login", map[string]string{"username": "alice", "password": "wrong"}, nil),
		do(t, r, http.MethodPost, "/auth/login", map[string]string{"username": "nobody", "password": "wrong"}, nil),
	}
	for i, w := range bodies {
		assert.Equal(t, http.StatusUnauthorized, w.Code, "case %d", i)
		assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String(), "case %d", i)
	}
}

func TestRouter_LoginRateLimited(t *testing.T) {
	r := newTestRouter(t, nil)
	creds := map[string]string{"username": "alice", "password": "wrong"}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPost, "/auth/login", creds, nil).Code)
	}
	w := do(t, r, http.MethodPost, "/auth/login", creds, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate_limited"}`, w.Body.String())
}

func TestRouter_BadRequest(t *testing.T) {
	r := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid_argument"}`, w.Body.String())
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, nil)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/live", nil, nil).Code)

	do(t, r, http.MethodPost, "/auth/login", map[string]string{"username": "alice", "password": "correct"}, nil)
	w := do(t, r, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `credcore_logins_total{result="success"} 1`)

	unhealthy := newTestRouter(t, map[string]handlers.Pinger{"redis": failingPinger{}})
	w = do(t, unhealthy, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unavailable"`)
}
