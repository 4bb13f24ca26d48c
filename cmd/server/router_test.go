package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/gatekeeper/internal/api"
	"github.com/phrazzld/gatekeeper/internal/config"
	"github.com/phrazzld/gatekeeper/internal/domain"
	"github.com/phrazzld/gatekeeper/internal/mocks"
	"github.com/phrazzld/gatekeeper/internal/ratelimit"
	"github.com/phrazzld/gatekeeper/internal/service/auth"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "debug"},
		Auth: config.AuthConfig{
			JWTSecret:            "router-test-signing-secret-0123456789",
			TokenLifetimeMinutes: 60,
			Issuer:               "gatekeeper",
			BcryptCost:           4,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:         true,
			Capacity:        100,
			RefillTokens:    100,
			RefillPeriod:    time.Second,
			FailurePolicy:   config.FailOpen,
			StoreTimeout:    time.Second,
			MaxCASAttempts:  100,
			KeyPrefix:       "test:bucket",
			BreakerFailures: 3,
			BreakerCooldown: time.Minute,
		},
	}
}

type testServer struct {
	app        *application
	handler    http.Handler
	principals *mocks.MockPrincipalStore
	redis      *miniredis.Miniredis
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	app := &application{
		config:   cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: prometheus.NewRegistry(),
	}
	principals := mocks.NewMockPrincipalStore()
	require.NoError(t, app.wire(principals, ratelimit.NewRedisStore(client, cfg.RateLimit.MaxCASAttempts)))

	return &testServer{
		app:        app,
		handler:    app.setupRouter(),
		principals: principals,
		redis:      mr,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
		body = &buf
	}
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "192.0.2.10:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestEndToEndRegisterThenAccessProtectedEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/register", "",
		map[string]string{"email": "a@x.com", "password": "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var session api.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)

	// With the token the request is authenticated.
	rec = srv.do(t, http.MethodGet, "/api/v1/me", session.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me api.MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "a@x.com", me.Email)
	assert.Equal(t, domain.RoleUser, me.Role)
	assert.Equal(t, []string{"ROLE_USER"}, me.Authorities)

	// Without it the gate lets the request through and authorization rejects it.
	rec = srv.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication required")

	// A garbled token behaves like no token.
	rec = srv.do(t, http.MethodGet, "/api/v1/me", session.Token+"garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Public endpoints stay reachable with a garbled header.
	rec = srv.do(t, http.MethodPost, "/api/v1/auth/login", "garbage",
		map[string]string{"email": "a@x.com", "password": "secret123"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateAlias(t *testing.T) {
	srv := newTestServer(t, testConfig())
	srv.do(t, http.MethodPost, "/api/v1/auth/register", "",
		map[string]string{"email": "a@x.com", "password": "secret123"})

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/authenticate", "",
		map[string]string{"email": "a@x.com", "password": "secret123"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/authenticate", "",
		map[string]string{"email": "a@x.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	srv := newTestServer(t, testConfig())

	admin, err := domain.NewPrincipal("root@x.com", "unused", domain.RoleAdmin)
	require.NoError(t, err)
	srv.principals.Add(admin)
	adminToken := issueToken(t, srv, admin)

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/register", "",
		map[string]string{"email": "user@x.com", "password": "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var userAuth api.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &userAuth))

	t.Run("anonymous list", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/v1/users", "", nil).Code)
	})

	t.Run("user list", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/api/v1/users", userAuth.Token, nil).Code)
	})

	t.Run("admin create and list", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/v1/users", adminToken,
			map[string]string{"email": "ops@x.com", "password": "secret123", "role": "ADMIN", "first_name": "Op"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = srv.do(t, http.MethodGet, "/api/v1/users", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var users []api.UserResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		assert.Len(t, users, 3)
	})

	t.Run("disabled admin loses access", func(t *testing.T) {
		disabled, err := domain.NewPrincipal("gone@x.com", "unused", domain.RoleAdmin)
		require.NoError(t, err)
		disabled.Enabled = false
		srv.principals.Add(disabled)

		rec := srv.do(t, http.MethodGet, "/api/v1/users", issueToken(t, srv, disabled), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func issueToken(t *testing.T, srv *testServer, p *domain.Principal) string {
	t.Helper()
	tokens, err := auth.NewTokenService(srv.app.config.Auth)
	require.NoError(t, err)
	issued, err := tokens.Issue(context.Background(), p)
	require.NoError(t, err)
	return issued.Token
}

func TestRateLimitedRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Capacity = 3
	cfg.RateLimit.RefillTokens = 1
	cfg.RateLimit.RefillPeriod = time.Minute
	srv := newTestServer(t, cfg)

	for i := 0; i < 3; i++ {
		rec := srv.do(t, http.MethodGet, "/api/v1/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("RateLimit-Limit"))
	}

	rec := srv.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Operational endpoints are not rate limited.
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.True(t, srv.redis.Exists("test:bucket:ip:192.0.2.10"))

	// Buckets expire once a full refill would have happened.
	assert.Equal(t, ratelimit.Policy{Capacity: 3, RefillTokens: 1, RefillPeriod: time.Minute}, srv.app.limiter.Policy())
	assert.Equal(t, 3*time.Minute, srv.redis.TTL("test:bucket:ip:192.0.2.10"))
}

func TestRateLimitStoreOutageFailsOpen(t *testing.T) {
	srv := newTestServer(t, testConfig())
	srv.redis.Close()

	for i := 0; i < 5; i++ {
		rec := srv.do(t, http.MethodPost, "/api/v1/auth/register", "",
			map[string]string{"email": "a@x.com", "password": "with-store-down"})
		if i == 0 {
			assert.Equal(t, http.StatusCreated, rec.Code)
		} else {
			assert.Equal(t, http.StatusConflict, rec.Code)
		}
		assert.Empty(t, rec.Header().Get("RateLimit-Remaining"))
	}
}

func TestRateLimitStoreOutageFailsClosed(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.FailurePolicy = config.FailClosed
	srv := newTestServer(t, cfg)
	srv.redis.Close()

	rec := srv.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = false
	app := &application{
		config:   cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: prometheus.NewRegistry(),
	}
	require.NoError(t, app.wire(mocks.NewMockPrincipalStore(), nil))
	assert.Nil(t, app.limiter)

	rec := httptest.NewRecorder()
	app.setupRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("RateLimit-Limit"))
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := srv.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"redis":"ok"}`, rec.Body.String())

	srv.app.readiness = append(srv.app.readiness, readinessCheck{
		name:  "database",
		check: func(context.Context) error { return errors.New("connection refused") },
	})
	rec = srv.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"redis":"ok","database":"unavailable"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())
	srv.do(t, http.MethodGet, "/api/v1/me", "", nil)

	rec := srv.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `gatekeeper_ratelimit_decisions_total{outcome="allowed"} 1`), body)
	assert.True(t, strings.Contains(body, `gatekeeper_auth_gate_total{outcome="no_token"} 1`), body)
}

func TestTraceIDHeader(t *testing.T) {
	srv := newTestServer(t, testConfig())
	rec := srv.do(t, http.MethodGet, "/api/v1/me", "", nil)
	traceID := rec.Header().Get("X-Trace-ID")
	require.NotEmpty(t, traceID)
	assert.Contains(t, rec.Body.String(), traceID)
}

func TestNewApplicationRequiresDependencies(t *testing.T) {
	_, err := newApplication(testConfig(), slog.Default(), nil, nil)
	assert.Error(t, err)
}
