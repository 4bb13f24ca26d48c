package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/gatekeeper/internal/config"
	"github.com/phrazzld/gatekeeper/internal/mocks"
	"github.com/phrazzld/gatekeeper/internal/service/auth"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret-0123456789abcdef"

type testEnv struct {
	principals *mocks.MockPrincipalStore
	hasher     *mocks.MockHasher
	tokens     auth.TokenService
	service    auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := auth.NewTokenService(config.AuthConfig{
		JWTSecret:            testSecret,
		TokenLifetimeMinutes: 60,
		Issuer:               "gatekeeper",
	})
	require.NoError(t, err)

	env := &testEnv{
		principals: mocks.NewMockPrincipalStore(),
		hasher:     &mocks.MockHasher{},
		tokens:     tokens,
	}
	env.service, err = auth.NewService(env.principals, tokens, env.hasher, nil)
	require.NoError(t, err)
	return env
}

func jsonRequest(t *testing.T, method, path string, payload interface{}) *http.Request {
	t.Helper()
	var body bytes.Buffer
	switch v := payload.(type) {
	case nil:
	case string:
		body.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&body).Encode(v))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func parseExpiry(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}
