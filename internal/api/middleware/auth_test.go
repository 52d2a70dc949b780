package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/easel-api/internal/api/shared"
	"github.com/phrazzld/easel-api/internal/auth"
)

func newProtectedServer(t *testing.T) (*httptest.Server, auth.TokenService) {
	t.Helper()

	tokens, err := auth.NewTokenService("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)

	mw := NewAuthMiddleware(tokens)
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(shared.Operator(r.Context())))
	}))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, tokens
}

func doRequest(t *testing.T, url, authHeader string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	srv, _ := newProtectedServer(t)
	resp := doRequest(t, srv.URL, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_BadFormat(t *testing.T) {
	srv, tokens := newProtectedServer(t)

	token, err := tokens.GenerateToken(context.Background(), "ops")
	require.NoError(t, err)

	for _, header := range []string{"Basic abc", token, "Bearer"} {
		resp := doRequest(t, srv.URL, header)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, header)
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	srv, _ := newProtectedServer(t)
	resp := doRequest(t, srv.URL, "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_ValidToken(t *testing.T) {
	srv, tokens := newProtectedServer(t)

	token, err := tokens.GenerateToken(context.Background(), "ops")
	require.NoError(t, err)

	resp := doRequest(t, srv.URL, "Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
