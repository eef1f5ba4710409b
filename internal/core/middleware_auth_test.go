package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexquota/internal/config"
	"lexquota/internal/types"
)

const testServiceToken = "test-token-0123456789abcdef"

func newAuthTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Security: config.SecurityConfig{ServiceToken: testServiceToken},
	}
	srv, err := NewServer(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return srv
}

func TestServiceAuthRejectsMissingToken(t *testing.T) {
	srv := newAuthTestServer(t)
	handler := srv.ServiceAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/users/user-1/credits", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeAuthTokenMissing), resp.Error.Code)
}

func TestServiceAuthRejectsInvalidToken(t *testing.T) {
	srv := newAuthTestServer(t)
	handler := srv.ServiceAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/users/user-1/credits", nil)
	req.Header.Set(HeaderServiceToken, "wrong-token-0123456789abcdef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeAuthTokenInvalid), resp.Error.Code)
}

func TestServiceAuthInjectsKnownCaller(t *testing.T) {
	srv := newAuthTestServer(t)

	var gotCaller types.CallerService
	handler := srv.ServiceAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = types.GetCaller(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/users/user-1/credits", nil)
	req.Header.Set(HeaderServiceToken, testServiceToken)
	req.Header.Set(HeaderServiceName, string(types.CallerAI))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.CallerAI, gotCaller)
}

func TestServiceAuthUnknownCallerStillPasses(t *testing.T) {
	srv := newAuthTestServer(t)

	var gotCaller types.CallerService
	handler := srv.ServiceAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = types.GetCaller(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/users/user-1/credits", nil)
	req.Header.Set(HeaderServiceToken, testServiceToken)
	req.Header.Set(HeaderServiceName, "billing-service")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.CallerUnknown, gotCaller)
}

func TestServiceAuthExemptsHealthEndpoint(t *testing.T) {
	srv := newAuthTestServer(t)
	handler := srv.ServiceAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
