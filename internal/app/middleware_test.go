package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/session"
)

type stubClaims struct {
	claims map[string]identity.Claims
	err    error
}

func (s stubClaims) Load(_ context.Context, actorID string) (identity.Claims, error) {
	if s.err != nil {
		return identity.Claims{}, s.err
	}
	claims, ok := s.claims[actorID]
	if !ok {
		return identity.Claims{}, identity.ErrInvalidIdentity
	}
	return claims, nil
}

func newSessionStore(t *testing.T) *session.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewStore(client, "", time.Hour)
}

func echoClaims() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := identity.ClaimsFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(claims.ActorID))
	})
}

func TestAuthenticateBearerToken(t *testing.T) {
	store := newSessionStore(t)
	token, err := store.Put(context.Background(), "TA1")
	require.NoError(t, err)

	loader := stubClaims{claims: map[string]identity.Claims{
		"TA1": {ActorID: "TA1", Role: identity.RoleTenantAdmin, TenantID: identity.TenantRef("T1")},
	}}
	handler := Authenticate(store, loader, "helpdesk_session", nil)(echoClaims())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "TA1", rr.Body.String())
}

func TestAuthenticateSessionCookie(t *testing.T) {
	store := newSessionStore(t)
	token, err := store.Put(context.Background(), "U1")
	require.NoError(t, err)

	loader := stubClaims{claims: map[string]identity.Claims{
		"U1": {ActorID: "U1", Role: identity.RoleUser, TenantID: identity.TenantRef("T1")},
	}}
	handler := Authenticate(store, loader, "helpdesk_session", nil)(echoClaims())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "helpdesk_session", Value: token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "U1", rr.Body.String())
}

func TestAuthenticateRejects(t *testing.T) {
	store := newSessionStore(t)
	token, err := store.Put(context.Background(), "GHOST")
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		loader stubClaims
		status int
	}{
		"missing token":   {status: http.StatusUnauthorized},
		"non bearer":      {header: "Basic abc", status: http.StatusUnauthorized},
		"unknown session": {header: "Bearer nope", status: http.StatusUnauthorized},
		"unknown actor":   {header: "Bearer " + token, status: http.StatusUnauthorized},
		"loader failure": {
			header: "Bearer " + token,
			loader: stubClaims{err: errors.New("db down")},
			status: http.StatusInternalServerError,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			handler := Authenticate(store, tc.loader, "helpdesk_session", nil)(echoClaims())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestAuthenticateRejectsMalformedClaims(t *testing.T) {
	store := newSessionStore(t)
	token, err := store.Put(context.Background(), "A1")
	require.NoError(t, err)

	// An agent without a tenant is structurally invalid.
	loader := stubClaims{claims: map[string]identity.Claims{
		"A1": {ActorID: "A1", Role: identity.RoleAgent},
	}}
	handler := Authenticate(store, loader, "", nil)(echoClaims())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareStackSetsSecureHeaders(t *testing.T) {
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	stack := MiddlewareStack(MiddlewareConfig{Config: &Config{RateLimitPerMinute: 10}})
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}
