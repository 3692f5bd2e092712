package authzhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/helpdesk/internal/authz"
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/permissions"
)

func newRouter() http.Handler {
	router := chi.NewRouter()
	NewHandler(nil, authz.NewEngine(nil, nil)).MountRoutes(router)
	return router
}

func request(method, target, body string, claims *identity.Claims) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if claims != nil {
		req = req.WithContext(identity.ContextWithClaims(req.Context(), *claims))
	}
	return req
}

func agentU9(matrix permissions.Matrix) *identity.Claims {
	return &identity.Claims{ActorID: "U9", Role: identity.RoleAgent, TenantID: identity.TenantRef("T1"), Permissions: &matrix}
}

func decideBody(t *testing.T, rr *httptest.ResponseRecorder) decisionResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body decisionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestDecisionEndpointReportsOutcome(t *testing.T) {
	router := newRouter()
	claims := agentU9(permissions.Matrix{CanResetPasswords: true})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, request(http.MethodPost, "/decisions",
		`{"action":"user.reset_password","resource":{"ownerTenantId":"T1","targetRole":"USER","kind":"actor","id":"C1"}}`, claims))
	body := decideBody(t, rr)
	assert.True(t, body.Allowed)
	assert.Empty(t, body.Reason)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, request(http.MethodPost, "/decisions",
		`{"action":"user.reset_password","resource":{"ownerTenantId":"T1","targetRole":"TENANT_ADMIN","kind":"actor","id":"TA1"}}`, claims))
	body = decideBody(t, rr)
	assert.False(t, body.Allowed)
	assert.Equal(t, "RoleInsufficient", body.Reason)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, request(http.MethodPost, "/decisions",
		`{"action":"category.delete","resource":{"ownerTenantId":"T1","kind":"category"}}`, claims))
	body = decideBody(t, rr)
	assert.Equal(t, "CapabilityMissing", body.Reason)
}

func TestDecisionEndpointCrossTenant(t *testing.T) {
	claims := &identity.Claims{ActorID: "TA1", Role: identity.RoleTenantAdmin, TenantID: identity.TenantRef("T1")}
	rr := httptest.NewRecorder()
	newRouter().ServeHTTP(rr, request(http.MethodPost, "/decisions",
		`{"action":"ticket.view","resource":{"ownerTenantId":"T2","kind":"ticket","id":"X"}}`, claims))
	body := decideBody(t, rr)
	assert.False(t, body.Allowed)
	assert.Equal(t, "TenantMismatch", body.Reason)
}

func TestDecisionEndpointUnknownActionFailsClosed(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter().ServeHTTP(rr, request(http.MethodPost, "/decisions",
		`{"action":"ticket.teleport","resource":{}}`, &identity.Claims{ActorID: "GA1", Role: identity.RoleGlobalAdmin}))
	body := decideBody(t, rr)
	assert.False(t, body.Allowed)
	assert.Equal(t, "RoleInsufficient", body.Reason)
}

func TestDecisionEndpointValidation(t *testing.T) {
	claims := &identity.Claims{ActorID: "GA1", Role: identity.RoleGlobalAdmin}
	for _, body := range []string{
		`{"resource":{}}`,
		`{"action":"ticket.view","resource":{"targetRole":"ROOT"}}`,
		`{"action":"ticket.view","resource":{"ownerTenantId":""}}`,
		`{"action":"ticket.view","claims":{}}`,
	} {
		rr := httptest.NewRecorder()
		newRouter().ServeHTTP(rr, request(http.MethodPost, "/decisions", body, claims))
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestEndpointsRequireClaims(t *testing.T) {
	for _, tc := range []struct{ method, target string }{
		{http.MethodPost, "/decisions"},
		{http.MethodGet, "/scope"},
		{http.MethodPost, "/tenant-stamp"},
	} {
		rr := httptest.NewRecorder()
		newRouter().ServeHTTP(rr, request(tc.method, tc.target, `{}`, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, tc.target)
	}
}

func TestScopeEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter().ServeHTTP(rr, request(http.MethodGet, "/scope", "", &identity.Claims{ActorID: "GA1", Role: identity.RoleGlobalAdmin, TenantID: identity.TenantRef("T3")}))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"unrestricted":true}`, rr.Body.String())

	rr = httptest.NewRecorder()
	newRouter().ServeHTTP(rr, request(http.MethodGet, "/scope", "", agentU9(permissions.Matrix{})))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"unrestricted":false,"tenantId":"T1"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	newRouter().ServeHTTP(rr, request(http.MethodGet, "/scope", "", &identity.Claims{ActorID: "C1", Role: identity.RoleUser}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTenantStamp(t *testing.T) {
	ga := &identity.Claims{ActorID: "GA1", Role: identity.RoleGlobalAdmin}
	ta := &identity.Claims{ActorID: "TA1", Role: identity.RoleTenantAdmin, TenantID: identity.TenantRef("T1")}

	cases := []struct {
		name   string
		claims *identity.Claims
		body   string
		status int
		tenant string
	}{
		{"tenant admin own tenant", ta, `{}`, http.StatusOK, "T1"},
		{"tenant admin explicit own", ta, `{"explicitTenantId":"T1"}`, http.StatusOK, "T1"},
		{"tenant admin explicit other", ta, `{"explicitTenantId":"T2"}`, http.StatusNotFound, ""},
		{"global admin provisioning", ga, `{"explicitTenantId":"T9"}`, http.StatusOK, "T9"},
		{"global admin without tenant", ga, `{}`, http.StatusBadRequest, ""},
		{"blank explicit", ta, `{"explicitTenantId":"  "}`, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newRouter().ServeHTTP(rr, request(http.MethodPost, "/tenant-stamp", tc.body, tc.claims))
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			if tc.tenant != "" {
				var body tenantStampResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, tc.tenant, body.TenantID)
			}
		})
	}
}

func TestTenantStampAgentCannotProvision(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter().ServeHTTP(rr, request(http.MethodPost, "/tenant-stamp", `{"explicitTenantId":"T9"}`, agentU9(permissions.Matrix{})))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
