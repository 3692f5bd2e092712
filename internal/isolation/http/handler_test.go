package isolationhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/helpdesk/internal/authz"
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/isolation"
)

type stubInspector struct {
	policies map[string]isolation.TablePolicy
	err      error
}

func (s stubInspector) InspectTable(ctx context.Context, table string) (isolation.TablePolicy, error) {
	if s.err != nil {
		return isolation.TablePolicy{}, s.err
	}
	return s.policies[table], nil
}

func enforced() isolation.TablePolicy {
	return isolation.TablePolicy{Exists: true, RLSEnabled: true, RLSForced: true, HasPolicy: true}
}

func serve(t *testing.T, inspector isolation.Inspector, claims *identity.Claims) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	NewHandler(nil, authz.NewEngine(nil, nil), inspector, []string{"tickets", "assets"}).MountRoutes(router)
	req := httptest.NewRequest(http.MethodGet, "/isolation", nil)
	if claims != nil {
		req = req.WithContext(identity.ContextWithClaims(req.Context(), *claims))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

var globalAdmin = &identity.Claims{ActorID: "GA1", Role: identity.RoleGlobalAdmin}

func TestIsolationReportHealthy(t *testing.T) {
	rr := serve(t, stubInspector{policies: map[string]isolation.TablePolicy{"tickets": enforced(), "assets": enforced()}}, globalAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["healthy"])
	assert.Len(t, body["tables"], 2)
}

func TestIsolationReportFailing(t *testing.T) {
	broken := enforced()
	broken.HasPolicy = false
	rr := serve(t, stubInspector{policies: map[string]isolation.TablePolicy{"tickets": enforced(), "assets": broken}}, globalAdmin)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, false, body["healthy"])
	assert.Equal(t, []any{"assets"}, body["failing"])
}

func TestIsolationReportInspectorError(t *testing.T) {
	rr := serve(t, stubInspector{err: errors.New("catalog unavailable")}, globalAdmin)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestIsolationReportGlobalAdminOnly(t *testing.T) {
	ta := &identity.Claims{ActorID: "TA1", Role: identity.RoleTenantAdmin, TenantID: identity.TenantRef("T1")}
	rr := serve(t, stubInspector{}, ta)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(t, stubInspector{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
