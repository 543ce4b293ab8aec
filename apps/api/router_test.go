package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tourdesk/tourdesk-saas/contracts"
	recordshandler "github.com/tourdesk/tourdesk-saas/domains/records/be/handler"
	recordsservice "github.com/tourdesk/tourdesk-saas/domains/records/be/service"
	tenantconfighandler "github.com/tourdesk/tourdesk-saas/domains/tenantconfig/be/handler"
	tenantconfigservice "github.com/tourdesk/tourdesk-saas/domains/tenantconfig/be/service"
	usershandler "github.com/tourdesk/tourdesk-saas/domains/users/be/handler"
	usersservice "github.com/tourdesk/tourdesk-saas/domains/users/be/service"
	platformauth "github.com/tourdesk/tourdesk-saas/platform/go/auth"
	"github.com/tourdesk/tourdesk-saas/platform/go/auth/devtoken"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/requesttrace"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

const testSecret = "router-test-secret-with-enough-entropy"

type memberships map[string]persistence.AppUser

func (m memberships) GetUserByAuthID(_ context.Context, authUserID, tenantID string) (persistence.AppUser, bool) {
	u, ok := m[tenantID+":"+authUserID]
	return u, ok
}

type emptyUsers struct{}

func (emptyUsers) List(context.Context, usersservice.ListOptions) (usersservice.ListResult, error) {
	return usersservice.ListResult{Users: []usersservice.User{}, Page: 1, PageSize: 20}, nil
}

func (emptyUsers) Create(context.Context, requesttrace.AuditInfo, usersservice.CreateInput) (usersservice.User, error) {
	return usersservice.User{}, errors.New("not implemented")
}

func (emptyUsers) Deactivate(context.Context, requesttrace.AuditInfo, uuid.UUID) (usersservice.User, error) {
	return usersservice.User{}, usersservice.ErrNotFound
}

func writeTenant(t *testing.T, root, clientID, body string) {
	t.Helper()
	dir := filepath.Join(root, clientID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, tenantconfig.ConfigFileName), []byte(body), 0o644))
}

type apiFixture struct {
	handler  http.Handler
	registry *prometheus.Registry
	ready    error
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	root := t.TempDir()
	writeTenant(t, root, "acme-co", `
client_id: acme-co
display_name: Acme Co Travel
currency: ZAR
infrastructure:
  vapi:
    assistant_id: asst-1
`)
	writeTenant(t, root, "tourdesk", `
client_id: tourdesk
display_name: TourDesk Platform
currency: USD
`)

	logger := zaptest.NewLogger(t)
	env := map[string]string{"ACME_CO_VAPI_API_KEY": "vapi-live-key"}
	tenants := tenantconfig.NewService(tenantconfig.Options{
		Files: tenantconfig.NewLocalFileSource(root),
		Cache: tenantconfig.NewMemoryCache(0),
		LookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		Validator: tenantconfig.MustNewValidator(),
		Logger:    logger,
	})

	verifier, err := platformauth.NewTokenVerifier(platformauth.VerifierConfig{Secret: testSecret})
	require.NoError(t, err)

	users := memberships{
		"acme-co:auth-consultant": {UserID: uuid.New(), TenantID: "acme-co", AuthUserID: "auth-consultant", Role: persistence.RoleConsultant, IsActive: true},
		"acme-co:auth-viewer":     {UserID: uuid.New(), TenantID: "acme-co", AuthUserID: "auth-viewer", Role: persistence.RoleViewer, IsActive: true},
		"acme-co:auth-admin":      {UserID: uuid.New(), TenantID: "acme-co", AuthUserID: "auth-admin", Role: persistence.RoleAdmin, IsActive: true},
		"tourdesk:auth-ops":       {UserID: uuid.New(), TenantID: "tourdesk", AuthUserID: "auth-ops", Role: persistence.RoleAdmin, IsActive: true},
	}

	f := &apiFixture{registry: prometheus.NewRegistry()}
	f.handler, err = newRouter(routerDeps{
		Logger:           logger,
		Tenants:          tenants,
		Verify:           verifier.VerifyFunc(),
		Users:            users,
		TenantConfig:     tenantconfighandler.New(tenantconfigservice.New(tenants), logger),
		Records:          recordshandler.New(recordsservice.New(persistence.NewMemoryBackend()), logger),
		AppUsers:         usershandler.New(emptyUsers{}, logger),
		PlatformClientID: "tourdesk",
		RequestTimeout:   5 * time.Second,
		Registry:         f.registry,
		Ready:            func(context.Context) error { return f.ready },
		Contracts:        contracts.Load,
	})
	require.NoError(t, err)
	return f
}

func bearer(t *testing.T, subject, clientID string) string {
	t.Helper()
	token, err := devtoken.BuildToken(devtoken.Params{
		Secret:   testSecret,
		Subject:  subject,
		ClientID: clientID,
	}, time.Now())
	require.NoError(t, err)
	return "Bearer " + token
}

func (f *apiFixture) do(t *testing.T, method, path, clientID, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", "", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "", "", "").Code)

	f.ready = errors.New("database unreachable")
	require.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/readyz", "", "", "").Code)
}

func TestRecordsFlowIsTenantScoped(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	consultant := bearer(t, "auth-consultant", "acme-co")

	rec := f.do(t, http.MethodPost, "/api/v1/records/quotes", "acme-co", consultant, `{"destination":"Zanzibar","currency":"ZAR"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "acme-co", created["tenant_id"])

	rec = f.do(t, http.MethodGet, "/api/v1/records/quotes", "acme-co", consultant, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)

	// Viewers may read but not write.
	viewer := bearer(t, "auth-viewer", "acme-co")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/records/quotes", "acme-co", viewer, "").Code)
	require.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/v1/records/quotes", "acme-co", viewer, `{"destination":"Kruger"}`).Code)
}

func TestAPIRejections(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	tests := []struct {
		name     string
		method   string
		path     string
		clientID string
		auth     string
		want     int
	}{
		{name: "missing client id", method: http.MethodGet, path: "/api/v1/records/quotes", auth: bearer(t, "auth-consultant", "acme-co"), want: http.StatusBadRequest},
		{name: "unknown tenant", method: http.MethodGet, path: "/api/v1/records/quotes", clientID: "ghost-agency", auth: bearer(t, "auth-consultant", "ghost-agency"), want: http.StatusNotFound},
		{name: "missing token", method: http.MethodGet, path: "/api/v1/records/quotes", clientID: "acme-co", want: http.StatusUnauthorized},
		{name: "token for another tenant", method: http.MethodGet, path: "/api/v1/records/quotes", clientID: "acme-co", auth: bearer(t, "auth-consultant", "tourdesk"), want: http.StatusUnauthorized},
		{name: "not a member", method: http.MethodGet, path: "/api/v1/records/quotes", clientID: "acme-co", auth: bearer(t, "auth-stranger", "acme-co"), want: http.StatusUnauthorized},
		{name: "unknown table", method: http.MethodGet, path: "/api/v1/records/app_users", clientID: "acme-co", auth: bearer(t, "auth-consultant", "acme-co"), want: http.StatusBadRequest},
		{name: "tenant admin cannot reach platform admin", method: http.MethodGet, path: "/api/v1/admin/tenants", clientID: "acme-co", auth: bearer(t, "auth-admin", "acme-co"), want: http.StatusForbidden},
		{name: "target tenant in path does not become the acting tenant", method: http.MethodGet, path: "/api/v1/admin/tenants/tourdesk/config", clientID: "acme-co", auth: bearer(t, "auth-admin", "acme-co"), want: http.StatusForbidden},
		{name: "path alone selects no tenant", method: http.MethodGet, path: "/api/v1/admin/tenants/tourdesk/config", auth: bearer(t, "auth-ops", "tourdesk"), want: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tc.clientID, tc.auth, "")
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPlatformAdminReadsRedactedConfig(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	ops := bearer(t, "auth-ops", "tourdesk")

	rec := f.do(t, http.MethodGet, "/api/v1/admin/tenants?includeFiles=true", "tourdesk", ops, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Items []string `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.ElementsMatch(t, []string{"acme-co", "tourdesk"}, list.Items)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/tenants/acme-co/config", "tourdesk", ops, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "vapi-live-key")
	require.Contains(t, rec.Body.String(), "asst-1")

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/v1/admin/tenants/cache/invalidate", "tourdesk", ops, "").Code)
}

func TestMetricsAndDocs(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	_ = f.do(t, http.MethodGet, "/healthz", "", "", "")

	rec := f.do(t, http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tourdesk_http_requests_total")

	rec = f.do(t, http.MethodGet, "/openapi/users.json", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/api/v1/users")

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/openapi/nope.json", "", "", "").Code)

	rec = f.do(t, http.MethodGet, "/docs", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/openapi/records.json")
}
