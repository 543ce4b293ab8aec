package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tourdesk/tourdesk-saas/domains/records/be/service"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenant"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// tenantRouter mounts the handler behind a stub that binds the X-Client-ID header as the tenant.
func tenantRouter(t *testing.T, backend persistence.Backend) http.Handler {
	h := New(service.New(backend), zaptest.NewLogger(t))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id, ok := tenant.ClientIDFromRequest(req)
			require.True(t, ok)
			space := tenant.Space{ClientID: id, Config: tenantconfig.TenantConfig{ClientID: id}}
			next.ServeHTTP(w, req.WithContext(tenant.WithSpace(req.Context(), space)))
		})
	})
	h.ReadRoutes(r)
	h.WriteRoutes(r)
	return r
}

func send(t *testing.T, router http.Handler, clientID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(tenant.ClientIDHeader, clientID)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRecordsCRUD(t *testing.T) {
	t.Parallel()

	router := tenantRouter(t, persistence.NewMemoryBackend())

	resp := send(t, router, "acme-co", http.MethodPost, "/records/tickets", `{"subject":"Lost luggage","priority":"high"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	id := created["id"].(string)
	require.Equal(t, "acme-co", created["tenant_id"])
	require.Equal(t, "/api/v1/records/tickets/"+id, resp.Header().Get("Location"))

	resp = send(t, router, "acme-co", http.MethodGet, "/records/tickets?priority=high&order=-created_at&limit=10", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var list RecordList
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)

	resp = send(t, router, "beta-tours", http.MethodGet, "/records/tickets/"+id, "")
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = send(t, router, "acme-co", http.MethodPatch, "/records/tickets/"+id, `{"priority":"normal"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = send(t, router, "beta-tours", http.MethodDelete, "/records/tickets/"+id, "")
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = send(t, router, "acme-co", http.MethodDelete, "/records/tickets/"+id, "")
	require.Equal(t, http.StatusNoContent, resp.Code)
}

func TestRecordsErrors(t *testing.T) {
	t.Parallel()

	router := tenantRouter(t, persistence.NewMemoryBackend())

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "unknown table", method: http.MethodGet, path: "/records/app_users", status: http.StatusNotFound},
		{name: "unknown filter column", method: http.MethodGet, path: "/records/quotes?password=x", status: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, path: "/records/quotes?limit=-1", status: http.StatusBadRequest},
		{name: "bad id", method: http.MethodGet, path: "/records/quotes/123", status: http.StatusBadRequest},
		{name: "tenant override", method: http.MethodPost, path: "/records/quotes", body: `{"tenant_id":"beta-tours"}`, status: http.StatusForbidden},
		{name: "empty body", method: http.MethodPost, path: "/records/quotes", status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := send(t, router, "acme-co", tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, resp.Code, resp.Body.String())
			require.Equal(t, "application/problem+json", resp.Header().Get("Content-Type"))
		})
	}
}
