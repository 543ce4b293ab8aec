package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenant"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

type mockFinder struct {
	calls  atomic.Int32
	findFn func(ctx context.Context, tenantID, authUserID string) (persistence.AppUser, bool, error)
}

func (m *mockFinder) FindActiveByAuthID(ctx context.Context, tenantID, authUserID string) (persistence.AppUser, bool, error) {
	m.calls.Add(1)
	return m.findFn(ctx, tenantID, authUserID)
}

func member(tenantID, authUserID, role string) persistence.AppUser {
	return persistence.AppUser{
		UserID:     uuid.New(),
		TenantID:   tenantID,
		AuthUserID: authUserID,
		Email:      authUserID + "@" + tenantID + ".example",
		Role:       role,
		IsActive:   true,
	}
}

func TestDefaultCredentialExtractor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		claims   map[string]any
		clientID string
		role     string
	}{
		{
			name:     "top level client id",
			claims:   map[string]any{"sub": "auth-1", "client_id": "acme-co", "role": "authenticated"},
			clientID: "acme-co",
			role:     "authenticated",
		},
		{
			name: "supabase app metadata",
			claims: map[string]any{
				"sub":          "auth-1",
				"role":         "authenticated",
				"app_metadata": map[string]any{"client_id": "beta-tours", "role": "consultant"},
			},
			clientID: "beta-tours",
			role:     "consultant",
		},
		{
			name: "firebase tenant",
			claims: map[string]any{
				"uid":      "auth-1",
				"firebase": map[string]any{"tenant": "gamma"},
			},
			clientID: "gamma",
		},
		{
			name:   "no tenant claim",
			claims: map[string]any{"user_id": "auth-1"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			creds, err := DefaultCredentialExtractor(tc.claims)
			require.NoError(t, err)
			require.Equal(t, "auth-1", creds.ID)
			require.Equal(t, tc.clientID, creds.ClientID)
			require.Equal(t, tc.role, creds.Role)
		})
	}

	_, err := DefaultCredentialExtractor(map[string]any{"email": "x@y.z"})
	require.ErrorIs(t, err, ErrTokenMissingSubject)
}

func TestUserLookupCacheKeyIncludesTenant(t *testing.T) {
	t.Parallel()

	finder := &mockFinder{findFn: func(_ context.Context, tenantID, authUserID string) (persistence.AppUser, bool, error) {
		if tenantID == "acme-co" {
			return member(tenantID, authUserID, persistence.RoleConsultant), true, nil
		}
		return persistence.AppUser{}, false, nil
	}}
	lookup := NewUserLookup(finder, UserLookupOptions{})
	ctx := context.Background()

	user, ok := lookup.GetUserByAuthID(ctx, "auth-123", "acme-co")
	require.True(t, ok)
	require.Equal(t, "acme-co", user.TenantID)

	// Same subject in another tenant must not be served from the acme-co entry.
	_, ok = lookup.GetUserByAuthID(ctx, "auth-123", "beta-tours")
	require.False(t, ok)
	require.EqualValues(t, 2, finder.calls.Load())

	_, ok = lookup.GetUserByAuthID(ctx, "auth-123", "acme-co")
	require.True(t, ok)
	require.EqualValues(t, 2, finder.calls.Load())
}

func TestUserLookupTTLAndClear(t *testing.T) {
	t.Parallel()

	now := testNow
	active := true
	finder := &mockFinder{findFn: func(_ context.Context, tenantID, authUserID string) (persistence.AppUser, bool, error) {
		if !active {
			return persistence.AppUser{}, false, nil
		}
		return member(tenantID, authUserID, persistence.RoleViewer), true, nil
	}}
	lookup := NewUserLookup(finder, UserLookupOptions{TTL: time.Minute, Now: func() time.Time { return now }})
	ctx := context.Background()

	_, ok := lookup.GetUserByAuthID(ctx, "auth-1", "acme-co")
	require.True(t, ok)

	active = false
	now = now.Add(59 * time.Second)
	_, ok = lookup.GetUserByAuthID(ctx, "auth-1", "acme-co")
	require.True(t, ok, "entry still fresh")
	require.EqualValues(t, 1, finder.calls.Load())

	now = now.Add(time.Second)
	_, ok = lookup.GetUserByAuthID(ctx, "auth-1", "acme-co")
	require.False(t, ok, "deactivation observed after ttl")

	active = true
	_, ok = lookup.GetUserByAuthID(ctx, "auth-1", "acme-co")
	require.True(t, ok)
	calls := finder.calls.Load()

	lookup.ClearCache()
	_, ok = lookup.GetUserByAuthID(ctx, "auth-1", "acme-co")
	require.True(t, ok)
	require.Equal(t, calls+1, finder.calls.Load())
}

func TestUserLookupSwallowsErrors(t *testing.T) {
	t.Parallel()

	finder := &mockFinder{findFn: func(context.Context, string, string) (persistence.AppUser, bool, error) {
		return persistence.AppUser{}, false, errors.New("connection refused")
	}}
	lookup := NewUserLookup(finder, UserLookupOptions{})

	_, ok := lookup.GetUserByAuthID(context.Background(), "auth-1", "acme-co")
	require.False(t, ok)

	_, ok = lookup.GetUserByAuthID(context.Background(), "", "acme-co")
	require.False(t, ok)
	require.EqualValues(t, 1, finder.calls.Load())
}

type staticUsers map[string]persistence.AppUser

func (s staticUsers) GetUserByAuthID(_ context.Context, authUserID, tenantID string) (persistence.AppUser, bool) {
	u, ok := s[tenantID+":"+authUserID]
	return u, ok
}

func withSpace(clientID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			space := tenant.Space{ClientID: clientID, Config: tenantconfig.TenantConfig{ClientID: clientID}}
			next.ServeHTTP(w, r.WithContext(tenant.WithSpace(r.Context(), space)))
		})
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	verifier := newTestVerifier(t, VerifierConfig{Secret: testSecret})
	users := staticUsers{
		"acme-co:auth-123":    member("acme-co", "auth-123", persistence.RoleAdmin),
		"beta-tours:auth-777": member("beta-tours", "auth-777", persistence.RoleViewer),
	}

	var seen *UserCredentials
	protected := Authenticate(MiddlewareConfig{Verify: verifier.VerifyFunc(), Users: users})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = UserFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}),
	)

	serve := func(clientID, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/records/quotes", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp := httptest.NewRecorder()
		withSpace(clientID)(protected).ServeHTTP(resp, req)
		return resp
	}

	t.Run("valid member", func(t *testing.T) {
		resp := serve("acme-co", signClaims(t, testSecret, validClaims()))
		require.Equal(t, http.StatusOK, resp.Code)
		require.NotNil(t, seen)
		require.Equal(t, "auth-123", seen.ID)
		require.Equal(t, "acme-co", seen.ClientID)
		require.True(t, seen.IsAdmin)
		require.NotNil(t, seen.AppUser)
	})

	unauthorized := []struct {
		name     string
		clientID string
		token    string
	}{
		{name: "missing token", clientID: "acme-co"},
		{name: "bad signature", clientID: "acme-co", token: signClaims(t, "nope", validClaims())},
		{name: "token bound to another tenant", clientID: "beta-tours", token: signClaims(t, testSecret, validClaims())},
		{name: "not a member of the tenant", clientID: "beta-tours", token: func() string {
			c := validClaims()
			delete(c, "client_id")
			return signClaims(t, testSecret, c)
		}()},
	}

	for _, tc := range unauthorized {
		t.Run(tc.name, func(t *testing.T) {
			resp := serve(tc.clientID, tc.token)
			require.Equal(t, http.StatusUnauthorized, resp.Code)
			require.Contains(t, resp.Header().Get("WWW-Authenticate"), "Bearer")
			require.Equal(t, "unauthorized\n", resp.Body.String())
		})
	}

	t.Run("no tenant space", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signClaims(t, testSecret, validClaims()))
		resp := httptest.NewRecorder()
		protected.ServeHTTP(resp, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	handler := RequireRole(persistence.RoleConsultant)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(creds *UserCredentials) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if creds != nil {
			req = req.WithContext(WithUser(req.Context(), creds))
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	require.Equal(t, http.StatusForbidden, serve(nil))
	require.Equal(t, http.StatusForbidden, serve(&UserCredentials{ID: "a", Role: persistence.RoleViewer}))
	require.Equal(t, http.StatusNoContent, serve(&UserCredentials{ID: "a", Role: persistence.RoleConsultant}))
	require.Equal(t, http.StatusNoContent, serve(&UserCredentials{ID: "a", Role: persistence.RoleAdmin, IsAdmin: true}))
}
