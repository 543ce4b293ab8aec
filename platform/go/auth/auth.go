package auth

import (
	"context"
	"errors"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenant"
)

type ctxKey string

const (
	ctxUserCredentials ctxKey = "TOURDESK_USER_CREDENTIALS"
)

// UserCredentials is the authenticated principal of a request.
type UserCredentials struct {
	// ID is the identity provider subject.
	ID    string
	Email string
	Role  string
	// ClientID is the tenant the principal acts for.
	ClientID string
	IsAdmin  bool
	// AppUser is the tenant membership record backing the principal.
	AppUser *persistence.AppUser
}

func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	v := ctx.Value(ctxUserCredentials)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*UserCredentials)
	return u, ok
}

// WithUser stores creds on ctx.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxUserCredentials, creds)
}

// VerifyFunc validates the incoming JWT and returns its claims map.
type VerifyFunc func(ctx context.Context, token string) (map[string]any, error)

// ExtractFunc converts a claims map into UserCredentials.
type ExtractFunc func(claims map[string]any) (*UserCredentials, error)

// UserResolver maps an identity provider subject to an active member of a tenant.
// Implemented by UserLookup.
type UserResolver interface {
	GetUserByAuthID(ctx context.Context, authUserID, tenantID string) (persistence.AppUser, bool)
}

// MiddlewareConfig wires Authenticate.
type MiddlewareConfig struct {
	Verify  VerifyFunc
	Extract ExtractFunc
	Users   UserResolver
	Logger  *zap.Logger
}

var (
	errMissingToken    = errors.New("missing bearer token")
	errNoTenant        = errors.New("no tenant on request")
	errTenantMismatch  = errors.New("token issued for another tenant")
	errUnknownIdentity = errors.New("no active user for subject in tenant")
)

// Authenticate requires a valid bearer token whose subject is an active user of the request's
// tenant. It must run after the tenant middleware. Every rejection is the same 401; the reason
// is only logged.
func Authenticate(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Verify == nil {
		panic("auth.Authenticate: verify func must not be nil")
	}
	if cfg.Users == nil {
		panic("auth.Authenticate: user resolver must not be nil")
	}
	extract := cfg.Extract
	if extract == nil {
		extract = DefaultCredentialExtractor
	}
	base := cfg.Logger
	if base == nil {
		base = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			logger := logging.FromRequest(r, base)
			reject := func(reason error) {
				logger.Info("request not authenticated", zap.Error(reason))
				unauthorized(w)
			}

			token, found := ExtractJWTToken(r)
			if !found {
				reject(errMissingToken)
				return
			}

			claims, err := cfg.Verify(r.Context(), token)
			if err != nil {
				reject(err)
				return
			}

			creds, err := extract(claims)
			if err != nil {
				reject(err)
				return
			}

			space, ok := tenant.FromContext(r.Context())
			if !ok {
				reject(errNoTenant)
				return
			}
			if creds.ClientID != "" && creds.ClientID != space.ClientID {
				reject(errTenantMismatch)
				return
			}

			user, ok := cfg.Users.GetUserByAuthID(r.Context(), creds.ID, space.ClientID)
			if !ok {
				reject(errUnknownIdentity)
				return
			}

			creds.ClientID = space.ClientID
			creds.Role = user.Role
			creds.IsAdmin = user.Role == persistence.RoleAdmin
			if creds.Email == "" {
				creds.Email = user.Email
			}
			creds.AppUser = &user

			r = logging.AddRequestFields(r, zap.String("user_id", creds.ID))
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// DefaultCredentialExtractor reads the subject, email and tenant claims. The tenant may come
// from a top level client_id, Supabase app_metadata or a Firebase tenant.
func DefaultCredentialExtractor(claims map[string]any) (*UserCredentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	id := firstStringClaim(claims, "sub", "uid", "user_id")
	if id == "" {
		return nil, ErrTokenMissingSubject
	}

	creds := &UserCredentials{
		ID:       id,
		Email:    extractStringClaim(claims, "email"),
		Role:     extractStringClaim(claims, "role"),
		ClientID: extractStringClaim(claims, "client_id"),
	}

	if meta, ok := claims["app_metadata"].(map[string]any); ok {
		if creds.ClientID == "" {
			creds.ClientID = extractStringClaim(meta, "client_id")
		}
		if role := extractStringClaim(meta, "role"); role != "" {
			creds.Role = role
		}
	}
	if creds.ClientID == "" {
		if fb, ok := claims["firebase"].(map[string]any); ok {
			creds.ClientID = extractStringClaim(fb, "tenant")
		}
	}

	return creds, nil
}

func extractStringClaim(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if strVal, valid := v.(string); valid {
			return strVal
		}
	}
	return ""
}

func firstStringClaim(claims map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := extractStringClaim(claims, key); v != "" {
			return v
		}
	}
	return ""
}

// FirebaseTokenVerifier returns a VerifyFunc that validates tokens via Firebase Auth.
func FirebaseTokenVerifier(fbAuth *auth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]any, error) {
		t, err := fbAuth.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}

		claims := make(map[string]any, len(t.Claims)+2)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["uid"] = t.UID
		claims["sub"] = t.Subject
		if tenantID := t.Firebase.Tenant; tenantID != "" {
			if firebaseClaim, ok := claims["firebase"].(map[string]any); ok {
				firebaseClaim["tenant"] = tenantID
				claims["firebase"] = firebaseClaim
			} else {
				claims["firebase"] = map[string]any{"tenant": tenantID}
			}
		}

		return claims, nil
	}
}

// RequireRole gates a route group on the principal's application role. Admins pass every gate.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := UserFromContext(r.Context())
			if !ok || creds == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			if !creds.IsAdmin && creds.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
