package devtoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Params captures the claims of a development access token. No environment variables are
// read so the builder stays deterministic for tooling.
type Params struct {
	Secret    string        // HS256 signing secret; required unless Unsigned
	Issuer    string        // optional iss claim
	Audience  string        // aud claim; default "authenticated"
	Subject   string        // sub claim (required)
	Email     string        // optional email claim
	ClientID  string        // client_id claim binding the token to a tenant
	Role      string        // optional role claim
	ExpiresIn time.Duration // relative expiry; default 1h if zero
	Unsigned  bool          // emit alg "none"; only accepted when verification is skipped
}

// BuildToken mints a Supabase-shaped access token.
func BuildToken(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.Subject) == "" {
		return "", errors.New("subject is required")
	}
	if !p.Unsigned && strings.TrimSpace(p.Secret) == "" {
		return "", errors.New("secret is required for a signed token")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	audience := p.Audience
	if strings.TrimSpace(audience) == "" {
		audience = "authenticated"
	}

	claims := jwt.MapClaims{
		"sub": p.Subject,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	if p.Issuer != "" {
		claims["iss"] = p.Issuer
	}
	if p.Email != "" {
		claims["email"] = p.Email
	}
	if p.ClientID != "" {
		claims["client_id"] = p.ClientID
	}
	if p.Role != "" {
		claims["role"] = p.Role
	}

	if p.Unsigned {
		return jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.Secret))
}
