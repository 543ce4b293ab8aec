package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures, in the order they are checked.
var (
	ErrTokenMalformed      = errors.New("token is malformed")
	ErrTokenMissingExpiry  = errors.New("token has no expiration")
	ErrTokenExpired        = errors.New("token has expired")
	ErrTokenMissingSubject = errors.New("token has no subject")
	ErrTokenSignature      = errors.New("token signature is invalid")
	ErrTokenIssuer         = errors.New("token issuer is not accepted")
	ErrTokenAudience       = errors.New("token audience is not accepted")
)

// ErrInsecureConfig aborts startup when a production-like deployment would accept forged tokens.
var ErrInsecureConfig = errors.New("insecure token verifier configuration")

// DefaultAudience is the audience Supabase stamps on user access tokens.
const DefaultAudience = "authenticated"

// placeholderSecrets are values shipped in sample env files; they never count as a real secret.
var placeholderSecrets = []string{
	"",
	"changeme",
	"secret",
	"your-jwt-secret",
	"your-super-secret-jwt-token-with-at-least-32-characters-long",
}

// VerifierConfig configures a TokenVerifier.
type VerifierConfig struct {
	Secret   string
	Issuer   string
	Audience string
	// Environment is the deployment indicator (APP_ENV).
	Environment string
	// SkipVerification disables signature, issuer and audience checks. Refused in production.
	SkipVerification bool
	Now              func() time.Time
}

// TokenVerifier validates HS256 access tokens minted by the identity provider.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
	verify   bool
	now      func() time.Time
	parser   *jwt.Parser
}

// IsProductionEnv reports whether env names a production-like deployment.
func IsProductionEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "live":
		return true
	default:
		return false
	}
}

// IsPlaceholderSecret reports whether secret is empty or a well-known sample value.
func IsPlaceholderSecret(secret string) bool {
	return slices.Contains(placeholderSecrets, strings.TrimSpace(secret))
}

// NewTokenVerifier builds a verifier. Signatures are checked only when a real signing secret
// is configured and verification is not skipped. In production both are mandatory and
// construction fails otherwise.
func NewTokenVerifier(cfg VerifierConfig) (*TokenVerifier, error) {
	if IsProductionEnv(cfg.Environment) {
		if cfg.SkipVerification {
			return nil, fmt.Errorf("%w: verification cannot be skipped in %s", ErrInsecureConfig, cfg.Environment)
		}
		if IsPlaceholderSecret(cfg.Secret) {
			return nil, fmt.Errorf("%w: a real signing secret is required in %s", ErrInsecureConfig, cfg.Environment)
		}
	}
	verify := !cfg.SkipVerification && !IsPlaceholderSecret(cfg.Secret)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenVerifier{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		verify:   verify,
		now:      now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// VerifiesSignature reports whether signature, issuer and audience are checked.
func (v *TokenVerifier) VerifiesSignature() bool {
	return v.verify
}

// Verify returns the token's claims or the first failed check.
func (v *TokenVerifier) Verify(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if exp == nil {
		return nil, ErrTokenMissingExpiry
	}
	if !v.now().Before(exp.Time) {
		return nil, ErrTokenExpired
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if sub == "" {
		return nil, ErrTokenMissingSubject
	}

	if !v.verify {
		return claims, nil
	}

	if _, err := v.parser.Parse(token, func(*jwt.Token) (any, error) { return v.secret, nil }); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenSignature, err)
	}

	if iss, _ := claims.GetIssuer(); iss != "" && v.issuer != "" && iss != v.issuer {
		return nil, ErrTokenIssuer
	}

	if aud, _ := claims.GetAudience(); len(aud) > 0 && v.audience != "" && !slices.Contains(aud, v.audience) {
		return nil, ErrTokenAudience
	}

	return claims, nil
}

// VerifyFunc adapts the verifier to the middleware signature.
func (v *TokenVerifier) VerifyFunc() VerifyFunc {
	return func(_ context.Context, token string) (map[string]any, error) {
		claims, err := v.Verify(token)
		if err != nil {
			return nil, err
		}
		return claims, nil
	}
}
