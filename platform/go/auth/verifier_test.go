package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret-with-enough-length"

var testNow = time.Unix(1_760_000_000, 0).UTC()

func signClaims(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       "auth-123",
		"exp":       testNow.Add(time.Hour).Unix(),
		"iss":       "https://acme.supabase.co/auth/v1",
		"aud":       "authenticated",
		"client_id": "acme-co",
	}
}

func newTestVerifier(t *testing.T, cfg VerifierConfig) *TokenVerifier {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return testNow }
	}
	v, err := NewTokenVerifier(cfg)
	require.NoError(t, err)
	return v
}

func TestVerifyBranchOrder(t *testing.T) {
	t.Parallel()

	v := newTestVerifier(t, VerifierConfig{
		Secret:   testSecret,
		Issuer:   "https://acme.supabase.co/auth/v1",
		Audience: DefaultAudience,
	})

	without := func(key string) jwt.MapClaims {
		c := validClaims()
		delete(c, key)
		return c
	}
	with := func(key string, value any) jwt.MapClaims {
		c := validClaims()
		c[key] = value
		return c
	}

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "malformed", token: "not-a-jwt", want: ErrTokenMalformed},
		{name: "missing exp", token: signClaims(t, testSecret, without("exp")), want: ErrTokenMissingExpiry},
		// Expiry is checked before the subject.
		{name: "expired without subject", token: signClaims(t, testSecret, func() jwt.MapClaims {
			c := without("sub")
			c["exp"] = testNow.Add(-time.Second).Unix()
			return c
		}()), want: ErrTokenExpired},
		{name: "missing sub", token: signClaims(t, testSecret, without("sub")), want: ErrTokenMissingSubject},
		{name: "bad signature", token: signClaims(t, "another-secret", validClaims()), want: ErrTokenSignature},
		{name: "issuer", token: signClaims(t, testSecret, with("iss", "https://evil.example")), want: ErrTokenIssuer},
		{name: "audience", token: signClaims(t, testSecret, with("aud", "anon")), want: ErrTokenAudience},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(tc.token)
			require.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("valid", func(t *testing.T) {
		claims, err := v.Verify(signClaims(t, testSecret, validClaims()))
		require.NoError(t, err)
		require.Equal(t, "acme-co", claims["client_id"])
	})

	t.Run("absent iss and aud are accepted", func(t *testing.T) {
		c := validClaims()
		delete(c, "iss")
		delete(c, "aud")
		_, err := v.Verify(signClaims(t, testSecret, c))
		require.NoError(t, err)
	})
}

func TestVerifyExpiryBoundary(t *testing.T) {
	t.Parallel()

	v := newTestVerifier(t, VerifierConfig{Secret: testSecret})

	expired := validClaims()
	expired["exp"] = testNow.Add(-time.Second).Unix()
	_, err := v.Verify(signClaims(t, testSecret, expired))
	require.ErrorIs(t, err, ErrTokenExpired)

	atNow := validClaims()
	atNow["exp"] = testNow.Unix()
	_, err = v.Verify(signClaims(t, testSecret, atNow))
	require.ErrorIs(t, err, ErrTokenExpired)

	_, err = v.Verify(signClaims(t, testSecret, validClaims()))
	require.NoError(t, err)
}

func TestVerifySkippedStillChecksExpiryAndSubject(t *testing.T) {
	t.Parallel()

	v := newTestVerifier(t, VerifierConfig{Environment: "development", SkipVerification: true})
	require.False(t, v.VerifiesSignature())

	claims, err := v.Verify(signClaims(t, "whatever", validClaims()))
	require.NoError(t, err)
	require.Equal(t, "auth-123", claims["sub"])

	c := validClaims()
	delete(c, "sub")
	_, err = v.Verify(signClaims(t, "whatever", c))
	require.ErrorIs(t, err, ErrTokenMissingSubject)

	c = validClaims()
	c["exp"] = testNow.Add(-time.Minute).Unix()
	_, err = v.Verify(signClaims(t, "whatever", c))
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestNewTokenVerifierRefusesInsecureProduction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  VerifierConfig
	}{
		{name: "skip in production", cfg: VerifierConfig{Environment: "production", Secret: testSecret, SkipVerification: true}},
		{name: "placeholder secret", cfg: VerifierConfig{Environment: "prod", Secret: "your-jwt-secret"}},
		{name: "empty secret", cfg: VerifierConfig{Environment: "LIVE"}},
		{name: "changeme secret", cfg: VerifierConfig{Environment: "production", Secret: " changeme "}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTokenVerifier(tc.cfg)
			require.ErrorIs(t, err, ErrInsecureConfig)
		})
	}

	_, err := NewTokenVerifier(VerifierConfig{Environment: "production", Secret: testSecret})
	require.NoError(t, err)
}

func TestNewTokenVerifierOutsideProductionNeedsRealSecretToVerify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		cfg    VerifierConfig
		verify bool
	}{
		{name: "real secret", cfg: VerifierConfig{Environment: "development", Secret: testSecret}, verify: true},
		{name: "empty secret", cfg: VerifierConfig{Environment: "development"}},
		{name: "placeholder secret", cfg: VerifierConfig{Environment: "staging", Secret: "changeme"}},
		{name: "skip with real secret", cfg: VerifierConfig{Environment: "development", Secret: testSecret, SkipVerification: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newTestVerifier(t, tc.cfg)
			require.Equal(t, tc.verify, v.VerifiesSignature())
		})
	}

	// Without a real secret any signature is accepted, but exp and sub still apply.
	v := newTestVerifier(t, VerifierConfig{Environment: "development", Secret: "changeme"})
	claims, err := v.Verify(signClaims(t, "the-real-provider-secret", validClaims()))
	require.NoError(t, err)
	require.Equal(t, "auth-123", claims["sub"])

	expired := validClaims()
	expired["exp"] = testNow.Add(-time.Second).Unix()
	_, err = v.Verify(signClaims(t, "the-real-provider-secret", expired))
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestIsProductionEnv(t *testing.T) {
	t.Parallel()

	require.True(t, IsProductionEnv(" Production "))
	require.True(t, IsProductionEnv("live"))
	require.False(t, IsProductionEnv("staging"))
	require.False(t, IsProductionEnv(""))
}
