package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	platformauth "github.com/tourdesk/tourdesk-saas/platform/go/auth"
	"github.com/tourdesk/tourdesk-saas/platform/go/gcp"
)

// buildTokenVerifier selects the identity provider whose access tokens the API accepts.
func buildTokenVerifier(ctx context.Context, cfg config, logger *zap.Logger) (platformauth.VerifyFunc, error) {
	switch cfg.AuthProvider {
	case "supabase":
		verifier, err := platformauth.NewTokenVerifier(platformauth.VerifierConfig{
			Secret:           cfg.JWTSecret,
			Issuer:           cfg.JWTIssuer,
			Audience:         cfg.JWTAudience,
			Environment:      cfg.AppEnv,
			SkipVerification: cfg.JWTSkipVerification,
		})
		if err != nil {
			return nil, err
		}
		if !verifier.VerifiesSignature() {
			logger.Warn("token signature verification is disabled; do not use outside local development")
		}
		return verifier.VerifyFunc(), nil
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx)
		if err != nil {
			return nil, fmt.Errorf("init firebase auth: %w", err)
		}
		return platformauth.FirebaseTokenVerifier(fbAuth), nil
	default:
		return nil, fmt.Errorf("unsupported AUTH_PROVIDER %q (use supabase or firebase)", cfg.AuthProvider)
	}
}
