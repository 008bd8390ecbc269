package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-payroll/platform/go/auth"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/gcp"
)

// buildAuthMiddleware constructs the JWT middleware for the configured identity provider.
// Company roles come from memberships, so only the identity claims are extracted.
func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, gcp.Credentials{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentials,
		})
		if err != nil {
			return nil, err
		}
		verify = platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		return nil, fmt.Errorf("unsupported auth provider %q", cfg.AuthProvider)
	}

	return platformauth.JWT(verify, platformauth.DefaultCredentialExtractor), nil
}
