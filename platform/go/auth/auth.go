package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"

	"github.com/zenGate-Global/palmyra-payroll/platform/go/apierror"
)

type ctxKey string

const (
	ctxUserCredentials ctxKey = "PALMYRA_USER_CREDENTIALS"
)

// UserCredentials are the identity claims of an authenticated caller. Company roles are not part of
// the token; they are resolved from memberships by the domain services.
type UserCredentials struct {
	Id            string
	Email         string
	EmailVerified bool
	Name          *string
	PictureURL    *string
	IsAdmin       bool
}

func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	v := ctx.Value(ctxUserCredentials)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*UserCredentials)
	return u, ok
}

// WithUser stores credentials on the context, as the JWT middleware does.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxUserCredentials, creds)
}

// VerifyFunc validates the incoming JWT and returns its claims map.
type VerifyFunc func(ctx context.Context, token string) (map[string]interface{}, error)

// ExtractFunc converts a claims map into UserCredentials.
type ExtractFunc func(claims map[string]interface{}) (*UserCredentials, error)

// JWT parses the request and sets the context credentials using the provided verify/extract functions.
// Requests without a bearer token pass through unauthenticated.
func JWT(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCredentialExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractJWTToken(r)
			if token == "" || !found {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "invalid or expired token")
				return
			}

			creds, err := extract(claims)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="invalid claims"`)
				apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

// DefaultCredentialExtractor converts Firebase style claims into UserCredentials.
// The subject is read from uid, then user_id, then sub. Emails are lowercased.
func DefaultCredentialExtractor(claims map[string]interface{}) (*UserCredentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	var id string
	for _, key := range []string{"uid", "user_id", "sub"} {
		if id = claim[string](claims, key); id != "" {
			break
		}
	}
	if id == "" {
		return nil, errors.New("missing subject claim")
	}

	return &UserCredentials{
		Id:            id,
		Email:         strings.ToLower(claim[string](claims, "email")),
		EmailVerified: claim[bool](claims, "email_verified"),
		Name:          optionalClaim(claims, "name"),
		PictureURL:    optionalClaim(claims, "picture"),
		IsAdmin:       claim[bool](claims, "isAdmin"),
	}, nil
}

// claim returns the typed value of key, or the zero value when absent or of another type.
func claim[T any](claims map[string]interface{}, key string) T {
	v, _ := claims[key].(T)
	return v
}

func optionalClaim(claims map[string]interface{}, key string) *string {
	if v := claim[string](claims, key); v != "" {
		return &v
	}
	return nil
}

func parseUnsignedJWTClaims(token string) (map[string]interface{}, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, errors.New("invalid token format")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	claims := make(map[string]interface{})
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	return claims, nil
}

// FirebaseTokenVerifier returns a VerifyFunc that validates tokens via Firebase Auth.
func FirebaseTokenVerifier(fbAuth *auth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		t, err := fbAuth.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}

		claims := make(map[string]interface{}, len(t.Claims)+2)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["uid"] = t.UID
		claims["sub"] = t.Subject
		return claims, nil
	}
}

// UnsignedTokenVerifier returns a VerifyFunc that decodes unsigned JWT payloads without checking
// a signature. Tokens whose exp claim is in the past are rejected. Only for local development and tests.
func UnsignedTokenVerifier() VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		claims, err := parseUnsignedJWTClaims(token)
		if err != nil {
			return nil, err
		}
		if exp, ok := claims["exp"].(float64); ok && time.Now().Unix() > int64(exp) {
			return nil, errors.New("token expired")
		}
		return claims, nil
	}
}
