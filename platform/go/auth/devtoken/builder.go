package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Params are the claims of an unsigned development token. Company roles are resolved from
// memberships, so only the identity of the user is carried.
type Params struct {
	ProjectID      string        // Firebase project id; used for aud and iss
	UserID         string        // user_id/sub claim (required)
	Email          string        // email claim (required)
	Name           string        // display name
	EmailVerified  bool          // email_verified claim
	IsAdmin        bool          // isAdmin custom claim
	SignInProvider string        // firebase.sign_in_provider; default "password"
	ExpiresIn      time.Duration // relative expiry; default 1h if zero
	Audience       string        // optional override; defaults to ProjectID
	Issuer         string        // optional override; defaults to https://securetoken.google.com/<projectId>
}

// BuildUnsignedFirebaseToken returns a JWT string with alg "none" and no signature, shaped like a
// Firebase ID token so it flows through the auth middleware when AUTH_PROVIDER=dev.
func BuildUnsignedFirebaseToken(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.ProjectID) == "" {
		return "", errors.New("projectID is required")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}
	issuer := strings.TrimSpace(p.Issuer)
	if issuer == "" {
		issuer = fmt.Sprintf("https://securetoken.google.com/%s", p.ProjectID)
	}
	audience := strings.TrimSpace(p.Audience)
	if audience == "" {
		audience = p.ProjectID
	}
	signInProvider := strings.TrimSpace(p.SignInProvider)
	if signInProvider == "" {
		signInProvider = "password"
	}

	payload := map[string]interface{}{
		"iss":            issuer,
		"aud":            audience,
		"auth_time":      now.Unix(),
		"user_id":        p.UserID,
		"sub":            p.UserID,
		"iat":            now.Unix(),
		"exp":            now.Add(expiresIn).Unix(),
		"email":          p.Email,
		"email_verified": p.EmailVerified,
		"isAdmin":        p.IsAdmin,
		"firebase": map[string]interface{}{
			"identities":       map[string]interface{}{"email": []string{p.Email}},
			"sign_in_provider": signInProvider,
		},
	}
	if p.Name != "" {
		payload["name"] = p.Name
	}

	headerSegment, err := encodeSegment(map[string]interface{}{"alg": "none", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadSegment, err := encodeSegment(payload)
	if err != nil {
		return "", err
	}

	return headerSegment + "." + payloadSegment + ".", nil
}

func encodeSegment(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
