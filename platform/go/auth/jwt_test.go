package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractJWTToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantFound bool
	}{
		{"Bearer token", "Bearer abc.def", "abc.def", true},
		{"Lower case scheme", "bearer abc.def", "abc.def", true},
		{"Basic scheme", "Basic Zm9vOmJhcg==", "", false},
		{"Missing header", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, found := ExtractJWTToken(r)
			if got != tt.wantToken || found != tt.wantFound {
				t.Errorf("ExtractJWTToken() = (%q, %v), want (%q, %v)", got, found, tt.wantToken, tt.wantFound)
			}
		})
	}
}

func TestServiceKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		key        string
		header     string
		value      string
		wantStatus int
	}{
		{"Service key header", "s3cret", ServiceKeyHeader, "s3cret", http.StatusOK},
		{"Bearer service key", "s3cret", "Authorization", "Bearer s3cret", http.StatusOK},
		{"Wrong key", "s3cret", ServiceKeyHeader, "guess", http.StatusUnauthorized},
		{"Missing key", "s3cret", "", "", http.StatusUnauthorized},
		{"Unconfigured key", "", ServiceKeyHeader, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/jobs", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			ServiceKey(tt.key)(next).ServeHTTP(rec, r)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
