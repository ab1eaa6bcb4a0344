package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/api"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/appctx"
)

var (
	testSecret = []byte("test-secret-with-enough-entropy-0123456789")
	testNow    = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

func gate(next http.Handler) http.Handler {
	return NewAuthGate(GateConfig{
		RequireAuth: func(path string) bool { return !strings.HasSuffix(path, "/healthz") },
		Secret:      testSecret,
		Issuer:      "chikitsa-test",
		Now:         func() time.Time { return testNow },
	})(next)
}

func mustToken(t *testing.T, secret []byte, issuer, sub string, ttl time.Duration) string {
	t.Helper()
	tok, err := IssueToken(secret, issuer, sub, ttl, testNow)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

func TestAuthGate(t *testing.T) {
	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "alice", ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
	})
	noneToken, err := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantReason string
		wantActor  string
	}{
		{"valid token", "/api/records", "Bearer " + mustToken(t, testSecret, "chikitsa-test", "alice", time.Hour), http.StatusOK, "", "alice"},
		{"lowercase scheme", "/api/records", "bearer " + mustToken(t, testSecret, "chikitsa-test", "bob", time.Hour), http.StatusOK, "", "bob"},
		{"missing header", "/api/records", "", http.StatusUnauthorized, api.ReasonUnauthenticated, ""},
		{"basic scheme", "/api/records", "Basic YWxpY2U6cHc=", http.StatusUnauthorized, api.ReasonUnauthenticated, ""},
		{"expired", "/api/records", "Bearer " + mustToken(t, testSecret, "chikitsa-test", "alice", -time.Minute), http.StatusUnauthorized, api.ReasonTokenInvalid, ""},
		{"wrong secret", "/api/records", "Bearer " + mustToken(t, []byte("other-secret"), "chikitsa-test", "alice", time.Hour), http.StatusUnauthorized, api.ReasonTokenInvalid, ""},
		{"wrong issuer", "/api/records", "Bearer " + mustToken(t, testSecret, "someone-else", "alice", time.Hour), http.StatusUnauthorized, api.ReasonTokenInvalid, ""},
		{"alg none", "/api/records", "Bearer " + noneToken, http.StatusUnauthorized, api.ReasonTokenInvalid, ""},
		{"garbage", "/api/records", "Bearer not.a.jwt", http.StatusUnauthorized, api.ReasonTokenInvalid, ""},
		{"unprotected path", "/api/healthz", "", http.StatusOK, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotActor string
			h := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotActor, _ = appctx.ActorID(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotActor != tt.wantActor {
				t.Errorf("actor = %q, want %q", gotActor, tt.wantActor)
			}
			if tt.wantReason != "" {
				var env api.ErrorEnvelope
				if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if env.Error.ReasonCode != tt.wantReason {
					t.Errorf("reason = %q, want %q", env.Error.ReasonCode, tt.wantReason)
				}
			}
		})
	}
}

func TestValidate_MissingSubject(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	raw, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewValidator(testSecret, "").Validate(raw); err == nil {
		t.Error("expected error for token without sub")
	}
}

func TestValidate_ExpirationRequired(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"})
	raw, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewValidator(testSecret, "").Validate(raw); err == nil {
		t.Error("expected error for token without exp")
	}
}

func TestIssueToken_Validation(t *testing.T) {
	if _, err := IssueToken(testSecret, "", "", time.Hour, testNow); err == nil {
		t.Error("expected error for empty user id")
	}
	if _, err := IssueToken(nil, "", "alice", time.Hour, testNow); err == nil {
		t.Error("expected error for empty secret")
	}
}
