// Package auth provides bearer-token authentication middleware for HTTP servers.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/api"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/appctx"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

// ErrInvalidToken wraps every token validation failure.
var ErrInvalidToken = errors.New("auth: invalid token")

// GateConfig configures the auth gate middleware.
type GateConfig struct {
	// RequireAuth returns true if the given path requires authentication.
	RequireAuth func(path string) bool

	// Secret is the HS256 signing key.
	Secret []byte

	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// Now overrides the validation clock in tests.
	Now func() time.Time

	Log *slog.Logger
}

// NewAuthGate returns a middleware that validates bearer tokens.
// If RequireAuth returns false for the request path, the request passes through
// without token parsing or context enrichment.
func NewAuthGate(cfg GateConfig) func(http.Handler) http.Handler {
	cfg.Log = logutil.NoopIfNil(cfg.Log)
	v := &Validator{secret: cfg.Secret, issuer: cfg.Issuer, now: cfg.Now}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.RequireAuth != nil && !cfg.RequireAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			raw := bearerToken(r)
			if raw == "" {
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
				return
			}

			actorID, err := v.Validate(raw)
			if err != nil {
				appctx.GetLogger(r.Context()).Debug("bearer token rejected", "error", err)
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token has expired"
				}
				api.WriteUnauthorized(w, api.ReasonTokenInvalid, msg)
				return
			}

			// Enrich handler logger with actor_id (the access log runs outside the gate)
			ctx := appctx.WithActorID(r.Context(), actorID)
			ctx = appctx.WithLogger(ctx, appctx.GetLogger(ctx).With("actor_id", actorID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Validator checks HS256 tokens and extracts the subject.
type Validator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewValidator creates a token validator.
func NewValidator(secret []byte, issuer string) *Validator {
	return &Validator{secret: secret, issuer: issuer}
}

// Validate returns the token subject as the actor id.
func (v *Validator) Validate(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.now != nil {
		opts = append(opts, jwt.WithTimeFunc(v.now))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// IssueToken signs an HS256 token for userID valid for ttl from now. It backs
// the dev token command; production tokens come from the identity provider.
func IssueToken(secret []byte, issuer, userID string, ttl time.Duration, now time.Time) (string, error) {
	if userID == "" {
		return "", errors.New("auth: user id is required")
	}
	if len(secret) == 0 {
		return "", errors.New("auth: signing secret is required")
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
