package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"

	"flashliquidity/observability/logging"
)

const (
	// ScopeAdmin grants access to governance updates.
	ScopeAdmin = "admin"
	// RequestSignatureHeader carries a base58 ed25519 signature over the raw
	// request body, made with the key named by the token subject.
	RequestSignatureHeader = "X-Flashloan-Request-Signature"

	maxBodyBytes = 1 << 20
)

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret       string
	Issuer           string
	Audience         string
	ClockSkew        time.Duration
	RequireSignature bool
}

// Principal is the authenticated caller.
type Principal struct {
	Identity solana.PublicKey
	Scopes   []string
}

// HasScope reports whether the principal was granted scope.
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// PrincipalFromContext extracts the authenticated principal from ctx.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	return principal, ok && principal != nil
}

// Authenticator validates HMAC-signed JWT bearer tokens whose subject is the
// caller's base58 identity.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

// NewAuthenticator constructs an authenticator from configuration.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return nil, fmt.Errorf("auth: hmac secret required")
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{cfg: cfg, secret: []byte(secret), logger: logger}, nil
}

// Middleware rejects requests without a valid token or lacking any of the
// required scopes.
func (a *Authenticator) Middleware(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := parseBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get("access_token"))
			}
			if token == "" {
				writeProblem(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			principal, err := a.Authenticate(token)
			if err != nil {
				a.logger.Warn("token rejected", logging.MaskField("token", logging.MaskToken(token)), slog.String("error", err.Error()))
				writeProblem(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}
			for _, scope := range required {
				if !principal.HasScope(scope) {
					writeProblem(w, http.StatusForbidden, "forbidden", "insufficient scope")
					return
				}
			}
			if a.cfg.RequireSignature && r.Method == http.MethodPost {
				if err := verifyRequestSignature(r, principal.Identity); err != nil {
					writeProblem(w, http.StatusUnauthorized, "bad_signature", err.Error())
					return
				}
			}
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate parses and validates a bearer token.
func (a *Authenticator) Authenticate(token string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return nil, err
	}
	identity, err := solana.PublicKeyFromBase58(strings.TrimSpace(subject))
	if err != nil {
		return nil, fmt.Errorf("subject is not a base58 identity: %w", err)
	}
	return &Principal{Identity: identity, Scopes: extractScopes(claims["scope"])}, nil
}

// IssueToken mints a token for identity. Used by operators and tests.
func IssueToken(secret []byte, identity solana.PublicKey, scopes []string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": identity.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func extractScopes(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func verifyRequestSignature(r *http.Request, identity solana.PublicKey) error {
	encoded := strings.TrimSpace(r.Header.Get(RequestSignatureHeader))
	if encoded == "" {
		return errors.New("request signature required")
	}
	sig, err := base58.Decode(encoded)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return errors.New("malformed request signature")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !ed25519.Verify(ed25519.PublicKey(identity[:]), body, sig) {
		return errors.New("request signature mismatch")
	}
	return nil
}

// SignRequest returns the RequestSignatureHeader value for body.
func SignRequest(key ed25519.PrivateKey, body []byte) string {
	return base58.Encode(ed25519.Sign(key, body))
}

func parseBearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
