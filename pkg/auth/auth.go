// Package auth verifies the identity provider's HS256 access tokens and
// carries the caller's identity through request contexts.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultUserName is used when a token carries no display name.
const DefaultUserName = "Değerli Kullanıcı"

var (
	// ErrMissingToken is returned when the request has no bearer token.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   string `json:"id"`
	UserName string `json:"name"`
	Email    string `json:"email,omitempty"`
}

// Claims are the access-token claims the backend reads.
type Claims struct {
	jwt.RegisteredClaims
	Email        string       `json:"email,omitempty"`
	Role         string       `json:"role,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata,omitzero"`
}

// UserMetadata is the profile block of the token.
type UserMetadata struct {
	Name string `json:"name,omitempty"`
}

// Verifier validates access tokens signed with a shared secret.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithIssuer requires the iss claim.
func WithIssuer(iss string) Option { return func(v *Verifier) { v.issuer = iss } }

// WithAudience requires aud to contain aud.
func WithAudience(aud string) Option { return func(v *Verifier) { v.audience = aud } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(v *Verifier) { v.now = now } }

// WithLogger sets the logger for rejected requests.
func WithLogger(l *slog.Logger) Option { return func(v *Verifier) { v.logger = l } }

// NewVerifier returns a verifier for secret.
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	v := &Verifier{secret: []byte(secret), now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Verify checks signature, expiry and the configured issuer and audience.
func (v *Verifier) Verify(token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	id := Identity{UserID: claims.Subject, UserName: claims.UserMetadata.Name, Email: claims.Email}
	if strings.TrimSpace(id.UserName) == "" {
		id.UserName = DefaultUserName
	}
	return id, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// Identity in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err == nil {
			var id Identity
			if id, err = v.Verify(token); err == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
				return
			}
		}
		v.logger.Debug("unauthorized request", "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	})
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Issue signs a token for id. Used for development logins and tests.
func Issue(secret string, id Identity, ttl time.Duration, opts ...Option) (string, error) {
	v := &Verifier{now: time.Now}
	for _, o := range opts {
		o(v)
	}
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:        id.Email,
		Role:         "authenticated",
		UserMetadata: UserMetadata{Name: id.UserName},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
