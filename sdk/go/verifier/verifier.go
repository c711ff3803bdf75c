// Package verifier validates credcore access tokens on resource servers
// against the published JWKS document.
package verifier

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenType = "access"

	// DefaultMinRefreshInterval bounds JWKS fetches triggered by unknown kids.
	DefaultMinRefreshInterval = 30 * time.Second
)

var (
	ErrUnknownKid   = errors.New("kid not found in JWKS")
	ErrNoKeys       = errors.New("no usable keys in JWKS response")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the access token claims checked by Verify.
type Claims struct {
	Type       string            `json:"type"`
	Roles      []string          `json:"roles,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	jwt.RegisteredClaims
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.httpClient = c }
}

// WithClock overrides the time used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithMinRefreshInterval bounds how often an unknown kid may trigger a fetch.
// Zero lets every unknown kid fetch.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(v *Verifier) { v.minRefresh = d }
}

// Verifier caches the RS256 keys of a JWKS endpoint. It is safe for concurrent use.
type Verifier struct {
	jwksURL    string
	httpClient *http.Client
	now        func() time.Time
	minRefresh time.Duration

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
	etag string

	refreshMu      sync.Mutex
	lastKidRefresh time.Time
}

// New creates a Verifier for jwksURL. No request is made until the first
// Refresh or Verify.
func New(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		minRefresh: DefaultMinRefreshInterval,
		keys:       make(map[string]*rsa.PublicKey),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Refresh fetches the JWKS, sending the last ETag as If-None-Match.
// A 304 keeps the cached keys.
func (v *Verifier) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	return v.refreshLocked(ctx)
}

func (v *Verifier) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	v.mu.RLock()
	if v.etag != "" {
		req.Header.Set("If-None-Match", v.etag)
	}
	v.mu.RUnlock()

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: status code %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, key := range set.Keys {
		if key.Algorithm != string(jose.RS256) || key.KeyID == "" {
			continue
		}
		if pub, ok := key.Key.(*rsa.PublicKey); ok {
			keys[key.KeyID] = pub
		}
	}
	if len(keys) == 0 {
		return ErrNoKeys
	}

	v.mu.Lock()
	v.keys = keys
	v.etag = resp.Header.Get("ETag")
	v.mu.Unlock()
	return nil
}

// Kids returns the key ids currently cached.
func (v *Verifier) Kids() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.keys))
	for kid := range v.keys {
		out = append(out, kid)
	}
	return out
}

// Verify checks the RS256 signature, expiry and token type of tokenString.
// An unknown kid triggers at most one refresh before failing with ErrUnknownKid.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrInvalidToken)
	}

	key, ok := v.lookup(kid)
	if !ok {
		if err := v.refreshForKid(ctx, kid); err != nil {
			return nil, err
		}
		if key, ok = v.lookup(kid); !ok {
			return nil, ErrUnknownKid
		}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != accessTokenType || claims.Subject == "" {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	return claims, nil
}

func (v *Verifier) lookup(kid string) (*rsa.PublicKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok := v.keys[kid]
	return key, ok
}

// refreshForKid coalesces concurrent refreshes: a caller that waited on the
// lock skips the fetch when another caller already brought the kid in. Fetches
// triggered this way are spaced by minRefresh, so tokens carrying random kids
// cannot drive one request each to the JWKS endpoint.
func (v *Verifier) refreshForKid(ctx context.Context, kid string) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	if _, ok := v.lookup(kid); ok {
		return nil
	}
	now := v.now()
	if v.minRefresh > 0 && !v.lastKidRefresh.IsZero() && now.Sub(v.lastKidRefresh) < v.minRefresh {
		return ErrUnknownKid
	}
	v.lastKidRefresh = now
	return v.refreshLocked(ctx)
}
