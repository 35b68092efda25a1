// Package auth issues and validates the dynamic attribute tokens (DAT) that
// connectors attach to every message header.
//
// Tokens are JWTs. Verification keys come either from a configured public
// key or from the issuer's JWKS endpoint.
package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/internal/keystore"
)

// Sentinel errors for token failures.
// Every validation failure wraps ErrInvalidToken; the more specific errors
// are wrapped alongside it where they apply.
var (
	// ErrNoToken indicates the header carried no token.
	ErrNoToken = errors.New("no security token provided")

	// ErrInvalidToken indicates the token is malformed or has an invalid signature.
	ErrInvalidToken = errors.New("invalid security token")

	// ErrTokenExpired indicates the token's exp claim is in the past.
	ErrTokenExpired = errors.New("token has expired")

	// ErrInvalidAudience indicates the token's aud claim doesn't include the configured audience.
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrInvalidIssuer indicates the token's iss claim doesn't match the configured issuer.
	ErrInvalidIssuer = errors.New("invalid issuer")
)

// validMethods lists the signature algorithms accepted on inbound tokens
var validMethods = []string{"RS256", "RS384", "RS512", "PS256", "ES256", "ES384", "EdDSA"}

// Claims are the DAT claims
type Claims struct {
	jwt.RegisteredClaims

	ReferringConnector string   `json:"referringConnector,omitempty"`
	SecurityProfile    string   `json:"securityProfile,omitempty"`
	Scopes             []string `json:"scopes,omitempty"`
}

// ValidatorConfig configures a Validator
type ValidatorConfig struct {
	Issuer   string
	Audience string
	JWKSUrl  string
	Leeway   time.Duration
	Keys     keystore.KeyProvider
	Logger   *zap.Logger
}

// Validator checks inbound tokens
type Validator struct {
	config ValidatorConfig
	logger *zap.Logger
	client *http.Client

	// Cached JWKS
	jwksMu     sync.RWMutex
	jwksKeys   map[string]crypto.PublicKey
	jwksExpiry time.Time
}

// NewValidator creates a new token validator
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if cfg.JWKSUrl == "" && cfg.Keys == nil {
		return nil, errors.New("either a JWKS URL or a key provider is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		config:   cfg,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		jwksKeys: make(map[string]crypto.PublicKey),
	}, nil
}

// ValidateToken validates token and discards its claims
func (v *Validator) ValidateToken(ctx context.Context, token string) error {
	_, err := v.Parse(ctx, token)
	return err
}

// Parse validates token and returns its claims
func (v *Validator) Parse(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrNoToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(validMethods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.config.Leeway),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key(ctx, t)
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenExpired)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrInvalidIssuer)
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrInvalidAudience)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	return claims, nil
}

func (v *Validator) key(ctx context.Context, t *jwt.Token) (crypto.PublicKey, error) {
	if v.config.JWKSUrl == "" {
		return v.config.Keys.VerificationKey()
	}
	kid, _ := t.Header["kid"].(string)
	return v.getKey(ctx, kid)
}

func (v *Validator) getKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	// Check cache first
	v.jwksMu.RLock()
	if key, ok := v.jwksKeys[kid]; ok && time.Now().Before(v.jwksExpiry) {
		v.jwksMu.RUnlock()
		return key, nil
	}
	v.jwksMu.RUnlock()

	if err := v.refreshJWKS(ctx); err != nil {
		return nil, err
	}

	v.jwksMu.RLock()
	defer v.jwksMu.RUnlock()

	key, ok := v.jwksKeys[kid]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", kid)
	}
	return key, nil
}

func (v *Validator) refreshJWKS(ctx context.Context) error {
	v.jwksMu.Lock()
	defer v.jwksMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.JWKSUrl, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS fetch failed: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading JWKS: %w", err)
	}

	var jwks JWKS
	if err := json.Unmarshal(body, &jwks); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]crypto.PublicKey)
	for _, k := range jwks.Keys {
		if k.Use != "sig" && k.Use != "" {
			continue
		}
		pk, err := k.PublicKey()
		if err != nil {
			v.logger.Warn("failed to parse JWK", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pk
	}

	v.jwksKeys = keys
	v.jwksExpiry = time.Now().Add(1 * time.Hour)

	v.logger.Info("refreshed JWKS", zap.Int("keys", len(keys)))
	return nil
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// PublicKey converts a JWK to an RSA or EC public key
func (j *JWK) PublicKey() (crypto.PublicKey, error) {
	switch j.Kty {
	case "RSA":
		n, err := decodeB64Int(j.N)
		if err != nil {
			return nil, fmt.Errorf("decoding modulus: %w", err)
		}
		e, err := decodeB64Int(j.E)
		if err != nil {
			return nil, fmt.Errorf("decoding exponent: %w", err)
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	case "EC":
		var curve elliptic.Curve
		switch j.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		default:
			return nil, fmt.Errorf("unsupported curve: %s", j.Crv)
		}
		x, err := decodeB64Int(j.X)
		if err != nil {
			return nil, fmt.Errorf("decoding x: %w", err)
		}
		y, err := decodeB64Int(j.Y)
		if err != nil {
			return nil, fmt.Errorf("decoding y: %w", err)
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", j.Kty)
	}
}

func decodeB64Int(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
