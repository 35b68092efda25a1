package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sebplorenz/DataspaceConnector/internal/keystore"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
)

// refreshMargin is how long before expiry a cached token is replaced
const refreshMargin = 30 * time.Second

// IssuerConfig configures an Issuer
type IssuerConfig struct {
	Issuer          string
	Subject         string
	Audience        string
	SecurityProfile string
	Scopes          []string
	TTL             time.Duration
	Keys            keystore.KeyProvider
}

// Issuer signs DATs for outbound messages.
// The last token is reused until it is close to expiry.
type Issuer struct {
	config IssuerConfig
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewIssuer creates a token issuer
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Keys == nil {
		return nil, fmt.Errorf("%w: no key provider", keystore.ErrNoSigningKey)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Issuer{config: cfg, now: time.Now}, nil
}

// Token returns a valid signed token
func (i *Issuer) Token(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if i.token != "" && now.Add(refreshMargin).Before(i.expires) {
		return i.token, nil
	}

	signer, err := i.config.Keys.SigningKey()
	if err != nil {
		return "", fmt.Errorf("loading signing key: %w", err)
	}
	method, err := signingMethod(signer)
	if err != nil {
		return "", err
	}

	expires := now.Add(i.config.TTL)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    i.config.Issuer,
			Subject:   i.config.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		ReferringConnector: i.config.Subject,
		SecurityProfile:    i.config.SecurityProfile,
		Scopes:             i.config.Scopes,
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(signer)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	i.token = signed
	i.expires = expires
	return signed, nil
}

// WithIdentity returns ctx carrying base with a fresh token attached
func (i *Issuer) WithIdentity(ctx context.Context, base message.Identity) (context.Context, error) {
	token, err := i.Token(ctx)
	if err != nil {
		return ctx, err
	}
	base.Token = token
	return message.WithIdentity(ctx, base), nil
}

func signingMethod(signer crypto.Signer) (jwt.SigningMethod, error) {
	switch k := signer.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return jwt.SigningMethodES256, nil
		case elliptic.P384():
			return jwt.SigningMethodES384, nil
		}
		return nil, fmt.Errorf("%w: curve %s", keystore.ErrUnsupportedKey, k.Curve.Params().Name)
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("%w: %T", keystore.ErrUnsupportedKey, signer)
	}
}
