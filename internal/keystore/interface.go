// Package keystore provides key material for issuing and verifying
// connector security tokens.
//
// The connector needs two kinds of keys:
//
//   - a private signing key for the tokens it presents to peers
//   - the public key of the token issuer, to verify tokens presented to it
//
// Only PEM files on disk are supported; see [FileProvider].
package keystore

import (
	"crypto"
	"errors"
)

// Common errors
var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrUnsupportedKey = errors.New("unsupported key type")
	ErrNoSigningKey   = errors.New("no signing key configured")
	ErrNoVerifyingKey = errors.New("no verification key configured")
)

// KeyProvider supplies token keys.
//
// Implementations must be safe for concurrent use.
type KeyProvider interface {
	// SigningKey returns the private key used to sign outgoing tokens.
	SigningKey() (crypto.Signer, error)

	// VerificationKey returns the public key used to verify inbound tokens.
	VerificationKey() (crypto.PublicKey, error)
}
