package keystore

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
)

// FileProvider implements KeyProvider using PEM files on disk.
//
// The signing key may be PKCS#1, SEC 1 or PKCS#8 encoded. The verification
// key may be a PKIX public key or a certificate. Keys are read once and
// cached.
type FileProvider struct {
	privateKeyFile string
	publicKeyFile  string

	mu        sync.Mutex
	signer    crypto.Signer
	publicKey crypto.PublicKey
}

// NewFileProvider creates a new file-based key provider. Either path may be
// empty, in which case the matching accessor returns an error.
func NewFileProvider(privateKeyFile, publicKeyFile string) (*FileProvider, error) {
	for _, path := range []string{privateKeyFile, publicKeyFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("checking key file: %w", err)
		}
	}
	return &FileProvider{
		privateKeyFile: privateKeyFile,
		publicKeyFile:  publicKeyFile,
	}, nil
}

// SigningKey returns the private signing key
func (p *FileProvider) SigningKey() (crypto.Signer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.signer != nil {
		return p.signer, nil
	}
	if p.privateKeyFile == "" {
		return nil, ErrNoSigningKey
	}

	keyPEM, err := os.ReadFile(p.privateKeyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	p.signer = key
	return key, nil
}

// VerificationKey returns the token issuer's public key
func (p *FileProvider) VerificationKey() (crypto.PublicKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.publicKey != nil {
		return p.publicKey, nil
	}
	if p.publicKeyFile == "" {
		return nil, ErrNoVerifyingKey
	}

	keyPEM, err := os.ReadFile(p.publicKeyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("reading public key file: %w", err)
	}

	key, err := ParsePublicKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	p.publicKey = key
	return key, nil
}

// ParsePrivateKey decodes the first PEM block in pemData as a private key
func ParsePrivateKey(pemData []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("%w: key is not a signer", ErrUnsupportedKey)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKey, block.Type)
	}
}

// ParsePublicKey decodes the first PEM block in pemData as a public key or
// certificate
func ParsePublicKey(pemData []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		return cert.PublicKey, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKey, block.Type)
	}
}
