package keystore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebplorenz/DataspaceConnector/internal/config"
)

func writePEM(t *testing.T, dir, name, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestFileProvider_ECKeys(t *testing.T) {
	dir := t.TempDir()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	privPath := writePEM(t, dir, "connector.key", "PRIVATE KEY", privDER)
	pubPath := writePEM(t, dir, "issuer.pub", "PUBLIC KEY", pubDER)

	p, err := NewFileProvider(privPath, pubPath)
	require.NoError(t, err)

	signer, err := p.SigningKey()
	require.NoError(t, err)
	assert.IsType(t, &ecdsa.PrivateKey{}, signer)

	pub, err := p.VerificationKey()
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	// cached
	again, err := p.SigningKey()
	require.NoError(t, err)
	assert.Same(t, signer.(*ecdsa.PrivateKey), again.(*ecdsa.PrivateKey))
}

func TestFileProvider_RSAPKCS1(t *testing.T) {
	dir := t.TempDir()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPath := writePEM(t, dir, "connector.key", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
	pubPath := writePEM(t, dir, "issuer.pub", "RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&key.PublicKey))

	p, err := NewFileProvider(privPath, pubPath)
	require.NoError(t, err)

	signer, err := p.SigningKey()
	require.NoError(t, err)
	assert.IsType(t, &rsa.PrivateKey{}, signer)

	pub, err := p.VerificationKey()
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))
}

func TestFileProvider_MissingFiles(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.key"), "")
	assert.Error(t, err)

	p, err := NewFileProvider("", "")
	require.NoError(t, err)

	_, err = p.SigningKey()
	assert.ErrorIs(t, err, ErrNoSigningKey)
	_, err = p.VerificationKey()
	assert.ErrorIs(t, err, ErrNoVerifyingKey)
}

func TestParsePrivateKey_Invalid(t *testing.T) {
	_, err := ParsePrivateKey([]byte("not pem"))
	assert.Error(t, err)

	data := pem.EncodeToMemory(&pem.Block{Type: "OPENSSH PRIVATE KEY", Bytes: []byte{1, 2, 3}})
	_, err = ParsePrivateKey(data)
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(&config.KeysConfig{Mode: "file"})
	require.NoError(t, err)
	assert.IsType(t, &FileProvider{}, p)

	_, err = NewProvider(&config.KeysConfig{Mode: "pkcs11"})
	assert.Error(t, err)
}
