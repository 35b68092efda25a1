package keystore

import (
	"fmt"

	"github.com/sebplorenz/DataspaceConnector/internal/config"
)

// NewProvider creates a KeyProvider based on the configuration
func NewProvider(cfg *config.KeysConfig) (KeyProvider, error) {
	switch cfg.Mode {
	case "file", "":
		return NewFileProvider(cfg.PrivateKeyFile, cfg.PublicKeyFile)
	default:
		return nil, fmt.Errorf("unknown key mode: %s", cfg.Mode)
	}
}
