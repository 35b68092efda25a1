// Package config handles configuration loading for the connector.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows sensitive values
// like database credentials and API keys to be injected at runtime.
//
// # Configuration Sections
//
//   - connector: identity of this connector and accepted model versions
//   - server: HTTP server settings (port, TLS, base path, rate limit)
//   - storage: backend selection (memory, mongodb, postgres, s3)
//   - usageControl: policy negotiation and usage counter settings
//   - clearingHouse: audit log endpoint; empty disables auditing
//   - security: token issuing and validation
//   - transport: outbound client settings
//   - logging and observability
//
// # Example Configuration
//
//	connector:
//	  id: https://connector-a.example.org
//	  modelVersion: 4.0.0
//	  inboundModelVersions: ["^4.0"]
//	  replayWindow: 10m
//
//	server:
//	  port: 8080
//	  basePath: /api/ids
//
//	storage:
//	  type: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: connector
//
//	security:
//	  issuer: https://daps.example.org
//	  keys:
//	    privateKeyFile: /etc/connector/key.pem
//	    publicKeyFile: /etc/connector/daps.pem
//
// See [Load] for loading configuration from a file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names
const (
	StorageMemory   = "memory"
	StorageMongoDB  = "mongodb"
	StoragePostgres = "postgres"
)

// Config is the root configuration structure
type Config struct {
	Connector     ConnectorConfig     `yaml:"connector"`
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	UsageControl  UsageControlConfig  `yaml:"usageControl"`
	ClearingHouse ClearingHouseConfig `yaml:"clearingHouse"`
	Security      SecurityConfig      `yaml:"security"`
	Transport     TransportConfig     `yaml:"transport"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"observability"`
}

// ConnectorConfig describes this connector
type ConnectorConfig struct {
	ID           string `yaml:"id"`
	SenderAgent  string `yaml:"senderAgent"`
	ModelVersion string `yaml:"modelVersion"`
	// InboundModelVersions lists semver constraints or exact versions
	// accepted on inbound messages
	InboundModelVersions []string `yaml:"inboundModelVersions"`
	// ReplayWindow is how long inbound message ids are remembered to
	// reject replays. Zero disables replay detection.
	ReplayWindow time.Duration `yaml:"replayWindow"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"basePath"`
	AdminKey string `yaml:"adminKey"` // API key for admin endpoints
	TLS      struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
	} `yaml:"tls"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig holds inbound rate limit settings. A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	// Type selects the agreement and catalog backend: memory, mongodb or postgres
	Type     string         `yaml:"type"`
	MongoDB  MongoDBConfig  `yaml:"mongodb"`
	Postgres PostgresConfig `yaml:"postgres"`
	// S3, when a bucket is set, holds artifact data instead of the main backend
	S3 S3Config `yaml:"s3"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	GridFS   struct {
		BucketName     string `yaml:"bucketName"`
		ChunkSizeBytes int    `yaml:"chunkSizeBytes"`
	} `yaml:"gridfs"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

// S3Config holds object store settings
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"pathStyle"`
}

// UsageControlConfig holds policy enforcement settings
type UsageControlConfig struct {
	// PolicyNegotiation enables contract checks and PEP enforcement on artifact requests
	PolicyNegotiation bool        `yaml:"policyNegotiation"`
	Redis             RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings. An empty address keeps
// usage counters in memory.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ClearingHouseConfig holds audit log settings
type ClearingHouseConfig struct {
	URI string `yaml:"uri"`
}

// SecurityConfig holds token settings
type SecurityConfig struct {
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	JWKSUrl  string        `yaml:"jwksUrl"`
	TokenTTL time.Duration `yaml:"tokenTTL"`
	Leeway   time.Duration `yaml:"leeway"`
	Keys     KeysConfig    `yaml:"keys"`

	// DisableTokenValidation skips inbound token checks (development only)
	DisableTokenValidation bool `yaml:"disableTokenValidation"`
}

// KeysConfig holds key management settings
type KeysConfig struct {
	// Mode determines how keys are loaded. Only "file" is supported.
	Mode           string `yaml:"mode"`
	PrivateKeyFile string `yaml:"privateKeyFile"`
	PublicKeyFile  string `yaml:"publicKeyFile"`
}

// TransportConfig holds outbound client settings
type TransportConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	BreakerMaxFailures uint32        `yaml:"breakerMaxFailures"`
	BreakerOpenTimeout time.Duration `yaml:"breakerOpenTimeout"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig holds observability settings
type MetricsConfig struct {
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates configuration from YAML
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Connector.ModelVersion == "" {
		c.Connector.ModelVersion = "4.0.0"
	}
	if c.Connector.SenderAgent == "" {
		c.Connector.SenderAgent = c.Connector.ID
	}
	if len(c.Connector.InboundModelVersions) == 0 {
		c.Connector.InboundModelVersions = []string{c.Connector.ModelVersion}
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api/ids"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = StorageMemory
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "connector"
	}
	if c.Storage.MongoDB.GridFS.BucketName == "" {
		c.Storage.MongoDB.GridFS.BucketName = "artifacts"
	}
	if c.Storage.MongoDB.GridFS.ChunkSizeBytes == 0 {
		c.Storage.MongoDB.GridFS.ChunkSizeBytes = 261120 // 255KB
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 10
	}
	if c.Storage.S3.Region == "" {
		c.Storage.S3.Region = "us-east-1"
	}
	if c.Security.TokenTTL == 0 {
		c.Security.TokenTTL = time.Hour
	}
	if c.Security.Leeway == 0 {
		c.Security.Leeway = 30 * time.Second
	}
	if c.Security.Keys.Mode == "" {
		c.Security.Keys.Mode = "file"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 30 * time.Second
	}
	if c.Transport.BreakerMaxFailures == 0 {
		c.Transport.BreakerMaxFailures = 5
	}
	if c.Transport.BreakerOpenTimeout == 0 {
		c.Transport.BreakerOpenTimeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Metrics.Path == "" {
		c.Metrics.Metrics.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if c.Connector.ID == "" {
		return fmt.Errorf("connector.id is required")
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageMongoDB:
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required when type is 'mongodb'")
		}
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required when type is 'postgres'")
		}
	default:
		return fmt.Errorf("storage.type must be 'memory', 'mongodb', or 'postgres', got '%s'", c.Storage.Type)
	}

	if c.Security.Keys.Mode != "file" {
		return fmt.Errorf("security.keys.mode must be 'file', got '%s'", c.Security.Keys.Mode)
	}
	if !c.Security.DisableTokenValidation && c.Security.JWKSUrl == "" && c.Security.Keys.PublicKeyFile == "" {
		return fmt.Errorf("security.jwksUrl or security.keys.publicKeyFile is required unless token validation is disabled")
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.certFile and server.tls.keyFile are required when TLS is enabled")
	}
	if c.Connector.ReplayWindow < 0 {
		return fmt.Errorf("connector.replayWindow must not be negative")
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("server.rateLimit.requestsPerSecond must not be negative")
	}

	return nil
}
