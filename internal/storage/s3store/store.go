// Package s3store keeps artifact data in an S3 compatible object store
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
)

// Store implements storage.ArtifactStore on S3.
// Artifact ids are URIs, so objects are keyed by their SHA-256.
type Store struct {
	client *s3.Client
	bucket string
	prefix string // Optional key prefix (e.g., "artifacts/")
}

// Config holds configuration for Store
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix    string
	PathStyle bool
}

// NewStore creates a new S3-backed artifact store
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return NewStoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewStoreWithClient wraps an existing client
func NewStoreWithClient(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(artifactID string) string {
	sum := sha256.Sum256([]byte(artifactID))
	return s.prefix + hex.EncodeToString(sum[:]) + ".blob"
}

// GetArtifactData downloads the artifact's object
func (s *Store) GetArtifactData(ctx context.Context, artifactID string, query *storage.Query) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(artifactID)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed for %s: %w", artifactID, err)
	}
	defer func() { _ = result.Body.Close() }()

	return io.ReadAll(result.Body)
}

// PutArtifactData uploads the artifact's object
func (s *Store) PutArtifactData(ctx context.Context, artifactID string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(artifactID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{"artifact-id": artifactID},
	})
	if err != nil {
		return fmt.Errorf("s3 put failed for %s: %w", artifactID, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
