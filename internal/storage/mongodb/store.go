// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
)

// Store implements storage.Store using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	gridfs *gridfs.Bucket

	// Collections
	agreements *mongo.Collection
	catalog    *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	GridFSBucket   string
	ChunkSizeBytes int32
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	// Connect to MongoDB
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	// Create GridFS bucket for artifact data
	bucketName := cfg.GridFSBucket
	if bucketName == "" {
		bucketName = "artifacts"
	}
	chunkSize := cfg.ChunkSizeBytes
	if chunkSize == 0 {
		chunkSize = 261120 // 255KB
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().
		SetName(bucketName).
		SetChunkSizeBytes(chunkSize))
	if err != nil {
		return nil, fmt.Errorf("creating GridFS bucket: %w", err)
	}

	s := &Store{
		client:     client,
		db:         db,
		gridfs:     bucket,
		agreements: db.Collection("agreements"),
		catalog:    db.Collection("catalog"),
	}

	// Create indexes
	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.agreements.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "remote_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "artifact_refs", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating agreement indexes: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// AgreementStore implementation

func (s *Store) CreateAgreement(ctx context.Context, agreement *storage.Agreement) error {
	agreement.CreatedAt = time.Now()
	agreement.UpdatedAt = agreement.CreatedAt

	_, err := s.agreements.InsertOne(ctx, agreement)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("agreement %s already exists", agreement.ID)
	}
	return err
}

func (s *Store) GetAgreement(ctx context.Context, id string) (*storage.Agreement, error) {
	return s.findAgreement(ctx, bson.M{"_id": id})
}

func (s *Store) GetAgreementByRemoteID(ctx context.Context, remoteID string) (*storage.Agreement, error) {
	return s.findAgreement(ctx, bson.M{"remote_id": remoteID})
}

func (s *Store) findAgreement(ctx context.Context, filter bson.M) (*storage.Agreement, error) {
	var agreement storage.Agreement
	err := s.agreements.FindOne(ctx, filter).Decode(&agreement)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agreement, nil
}

func (s *Store) ConfirmAgreement(ctx context.Context, id string) error {
	result, err := s.agreements.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"confirmed":  true,
			"updated_at": time.Now(),
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ArtifactStore implementation using GridFS. The artifact id is the file name;
// replacing an artifact uploads a new revision and readers get the newest.

func (s *Store) GetArtifactData(ctx context.Context, artifactID string, query *storage.Query) ([]byte, error) {
	var buf bytes.Buffer
	_, err := s.gridfs.DownloadToStreamByName(artifactID, &buf)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Store) PutArtifactData(ctx context.Context, artifactID string, data []byte) error {
	hash := sha256.Sum256(data)
	uploadOpts := options.GridFSUpload().SetMetadata(bson.M{
		"artifact_id": artifactID,
		"checksum":    hex.EncodeToString(hash[:]),
	})

	uploadStream, err := s.gridfs.OpenUploadStream(artifactID, uploadOpts)
	if err != nil {
		return fmt.Errorf("opening upload stream: %w", err)
	}
	defer uploadStream.Close()

	if _, err := uploadStream.Write(data); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	return nil
}

// CatalogStore implementation

type catalogDoc struct {
	ID        string    `bson:"_id"`
	Document  string    `bson:"document"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (s *Store) GetDescription(ctx context.Context, elementID string) ([]byte, error) {
	var doc catalogDoc
	err := s.catalog.FindOne(ctx, bson.M{"_id": catalogKey(elementID)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc.Document), nil
}

func (s *Store) PutDescription(ctx context.Context, elementID string, doc []byte) error {
	key := catalogKey(elementID)
	_, err := s.catalog.ReplaceOne(ctx, bson.M{"_id": key}, catalogDoc{
		ID:        key,
		Document:  string(doc),
		UpdatedAt: time.Now(),
	}, options.Replace().SetUpsert(true))
	return err
}

// selfDescriptionKey stores the self-description, which has no element id
const selfDescriptionKey = "self"

func catalogKey(elementID string) string {
	if elementID == "" {
		return selfDescriptionKey
	}
	return elementID
}
