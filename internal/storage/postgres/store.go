// Package postgres implements storage interfaces on PostgreSQL through the
// pgx database/sql driver
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS agreements (
	id            TEXT PRIMARY KEY,
	remote_id     TEXT,
	value         TEXT NOT NULL,
	consumer_id   TEXT NOT NULL DEFAULT '',
	provider_id   TEXT NOT NULL DEFAULT '',
	confirmed     BOOLEAN NOT NULL DEFAULT FALSE,
	artifact_refs JSONB NOT NULL DEFAULT '[]',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS agreements_remote_id_idx ON agreements (remote_id);
CREATE TABLE IF NOT EXISTS artifacts (
	id         TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS catalog (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const agreementColumns = "id, remote_id, value, consumer_id, provider_id, confirmed, artifact_refs, created_at, updated_at"

// Store implements storage.Store using PostgreSQL
type Store struct {
	db *sql.DB
}

// Open connects to dsn and creates the tables if needed
func Open(ctx context.Context, dsn string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := NewStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they don't exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AgreementStore implementation

func (s *Store) CreateAgreement(ctx context.Context, a *storage.Agreement) error {
	refs, err := json.Marshal(nonNil(a.ArtifactRefs))
	if err != nil {
		return fmt.Errorf("encoding artifact refs: %w", err)
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO agreements ("+agreementColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		a.ID, nullString(a.RemoteID), a.Value, a.ConsumerID, a.ProviderID, a.Confirmed, string(refs), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create agreement: %w", err)
	}
	return nil
}

func (s *Store) GetAgreement(ctx context.Context, id string) (*storage.Agreement, error) {
	return s.getAgreement(ctx, "SELECT "+agreementColumns+" FROM agreements WHERE id = $1", id)
}

func (s *Store) GetAgreementByRemoteID(ctx context.Context, remoteID string) (*storage.Agreement, error) {
	return s.getAgreement(ctx, "SELECT "+agreementColumns+" FROM agreements WHERE remote_id = $1", remoteID)
}

func (s *Store) getAgreement(ctx context.Context, query, arg string) (*storage.Agreement, error) {
	var (
		a        storage.Agreement
		remoteID sql.NullString
		refs     string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &remoteID, &a.Value, &a.ConsumerID, &a.ProviderID, &a.Confirmed, &refs, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	a.RemoteID = remoteID.String
	if err := json.Unmarshal([]byte(refs), &a.ArtifactRefs); err != nil {
		return nil, fmt.Errorf("decoding artifact refs: %w", err)
	}
	return &a, nil
}

func (s *Store) ConfirmAgreement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE agreements SET confirmed = TRUE, updated_at = $2 WHERE id = $1", id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to confirm agreement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm agreement: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ArtifactStore implementation

func (s *Store) GetArtifactData(ctx context.Context, artifactID string, query *storage.Query) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM artifacts WHERE id = $1", artifactID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return data, nil
}

func (s *Store) PutArtifactData(ctx context.Context, artifactID string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		artifactID, data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}
	return nil
}

// CatalogStore implementation

func (s *Store) GetDescription(ctx context.Context, elementID string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT document FROM catalog WHERE id = $1", elementID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get description: %w", err)
	}
	return []byte(doc), nil
}

func (s *Store) PutDescription(ctx context.Context, elementID string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog (id, document, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		elementID, string(doc), time.Now())
	if err != nil {
		return fmt.Errorf("failed to store description: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}
