// Package storage provides persistence interfaces and implementations
// for the connector.
//
// # Interface Design
//
// The storage layer is organized into focused interfaces:
//
//   - [AgreementStore]: negotiated contract agreements
//   - [ArtifactStore]: artifact data released to consumers
//   - [CatalogStore]: self-description and catalog elements
//
// The [Store] interface combines all sub-stores for convenience.
//
// # Implementations
//
//   - memory: in-process maps, used in tests and single-node setups
//   - mongodb: collections for agreements and catalog, GridFS for artifact data
//   - postgres: tables accessed through the pgx database/sql driver
//   - s3store: artifact data only, combined with another backend via [Combine]
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an artifact or catalog element does not exist
var ErrNotFound = errors.New("not found")

// Store is the main storage interface combining all sub-stores
type Store interface {
	AgreementStore
	ArtifactStore
	CatalogStore

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks backend connectivity
	Ping(ctx context.Context) error
}

// AgreementStore manages contract agreements.
// Lookups of a missing agreement return nil, nil.
type AgreementStore interface {
	// CreateAgreement stores a new agreement
	CreateAgreement(ctx context.Context, agreement *Agreement) error

	// GetAgreement retrieves an agreement by its URI
	GetAgreement(ctx context.Context, id string) (*Agreement, error)

	// GetAgreementByRemoteID retrieves an agreement by the id the peer assigned
	GetAgreementByRemoteID(ctx context.Context, remoteID string) (*Agreement, error)

	// ConfirmAgreement marks an agreement as accepted by both parties.
	// It returns ErrNotFound when no agreement has the id.
	ConfirmAgreement(ctx context.Context, id string) error
}

// ArtifactStore manages artifact data
type ArtifactStore interface {
	// GetArtifactData returns the bytes of an artifact or ErrNotFound.
	// query is passed through for backends that fetch data on demand and
	// may be nil.
	GetArtifactData(ctx context.Context, artifactID string, query *Query) ([]byte, error)

	// PutArtifactData stores or replaces the bytes of an artifact
	PutArtifactData(ctx context.Context, artifactID string, data []byte) error
}

// CatalogStore manages self-description and catalog documents
type CatalogStore interface {
	// GetDescription returns the document of a catalog element or ErrNotFound.
	// An empty elementID selects the connector's self-description.
	GetDescription(ctx context.Context, elementID string) ([]byte, error)

	// PutDescription stores or replaces a catalog document
	PutDescription(ctx context.Context, elementID string, doc []byte) error
}

// Domain models

// Agreement is a contract agreement between a consumer and a provider
type Agreement struct {
	ID       string `bson:"_id" json:"id"`
	RemoteID string `bson:"remote_id,omitempty" json:"remoteId,omitempty"`

	// Value is the agreement document as exchanged on the wire
	Value string `bson:"value" json:"value"`

	ConsumerID string `bson:"consumer_id" json:"consumerId"`
	ProviderID string `bson:"provider_id" json:"providerId"`
	Confirmed  bool   `bson:"confirmed" json:"confirmed"`

	// ArtifactRefs lists the artifacts the agreement covers
	ArtifactRefs []string `bson:"artifact_refs" json:"artifactRefs"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Covers reports whether artifactID is one of the agreement's artifacts
func (a *Agreement) Covers(artifactID string) bool {
	for _, ref := range a.ArtifactRefs {
		if ref == artifactID {
			return true
		}
	}
	return false
}

// Query carries the optional parameters of an artifact request
type Query struct {
	Parameters map[string]string `json:"parameters,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Optional   string            `json:"optional,omitempty"`
}

// Combined routes artifact data to a dedicated store and everything else
// to a primary one
type Combined struct {
	Store
	Artifacts ArtifactStore
}

// Combine returns primary with its artifact operations served by artifacts.
// A nil artifacts store returns primary unchanged.
func Combine(primary Store, artifacts ArtifactStore) Store {
	if artifacts == nil {
		return primary
	}
	return &Combined{Store: primary, Artifacts: artifacts}
}

// GetArtifactData reads from the artifact store
func (c *Combined) GetArtifactData(ctx context.Context, artifactID string, query *Query) ([]byte, error) {
	return c.Artifacts.GetArtifactData(ctx, artifactID, query)
}

// PutArtifactData writes to the artifact store
func (c *Combined) PutArtifactData(ctx context.Context, artifactID string, data []byte) error {
	return c.Artifacts.PutArtifactData(ctx, artifactID, data)
}
