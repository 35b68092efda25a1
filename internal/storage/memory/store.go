// Package memory implements the storage interfaces with in-process maps
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
)

// Store implements storage.Store in memory
type Store struct {
	mu         sync.RWMutex
	agreements map[string]*storage.Agreement
	artifacts  map[string][]byte
	catalog    map[string][]byte
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		agreements: make(map[string]*storage.Agreement),
		artifacts:  make(map[string][]byte),
		catalog:    make(map[string][]byte),
	}
}

// Close is a no-op
func (s *Store) Close(ctx context.Context) error { return nil }

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error { return nil }

// AgreementStore implementation

func (s *Store) CreateAgreement(ctx context.Context, agreement *storage.Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agreement.CreatedAt = time.Now()
	agreement.UpdatedAt = agreement.CreatedAt
	s.agreements[agreement.ID] = clone(agreement)
	return nil
}

func (s *Store) GetAgreement(ctx context.Context, id string) (*storage.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agreements[id]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

func (s *Store) GetAgreementByRemoteID(ctx context.Context, remoteID string) (*storage.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.agreements {
		if a.RemoteID == remoteID {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (s *Store) ConfirmAgreement(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Confirmed = true
	a.UpdatedAt = time.Now()
	return nil
}

// ArtifactStore implementation

func (s *Store) GetArtifactData(ctx context.Context, artifactID string, query *storage.Query) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.artifacts[artifactID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) PutArtifactData(ctx context.Context, artifactID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.artifacts[artifactID] = append([]byte(nil), data...)
	return nil
}

// CatalogStore implementation

func (s *Store) GetDescription(ctx context.Context, elementID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.catalog[elementID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (s *Store) PutDescription(ctx context.Context, elementID string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalog[elementID] = append([]byte(nil), doc...)
	return nil
}

func clone(a *storage.Agreement) *storage.Agreement {
	c := *a
	c.ArtifactRefs = append([]string(nil), a.ArtifactRefs...)
	return &c
}
