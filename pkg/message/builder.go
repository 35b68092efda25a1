package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDescriptionInvalid is returned when a description lacks a required field
	ErrDescriptionInvalid = errors.New("message description invalid")
	// ErrNoIdentity is returned when the context carries no connector identity
	ErrNoIdentity = errors.New("no connector identity in context")
)

// Builder constructs headers from descriptions.
// A Builder holds no per-message state and is safe for concurrent use.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// Option represents a functional option for Builder
type Option func(*Builder)

// NewBuilder creates a Builder with the given options
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:   time.Now,
		newID: generateMessageID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithClock sets the time source used for the issued timestamp
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// WithIDGenerator sets the message id generator
func WithIDGenerator(gen func() string) Option {
	return func(b *Builder) {
		b.newID = gen
	}
}

// Build returns the header for desc, filled with the identity found in ctx.
func (b *Builder) Build(ctx context.Context, desc Description) (*Header, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: description is nil", ErrDescriptionInvalid)
	}
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, ErrNoIdentity
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	h := newHeader(id, desc.MessageType(), b.newID(), b.now())
	desc.Apply(h)
	return h, nil
}

// NewRejection creates a rejection for original. The rejection always
// references the original message id so the peer can correlate it; when the
// original header is missing the correlation is left empty.
func NewRejection(id Identity, original *Header, reason RejectionReason) *Header {
	h := newHeader(id, TypeRejection, generateMessageID(), time.Now())
	h.RejectionReason = reason
	if original != nil {
		h.CorrelationMessage = original.ID
		if original.IssuerConnector != "" {
			h.RecipientConnectors = []string{original.IssuerConnector}
		}
	}
	return h
}

func newHeader(id Identity, t MessageType, msgID string, issued time.Time) *Header {
	h := &Header{
		Context:         DefaultContext,
		Type:            t,
		ID:              msgID,
		ModelVersion:    id.ModelVersion,
		IssuedAt:        issued.UTC().Truncate(time.Millisecond),
		IssuerConnector: id.ConnectorID,
		SenderAgent:     id.SenderAgent,
	}
	if h.SenderAgent == "" {
		h.SenderAgent = id.ConnectorID
	}
	if id.Token != "" {
		h.SecurityToken = &Token{
			Type:   "ids:DynamicAttributeToken",
			ID:     "urn:token:" + uuid.New().String(),
			Format: TokenFormatJWT,
			Value:  id.Token,
		}
	}
	return h
}

// generateMessageID returns a fresh message URI
func generateMessageID() string {
	return "urn:message:" + uuid.New().String()
}
