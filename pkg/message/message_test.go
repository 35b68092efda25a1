package message

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = Identity{
	ConnectorID:  "https://consumer.example.com",
	SenderAgent:  "https://consumer.example.com/agent",
	ModelVersion: "4.2.7",
	Token:        "header.claims.signature",
}

func fixedBuilder() *Builder {
	issued := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	return NewBuilder(
		WithClock(func() time.Time { return issued }),
		WithIDGenerator(func() string { return "urn:message:1" }),
	)
}

func TestBuilder_ArtifactRequest(t *testing.T) {
	ctx := WithIdentity(context.Background(), testIdentity)

	h, err := fixedBuilder().Build(ctx, &ArtifactRequest{
		Recipient:         "https://provider.example.com/api/ids/data",
		RequestedArtifact: "urn:artifact:42",
		TransferContract:  "urn:agreement:7",
	})
	require.NoError(t, err)

	assert.Equal(t, TypeArtifactRequest, h.Type)
	assert.Equal(t, "urn:message:1", h.ID)
	assert.Equal(t, "4.2.7", h.ModelVersion)
	assert.Equal(t, testIdentity.ConnectorID, h.IssuerConnector)
	assert.Equal(t, testIdentity.SenderAgent, h.SenderAgent)
	assert.Equal(t, []string{"https://provider.example.com/api/ids/data"}, h.RecipientConnectors)
	assert.Equal(t, "urn:artifact:42", h.RequestedArtifact)
	assert.Equal(t, "urn:agreement:7", h.TransferContract)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 123000000, time.UTC), h.IssuedAt)
	require.NotNil(t, h.SecurityToken)
	assert.Equal(t, TokenFormatJWT, h.SecurityToken.Format)
	assert.Equal(t, testIdentity.Token, h.TokenValue())
}

func TestBuilder_RequiredFields(t *testing.T) {
	ctx := WithIdentity(context.Background(), testIdentity)

	tests := []struct {
		name string
		desc Description
	}{
		{"nil description", nil},
		{"artifact request without recipient", &ArtifactRequest{RequestedArtifact: "urn:artifact:1"}},
		{"artifact request without artifact", &ArtifactRequest{Recipient: "https://p"}},
		{"artifact response without correlation", &ArtifactResponse{Recipient: "https://p"}},
		{"description request without recipient", &DescriptionRequest{}},
		{"contract request without recipient", &ContractRequest{}},
		{"contract agreement without recipient", &ContractAgreement{}},
		{"log without recipient", &Log{}},
		{"notification without recipient", &Notification{}},
		{"processed without correlation", &MessageProcessed{Recipient: "https://p"}},
		{"rejection without reason", &Rejection{CorrelationMessage: "urn:message:0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewBuilder().Build(ctx, tt.desc)
			assert.Nil(t, h)
			assert.ErrorIs(t, err, ErrDescriptionInvalid)
		})
	}
}

func TestBuilder_NoIdentity(t *testing.T) {
	_, err := NewBuilder().Build(context.Background(), &Log{Recipient: "https://ch.example/logs"})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestBuilder_SenderAgentDefaultsToConnector(t *testing.T) {
	id := testIdentity
	id.SenderAgent = ""
	id.Token = ""
	ctx := WithIdentity(context.Background(), id)

	h, err := NewBuilder().Build(ctx, &Log{Recipient: "https://ch.example/logs"})
	require.NoError(t, err)
	assert.Equal(t, id.ConnectorID, h.SenderAgent)
	assert.Nil(t, h.SecurityToken)
	assert.Empty(t, h.TokenValue())
}

func TestBuilder_UniqueIDs(t *testing.T) {
	ctx := WithIdentity(context.Background(), testIdentity)
	b := NewBuilder()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		h, err := b.Build(ctx, &Log{Recipient: "https://ch.example/logs"})
		require.NoError(t, err)
		assert.False(t, seen[h.ID], "duplicate id %s", h.ID)
		seen[h.ID] = true
	}
}

func TestNewRejection(t *testing.T) {
	original := &Header{
		Type:            TypeArtifactRequest,
		ID:              "urn:message:original",
		IssuerConnector: "https://consumer.example.com",
	}

	rej := NewRejection(testIdentity, original, RejectionBadParameters)

	assert.Equal(t, TypeRejection, rej.Type)
	assert.Equal(t, "urn:message:original", rej.CorrelationMessage)
	assert.Equal(t, RejectionBadParameters, rej.RejectionReason)
	assert.Equal(t, []string{"https://consumer.example.com"}, rej.RecipientConnectors)
	assert.NotEqual(t, original.ID, rej.ID)
}

func TestNewRejection_NilOriginal(t *testing.T) {
	rej := NewRejection(testIdentity, nil, RejectionMalformedMessage)
	assert.Empty(t, rej.CorrelationMessage)
	assert.Empty(t, rej.RecipientConnectors)
	assert.Equal(t, RejectionMalformedMessage, rej.RejectionReason)
}

func TestMessageType_Auditable(t *testing.T) {
	assert.True(t, TypeArtifactRequest.Auditable())
	assert.True(t, TypeArtifactResponse.Auditable())
	assert.True(t, TypeContractRequest.Auditable())
	assert.True(t, TypeContractAgreement.Auditable())
	assert.False(t, TypeLog.Auditable())
	assert.False(t, TypeNotification.Auditable())
	assert.False(t, TypeMessageProcessed.Auditable())
	assert.False(t, TypeRejection.Auditable())
	assert.False(t, TypeDescriptionRequest.Auditable())
}

func TestHeader_Normalize(t *testing.T) {
	h := &Header{
		Type:            MessageType(NsIDS + "RejectionMessage"),
		RejectionReason: RejectionReason(NsIDSC + "NOT_FOUND"),
		SecurityToken:   &Token{Format: NsIDSC + "JWT"},
	}
	h.Normalize()

	assert.Equal(t, TypeRejection, h.Type)
	assert.Equal(t, RejectionNotFound, h.RejectionReason)
	assert.Equal(t, TokenFormatJWT, h.SecurityToken.Format)
}

func TestCompactExpandIRI(t *testing.T) {
	assert.Equal(t, "ids:LogMessage", CompactIRI("https://w3id.org/idsa/core/LogMessage"))
	assert.Equal(t, "idsc:JWT", CompactIRI("https://w3id.org/idsa/code/JWT"))
	assert.Equal(t, "urn:other", CompactIRI("urn:other"))
	assert.Equal(t, "https://w3id.org/idsa/core/LogMessage", ExpandIRI("ids:LogMessage"))
	assert.Equal(t, "https://w3id.org/idsa/code/JWT", ExpandIRI("idsc:JWT"))
}
