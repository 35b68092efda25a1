// Package message provides protocol message headers and their builders.
package message

import (
	"time"
)

// MessageType identifies the concrete kind of a protocol message
type MessageType string

// Message types exchanged between connectors
const (
	TypeDescriptionRequest  MessageType = "ids:DescriptionRequestMessage"
	TypeDescriptionResponse MessageType = "ids:DescriptionResponseMessage"
	TypeContractRequest     MessageType = "ids:ContractRequestMessage"
	TypeContractAgreement   MessageType = "ids:ContractAgreementMessage"
	TypeContractRejection   MessageType = "ids:ContractRejectionMessage"
	TypeArtifactRequest     MessageType = "ids:ArtifactRequestMessage"
	TypeArtifactResponse    MessageType = "ids:ArtifactResponseMessage"
	TypeLog                 MessageType = "ids:LogMessage"
	TypeNotification        MessageType = "ids:NotificationMessage"
	TypeMessageProcessed    MessageType = "ids:MessageProcessedNotificationMessage"
	TypeRejection           MessageType = "ids:RejectionMessage"
)

// Auditable reports whether exchanges of this type are recorded at the
// clearing house. Log and notification traffic is never audited, otherwise
// every audit record would produce another one.
func (t MessageType) Auditable() bool {
	switch t {
	case TypeContractRequest, TypeContractAgreement, TypeContractRejection,
		TypeArtifactRequest, TypeArtifactResponse:
		return true
	default:
		return false
	}
}

// IsRejection reports whether the type signals a refused request.
func (t MessageType) IsRejection() bool {
	return t == TypeRejection || t == TypeContractRejection
}

func (t MessageType) String() string {
	return string(t)
}

// RejectionReason is the machine-readable cause carried by a rejection
type RejectionReason string

// Rejection reasons
const (
	RejectionBadParameters          RejectionReason = "idsc:BAD_PARAMETERS"
	RejectionVersionNotSupported    RejectionReason = "idsc:VERSION_NOT_SUPPORTED"
	RejectionPolicyRestriction      RejectionReason = "idsc:POLICY_RESTRICTION"
	RejectionInternalRecipientError RejectionReason = "idsc:INTERNAL_RECIPIENT_ERROR"
	RejectionNotFound               RejectionReason = "idsc:NOT_FOUND"
	RejectionNotAuthenticated       RejectionReason = "idsc:NOT_AUTHENTICATED"
	RejectionMalformedMessage       RejectionReason = "idsc:MALFORMED_MESSAGE"
	RejectionMessageTypeUnsupported RejectionReason = "idsc:MESSAGE_TYPE_NOT_SUPPORTED"
)

func (r RejectionReason) String() string {
	return string(r)
}

// Token formats
const (
	TokenFormatJWT = "idsc:JWT"
)

// Token is the security token attached to every header
type Token struct {
	Type   string `json:"@type,omitempty"`
	ID     string `json:"@id,omitempty"`
	Format string `json:"ids:tokenFormat"`
	Value  string `json:"ids:tokenValue"`
}

// Header is the structured part of a protocol message.
//
// The common fields are shared by every message kind. The remaining fields
// are only set for the kinds that use them.
type Header struct {
	Context             map[string]string `json:"@context,omitempty"`
	Type                MessageType       `json:"@type"`
	ID                  string            `json:"@id"`
	ModelVersion        string            `json:"ids:modelVersion"`
	IssuedAt            time.Time         `json:"ids:issued"`
	IssuerConnector     string            `json:"ids:issuerConnector"`
	SenderAgent         string            `json:"ids:senderAgent"`
	SecurityToken       *Token            `json:"ids:securityToken,omitempty"`
	RecipientConnectors []string          `json:"ids:recipientConnector,omitempty"`
	CorrelationMessage  string            `json:"ids:correlationMessage,omitempty"`

	RequestedElement  string          `json:"ids:requestedElement,omitempty"`
	TransferContract  string          `json:"ids:transferContract,omitempty"`
	RequestedArtifact string          `json:"ids:requestedArtifact,omitempty"`
	RejectionReason   RejectionReason `json:"ids:rejectionReason,omitempty"`
}

// TokenValue returns the raw security token or "" when none is attached.
func (h *Header) TokenValue() string {
	if h == nil || h.SecurityToken == nil {
		return ""
	}
	return h.SecurityToken.Value
}

// Normalize rewrites expanded vocabulary IRIs to their compact form so that
// headers from peers using either form compare equal.
func (h *Header) Normalize() {
	if h == nil {
		return
	}
	h.Type = MessageType(CompactIRI(string(h.Type)))
	h.RejectionReason = RejectionReason(CompactIRI(string(h.RejectionReason)))
	if h.SecurityToken != nil {
		h.SecurityToken.Format = CompactIRI(h.SecurityToken.Format)
	}
}
