package usagecontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
)

// Contract validation failures
var (
	// ErrResourceNotFound is returned when no agreement has the referenced id
	ErrResourceNotFound = errors.New("contract agreement not found")
	// ErrContractInvalid is returned when the stored agreement cannot be parsed
	ErrContractInvalid = errors.New("contract agreement invalid")
	// ErrContractMismatch is returned when the agreement does not cover the artifact
	ErrContractMismatch = errors.New("contract agreement does not match request")
)

// ContractValidator resolves the agreement referenced by an artifact request
type ContractValidator struct {
	agreements storage.AgreementStore
}

// NewContractValidator creates a validator reading from agreements
func NewContractValidator(agreements storage.AgreementStore) *ContractValidator {
	return &ContractValidator{agreements: agreements}
}

// ValidateTransferContract returns the agreement contractID refers to after
// checking that it parses, is confirmed and references artifactID. A rule
// targeting an artifact does not widen the referenced set. contractID
// may be the local agreement id or the id the peer assigned to it.
func (v *ContractValidator) ValidateTransferContract(ctx context.Context, contractID, artifactID string) (*storage.Agreement, error) {
	a, err := v.agreements.GetAgreement(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("loading agreement %s: %w", contractID, err)
	}
	if a == nil {
		a, err = v.agreements.GetAgreementByRemoteID(ctx, contractID)
		if err != nil {
			return nil, fmt.Errorf("loading agreement %s: %w", contractID, err)
		}
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, contractID)
	}

	if _, err := ParseRules([]byte(a.Value)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractInvalid, err)
	}
	if !a.Confirmed {
		return nil, fmt.Errorf("%w: agreement %s is not confirmed", ErrContractMismatch, a.ID)
	}
	if !a.Covers(artifactID) {
		return nil, fmt.Errorf("%w: agreement %s does not cover %s", ErrContractMismatch, a.ID, artifactID)
	}
	return a, nil
}

// NewAgreementDocument turns a contract request document into the agreement
// the provider sends back. Rules are carried over untouched.
func NewAgreementDocument(requestDoc []byte, agreementID, provider, consumer string, now time.Time) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(requestDoc, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is null", ErrInvalidRuleDocument)
	}

	doc["@type"] = "ids:ContractAgreement"
	doc["@id"] = agreementID
	doc["ids:provider"] = map[string]any{"@id": provider}
	doc["ids:consumer"] = map[string]any{"@id": consumer}
	doc["ids:contractDate"] = map[string]any{
		"@value": now.UTC().Format(time.RFC3339),
		"@type":  "xsd:dateTimeStamp",
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding agreement: %w", err)
	}
	return jcs.Transform(raw)
}

// SameAgreement reports whether two documents are equal after RFC 8785
// canonicalization, so key order and whitespace do not matter.
func SameAgreement(a, b []byte) (bool, error) {
	ca, err := jcs.Transform(a)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRuleDocument, err)
	}
	cb, err := jcs.Transform(b)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRuleDocument, err)
	}
	return bytes.Equal(ca, cb), nil
}
