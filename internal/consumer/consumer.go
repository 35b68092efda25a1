// Package consumer implements the outbound flows of a consuming connector:
// fetching descriptions, negotiating agreements and retrieving artifacts.
package consumer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
	"github.com/sebplorenz/DataspaceConnector/internal/usagecontrol"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/msh"
)

var (
	// ErrUnexpectedResponse is returned when a peer answers with a message
	// type the flow does not expect
	ErrUnexpectedResponse = errors.New("unexpected response")
	// ErrAgreementMismatch is returned when the offered agreement does not
	// cover what was requested
	ErrAgreementMismatch = errors.New("agreement does not match request")
)

// RejectionError is returned when a peer refuses a request
type RejectionError struct {
	Type   message.MessageType
	Reason message.RejectionReason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("request rejected (%s): %s", e.Type, e.Reason)
}

// Exchanger sends a message and returns the peer's reply
type Exchanger interface {
	Send(ctx context.Context, desc message.Description, payload []byte) (*msh.Response, error)
}

// AgreementLogger records confirmed agreements
type AgreementLogger interface {
	LogAgreement(ctx context.Context, agreementID string, doc []byte) error
}

// Config holds the consumer configuration
type Config struct {
	Exchanger  Exchanger
	Agreements storage.AgreementStore

	// AgreementLogger receives confirmed agreements. Nil skips logging.
	AgreementLogger AgreementLogger

	Logger *zap.Logger
}

// Client runs consumer flows against providers
type Client struct {
	exchanger       Exchanger
	agreements      storage.AgreementStore
	agreementLogger AgreementLogger
	logger          *zap.Logger
}

// New creates a consumer client
func New(cfg Config) (*Client, error) {
	if cfg.Exchanger == nil {
		return nil, errors.New("exchanger is required")
	}
	if cfg.Agreements == nil {
		return nil, errors.New("agreement store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		exchanger:       cfg.Exchanger,
		agreements:      cfg.Agreements,
		agreementLogger: cfg.AgreementLogger,
		logger:          cfg.Logger,
	}, nil
}

// RequestDescription fetches a catalog element from recipient, or its
// self-description when elementID is empty.
func (c *Client) RequestDescription(ctx context.Context, recipient, elementID string) ([]byte, error) {
	resp, err := c.exchanger.Send(ctx, &message.DescriptionRequest{
		Recipient:        recipient,
		RequestedElement: elementID,
	}, nil)
	if err != nil {
		return nil, err
	}
	if err := expect(resp, message.TypeDescriptionResponse); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// NegotiateContract proposes ruleDoc to recipient and returns the confirmed
// agreement. The agreement is stored before it is acknowledged so that a
// failed acknowledgement leaves an unconfirmed record behind. It is only
// confirmed once it has been logged.
func (c *Client) NegotiateContract(ctx context.Context, recipient string, ruleDoc []byte) (*storage.Agreement, error) {
	requested, err := usagecontrol.ParseRules(ruleDoc)
	if err != nil {
		return nil, err
	}

	resp, err := c.exchanger.Send(ctx, &message.ContractRequest{Recipient: recipient}, ruleDoc)
	if err != nil {
		return nil, err
	}
	if err := expect(resp, message.TypeContractAgreement); err != nil {
		return nil, err
	}

	offered, err := usagecontrol.ParseRules(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if offered.ID == "" {
		return nil, fmt.Errorf("%w: agreement has no id", ErrAgreementMismatch)
	}
	if !sameTargets(requested.Targets(), offered.Targets()) {
		return nil, fmt.Errorf("%w: offered %v, requested %v", ErrAgreementMismatch, offered.Targets(), requested.Targets())
	}

	self, _ := message.IdentityFromContext(ctx)
	providerID := offered.Provider
	if providerID == "" {
		providerID = recipient
	}
	log := c.logger.With(zap.String("agreement", offered.ID), zap.String("provider", providerID))

	agreement := &storage.Agreement{
		ID:           offered.ID,
		RemoteID:     offered.ID,
		Value:        string(resp.Payload),
		ConsumerID:   self.ConnectorID,
		ProviderID:   providerID,
		ArtifactRefs: offered.Targets(),
	}
	if err := c.agreements.CreateAgreement(ctx, agreement); err != nil {
		return nil, fmt.Errorf("storing agreement: %w", err)
	}

	ack, err := c.exchanger.Send(ctx, &message.ContractAgreement{
		Recipient:          recipient,
		CorrelationMessage: resp.Header.ID,
	}, resp.Payload)
	if err != nil {
		return nil, err
	}
	if err := expect(ack, message.TypeMessageProcessed); err != nil {
		return nil, err
	}

	if c.agreementLogger != nil {
		if err := c.agreementLogger.LogAgreement(ctx, agreement.ID, resp.Payload); err != nil {
			return nil, err
		}
	}
	if err := c.agreements.ConfirmAgreement(ctx, agreement.ID); err != nil {
		return nil, fmt.Errorf("confirming agreement: %w", err)
	}
	log.Info("agreement concluded")

	return c.agreements.GetAgreement(ctx, agreement.ID)
}

// RequestArtifact retrieves artifact data from recipient. contractID may be
// empty for providers that do not negotiate; query may be nil.
func (c *Client) RequestArtifact(ctx context.Context, recipient, artifactID, contractID string, query *storage.Query) ([]byte, error) {
	var payload []byte
	if query != nil {
		var err error
		if payload, err = json.Marshal(query); err != nil {
			return nil, fmt.Errorf("encoding query: %w", err)
		}
	}

	resp, err := c.exchanger.Send(ctx, &message.ArtifactRequest{
		Recipient:         recipient,
		RequestedArtifact: artifactID,
		TransferContract:  contractID,
	}, payload)
	if err != nil {
		return nil, err
	}
	if err := expect(resp, message.TypeArtifactResponse); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(string(resp.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: artifact payload is not base64: %v", msh.ErrMalformedResponse, err)
	}
	return data, nil
}

// expect checks resp has type t. Rejections become a *RejectionError.
func expect(resp *msh.Response, t message.MessageType) error {
	ok, err := msh.IsExpectedType(resp, t)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if resp.Header.Type.IsRejection() {
		return &RejectionError{Type: resp.Header.Type, Reason: resp.Header.RejectionReason}
	}
	return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedResponse, resp.Header.Type, t)
}

func sameTargets(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
