// Package handler implements the inbound message handlers of a providing
// connector.
//
// Each handler answers one message type and is registered with an
// [msh.Dispatcher]. Handlers run after the dispatcher has checked the model
// version and security token, so they only see authenticated requests.
//
//   - ArtifactRequestMessage: release artifact data under an agreement
//   - ContractRequestMessage: turn a rule document into an unconfirmed agreement
//   - ContractAgreementMessage: confirm an agreement acknowledged by the consumer
//   - DescriptionRequestMessage: serve the self-description and catalog elements
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
	"github.com/sebplorenz/DataspaceConnector/internal/usagecontrol"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/msh"
)

// AgreementLogger records confirmed agreements
type AgreementLogger interface {
	LogAgreement(ctx context.Context, agreementID string, doc []byte) error
}

// Config holds handler configuration
type Config struct {
	Builder    *message.Builder
	Agreements storage.AgreementStore
	Artifacts  storage.ArtifactStore
	Catalog    storage.CatalogStore

	// PolicyNegotiation requires a transfer contract on artifact requests
	// and enforces its rules before data is released.
	PolicyNegotiation bool
	PEP               *usagecontrol.PEP
	Executor          *usagecontrol.Executor

	// AgreementLogger receives agreements before they are confirmed. Nil
	// skips logging.
	AgreementLogger AgreementLogger

	// Auditor logs every artifact response before it is released. Nil
	// skips logging.
	Auditor msh.Auditor

	// NewAgreementID generates ids for agreements this connector offers.
	NewAgreementID func() string
	Clock          func() time.Time
	Logger         *zap.Logger
}

// Handler answers inbound requests
type Handler struct {
	builder    *message.Builder
	agreements storage.AgreementStore
	artifacts  storage.ArtifactStore
	catalog    storage.CatalogStore

	policyNegotiation bool
	validator         *usagecontrol.ContractValidator
	pep               *usagecontrol.PEP
	executor          *usagecontrol.Executor
	agreementLogger   AgreementLogger
	auditor           msh.Auditor

	newAgreementID func() string
	now            func() time.Time
	logger         *zap.Logger
}

// New creates the inbound handlers
func New(cfg Config) (*Handler, error) {
	if cfg.Agreements == nil || cfg.Artifacts == nil || cfg.Catalog == nil {
		return nil, errors.New("agreement, artifact and catalog stores are required")
	}
	if cfg.Builder == nil {
		cfg.Builder = message.NewBuilder()
	}
	if cfg.PEP == nil {
		cfg.PEP = usagecontrol.NewPEP(usagecontrol.PEPConfig{})
	}
	if cfg.Executor == nil {
		cfg.Executor = usagecontrol.NewExecutor(usagecontrol.ExecutorConfig{})
	}
	if cfg.NewAgreementID == nil {
		cfg.NewAgreementID = func() string { return "urn:agreement:" + uuid.New().String() }
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Handler{
		builder:           cfg.Builder,
		agreements:        cfg.Agreements,
		artifacts:         cfg.Artifacts,
		catalog:           cfg.Catalog,
		policyNegotiation: cfg.PolicyNegotiation,
		validator:         usagecontrol.NewContractValidator(cfg.Agreements),
		pep:               cfg.PEP,
		executor:          cfg.Executor,
		agreementLogger:   cfg.AgreementLogger,
		auditor:           cfg.Auditor,
		newAgreementID:    cfg.NewAgreementID,
		now:               cfg.Clock,
		logger:            cfg.Logger,
	}, nil
}

// Register adds every handler to d
func (h *Handler) Register(d *msh.Dispatcher) {
	d.Register(message.TypeArtifactRequest, msh.HandlerFunc(h.HandleArtifactRequest))
	d.Register(message.TypeContractRequest, msh.HandlerFunc(h.HandleContractRequest))
	d.Register(message.TypeContractAgreement, msh.HandlerFunc(h.HandleContractAgreement))
	d.Register(message.TypeDescriptionRequest, msh.HandlerFunc(h.HandleDescriptionRequest))
}

func (h *Handler) requestLogger(req *msh.Request) *zap.Logger {
	return h.logger.With(
		zap.String("message_id", req.Header.ID),
		zap.Stringer("type", req.Header.Type),
		zap.String("issuer", req.Header.IssuerConnector))
}
