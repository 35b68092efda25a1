package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
	"github.com/sebplorenz/DataspaceConnector/internal/usagecontrol"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/msh"
)

// HandleContractRequest answers a rule document with an agreement. The
// agreement is stored unconfirmed until the consumer sends it back.
func (h *Handler) HandleContractRequest(ctx context.Context, req *msh.Request) *msh.Reply {
	hdr := req.Header
	log := h.requestLogger(req)

	rs, err := usagecontrol.ParseRules(req.Payload)
	if err != nil {
		log.Debug("unparsable contract request", zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}
	targets := rs.Targets()
	if len(targets) == 0 {
		log.Debug("contract request names no targets")
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}

	for _, target := range targets {
		_, err := h.catalog.GetDescription(ctx, target)
		if errors.Is(err, storage.ErrNotFound) {
			log.Info("contract request for unknown element", zap.String("target", target))
			return msh.Reject(ctx, hdr, message.RejectionNotFound)
		}
		if err != nil {
			log.Error("catalog lookup failed", zap.String("target", target), zap.Error(err))
			return msh.Reject(ctx, hdr, message.RejectionInternalRecipientError)
		}
	}

	self, _ := message.IdentityFromContext(ctx)
	agreementID := h.newAgreementID()
	doc, err := usagecontrol.NewAgreementDocument(req.Payload, agreementID, self.ConnectorID, hdr.IssuerConnector, h.now())
	if err != nil {
		log.Debug("cannot build agreement", zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}

	err = h.agreements.CreateAgreement(ctx, &storage.Agreement{
		ID:           agreementID,
		Value:        string(doc),
		ConsumerID:   hdr.IssuerConnector,
		ProviderID:   self.ConnectorID,
		ArtifactRefs: targets,
	})
	if err != nil {
		log.Error("failed to store agreement", zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionInternalRecipientError)
	}
	log.Info("agreement offered", zap.String("agreement", agreementID))

	reply := msh.Respond(ctx, h.builder, req, &message.ContractAgreement{
		Recipient:          hdr.IssuerConnector,
		CorrelationMessage: hdr.ID,
	}, doc)
	reply.PayloadType = "application/ld+json"
	return reply
}

// HandleContractAgreement confirms an agreement the consumer accepted. The
// returned document must be the one this connector offered, and it is
// logged before it is confirmed.
func (h *Handler) HandleContractAgreement(ctx context.Context, req *msh.Request) *msh.Reply {
	hdr := req.Header
	log := h.requestLogger(req)

	if len(req.Payload) == 0 {
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}
	rs, err := usagecontrol.ParseRules(req.Payload)
	if err != nil {
		log.Debug("unparsable agreement", zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}
	log = log.With(zap.String("agreement", rs.ID))

	stored, err := h.agreements.GetAgreement(ctx, rs.ID)
	if err != nil {
		log.Error("failed to load agreement", zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionInternalRecipientError)
	}
	if stored == nil {
		log.Info("unknown agreement")
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}
	if stored.ConsumerID != hdr.IssuerConnector {
		log.Warn("agreement acknowledged by another connector", zap.String("consumer", stored.ConsumerID))
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}
	same, err := usagecontrol.SameAgreement([]byte(stored.Value), req.Payload)
	if err != nil || !same {
		log.Info("agreement differs from offer", zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}

	// an agreement that was not logged must never become usable
	if h.agreementLogger != nil {
		if err := h.agreementLogger.LogAgreement(ctx, stored.ID, req.Payload); err != nil {
			log.Error("failed to log agreement", zap.Error(err))
			return msh.Reject(ctx, hdr, message.RejectionInternalRecipientError)
		}
	}
	if err := h.agreements.ConfirmAgreement(ctx, stored.ID); err != nil {
		log.Error("failed to confirm agreement", zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionInternalRecipientError)
	}
	log.Info("agreement confirmed")

	return msh.Respond(ctx, h.builder, req, &message.MessageProcessed{
		Recipient:          hdr.IssuerConnector,
		CorrelationMessage: hdr.ID,
	}, nil)
}
