package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
	"github.com/sebplorenz/DataspaceConnector/internal/usagecontrol"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/msh"
)

// HandleArtifactRequest releases artifact data. With policy negotiation
// enabled the request must name a transfer contract whose rules allow the
// access, and the rules' duties are carried out before any data leaves.
// The response header is logged with the auditor before the duties run.
func (h *Handler) HandleArtifactRequest(ctx context.Context, req *msh.Request) *msh.Reply {
	hdr := req.Header
	log := h.requestLogger(req)

	artifactID := hdr.RequestedArtifact
	if artifactID == "" {
		log.Debug("missing requested artifact")
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}
	log = log.With(zap.String("artifact", artifactID))

	var (
		input    usagecontrol.VerificationInput
		decision usagecontrol.Decision
	)
	if h.policyNegotiation {
		contractID := hdr.TransferContract
		if contractID == "" {
			log.Debug("missing transfer contract")
			return msh.Reject(ctx, hdr, message.RejectionBadParameters)
		}

		agreement, err := h.validator.ValidateTransferContract(ctx, contractID, artifactID)
		if err != nil {
			if isContractError(err) {
				log.Info("transfer contract rejected", zap.String("contract", contractID), zap.Error(err))
				return msh.Reject(ctx, hdr, message.RejectionBadParameters)
			}
			log.Error("failed to load transfer contract", zap.String("contract", contractID), zap.Error(err))
			return msh.Reject(ctx, hdr, message.RejectionInternalRecipientError)
		}

		input = usagecontrol.VerificationInput{
			ArtifactID:  artifactID,
			RequesterID: hdr.IssuerConnector,
			Agreement:   agreement,
		}
		decision = h.pep.Verify(ctx, input)
		if !decision.Allowed() {
			return msh.Reject(ctx, hdr, message.RejectionPolicyRestriction)
		}
	}

	query, err := parseQuery(req.Payload)
	if err != nil {
		log.Debug("malformed query input", zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionBadParameters)
	}

	data, err := h.artifacts.GetArtifactData(ctx, artifactID, query)
	if errors.Is(err, storage.ErrNotFound) {
		return msh.Reject(ctx, hdr, message.RejectionNotFound)
	}
	if err != nil {
		log.Error("failed to retrieve artifact data", zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionInternalRecipientError)
	}

	payload := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(payload, data)

	reply := msh.Respond(ctx, h.builder, req, &message.ArtifactResponse{
		Recipient:          hdr.IssuerConnector,
		CorrelationMessage: hdr.ID,
		TransferContract:   hdr.TransferContract,
	}, payload)
	if reply.Header.Type != message.TypeArtifactResponse {
		return reply
	}

	if h.auditor != nil {
		if err := h.auditor.LogMessage(ctx, reply.Header); err != nil {
			log.Error("withholding data, response could not be logged", zap.Error(err))
			return msh.Reject(ctx, hdr, message.RejectionInternalRecipientError)
		}
	}
	if h.policyNegotiation {
		if err := h.executor.Execute(ctx, input, decision); err != nil {
			log.Warn("withholding data, post duties failed", zap.Error(err))
			return msh.Reject(ctx, hdr, message.RejectionPolicyRestriction)
		}
	}
	return reply
}

func isContractError(err error) bool {
	return errors.Is(err, usagecontrol.ErrResourceNotFound) ||
		errors.Is(err, usagecontrol.ErrContractInvalid) ||
		errors.Is(err, usagecontrol.ErrContractMismatch)
}

// parseQuery decodes the optional query input. No payload means no query.
func parseQuery(payload []byte) (*storage.Query, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	var q *storage.Query
	if err := dec.Decode(&q); err != nil {
		return nil, err
	}
	return q, nil
}
