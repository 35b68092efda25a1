package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/internal/storage"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/msh"
)

// HandleDescriptionRequest returns the requested catalog element, or the
// self-description when no element is named.
func (h *Handler) HandleDescriptionRequest(ctx context.Context, req *msh.Request) *msh.Reply {
	hdr := req.Header

	doc, err := h.catalog.GetDescription(ctx, hdr.RequestedElement)
	if errors.Is(err, storage.ErrNotFound) {
		return msh.Reject(ctx, hdr, message.RejectionNotFound)
	}
	if err != nil {
		h.requestLogger(req).Error("catalog lookup failed",
			zap.String("element", hdr.RequestedElement), zap.Error(err))
		return msh.Reject(ctx, hdr, message.RejectionInternalRecipientError)
	}

	reply := msh.Respond(ctx, h.builder, req, &message.DescriptionResponse{
		Recipient:          hdr.IssuerConnector,
		CorrelationMessage: hdr.ID,
	}, doc)
	reply.PayloadType = "application/ld+json"
	return reply
}
