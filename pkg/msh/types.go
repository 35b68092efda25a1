package msh

import (
	"context"

	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/mime"
	"github.com/sebplorenz/DataspaceConnector/pkg/transport"
)

// Sender transmits an encoded message to a peer endpoint
type Sender interface {
	Send(ctx context.Context, endpoint string, body []byte, contentType string) (*transport.Response, error)
}

// TokenValidator checks the security token carried in a header
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) error
}

// Auditor records auditable messages
type Auditor interface {
	LogMessage(ctx context.Context, h *message.Header) error
}

// Response is the decoded reply to an outbound message
type Response struct {
	Header  *message.Header
	Payload []byte
}

// Request is an inbound message that passed the dispatcher checks
type Request struct {
	Header      *message.Header
	Payload     []byte
	PayloadType string
}

// Reply is the answer to an inbound message
type Reply struct {
	Header      *message.Header
	Payload     []byte
	PayloadType string
}

// Encode serializes the reply as a multipart envelope
func (r *Reply) Encode() ([]byte, string, error) {
	m := mime.NewMessage(r.Header, r.Payload)
	if r.PayloadType != "" {
		m.PayloadType = r.PayloadType
	}
	return m.Serialize()
}

// IsRejection reports whether the reply is a rejection
func (r *Reply) IsRejection() bool {
	return r.Header != nil && r.Header.Type.IsRejection()
}

// Handler processes one inbound message type
type Handler interface {
	HandleMessage(ctx context.Context, req *Request) *Reply
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, req *Request) *Reply

// HandleMessage calls f(ctx, req)
func (f HandlerFunc) HandleMessage(ctx context.Context, req *Request) *Reply {
	return f(ctx, req)
}

// Reject builds a rejection reply for original using the identity in ctx.
// original may be nil when the inbound header could not be read.
func Reject(ctx context.Context, original *message.Header, reason message.RejectionReason) *Reply {
	id, _ := message.IdentityFromContext(ctx)
	return &Reply{Header: message.NewRejection(id, original, reason)}
}

// Respond builds a reply of the type described by desc. A header that
// cannot be built becomes an internal error rejection of req.
func Respond(ctx context.Context, b *message.Builder, req *Request, desc message.Description, payload []byte) *Reply {
	h, err := b.Build(ctx, desc)
	if err != nil {
		return Reject(ctx, req.Header, message.RejectionInternalRecipientError)
	}
	return &Reply{Header: h, Payload: payload}
}
