package msh

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/mime"
)

func inbound(t message.MessageType, version string) *mime.Message {
	return &mime.Message{
		Header: &message.Header{
			Type:            t,
			ID:              "urn:message:inbound-1",
			ModelVersion:    version,
			IssuedAt:        time.Now().UTC(),
			IssuerConnector: "https://consumer.example.org",
			SenderAgent:     "https://consumer.example.org",
			SecurityToken:   &message.Token{Format: message.TokenFormatJWT, Value: "peer-token"},
		},
		Payload: []byte("payload"),
	}
}

func echoHandler(b *message.Builder) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) *Reply {
		return Respond(ctx, b, req, &message.MessageProcessed{
			Recipient:          req.Header.IssuerConnector,
			CorrelationMessage: req.Header.ID,
		}, req.Payload)
	})
}

func TestDispatcher_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		msg        *mime.Message
		validator  TokenValidator
		wantReason message.RejectionReason
	}{
		{
			name:       "nil message",
			msg:        nil,
			wantReason: message.RejectionBadParameters,
		},
		{
			name:       "nil header",
			msg:        &mime.Message{},
			wantReason: message.RejectionBadParameters,
		},
		{
			name:       "unsupported version",
			msg:        inbound(message.TypeNotification, "3.0.0"),
			wantReason: message.RejectionVersionNotSupported,
		},
		{
			name:       "missing version",
			msg:        inbound(message.TypeNotification, ""),
			wantReason: message.RejectionVersionNotSupported,
		},
		{
			name: "missing issuer",
			msg: func() *mime.Message {
				m := inbound(message.TypeNotification, "4.0.0")
				m.Header.IssuerConnector = ""
				return m
			}(),
			wantReason: message.RejectionBadParameters,
		},
		{
			name:       "bad token",
			msg:        inbound(message.TypeNotification, "4.1.0"),
			validator:  &fakeValidator{err: errors.New("bad signature")},
			wantReason: message.RejectionNotAuthenticated,
		},
		{
			name:       "no handler",
			msg:        inbound(message.TypeLog, "4.0.0"),
			wantReason: message.RejectionMessageTypeUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(DispatcherConfig{
				Validator:       tt.validator,
				InboundVersions: []string{"^4.0"},
			})
			d.Register(message.TypeNotification, echoHandler(message.NewBuilder()))

			reply := d.Dispatch(testContext(), tt.msg)
			require.NotNil(t, reply)
			require.True(t, reply.IsRejection())
			assert.Equal(t, tt.wantReason, reply.Header.RejectionReason)
			assert.Equal(t, localConnector, reply.Header.IssuerConnector)
			if tt.msg != nil && tt.msg.Header != nil {
				assert.Equal(t, tt.msg.Header.ID, reply.Header.CorrelationMessage)
			}
		})
	}
}

func TestDispatcher_VersionOrderBeforeToken(t *testing.T) {
	validator := &fakeValidator{err: errors.New("bad")}
	d := NewDispatcher(DispatcherConfig{Validator: validator, InboundVersions: []string{"4.0.0"}})

	reply := d.Dispatch(testContext(), inbound(message.TypeNotification, "2.0.0"))
	assert.Equal(t, message.RejectionVersionNotSupported, reply.Header.RejectionReason)
	assert.Empty(t, validator.tokens)
}

func TestDispatcher_ExactVersionFallback(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{InboundVersions: []string{"custom-build"}})
	d.Register(message.TypeNotification, echoHandler(message.NewBuilder()))

	reply := d.Dispatch(testContext(), inbound(message.TypeNotification, "custom-build"))
	assert.False(t, reply.IsRejection())
}

func TestDispatcher_RoutesToHandler(t *testing.T) {
	validator := &fakeValidator{}
	d := NewDispatcher(DispatcherConfig{Validator: validator, InboundVersions: []string{"^4.0"}})
	d.Register(message.TypeNotification, echoHandler(message.NewBuilder()))

	reply := d.Dispatch(testContext(), inbound(message.TypeNotification, "4.2.1"))
	require.False(t, reply.IsRejection())
	assert.Equal(t, message.TypeMessageProcessed, reply.Header.Type)
	assert.Equal(t, "urn:message:inbound-1", reply.Header.CorrelationMessage)
	assert.Equal(t, []string{"peer-token"}, validator.tokens)

	body, ct, err := reply.Encode()
	require.NoError(t, err)
	parsed, err := mime.Parse(bytes.NewReader(body), ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), parsed.Payload)
}

func TestDispatcher_NilReplyBecomesInternalError(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	d.Register(message.TypeNotification, HandlerFunc(func(context.Context, *Request) *Reply { return nil }))

	reply := d.Dispatch(testContext(), inbound(message.TypeNotification, "4.0.0"))
	assert.Equal(t, message.RejectionInternalRecipientError, reply.Header.RejectionReason)
}

func TestRespond_BuildFailureRejects(t *testing.T) {
	req := &Request{Header: inbound(message.TypeNotification, "4.0.0").Header}

	reply := Respond(context.Background(), message.NewBuilder(), req, &message.MessageProcessed{}, nil)
	assert.Equal(t, message.RejectionInternalRecipientError, reply.Header.RejectionReason)
	assert.Equal(t, req.Header.ID, reply.Header.CorrelationMessage)
}
