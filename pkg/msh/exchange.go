package msh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/mime"
)

// Engine sends protocol messages and returns the peer's decoded reply.
// It is safe for concurrent use.
type Engine struct {
	builder   *message.Builder
	sender    Sender
	validator TokenValidator
	metrics   *Metrics
	logger    *zap.Logger

	mu      sync.RWMutex
	auditor Auditor
}

// EngineConfig holds the collaborators of an Engine
type EngineConfig struct {
	Builder *message.Builder
	Sender  Sender

	// Validator checks reply tokens. Nil skips the check.
	Validator TokenValidator

	// Auditor logs auditable exchanges. Nil disables auditing.
	Auditor Auditor

	Metrics *Metrics
	Logger  *zap.Logger
}

// NewEngine creates a new exchange engine
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Sender == nil {
		return nil, errors.New("sender is required")
	}
	if config.Builder == nil {
		config.Builder = message.NewBuilder()
	}
	if config.Metrics == nil {
		config.Metrics = NewMetrics(nil)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Engine{
		builder:   config.Builder,
		sender:    config.Sender,
		validator: config.Validator,
		auditor:   config.Auditor,
		metrics:   config.Metrics,
		logger:    config.Logger,
	}, nil
}

// SetAuditor replaces the auditor. The clearing house client itself sends
// through an Engine, so it can only be attached after both exist.
func (e *Engine) SetAuditor(a Auditor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditor = a
}

func (e *Engine) currentAuditor() Auditor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.auditor
}

// Send builds the message described by desc, transmits it with payload to
// the description's recipient and returns the reply.
func (e *Engine) Send(ctx context.Context, desc message.Description, payload []byte) (*Response, error) {
	start := time.Now()
	msgType := "unknown"
	if desc != nil {
		msgType = string(desc.MessageType())
	}

	resp, err := e.send(ctx, desc, payload)

	e.metrics.Requests.WithLabelValues(msgType, outcome(err)).Inc()
	e.metrics.Duration.WithLabelValues(msgType).Observe(time.Since(start).Seconds())
	if err != nil {
		e.logger.Warn("message exchange failed",
			zap.String("type", msgType),
			zap.Error(err))
	}
	return resp, err
}

func (e *Engine) send(ctx context.Context, desc message.Description, payload []byte) (*Response, error) {
	header, err := e.builder.Build(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeaderBuildFailed, err)
	}
	if len(header.RecipientConnectors) == 0 {
		return nil, fmt.Errorf("%w: no recipient", ErrHeaderBuildFailed)
	}
	endpoint := header.RecipientConnectors[0]

	body, contentType, err := mime.NewMessage(header, payload).Serialize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}

	auditor := e.currentAuditor()
	auditable := header.Type.Auditable() && auditor != nil
	if auditable {
		if err := auditor.LogMessage(ctx, header); err != nil {
			return nil, fmt.Errorf("%w: logging request: %w", ErrAuditFailed, err)
		}
	}

	logger := e.logger.With(
		zap.String("message_id", header.ID),
		zap.String("type", string(header.Type)),
		zap.String("endpoint", endpoint))
	logger.Debug("sending message", zap.Int("bytes", len(body)))

	raw, err := e.sender.Send(ctx, endpoint, body, contentType)
	if err != nil {
		// transport errors are already classified
		return nil, err
	}

	parsed, err := mime.Parse(bytes.NewReader(raw.Body), raw.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if e.validator != nil {
		if err := e.validator.ValidateToken(ctx, parsed.Header.TokenValue()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSecurityToken, err)
		}
	}

	if auditable {
		if err := auditor.LogMessage(ctx, parsed.Header); err != nil {
			return nil, fmt.Errorf("%w: logging response: %w", ErrAuditFailed, err)
		}
	}

	logger.Debug("received reply",
		zap.String("reply_type", string(parsed.Header.Type)),
		zap.String("reply_id", parsed.Header.ID))

	return &Response{Header: parsed.Header, Payload: parsed.Payload}, nil
}

// IsExpectedType reports whether resp carries a header of type expected.
// A response without a readable header is an error.
func IsExpectedType(resp *Response, expected message.MessageType) (bool, error) {
	if resp == nil || resp.Header == nil || resp.Header.Type == "" {
		return false, fmt.Errorf("%w: no header", ErrMalformedResponse)
	}
	return resp.Header.Type == expected, nil
}

// ResponseContent flattens resp into type, payload and, for rejections, reason.
func ResponseContent(resp *Response) map[string]any {
	content := map[string]any{}
	if resp == nil {
		return content
	}
	content["payload"] = string(resp.Payload)
	if resp.Header != nil {
		content["type"] = string(resp.Header.Type)
		if resp.Header.Type.IsRejection() {
			content["reason"] = string(resp.Header.RejectionReason)
		}
	}
	return content
}
