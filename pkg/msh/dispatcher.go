package msh

import (
	"context"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/mime"
)

// DispatcherConfig holds the collaborators of a Dispatcher
type DispatcherConfig struct {
	// Validator checks inbound tokens. Nil accepts every message.
	Validator TokenValidator

	// InboundVersions lists the accepted model versions. Each entry is a
	// semver constraint such as "^4.0" or, when it does not parse as one,
	// an exact version string. An empty list accepts every version.
	InboundVersions []string

	// Replays rejects message ids seen before. Nil disables the check.
	Replays *ReplayGuard

	Metrics *Metrics
	Logger  *zap.Logger
}

type versionMatcher struct {
	constraint *semver.Constraints
	exact      string
}

func (m versionMatcher) matches(v string) bool {
	if v == m.exact {
		return true
	}
	if m.constraint == nil {
		return false
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return false
	}
	return m.constraint.Check(sv)
}

// Dispatcher routes inbound messages to the handler registered for their type
type Dispatcher struct {
	validator TokenValidator
	versions  []versionMatcher
	replays   *ReplayGuard
	metrics   *Metrics
	logger    *zap.Logger

	mu       sync.RWMutex
	handlers map[message.MessageType]Handler
}

// NewDispatcher creates a dispatcher with no handlers
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Metrics == nil {
		config.Metrics = NewMetrics(nil)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	versions := make([]versionMatcher, 0, len(config.InboundVersions))
	for _, v := range config.InboundVersions {
		v = strings.TrimSpace(v)
		m := versionMatcher{exact: v}
		if c, err := semver.NewConstraint(v); err == nil {
			m.constraint = c
		}
		versions = append(versions, m)
	}

	return &Dispatcher{
		validator: config.Validator,
		versions:  versions,
		replays:   config.Replays,
		metrics:   config.Metrics,
		logger:    config.Logger,
		handlers:  make(map[message.MessageType]Handler),
	}
}

// Register sets the handler for t, replacing any previous one
func (d *Dispatcher) Register(t message.MessageType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

// Handles reports whether a handler is registered for t
func (d *Dispatcher) Handles(t message.MessageType) bool {
	_, ok := d.handler(t)
	return ok
}

func (d *Dispatcher) handler(t message.MessageType) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[t]
	return h, ok
}

// Dispatch checks msg and passes it to its handler. It always returns a
// reply; failed checks become rejections correlated with msg.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *mime.Message) *Reply {
	if msg == nil || msg.Header == nil {
		return d.reject(ctx, nil, message.RejectionBadParameters)
	}
	h := msg.Header

	logger := d.logger.With(
		zap.String("message_id", h.ID),
		zap.String("type", string(h.Type)),
		zap.String("issuer", h.IssuerConnector))

	if !d.versionAccepted(h.ModelVersion) {
		logger.Info("unsupported model version", zap.String("version", h.ModelVersion))
		return d.reject(ctx, h, message.RejectionVersionNotSupported)
	}

	if d.validator != nil {
		if err := d.validator.ValidateToken(ctx, h.TokenValue()); err != nil {
			logger.Info("token rejected", zap.Error(err))
			return d.reject(ctx, h, message.RejectionNotAuthenticated)
		}
	}

	if h.IssuerConnector == "" {
		logger.Info("message names no issuer connector")
		return d.reject(ctx, h, message.RejectionBadParameters)
	}

	if d.replays != nil && d.replays.Seen(h.ID) {
		logger.Info("replayed message")
		return d.reject(ctx, h, message.RejectionBadParameters)
	}

	handler, ok := d.handler(h.Type)
	if !ok {
		return d.reject(ctx, h, message.RejectionMessageTypeUnsupported)
	}

	reply := handler.HandleMessage(ctx, &Request{
		Header:      h,
		Payload:     msg.Payload,
		PayloadType: msg.PayloadType,
	})
	if reply == nil || reply.Header == nil {
		logger.Error("handler returned no reply")
		return d.reject(ctx, h, message.RejectionInternalRecipientError)
	}

	result := "ok"
	if reply.IsRejection() {
		result = string(reply.Header.RejectionReason)
		logger.Info("message rejected", zap.String("reason", result))
	}
	d.metrics.Inbound.WithLabelValues(string(h.Type), result).Inc()
	return reply
}

func (d *Dispatcher) versionAccepted(v string) bool {
	if v == "" {
		return false
	}
	if len(d.versions) == 0 {
		return true
	}
	for _, m := range d.versions {
		if m.matches(v) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) reject(ctx context.Context, original *message.Header, reason message.RejectionReason) *Reply {
	t := "unknown"
	if original != nil {
		t = string(original.Type)
	}
	d.metrics.Inbound.WithLabelValues(t, string(reason)).Inc()
	return Reject(ctx, original, reason)
}
