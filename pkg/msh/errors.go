package msh

import (
	"errors"

	"github.com/sebplorenz/DataspaceConnector/pkg/transport"
)

// Exchange failures. Every error returned by Engine.Send wraps exactly one.
var (
	// ErrHeaderBuildFailed is returned when the description cannot be turned into a header
	ErrHeaderBuildFailed = errors.New("header build failed")
	// ErrSerializationFailed is returned when the envelope cannot be encoded
	ErrSerializationFailed = errors.New("serialization failed")
	// ErrAuditFailed is returned when an auditable exchange could not be logged
	ErrAuditFailed = errors.New("audit failed")
	// ErrMalformedResponse is returned when the reply cannot be parsed
	ErrMalformedResponse = errors.New("malformed response")
	// ErrInvalidSecurityToken is returned when the reply carries no valid token
	ErrInvalidSecurityToken = errors.New("invalid security token")

	ErrTimeout     = transport.ErrTimeout
	ErrUnreachable = transport.ErrUnreachable
	ErrTransport   = transport.ErrTransport
)

// outcome names the failure class of err for metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrHeaderBuildFailed):
		return "build_failed"
	case errors.Is(err, ErrSerializationFailed):
		return "serialization_failed"
	case errors.Is(err, ErrAuditFailed):
		return "audit_failed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrInvalidSecurityToken):
		return "invalid_token"
	default:
		return "transport_error"
	}
}
