// Package clearinghouse records data access and agreements at a clearing
// house and delivers access notifications to peer endpoints.
package clearinghouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/mime"
	"github.com/sebplorenz/DataspaceConnector/pkg/msh"
)

// ErrPolicyExecution is returned when a log or notification could not be
// delivered. Data whose release depends on it must be withheld.
var ErrPolicyExecution = errors.New("policy execution failed")

// Exchanger sends a message and returns the peer's reply
type Exchanger interface {
	Send(ctx context.Context, desc message.Description, payload []byte) (*msh.Response, error)
}

// Config configures the clearing house client
type Config struct {
	// URI of the clearing house. Empty disables clearing house logging.
	URI string
}

// Record is the log entry describing one data access
type Record struct {
	Target          string `json:"target"`
	IssuerConnector string `json:"issuerConnector"`
	Accessed        string `json:"accessed"`
}

// Client talks to the clearing house. It implements msh.Auditor.
type Client struct {
	exchanger Exchanger
	uri       string
	now       func() time.Time
	logger    *zap.Logger
}

var _ msh.Auditor = (*Client)(nil)

// NewClient creates a clearing house client sending through exchanger
func NewClient(exchanger Exchanger, config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		exchanger: exchanger,
		uri:       config.URI,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "clearinghouse")),
	}
}

// Enabled reports whether a clearing house is configured
func (c *Client) Enabled() bool {
	return c.uri != ""
}

// LogAccess records that targetID was accessed
func (c *Client) LogAccess(ctx context.Context, targetID string) error {
	if !c.Enabled() {
		return nil
	}
	record, err := c.record(ctx, targetID)
	if err != nil {
		return err
	}
	return c.send(ctx, &message.Log{Recipient: c.uri}, record)
}

// LogAgreement records a concluded agreement
func (c *Client) LogAgreement(ctx context.Context, agreementID string, doc []byte) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.send(ctx, &message.Log{Recipient: c.uri}, doc); err != nil {
		return fmt.Errorf("logging agreement %s: %w", agreementID, err)
	}
	return nil
}

// LogMessage records an exchanged message header
func (c *Client) LogMessage(ctx context.Context, h *message.Header) error {
	if !c.Enabled() {
		return nil
	}
	data, err := mime.MarshalHeader(h)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPolicyExecution, err)
	}
	return c.send(ctx, &message.Log{Recipient: c.uri}, data)
}

// ReportAccess notifies endpoint that targetID was accessed. The endpoint
// comes from the agreement, so this does not depend on a clearing house
// being configured. An empty endpoint is a no-op.
func (c *Client) ReportAccess(ctx context.Context, endpoint, targetID string) error {
	if endpoint == "" {
		return nil
	}
	record, err := c.record(ctx, targetID)
	if err != nil {
		return err
	}
	return c.send(ctx, &message.Notification{Recipient: endpoint}, record)
}

func (c *Client) record(ctx context.Context, targetID string) ([]byte, error) {
	id, _ := message.IdentityFromContext(ctx)
	data, err := json.Marshal(Record{
		Target:          targetID,
		IssuerConnector: id.ConnectorID,
		Accessed:        c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding log record: %w", ErrPolicyExecution, err)
	}
	return data, nil
}

// send delivers payload and requires a processed notification in return
func (c *Client) send(ctx context.Context, desc message.Description, payload []byte) error {
	resp, err := c.exchanger.Send(ctx, desc, payload)
	if err != nil {
		c.logger.Warn("failed to send log message", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPolicyExecution, err)
	}
	if resp == nil {
		return fmt.Errorf("%w: no response", ErrPolicyExecution)
	}

	ok, err := msh.IsExpectedType(resp, message.TypeMessageProcessed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPolicyExecution, err)
	}
	if !ok {
		c.logger.Warn("unexpected reply to log message",
			zap.Stringer("type", resp.Header.Type),
			zap.Stringer("reason", resp.Header.RejectionReason))
		return fmt.Errorf("%w: unexpected reply %s", ErrPolicyExecution, resp.Header.Type)
	}
	return nil
}
