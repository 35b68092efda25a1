package message

import "fmt"

// Description carries the per-message inputs a Builder needs.
//
// Each concrete description validates its own required fields and copies
// its type-specific values onto the header skeleton.
type Description interface {
	MessageType() MessageType
	Validate() error
	Apply(h *Header)
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrDescriptionInvalid, name)
	}
	return nil
}

func recipients(r string) []string {
	return []string{r}
}

// DescriptionRequest asks a peer for the self-description or one catalog element.
// An empty RequestedElement asks for the self-description.
type DescriptionRequest struct {
	Recipient        string
	RequestedElement string
}

func (d *DescriptionRequest) MessageType() MessageType { return TypeDescriptionRequest }
func (d *DescriptionRequest) Validate() error          { return requireField("recipient", d.Recipient) }
func (d *DescriptionRequest) Apply(h *Header) {
	h.RecipientConnectors = recipients(d.Recipient)
	h.RequestedElement = d.RequestedElement
}

// DescriptionResponse answers a DescriptionRequest
type DescriptionResponse struct {
	Recipient          string
	CorrelationMessage string
}

func (d *DescriptionResponse) MessageType() MessageType { return TypeDescriptionResponse }
func (d *DescriptionResponse) Validate() error {
	if err := requireField("recipient", d.Recipient); err != nil {
		return err
	}
	return requireField("correlation message", d.CorrelationMessage)
}
func (d *DescriptionResponse) Apply(h *Header) {
	h.RecipientConnectors = recipients(d.Recipient)
	h.CorrelationMessage = d.CorrelationMessage
}

// ContractRequest proposes a rule document to a provider.
type ContractRequest struct {
	Recipient string
}

func (d *ContractRequest) MessageType() MessageType { return TypeContractRequest }
func (d *ContractRequest) Validate() error          { return requireField("recipient", d.Recipient) }
func (d *ContractRequest) Apply(h *Header) {
	h.RecipientConnectors = recipients(d.Recipient)
}

// ContractAgreement carries an agreement document. Providers send it in
// reply to a ContractRequest and consumers send it back to acknowledge.
type ContractAgreement struct {
	Recipient          string
	CorrelationMessage string
}

func (d *ContractAgreement) MessageType() MessageType { return TypeContractAgreement }
func (d *ContractAgreement) Validate() error          { return requireField("recipient", d.Recipient) }
func (d *ContractAgreement) Apply(h *Header) {
	h.RecipientConnectors = recipients(d.Recipient)
	h.CorrelationMessage = d.CorrelationMessage
}

// ContractRejection refuses a ContractRequest
type ContractRejection struct {
	Recipient          string
	CorrelationMessage string
	Reason             RejectionReason
}

func (d *ContractRejection) MessageType() MessageType { return TypeContractRejection }
func (d *ContractRejection) Validate() error {
	if err := requireField("recipient", d.Recipient); err != nil {
		return err
	}
	return requireField("correlation message", d.CorrelationMessage)
}
func (d *ContractRejection) Apply(h *Header) {
	h.RecipientConnectors = recipients(d.Recipient)
	h.CorrelationMessage = d.CorrelationMessage
	h.RejectionReason = d.Reason
}

// ArtifactRequest asks a provider for artifact data. TransferContract may
// be empty when the provider does not negotiate policies.
type ArtifactRequest struct {
	Recipient         string
	RequestedArtifact string
	TransferContract  string
}

func (d *ArtifactRequest) MessageType() MessageType { return TypeArtifactRequest }
func (d *ArtifactRequest) Validate() error {
	if err := requireField("recipient", d.Recipient); err != nil {
		return err
	}
	return requireField("requested artifact", d.RequestedArtifact)
}
func (d *ArtifactRequest) Apply(h *Header) {
	h.RecipientConnectors = recipients(d.Recipient)
	h.RequestedArtifact = d.RequestedArtifact
	h.TransferContract = d.TransferContract
}

// ArtifactResponse carries artifact data back to the requester
type ArtifactResponse struct {
	Recipient          string
	CorrelationMessage string
	TransferContract   string
}

func (d *ArtifactResponse) MessageType() MessageType { return TypeArtifactResponse }
func (d *ArtifactResponse) Validate() error {
	if err := requireField("recipient", d.Recipient); err != nil {
		return err
	}
	return requireField("correlation message", d.CorrelationMessage)
}
func (d *ArtifactResponse) Apply(h *Header) {
	h.RecipientConnectors = recipients(d.Recipient)
	h.CorrelationMessage = d.CorrelationMessage
	h.TransferContract = d.TransferContract
}

// Log submits a log record to a clearing house
type Log struct {
	Recipient string
}

func (d *Log) MessageType() MessageType { return TypeLog }
func (d *Log) Validate() error          { return requireField("recipient", d.Recipient) }
func (d *Log) Apply(h *Header)          { h.RecipientConnectors = recipients(d.Recipient) }

// Notification reports an event, such as a data access, to a peer endpoint
type Notification struct {
	Recipient string
}

func (d *Notification) MessageType() MessageType { return TypeNotification }
func (d *Notification) Validate() error          { return requireField("recipient", d.Recipient) }
func (d *Notification) Apply(h *Header)          { h.RecipientConnectors = recipients(d.Recipient) }

// MessageProcessed acknowledges a message without returning data
type MessageProcessed struct {
	Recipient          string
	CorrelationMessage string
}

func (d *MessageProcessed) MessageType() MessageType { return TypeMessageProcessed }
func (d *MessageProcessed) Validate() error {
	if err := requireField("recipient", d.Recipient); err != nil {
		return err
	}
	return requireField("correlation message", d.CorrelationMessage)
}
func (d *MessageProcessed) Apply(h *Header) {
	h.RecipientConnectors = recipients(d.Recipient)
	h.CorrelationMessage = d.CorrelationMessage
}

// Rejection refuses an inbound message
type Rejection struct {
	Recipient          string
	CorrelationMessage string
	Reason             RejectionReason
}

func (d *Rejection) MessageType() MessageType { return TypeRejection }
func (d *Rejection) Validate() error {
	if err := requireField("correlation message", d.CorrelationMessage); err != nil {
		return err
	}
	return requireField("rejection reason", string(d.Reason))
}
func (d *Rejection) Apply(h *Header) {
	if d.Recipient != "" {
		h.RecipientConnectors = recipients(d.Recipient)
	}
	h.CorrelationMessage = d.CorrelationMessage
	h.RejectionReason = d.Reason
}
