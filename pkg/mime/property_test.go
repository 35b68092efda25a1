package mime

import (
	"bytes"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sebplorenz/DataspaceConnector/pkg/message"
)

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameHeader(a, b *message.Header) bool {
	return a.Type == b.Type &&
		a.ID == b.ID &&
		a.ModelVersion == b.ModelVersion &&
		a.IssuedAt.Equal(b.IssuedAt) &&
		a.IssuerConnector == b.IssuerConnector &&
		a.SenderAgent == b.SenderAgent &&
		a.TokenValue() == b.TokenValue() &&
		sameStrings(a.RecipientConnectors, b.RecipientConnectors) &&
		a.CorrelationMessage == b.CorrelationMessage &&
		a.RequestedElement == b.RequestedElement &&
		a.TransferContract == b.TransferContract &&
		a.RequestedArtifact == b.RequestedArtifact &&
		a.RejectionReason == b.RejectionReason
}

// Property: Parse(Serialize(h, p)) == (h, p)
func TestRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	types := []interface{}{
		message.TypeArtifactRequest, message.TypeArtifactResponse, message.TypeContractRequest,
		message.TypeLog, message.TypeRejection, message.TypeDescriptionRequest,
	}

	properties.Property("serialize then parse yields the same header and payload", prop.ForAll(
		func(msgType message.MessageType, id, issuer, artifact, correlation string, recipients []string, issued int64, payload []byte) bool {
			h := &message.Header{
				Context:             message.DefaultContext,
				Type:                msgType,
				ID:                  "urn:message:" + id,
				ModelVersion:        "4.2.7",
				IssuedAt:            time.Unix(issued, 0).UTC(),
				IssuerConnector:     "https://" + issuer,
				SenderAgent:         "https://" + issuer,
				SecurityToken:       &message.Token{Format: message.TokenFormatJWT, Value: id + "." + issuer},
				RecipientConnectors: recipients,
				RequestedArtifact:   artifact,
				CorrelationMessage:  correlation,
			}

			data, contentType, err := NewMessage(h, payload).Serialize()
			if err != nil {
				return false
			}
			parsed, err := Parse(bytes.NewReader(data), contentType)
			if err != nil {
				return false
			}
			return sameHeader(h, parsed.Header) && bytes.Equal(payload, parsed.Payload)
		},
		gen.OneConstOf(types...),
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.SliceOf(gen.Identifier()),
		gen.Int64Range(0, 4102444800),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
