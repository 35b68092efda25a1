// Package mime implements the two-part multipart envelope used between connectors
package mime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/sebplorenz/DataspaceConnector/pkg/message"
)

const (
	// ContentTypeMultipartFormData is the MIME type of a complete message
	ContentTypeMultipartFormData = "multipart/form-data"
	// ContentTypeHeader is the MIME type of the header part
	ContentTypeHeader = "application/ld+json"
	// ContentTypeOctetStream is the default MIME type of the payload part
	ContentTypeOctetStream = "application/octet-stream"

	// PartHeader names the header part
	PartHeader = "header"
	// PartPayload names the payload part
	PartPayload = "payload"
)

var (
	// ErrMalformedHeader is returned when the header part is missing or cannot be decoded
	ErrMalformedHeader = errors.New("malformed message header")
	// ErrMalformedEnvelope is returned when the multipart framing is broken
	ErrMalformedEnvelope = errors.New("malformed message envelope")
)

// Message is a complete protocol message: one header and one opaque payload
type Message struct {
	Boundary    string
	Header      *message.Header
	Payload     []byte
	PayloadType string
}

// NewMessage creates a new message with the given header and payload
func NewMessage(header *message.Header, payload []byte) *Message {
	return &Message{
		Boundary:    generateBoundary(),
		Header:      header,
		Payload:     payload,
		PayloadType: ContentTypeOctetStream,
	}
}

// Serialize creates the multipart body and its Content-Type
func (m *Message) Serialize() ([]byte, string, error) {
	if m.Header == nil {
		return nil, "", fmt.Errorf("%w: header is nil", ErrMalformedHeader)
	}

	headerData, err := MarshalHeader(m.Header)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if m.Boundary == "" {
		m.Boundary = generateBoundary()
	}
	if err := writer.SetBoundary(m.Boundary); err != nil {
		return nil, "", fmt.Errorf("failed to set boundary: %w", err)
	}

	if err := writePart(writer, PartHeader, ContentTypeHeader, headerData); err != nil {
		return nil, "", err
	}

	if len(m.Payload) > 0 {
		payloadType := m.PayloadType
		if payloadType == "" {
			payloadType = ContentTypeOctetStream
		}
		if err := writePart(writer, PartPayload, payloadType, m.Payload); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	contentType := mime.FormatMediaType(ContentTypeMultipartFormData, map[string]string{
		"boundary": m.Boundary,
	})
	return buf.Bytes(), contentType, nil
}

func writePart(w *multipart.Writer, name, contentType string, data []byte) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, name))
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", fmt.Sprintf("%d", len(data)))

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", name, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write %s part: %w", name, err)
	}
	return nil
}

// Parse parses a multipart message. The header part is validated against
// the header schema before it is decoded; unknown parts are ignored.
func Parse(r io.Reader, contentType string) (*Message, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse content type: %v", ErrMalformedEnvelope, err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("%w: not a multipart message: %s", ErrMalformedEnvelope, mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("%w: boundary not found in content type", ErrMalformedEnvelope)
	}

	msg := &Message{Boundary: boundary}
	var headerData []byte

	reader := multipart.NewReader(r, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read part: %v", ErrMalformedEnvelope, err)
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read part data: %v", ErrMalformedEnvelope, err)
		}

		switch part.FormName() {
		case PartHeader:
			headerData = data
		case PartPayload:
			if len(data) > 0 {
				msg.Payload = data
			}
			msg.PayloadType = stripParams(part.Header.Get("Content-Type"))
		}
	}

	if headerData == nil {
		return nil, fmt.Errorf("%w: header part not found in message", ErrMalformedHeader)
	}

	header, err := UnmarshalHeader(headerData)
	if err != nil {
		return nil, err
	}
	msg.Header = header

	return msg, nil
}

// MarshalHeader encodes h as canonical (RFC 8785) JSON
func MarshalHeader(h *message.Header) ([]byte, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize header: %w", err)
	}
	return canonical, nil
}

// UnmarshalHeader validates data against the header schema and decodes it
func UnmarshalHeader(data []byte) (*message.Header, error) {
	if err := validateHeader(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	var h message.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	h.Normalize()
	return &h, nil
}

func stripParams(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mediaType
}

// generateBoundary generates a MIME boundary string
func generateBoundary() string {
	return fmt.Sprintf("msgpart-%s", strings.ReplaceAll(uuid.New().String(), "-", ""))
}
