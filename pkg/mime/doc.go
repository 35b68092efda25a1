// Copyright (c) 2024 The DataspaceConnector Authors
// SPDX-License-Identifier: BSD-2-Clause

/*
Package mime packages protocol messages as two-part multipart bodies.

# MIME Structure

Every message is a multipart/form-data body with a header part and an
optional payload part:

	Content-Type: multipart/form-data; boundary=msgpart-...

	--msgpart-...
	Content-Disposition: form-data; name="header"
	Content-Type: application/ld+json

	{"@context":{...},"@id":"urn:message:...","@type":"ids:ArtifactRequestMessage",...}
	--msgpart-...
	Content-Disposition: form-data; name="payload"
	Content-Type: application/octet-stream

	[opaque payload]
	--msgpart-...--

# Header Encoding

Headers are written as RFC 8785 canonical JSON so that two serializations
of the same header are byte-identical. Inbound headers are validated against
a JSON Schema before decoding; failures are reported as ErrMalformedHeader.

# Usage

	data, contentType, err := mime.NewMessage(header, payload).Serialize()

	msg, err := mime.Parse(body, contentType)
	header, payload := msg.Header, msg.Payload

# References

  - RFC 7578 multipart/form-data: https://datatracker.ietf.org/doc/html/rfc7578
  - RFC 8785 JSON Canonicalization Scheme: https://datatracker.ietf.org/doc/html/rfc8785
*/
package mime
