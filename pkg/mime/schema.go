package mime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const headerSchemaURL = "https://schemas.dataspace.local/message-header.json"

// headerSchema is the minimum structure every inbound header must have
// before it is decoded into a message.Header. Only the type and id are
// required, so that a header with other fields missing can still be
// answered with a correlated rejection.
const headerSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["@type", "@id"],
  "properties": {
    "@type": {"type": "string", "minLength": 1},
    "@id": {"type": "string", "minLength": 1},
    "ids:modelVersion": {"type": "string", "minLength": 1},
    "ids:issued": {"type": "string", "minLength": 1},
    "ids:issuerConnector": {"type": "string", "minLength": 1},
    "ids:senderAgent": {"type": "string"},
    "ids:recipientConnector": {"type": "array", "items": {"type": "string"}},
    "ids:correlationMessage": {"type": "string"},
    "ids:requestedElement": {"type": "string"},
    "ids:transferContract": {"type": "string"},
    "ids:requestedArtifact": {"type": "string"},
    "ids:rejectionReason": {"type": "string"},
    "ids:securityToken": {
      "type": "object",
      "required": ["ids:tokenValue"],
      "properties": {
        "ids:tokenFormat": {"type": "string"},
        "ids:tokenValue": {"type": "string"}
      }
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(headerSchemaURL, bytes.NewReader([]byte(headerSchema))); err != nil {
			compileErr = fmt.Errorf("adding header schema: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(headerSchemaURL)
	})
	return compiledSchema, compileErr
}

func validateHeader(data []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decoding header: %w", err)
	}
	return s.Validate(v)
}
