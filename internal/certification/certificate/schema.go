package certificate

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	dErrors "citywalk/pkg/domain-errors"
)

// schemaJSON describes the stored certificate blob. It is intentionally strict:
// unknown fields would be silently dropped on decode and break re-hashing.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["version", "type", "sealId", "userId", "sealName", "earnedTime", "timestamp", "nonce"],
  "properties": {
    "version":    {"type": "string", "minLength": 1},
    "type":       {"const": "SEAL_CERTIFICATE"},
    "sealId":     {"type": "string", "minLength": 1},
    "userId":     {"type": "string", "minLength": 1},
    "sealName":   {"type": "string"},
    "earnedTime": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}\\.[0-9]{3}Z$"},
    "location":   {"type": "string"},
    "journeyId":  {"type": "string"},
    "timestamp":  {"type": "integer", "minimum": 1},
    "nonce":      {"type": "string", "pattern": "^[0-9a-f]{32,}$"}
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
})

// Parse decodes a stored or user-supplied certificate blob. Malformed input yields
// CodeInvalidCertificate with the schema violations in the message.
func Parse(data []byte) (*Certificate, error) {
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidCertificate, "certificate is empty")
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compile certificate schema")
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidCertificate, "certificate is not valid JSON")
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			violations = append(violations, re.String())
		}
		return nil, dErrors.New(dErrors.CodeInvalidCertificate, strings.Join(violations, "; "))
	}

	var cert Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidCertificate, "decode certificate")
	}
	if err := cert.Validate(); err != nil {
		return nil, err
	}
	return &cert, nil
}
