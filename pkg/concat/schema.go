package concat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SegmentsSchema is the JSON Schema for a segment list
const SegmentsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["path"],
    "properties": {
      "path": {
        "type": "string",
        "minLength": 1,
        "description": "Segment source file, optionally file:// prefixed"
      },
      "from": {
        "type": ["number", "null"],
        "description": "Trim start in seconds; non-positive means unbounded"
      },
      "to": {
        "type": ["number", "null"],
        "description": "Trim end in seconds; non-positive means unbounded"
      }
    }
  }
}`

// RequestSchema is the JSON Schema for a concatenation request
const RequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["segments", "path"],
  "properties": {
    "segments": ` + SegmentsSchema + `,
    "path": {
      "type": "string",
      "minLength": 1,
      "description": "Destination file"
    }
  }
}`

var (
	segmentsSchemaLoader = gojsonschema.NewStringLoader(SegmentsSchema)
	requestSchemaLoader  = gojsonschema.NewStringLoader(RequestSchema)
)

// ParseSegments validates and decodes a JSON segment list. Any malformed
// input yields an error wrapping ErrInvalidOptions.
func ParseSegments(raw []byte) ([]Segment, error) {
	if err := validate(segmentsSchemaLoader, raw); err != nil {
		return nil, err
	}
	var segments []Segment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return nil, newError(ErrInvalidOptions, -1, err)
	}
	return segments, nil
}

// ParseRequest validates and decodes a JSON concatenation request
func ParseRequest(raw []byte) (Request, error) {
	if err := validate(requestSchemaLoader, raw); err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, newError(ErrInvalidOptions, -1, err)
	}
	return req, nil
}

func validate(schema gojsonschema.JSONLoader, raw []byte) error {
	if len(raw) == 0 {
		return newError(ErrInvalidOptions, -1, fmt.Errorf("empty input"))
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return newError(ErrInvalidOptions, -1, fmt.Errorf("schema validation error: %w", err))
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return newError(ErrInvalidOptions, -1, fmt.Errorf("validation failed: %s", strings.Join(msgs, "; ")))
	}
	return nil
}
