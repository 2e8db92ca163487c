// Package script reads call scripts: ordered lists of tag-manager calls written as YAML
// or JSON, used to replay traffic through a dispatcher.
//
//	calls:
//	  - method: initGTM
//	    args: [GTM-XXXX, 30]
//	  - method: trackPage
//	    args: [/home]
//	  - method: exitGTM
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/harun/tagqueue/pkg/tagqueue"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Schema is the JSON schema every script must satisfy
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["calls"],
  "additionalProperties": false,
  "properties": {
    "calls": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["method"],
        "additionalProperties": false,
        "properties": {
          "method": {"type": "string", "minLength": 1},
          "args": {"type": "array"}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// Step is one scripted call
type Step struct {
	Method string `json:"method" yaml:"method"`
	Args   []any  `json:"args,omitempty" yaml:"args,omitempty"`
}

// Document is a parsed script
type Document struct {
	Calls []Step `json:"calls" yaml:"calls"`
}

// Load reads and parses the script at path
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes a YAML or JSON script
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	// JSON is a subset of YAML, so both arrive here as generic values
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize script: %w", err)
	}

	if err := validateSchema(normalized); err != nil {
		return nil, fmt.Errorf("script schema validation failed: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode script: %w", err)
	}
	return &doc, nil
}

func validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, err := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += err.String()
		}
		return fmt.Errorf("schema validation errors: %s", errMsg)
	}
	return nil
}

// Decode maps every step to its typed call. All bad steps are reported, each with its
// index in the script.
func Decode(doc *Document) ([]tagqueue.Call, error) {
	if doc == nil {
		return nil, errors.New("nil script")
	}

	calls := make([]tagqueue.Call, 0, len(doc.Calls))
	var errs []error
	for i, step := range doc.Calls {
		call, err := step.Call()
		if err != nil {
			errs = append(errs, fmt.Errorf("call %d (%s): %w", i, step.Method, err))
			continue
		}
		calls = append(calls, call)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return calls, nil
}
