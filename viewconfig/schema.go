// Copyright 2026 The AgentView Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package viewconfig

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// CorrelationMarker is the vendor keyword that designates a schema
// property as the correlation id used to pair tool calls with results:
//
//	"properties": {
//	    "callId": {"type": "string", "callId": true}
//	}
//
// A schema may mark at most one property.
const CorrelationMarker = "callId"

// A Schema is a compiled structural validator for item content, wrapping
// the raw JSON Schema document it was built from. Compiled schemas are
// immutable and safe for concurrent use.
type Schema struct {
	doc            map[string]any
	compiled       *gojsonschema.Schema
	correlationKey string
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(doc map[string]any) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JSON schema: %w", err)
	}

	key, err := findCorrelationKey(doc)
	if err != nil {
		return nil, err
	}

	return &Schema{doc: doc, compiled: compiled, correlationKey: key}, nil
}

// MustCompileSchema is like CompileSchema but panics on error. It is
// intended for static configuration values.
func MustCompileSchema(doc map[string]any) *Schema {
	s, err := CompileSchema(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaFor derives a schema document from the Go type T and compiles it.
// The correlation marker can be attached with a struct tag:
//
//	CallID string `json:"callId" jsonschema_extras:"callId=true"`
func SchemaFor[T any]() (*Schema, error) {
	var zero T
	reflector := jsonschema.Reflector{
		Anonymous:                 true,
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
	}

	b, err := json.Marshal(reflector.Reflect(zero))
	if err != nil {
		return nil, fmt.Errorf("failed to JSON-marshal JSON schema: %w", err)
	}
	var doc map[string]any
	if err = json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to JSON-unmarshal JSON schema: %w", err)
	}
	delete(doc, "$schema")
	delete(doc, "$id")

	return CompileSchema(doc)
}

// Doc returns the raw schema document the validator was compiled from.
func (s *Schema) Doc() map[string]any { return s.doc }

// CorrelationKey returns the name of the property marked as the
// correlation id, if any. When no property is marked, pairing logic
// involving this schema must be skipped, never guessed.
func (s *Schema) CorrelationKey() (string, bool) {
	return s.correlationKey, s.correlationKey != ""
}

// Matches reports whether the validator accepts the content. It never
// returns an error: content the validator cannot process is simply not a
// match.
func (s *Schema) Matches(content any) bool {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(content))
	return err == nil && result.Valid()
}

func findCorrelationKey(doc map[string]any) (string, error) {
	properties, ok := doc["properties"].(map[string]any)
	if !ok {
		return "", nil
	}

	var key string
	for name, raw := range properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if marked, ok := prop[CorrelationMarker].(bool); !ok || !marked {
			continue
		}
		if key != "" {
			return "", NewConfigError("schema marks more than one property as the correlation id")
		}
		key = name
	}
	return key, nil
}
