// Package schema compiles JSON Schemas and validates raw JSON documents
// against them.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled JSON Schema.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// Compile parses and compiles a schema document. name only identifies the
// schema in error messages.
func Compile(name string, doc []byte) (*Schema, error) {
	var schemaDoc any
	if err := json.Unmarshal(doc, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	url := name + ".json"
	if err := c.AddResource(url, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompile is Compile for schemas embedded in the binary.
func MustCompile(name string, doc []byte) *Schema {
	s, err := Compile(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a raw JSON document.
func (s *Schema) Validate(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: invalid json: %w", s.name, err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}
