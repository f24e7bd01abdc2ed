// Package schema implements the per-model schema registry and matcher
// (spec §4.3, §6): loading input/output JSON-schema documents from disk,
// validating payloads against them, and extracting the per-variable
// granularity/aggregator/disaggregator hints the translator needs.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema wraps one compiled JSON-schema document plus the raw decoded form,
// which is needed to read the non-standard granularity/agg/dagg hint
// vocabulary (spec §4.3) that isn't expressible as a validation keyword.
type Schema struct {
	Name     string
	Raw      map[string]interface{}
	compiled *jsonschema.Schema
}

// Validate checks payload (any JSON-shaped Go value, typically produced by
// json.Unmarshal into interface{} or map[string]interface{}) against the
// schema.
func (s *Schema) Validate(payload interface{}) error {
	return s.compiled.Validate(payload)
}

// VariableHint reads properties.<variable>.properties.granularity.value and
// its optional siblings agg.value / dagg.value (spec §4.3).
func (s *Schema) VariableHint(variable string) (granularity, agg, dagg string, ok bool) {
	props, _ := s.Raw["properties"].(map[string]interface{})
	if props == nil {
		return "", "", "", false
	}
	varSchema, _ := props[variable].(map[string]interface{})
	if varSchema == nil {
		return "", "", "", false
	}
	varProps, _ := varSchema["properties"].(map[string]interface{})
	if varProps == nil {
		return "", "", "", false
	}
	granularity, ok = valueField(varProps, "granularity")
	if !ok {
		return "", "", "", false
	}
	agg, _ = valueField(varProps, "agg")
	dagg, _ = valueField(varProps, "dagg")
	return granularity, agg, dagg, true
}

func valueField(props map[string]interface{}, key string) (string, bool) {
	sub, _ := props[key].(map[string]interface{})
	if sub == nil {
		return "", false
	}
	v, ok := sub["value"].(string)
	return v, ok
}

// Registry is an immutable, name-keyed set of schemas, one per model
// input or output direction.
type Registry struct {
	schemas map[string]*Schema
}

// Names returns the registry's schema names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of schemas in the registry.
func (r *Registry) Len() int { return len(r.schemas) }

// Get returns the named schema, or nil if absent.
func (r *Registry) Get(name string) *Schema { return r.schemas[name] }

// LoadDir loads every *.json file in dir as a schema, keyed by filename
// stem (spec §6: "/opt/schemas/input/*.json" and ".../output/*.json").
func LoadDir(dir string) (*Registry, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob schema dir %s: %w", dir, err)
	}
	reg := &Registry{schemas: make(map[string]*Schema, len(entries))}
	for _, path := range entries {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", path, err)
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		compiled, err := jsonschema.CompileString(path, string(b))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", path, err)
		}
		reg.schemas[name] = &Schema{Name: name, Raw: raw, compiled: compiled}
	}
	return reg, nil
}

// Match returns the names of every schema in the registry that validates
// payload (spec §4.3: 0, 1, or >=2 matches).
func (r *Registry) Match(payload interface{}) []string {
	var matches []string
	for _, name := range r.Names() {
		if err := r.schemas[name].Validate(payload); err == nil {
			matches = append(matches, name)
		}
	}
	return matches
}

// genericEnvelopeSchemaJSON is the hard-coded wrapper schema every output
// payload must satisfy before its named output schema is checked (spec
// §4.4 item 5, verbatim structure from the original implementation).
const genericEnvelopeSchemaJSON = `{
  "type": "object",
  "patternProperties": {
    ".*": {
      "type": "object",
      "properties": {
        "data": {"type": "object"},
        "granularity": {"type": "string"}
      },
      "required": ["data", "granularity"]
    }
  }
}`

var genericEnvelopeSchema *jsonschema.Schema

func init() {
	s, err := jsonschema.CompileString("generic-output-envelope.json", genericEnvelopeSchemaJSON)
	if err != nil {
		panic(fmt.Sprintf("schema: failed to compile generic output envelope schema: %v", err))
	}
	genericEnvelopeSchema = s
}

// ValidateGenericEnvelope validates payload against the generic
// `{data, granularity}` wrapper shape, independent of any named schema.
func ValidateGenericEnvelope(payload interface{}) error {
	return genericEnvelopeSchema.Validate(payload)
}
