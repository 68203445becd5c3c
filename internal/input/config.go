package input

import (
	"fmt"
	"sort"
	"strings"
)

// FieldKind is the declared type of a configuration field.
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldInt    FieldKind = "int"
	FieldBool   FieldKind = "bool"
)

// ConfigField describes one named field of an input's configuration schema.
type ConfigField struct {
	Name        string      `json:"name"`
	Kind        FieldKind   `json:"kind"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}

// ConfigSchema is the ordered set of fields an input type accepts.
type ConfigSchema []ConfigField

// Fields returns a copy so callers cannot mutate the descriptor's schema.
func (s ConfigSchema) Fields() []ConfigField {
	out := make([]ConfigField, len(s))
	copy(out, s)
	return out
}

// Configuration is a resolved key/value configuration for one instance.
type Configuration map[string]interface{}

// String returns the string value of a field, falling back to the zero value.
func (c Configuration) String(key string) string {
	v, _ := c[key].(string)
	return v
}

// Int returns the int value of a field. JSON decoding produces float64,
// so both representations are accepted.
func (c Configuration) Int(key string) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Bool returns the bool value of a field.
func (c Configuration) Bool(key string) bool {
	v, _ := c[key].(bool)
	return v
}

// ConfigurationError reports schema validation failures with field-level
// detail. It is surfaced synchronously to the caller and never retried.
type ConfigurationError struct {
	Fields map[string]string // field name -> problem
}

func (e *ConfigurationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "invalid input configuration: " + strings.Join(parts, "; ")
}

// Validate checks cfg against the schema without side effects. Unknown
// keys are rejected, missing required fields and type mismatches are
// collected into a single ConfigurationError.
func (s ConfigSchema) Validate(cfg Configuration) error {
	problems := make(map[string]string)

	byName := make(map[string]ConfigField, len(s))
	for _, f := range s {
		byName[f.Name] = f
	}

	for key := range cfg {
		if _, ok := byName[key]; !ok {
			problems[key] = "unknown field"
		}
	}

	for _, f := range s {
		v, present := cfg[f.Name]
		if !present {
			if f.Required && f.Default == nil {
				problems[f.Name] = "required field is missing"
			}
			continue
		}
		if !f.Kind.accepts(v) {
			problems[f.Name] = fmt.Sprintf("expected %s value", f.Kind)
		}
	}

	if len(problems) > 0 {
		return &ConfigurationError{Fields: problems}
	}
	return nil
}

// Resolve validates cfg and returns a copy with schema defaults filled in
// for absent fields.
func (s ConfigSchema) Resolve(cfg Configuration) (Configuration, error) {
	if err := s.Validate(cfg); err != nil {
		return nil, err
	}

	resolved := make(Configuration, len(s))
	for k, v := range cfg {
		resolved[k] = v
	}
	for _, f := range s {
		if _, present := resolved[f.Name]; !present && f.Default != nil {
			resolved[f.Name] = f.Default
		}
	}
	return resolved, nil
}

func (k FieldKind) accepts(v interface{}) bool {
	switch k {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldInt:
		switch v.(type) {
		case int, int64:
			return true
		case float64:
			// JSON numbers decode as float64; accept integral values.
			f := v.(float64)
			return f == float64(int64(f))
		}
		return false
	case FieldBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}
