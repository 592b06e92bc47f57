package schema

import "strings"

// TypeTag is the derived kind of a model parameter.
type TypeTag string

const (
	TypeString          TypeTag = "string"
	TypeInteger         TypeTag = "integer"
	TypeFloat           TypeTag = "float"
	TypeBoolean         TypeTag = "boolean"
	TypeEnum            TypeTag = "enum"
	TypeLoraWeight      TypeTag = "lora-weight"
	TypeLoraWeightArray TypeTag = "lora-weight-array"
	TypeArray           TypeTag = "array"
)

// IsNumeric reports whether the tag carries min/max/step constraints.
func (t TypeTag) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// IsLora reports whether the tag is one of the weighted-reference tags.
func (t TypeTag) IsLora() bool {
	return t == TypeLoraWeight || t == TypeLoraWeightArray
}

// PortEligible reports whether a parameter of this type may be exposed as a
// connectable port in addition to its control.
func (t TypeTag) PortEligible() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeLoraWeight, TypeLoraWeightArray:
		return true
	}
	return false
}

// Parameter is one named input of a model, derived from its remote schema.
// It is never mutated after Parse returns it.
type Parameter struct {
	Name          string   `json:"name" yaml:"name"`
	Type          TypeTag  `json:"type" yaml:"type"`
	Required      bool     `json:"required" yaml:"required"`
	Default       any      `json:"default,omitempty" yaml:"default,omitempty"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Min           *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Step          float64  `json:"step,omitempty" yaml:"step,omitempty"`
	EnumValues    []any    `json:"enum,omitempty" yaml:"enum,omitempty"`
	ArrayItemType string   `json:"arrayItemType,omitempty" yaml:"arrayItemType,omitempty"`
}

// Label is the user-facing control name; required parameters carry a "* " prefix.
func (p Parameter) Label() string {
	if p.Required {
		return RequiredPrefix + p.Name
	}
	return p.Name
}

// RequiredPrefix marks required parameters in control labels.
const RequiredPrefix = "* "

// Property is the subset of a JSON-Schema property the parser understands.
type Property struct {
	Type        string    `json:"type,omitempty"`
	Ref         string    `json:"$ref,omitempty"`
	Description string    `json:"description,omitempty"`
	Default     any       `json:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Disabled    bool      `json:"disabled,omitempty"`
	Hidden      bool      `json:"hidden,omitempty"`

	// Properties is only inspected to recognise the weighted-reference shape.
	Properties map[string]*Property `json:"properties,omitempty"`
}

var multilineTokens = []string{"prompt", "text", "description", "instruction", "content", "image"}

// Multiline reports whether the parameter's control should be a multi-line
// entry: long-form names or descriptions, long defaults, arrays and
// weighted references.
func (p Parameter) Multiline() bool {
	if p.Type == TypeArray || p.Type.IsLora() {
		return true
	}
	if p.Type != TypeString {
		return false
	}
	name := strings.ToLower(p.Name)
	desc := strings.ToLower(p.Description)
	for _, token := range multilineTokens {
		if strings.Contains(name, token) || strings.Contains(desc, token) {
			return true
		}
	}
	if s, ok := p.Default.(string); ok && len(s) > 50 {
		return true
	}
	return false
}
