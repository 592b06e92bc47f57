package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// LoraWeightRef is the component reference identifying the weighted-reference shape.
const LoraWeightRef = "#/components/schemas/LoraWeight"

// inputSchema is the JSON-Schema-like object a model detail carries.
type inputSchema struct {
	Properties map[string]*Property `json:"properties"`
	Required   []string             `json:"required"`
	Order      []string             `json:"x-order-properties"`
}

// Tokens in a parameter name whose sample defaults are never copied into a control.
var clearedDefaultTokens = []string{"image", "video", "audio", "url", "prompt", "text", "description"}

// Parse turns a raw model input schema into its ordered parameter list.
// Without an explicit x-order-properties list the raw key order of
// "properties" is kept. An empty or property-less schema yields no parameters.
func Parse(raw json.RawMessage) ([]Parameter, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var s inputSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("error decoding input schema: %w", err)
	}
	if len(s.Properties) == 0 {
		return nil, nil
	}

	order := s.Order
	if len(order) == 0 {
		keys, err := propertyKeys(raw)
		if err != nil {
			return nil, err
		}
		order = keys
	}

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	params := make([]Parameter, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		prop, ok := s.Properties[name]
		if !ok || prop == nil || seen[name] {
			continue
		}
		seen[name] = true
		if prop.Disabled || prop.Hidden {
			continue
		}
		params = append(params, derive(name, prop, required[name]))
	}

	return params, nil
}

func derive(name string, prop *Property, required bool) Parameter {
	p := Parameter{
		Name:        name,
		Required:    required,
		Description: prop.Description,
		Type:        tagFor(prop),
	}

	switch p.Type {
	case TypeEnum:
		p.EnumValues = append([]any(nil), prop.Enum...)
	case TypeArray:
		p.ArrayItemType = "string"
		if prop.Items != nil && prop.Items.Type != "" {
			p.ArrayItemType = prop.Items.Type
		}
	}

	if prop.Type == "integer" || prop.Type == "number" {
		p.Min = prop.Minimum
		p.Max = prop.Maximum
		p.Step = 0.01
		if prop.Type == "integer" {
			p.Step = 1
		}
	}

	p.Default = cleanDefault(name, prop.Default)

	if p.Type == TypeEnum && len(p.EnumValues) > 0 && !containsValue(p.EnumValues, p.Default) {
		p.Default = p.EnumValues[0]
	}
	if p.Type == TypeBoolean && p.Default == nil {
		p.Default = false
	}

	return p
}

func tagFor(prop *Property) TypeTag {
	if IsLoraWeight(prop) {
		if prop.Type == "array" {
			return TypeLoraWeightArray
		}
		return TypeLoraWeight
	}
	if len(prop.Enum) > 0 {
		return TypeEnum
	}
	switch prop.Type {
	case "string":
		return TypeString
	case "integer":
		return TypeInteger
	case "number":
		return TypeFloat
	case "boolean":
		return TypeBoolean
	case "array":
		return TypeArray
	}
	return TypeString
}

// IsLoraWeight reports whether a property is, or is an array of, the
// weighted-reference component.
func IsLoraWeight(prop *Property) bool {
	if prop == nil {
		return false
	}
	if prop.Ref == LoraWeightRef {
		return true
	}
	return prop.Type == "array" && prop.Items != nil && prop.Items.Ref == LoraWeightRef
}

func cleanDefault(name string, def any) any {
	if def == nil {
		return nil
	}
	lower := strings.ToLower(name)
	for _, token := range clearedDefaultTokens {
		if strings.Contains(lower, token) {
			return ""
		}
	}
	return def
}

func containsValue(values []any, v any) bool {
	for _, candidate := range values {
		if fmt.Sprint(candidate) == fmt.Sprint(v) && v != nil {
			return true
		}
	}
	return false
}

// propertyKeys walks the raw document and returns the keys of the top-level
// "properties" object in the order they appear.
func propertyKeys(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("error reading schema: %w", err)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("error reading schema key: %w", err)
		}
		key, _ := tok.(string)
		if key != "properties" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("error skipping %q: %w", key, err)
			}
			continue
		}

		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("error reading properties: %w", err)
		}
		var keys []string
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("error reading property name: %w", err)
			}
			name, _ := tok.(string)
			keys = append(keys, name)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("error skipping property %q: %w", name, err)
			}
		}
		return keys, nil
	}

	return nil, nil
}

// Equal reports whether two parameter lists describe the same controls:
// same names in the same order with matching tag, required flag, enum
// values and numeric bounds.
func Equal(a, b []Parameter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Type != b[i].Type || a[i].Required != b[i].Required {
			return false
		}
		if !equalBound(a[i].Min, b[i].Min) || !equalBound(a[i].Max, b[i].Max) {
			return false
		}
		if len(a[i].EnumValues) != len(b[i].EnumValues) {
			return false
		}
		for j := range a[i].EnumValues {
			if fmt.Sprint(a[i].EnumValues[j]) != fmt.Sprint(b[i].EnumValues[j]) {
				return false
			}
		}
	}
	return true
}

func equalBound(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
