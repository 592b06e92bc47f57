package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"wavebind/logger"
	"wavebind/schema"
)

// LoraWeight is one weighted reference: a model path and its scale.
type LoraWeight struct {
	Path  string  `json:"path"`
	Scale float64 `json:"scale"`
}

// Coerce converts a control's literal value into the value sent for p.
// The second result is false when the parameter should be left out.
// Values that cannot be converted are sent as their raw string.
func Coerce(p schema.Parameter, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		if p.Required {
			return "", true
		}
		return nil, false
	}

	switch p.Type {
	case schema.TypeArray:
		return coerceArray(v, p.ArrayItemType), true
	case schema.TypeLoraWeight:
		return coerceLora(p.Name, v, false), true
	case schema.TypeLoraWeightArray:
		return coerceLora(p.Name, v, true), true
	case schema.TypeInteger:
		return toInteger(v), true
	case schema.TypeFloat:
		return toNumber(v), true
	case schema.TypeBoolean:
		return toBool(v), true
	}
	return v, true
}

func coerceArray(v any, itemType string) any {
	var items []any
	switch val := v.(type) {
	case string:
		for _, part := range strings.Split(val, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				items = append(items, part)
			}
		}
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		items = []any{val}
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, castItem(item, itemType))
	}
	return out
}

func castItem(item any, itemType string) any {
	switch itemType {
	case "integer":
		return toInteger(item)
	case "number", "float":
		return toNumber(item)
	case "boolean":
		return toBool(item)
	}
	if s, ok := item.(string); ok {
		return s
	}
	return fmt.Sprint(item)
}

// toInteger keeps the original value when it is not a whole number.
func toInteger(v any) any {
	switch val := v.(type) {
	case int, int64:
		return val
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return toInteger(f)
		}
		logger.Debug("Keeping non-integer value as string", "value", val)
		return val
	}
	return v
}

func toNumber(v any) any {
	switch val := v.(type) {
	case float64, int, int64:
		return val
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
		logger.Debug("Keeping non-numeric value as string", "value", val)
		return val
	}
	return v
}

func toBool(v any) any {
	if s, ok := v.(string); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
		return s
	}
	return v
}

// coerceLora accepts a JSON object, a JSON array, the path:scale[,path:scale]
// shorthand, or already-decoded values. Invalid entries are dropped; when no
// entry survives from a non-empty string the raw string is kept.
func coerceLora(name string, v any, array bool) any {
	var entries []LoraWeight
	single := false

	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		var ok bool
		entries, single, ok = ParseLoras(s)
		if !ok || len(entries) == 0 {
			logger.Warn("Could not parse weighted references, sending raw value", "param", name)
			return val
		}
	case map[string]any:
		if lw, ok := loraFromMap(val); ok {
			entries, single = []LoraWeight{lw}, true
		}
	case []any:
		entries = lorasFromList(val)
	case LoraWeight:
		entries, single = []LoraWeight{val}, true
	case []LoraWeight:
		entries = val
	default:
		return v
	}

	if array {
		if entries == nil {
			return []LoraWeight{}
		}
		return entries
	}
	if single || len(entries) == 1 {
		return entries[0]
	}
	if len(entries) == 0 {
		return map[string]any{}
	}
	return entries
}

// ParseLoras parses the string forms of weighted references. single is true
// when the input was one JSON object. ok is false when the input was JSON
// that could not be decoded.
func ParseLoras(s string) (entries []LoraWeight, single bool, ok bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}"):
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, true, false
		}
		lw, valid := loraFromMap(obj)
		if !valid {
			return nil, true, true
		}
		return []LoraWeight{lw}, true, true
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		var list []any
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, false, false
		}
		return lorasFromList(list), false, true
	}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		path, scaleStr, hasScale := strings.Cut(pair, ":")
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if !hasScale {
			entries = append(entries, LoraWeight{Path: path, Scale: 1.0})
			continue
		}
		scale, err := strconv.ParseFloat(strings.TrimSpace(scaleStr), 64)
		if err != nil {
			logger.Debug("Dropping weighted reference with invalid scale", "entry", pair)
			continue
		}
		entries = append(entries, LoraWeight{Path: path, Scale: scale})
	}
	return entries, false, true
}

func loraFromMap(m map[string]any) (LoraWeight, bool) {
	path, ok := m["path"].(string)
	if !ok || path == "" {
		return LoraWeight{}, false
	}
	switch scale := m["scale"].(type) {
	case float64:
		return LoraWeight{Path: path, Scale: scale}, true
	case string:
		f, err := strconv.ParseFloat(scale, 64)
		if err != nil {
			return LoraWeight{}, false
		}
		return LoraWeight{Path: path, Scale: f}, true
	}
	return LoraWeight{}, false
}

func lorasFromList(list []any) []LoraWeight {
	out := make([]LoraWeight, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if lw, ok := loraFromMap(m); ok {
			out = append(out, lw)
		}
	}
	return out
}
