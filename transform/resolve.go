package transform

import (
	"encoding/json"
	"fmt"

	"wavebind/logger"
	"wavebind/schema"
)

// Wire types older workflows carry in param_map.
const (
	wireNumber   = "number"
	wireArrayStr = "array-str"
	wireArrayInt = "array-int"
)

// Task is what the backend submits: the model and its final request body.
type Task struct {
	ModelUUID   string         `json:"modelUUID"`
	RequestJSON map[string]any `json:"requestJson"`
}

// Resolve merges the values arriving on placeholder inputs into the literal
// request body. paramMap entries may be {"placeholder","type"} objects or
// bare placeholder names. A value equal to its own placeholder name is the
// unconnected default and is skipped. Malformed JSON fields count as empty.
func Resolve(modelID, requestJSON, paramMap string, placeholders map[string]any) Task {
	request := make(map[string]any)
	if requestJSON != "" {
		if err := json.Unmarshal([]byte(requestJSON), &request); err != nil {
			logger.Warn("Ignoring malformed request_json", "error", err)
			request = make(map[string]any)
		}
	}

	refs := make(map[string]json.RawMessage)
	if paramMap != "" {
		if err := json.Unmarshal([]byte(paramMap), &refs); err != nil {
			logger.Warn("Ignoring malformed param_map", "error", err)
			refs = nil
		}
	}

	for name, raw := range refs {
		placeholder, wireType := parseRef(raw)
		if placeholder == "" {
			continue
		}
		value, ok := placeholders[placeholder]
		if !ok {
			continue
		}
		if s, isString := value.(string); isString && s == placeholder {
			continue
		}
		request[name] = Convert(value, wireType)
		logger.Debug("Mapped placeholder", "param", name, "placeholder", placeholder, "type", wireType)
	}

	return Task{ModelUUID: modelID, RequestJSON: request}
}

func parseRef(raw json.RawMessage) (placeholder, wireType string) {
	var legacy string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		return legacy, string(schema.TypeString)
	}

	var ref struct {
		Placeholder string `json:"placeholder"`
		Type        string `json:"type"`
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", ""
	}
	if ref.Type == "" {
		ref.Type = string(schema.TypeString)
	}
	return ref.Placeholder, ref.Type
}

// Convert casts a value received on a placeholder to the parameter's wire type.
func Convert(value any, wireType string) any {
	switch wireType {
	case wireArrayStr:
		return coerceArray(value, "string")
	case wireArrayInt:
		return coerceArray(value, "number")
	case string(schema.TypeArray):
		return coerceArray(value, "string")
	case string(schema.TypeLoraWeight):
		return coerceLora("", value, false)
	case string(schema.TypeLoraWeightArray):
		return coerceLora("", value, true)
	case string(schema.TypeInteger):
		return toInteger(value)
	case string(schema.TypeFloat), wireNumber:
		return toNumber(value)
	case string(schema.TypeBoolean):
		return toBool(value)
	}

	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
