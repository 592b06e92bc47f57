package transform

import (
	"encoding/json"
	"strings"

	"github.com/richinsley/comfy2go/graphapi"

	"wavebind/graph"
	"wavebind/logger"
	"wavebind/schema"
	"wavebind/slots"
)

// Fixed fields the backend reads from the task node.
const (
	FieldModelID     = "model_id"
	FieldRequestJSON = "request_json"
	FieldParamMap    = "param_map"
)

// Origin identifies the output feeding a connection.
type Origin struct {
	NodeID int `json:"originNode"`
	Slot   int `json:"originSlot"`
}

// Param is one parameter as seen at execution time.
type Param struct {
	schema.Parameter
	Value any
	// Source is set when the parameter's visible port has a live connection.
	Source *Origin
}

// View is the read-only state a payload is built from.
type View struct {
	ModelID  string
	Params   []Param
	Bindings map[string]slots.Binding
}

// PlaceholderRef tells the backend which placeholder carries a parameter.
type PlaceholderRef struct {
	Placeholder string         `json:"placeholder"`
	Type        schema.TypeTag `json:"type"`
}

// Payload is the execution form of a task node.
type Payload struct {
	ModelID          string
	RequestJSON      map[string]any
	ParamMap         map[string]PlaceholderRef
	PlaceholderLinks map[string]Origin
}

// Build derives the execution payload from v. It never modifies v.
func Build(v View) Payload {
	p := Payload{
		ModelID:          v.ModelID,
		RequestJSON:      make(map[string]any),
		ParamMap:         make(map[string]PlaceholderRef),
		PlaceholderLinks: make(map[string]Origin),
	}

	for _, param := range v.Params {
		name := CleanName(param.Name)

		if param.Source != nil {
			b, ok := v.Bindings[param.Name]
			if !ok {
				logger.Warn("Connected parameter has no placeholder, dropping connection", "param", name)
				continue
			}
			p.ParamMap[name] = PlaceholderRef{Placeholder: b.Placeholder(), Type: b.Type}
			p.PlaceholderLinks[b.Placeholder()] = *param.Source
			continue
		}

		if value, ok := Coerce(param.Parameter, param.Value); ok {
			p.RequestJSON[name] = value
		}
	}

	return p
}

// CleanName strips the required-parameter marker from a control label.
func CleanName(name string) string {
	return strings.TrimPrefix(name, schema.RequiredPrefix)
}

// RequestJSONString is the serialized request_json field.
func (p Payload) RequestJSONString() string {
	return marshalString(p.RequestJSON)
}

// RequestJSONIndent is request_json pretty-printed for display.
func (p Payload) RequestJSONIndent() string {
	data, err := json.MarshalIndent(p.RequestJSON, "", "  ")
	if err != nil {
		logger.Error("Failed to marshal request json", "error", err)
		return "{}"
	}
	return string(data)
}

// ParamMapString is the serialized param_map field.
func (p Payload) ParamMapString() string {
	return marshalString(p.ParamMap)
}

func marshalString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to marshal payload field", "error", err)
		return "{}"
	}
	return string(data)
}

// PromptNode is the execution description of the task node: the three fixed
// fields plus one reference per connected placeholder.
func (p Payload) PromptNode(classType string) graphapi.PromptNode {
	inputs := map[string]interface{}{
		FieldModelID:     p.ModelID,
		FieldRequestJSON: p.RequestJSONString(),
		FieldParamMap:    p.ParamMapString(),
	}
	for placeholder, origin := range p.PlaceholderLinks {
		inputs[placeholder] = graph.LinkRef(origin.NodeID, origin.Slot)
	}
	return graphapi.PromptNode{Inputs: inputs, ClassType: classType}
}

// WidgetsValues is the saved-workflow widget list of the rewritten node.
func (p Payload) WidgetsValues() []any {
	return []any{p.ModelID, p.RequestJSONString(), p.ParamMapString()}
}
