package transform

import (
	"encoding/json"
	"testing"

	"github.com/richinsley/comfy2go/graphapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavebind/graph"
	"wavebind/schema"
	"wavebind/slots"
)

func param(name string, tag schema.TypeTag, required bool) schema.Parameter {
	return schema.Parameter{Name: name, Type: tag, Required: required}
}

func TestCoerceArray(t *testing.T) {
	ints := schema.Parameter{Name: "ids", Type: schema.TypeArray, ArrayItemType: "integer"}
	v, ok := Coerce(ints, "1, 2, 3")
	require.True(t, ok)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, v)

	strs := schema.Parameter{Name: "tags", Type: schema.TypeArray, ArrayItemType: "string"}
	v, ok = Coerce(strs, "1, 2, 3")
	require.True(t, ok)
	assert.Equal(t, []any{"1", "2", "3"}, v)

	v, _ = Coerce(ints, "1, two, , 3")
	assert.Equal(t, []any{int64(1), "two", int64(3)}, v)

	nums := schema.Parameter{Name: "weights", Type: schema.TypeArray, ArrayItemType: "number"}
	v, _ = Coerce(nums, []any{"0.5", 2.0})
	assert.Equal(t, []any{0.5, 2.0}, v)
}

func TestCoerceEmptyStrings(t *testing.T) {
	_, ok := Coerce(param("negative_prompt", schema.TypeString, false), "")
	assert.False(t, ok)

	v, ok := Coerce(param("prompt", schema.TypeString, true), "  ")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	_, ok = Coerce(param("x", schema.TypeString, true), nil)
	assert.False(t, ok)
}

func TestCoerceScalars(t *testing.T) {
	v, _ := Coerce(param("seed", schema.TypeInteger, false), 42.0)
	assert.Equal(t, int64(42), v)
	v, _ = Coerce(param("seed", schema.TypeInteger, false), "17")
	assert.Equal(t, int64(17), v)
	v, _ = Coerce(param("seed", schema.TypeInteger, false), "abc")
	assert.Equal(t, "abc", v)
	v, _ = Coerce(param("cfg", schema.TypeFloat, false), "7.5")
	assert.Equal(t, 7.5, v)
	v, _ = Coerce(param("loop", schema.TypeBoolean, false), "true")
	assert.Equal(t, true, v)
	v, _ = Coerce(param("style", schema.TypeEnum, false), "a")
	assert.Equal(t, "a", v)
}

func TestCoerceLora(t *testing.T) {
	single := param("lora", schema.TypeLoraWeight, false)
	list := param("loras", schema.TypeLoraWeightArray, false)

	v, _ := Coerce(single, `{"path": "a.safetensors", "scale": 0.7}`)
	assert.Equal(t, LoraWeight{Path: "a.safetensors", Scale: 0.7}, v)

	v, _ = Coerce(list, `[{"path": "a", "scale": 1}, {"path": "", "scale": 1}, {"nope": true}, {"path": "b", "scale": "0.5"}]`)
	assert.Equal(t, []LoraWeight{{Path: "a", Scale: 1}, {Path: "b", Scale: 0.5}}, v)

	v, _ = Coerce(list, "a:0.5, b, c:bad")
	assert.Equal(t, []LoraWeight{{Path: "a", Scale: 0.5}, {Path: "b", Scale: 1}}, v)

	v, _ = Coerce(list, `{"path": "only", "scale": 2}`)
	assert.Equal(t, []LoraWeight{{Path: "only", Scale: 2}}, v)

	v, _ = Coerce(single, `{"path": `)
	assert.Equal(t, `{"path": `, v)

	v, _ = Coerce(single, "x:bad")
	assert.Equal(t, "x:bad", v)

	v, _ = Coerce(list, []any{map[string]any{"path": "p", "scale": 1.5}})
	assert.Equal(t, []LoraWeight{{Path: "p", Scale: 1.5}}, v)
}

func scenarioView() View {
	return View{
		ModelID: "wavespeed-ai/flux-dev",
		Params: []Param{
			{Parameter: param("prompt", schema.TypeString, true), Value: "ignored", Source: &Origin{NodeID: 7, Slot: 0}},
			{Parameter: param("seed", schema.TypeInteger, true), Value: 5.0},
			{Parameter: schema.Parameter{Name: "style", Type: schema.TypeEnum, EnumValues: []any{"a", "b"}}, Value: "b"},
			{Parameter: param("negative_prompt", schema.TypeString, false), Value: ""},
		},
		Bindings: map[string]slots.Binding{
			"prompt": {Slot: 1, Type: schema.TypeString},
			"seed":   {Slot: 2, Type: schema.TypeInteger},
		},
	}
}

func TestBuild(t *testing.T) {
	v := scenarioView()
	p := Build(v)

	assert.Equal(t, "wavespeed-ai/flux-dev", p.ModelID)
	assert.Equal(t, map[string]any{"seed": int64(5), "style": "b"}, p.RequestJSON)
	assert.NotContains(t, p.RequestJSON, "prompt")
	assert.Equal(t, map[string]PlaceholderRef{"prompt": {Placeholder: "param_1", Type: schema.TypeString}}, p.ParamMap)
	assert.Equal(t, map[string]Origin{"param_1": {NodeID: 7, Slot: 0}}, p.PlaceholderLinks)

	// Read-only and repeatable.
	assert.Equal(t, p, Build(v))
	assert.Equal(t, "ignored", v.Params[0].Value)
}

func TestBuildDropsConnectionWithoutBinding(t *testing.T) {
	v := View{
		ModelID: "m",
		Params:  []Param{{Parameter: param("extra", schema.TypeString, false), Source: &Origin{NodeID: 1}}},
	}
	p := Build(v)
	assert.Empty(t, p.ParamMap)
	assert.Empty(t, p.RequestJSON)
}

func TestPromptNodeShape(t *testing.T) {
	p := Build(scenarioView())
	pn := p.PromptNode("WaveSpeedAI Task Create")

	assert.Equal(t, "WaveSpeedAI Task Create", pn.ClassType)
	assert.Len(t, pn.Inputs, 4)
	assert.Equal(t, "wavespeed-ai/flux-dev", pn.Inputs[FieldModelID])
	assert.Equal(t, []interface{}{"7", 0}, pn.Inputs["param_1"])
	assert.JSONEq(t, `{"seed":5,"style":"b"}`, pn.Inputs[FieldRequestJSON].(string))
	assert.JSONEq(t, `{"prompt":{"placeholder":"param_1","type":"string"}}`, pn.Inputs[FieldParamMap].(string))
}

func TestPromptNodeLiteralFieldsBounded(t *testing.T) {
	v := View{ModelID: "m", Bindings: map[string]slots.Binding{}}
	for i := 0; i < 40; i++ {
		v.Params = append(v.Params, Param{Parameter: param(slots.PlaceholderName(i+100), schema.TypeString, false), Value: "v"})
	}
	pn := Build(v).PromptNode("T")

	literal := 0
	for _, in := range pn.Inputs {
		if _, isLink := in.([]interface{}); !isLink {
			literal++
		}
	}
	assert.Equal(t, 3, literal)
}

func TestRewriteWorkflow(t *testing.T) {
	links := func(ids ...int) *[]int { return &ids }
	doc := graph.Document{
		Nodes: []graph.NodeDocument{
			{ID: 1, Type: "Source", Outputs: nil},
			{
				ID:   2,
				Type: "WaveSpeedAI Task Create",
				Properties: map[string]any{
					"wavespeed_state": map[string]any{"modelId": "m"},
					"keep":            true,
				},
				WidgetsValues: []any{"m", "{}", "{}", "prompt text", 4},
			},
		},
		Links: []graph.Link{
			{ID: 10, OriginID: 1, OriginSlot: 0, TargetID: 2, TargetSlot: 2},
			{ID: 11, OriginID: 1, OriginSlot: 0, TargetID: 2, TargetSlot: 3},
		},
	}
	doc.Nodes[0].Outputs = append(doc.Nodes[0].Outputs, slotWithLinks("STRING", links(10, 11)))
	doc.Nodes[1].Inputs = append(doc.Nodes[1].Inputs,
		slotWithLink("param_1", 10),
		slotWithLink("param_2", 0),
		slotWithLink("* prompt", 10),
		slotWithLink("unmapped", 11),
	)

	p := Payload{
		ModelID:          "m",
		RequestJSON:      map[string]any{"seed": 4},
		ParamMap:         map[string]PlaceholderRef{"prompt": {Placeholder: "param_1", Type: schema.TypeString}},
		PlaceholderLinks: map[string]Origin{"param_1": {NodeID: 1, Slot: 0}},
	}

	require.True(t, RewriteWorkflow(&doc, 2, p, "wavespeed_state"))
	assert.False(t, RewriteWorkflow(&doc, 99, p))

	nd := doc.Nodes[1]
	require.Len(t, nd.Inputs, 2)
	assert.Equal(t, "param_1", nd.Inputs[0].Name)
	assert.Equal(t, 10, nd.Inputs[0].Link)
	assert.Zero(t, nd.Inputs[1].Link)
	assert.Equal(t, []any{"m", `{"seed":4}`, `{"prompt":{"placeholder":"param_1","type":"string"}}`}, nd.WidgetsValues)
	assert.NotContains(t, nd.Properties, "wavespeed_state")
	assert.Contains(t, nd.Properties, "keep")

	require.Len(t, doc.Links, 1)
	assert.Equal(t, 0, doc.Links[0].TargetSlot)
	assert.Equal(t, []int{10}, *doc.Nodes[0].Outputs[0].Links)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `[10,1,0,2,0,""]`)
}

func TestResolve(t *testing.T) {
	task := Resolve(
		"wavespeed-ai/flux-dev",
		`{"seed": 5, "style": "b"}`,
		`{"prompt": {"placeholder": "param_1", "type": "string"},
		  "images": "param_2",
		  "ids": {"placeholder": "param_3", "type": "array-int"},
		  "loras": {"placeholder": "param_4", "type": "lora-weight-array"},
		  "strength": {"placeholder": "param_5", "type": "float"},
		  "missing": {"placeholder": "param_6", "type": "string"}}`,
		map[string]any{
			"param_1": "a cat",
			"param_2": "param_2",
			"param_3": "1, 2",
			"param_4": "a:0.5",
			"param_5": "0.8",
		},
	)

	assert.Equal(t, "wavespeed-ai/flux-dev", task.ModelUUID)
	assert.Equal(t, "a cat", task.RequestJSON["prompt"])
	assert.NotContains(t, task.RequestJSON, "images")
	assert.NotContains(t, task.RequestJSON, "missing")
	assert.Equal(t, []any{1.0, 2.0}, task.RequestJSON["ids"])
	assert.Equal(t, []LoraWeight{{Path: "a", Scale: 0.5}}, task.RequestJSON["loras"])
	assert.Equal(t, 0.8, task.RequestJSON["strength"])
	assert.Equal(t, 5.0, task.RequestJSON["seed"])
}

func TestResolveMalformed(t *testing.T) {
	task := Resolve("m", "{oops", "[1,2]", nil)
	assert.Equal(t, "m", task.ModelUUID)
	assert.Empty(t, task.RequestJSON)
}

func TestConvertDefaultsToString(t *testing.T) {
	assert.Equal(t, "12", Convert(12, "string"))
	assert.Equal(t, "", Convert(nil, "unknown"))
	assert.Equal(t, []any{"a", "b"}, Convert("a, b", "array-str"))
}

func slotWithLink(name string, link int) graphapi.Slot {
	return graphapi.Slot{Name: name, Type: "*", Link: link}
}

func slotWithLinks(typ string, links *[]int) graphapi.Slot {
	return graphapi.Slot{Name: typ, Type: typ, Links: links}
}
