package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"wavebind/graph"
	"wavebind/logger"
	"wavebind/schema"
	"wavebind/slots"
	"wavebind/transform"
)

// Seed controls accept -1 (random on every run) up to 2^50.
const (
	SeedAuto = -1
	SeedMax  = 1125899906842624
)

const loraPlaceholder = `{"path": "...", "scale": 1.0} or path:scale,path:scale`

// SetValue sets a parameter's control value as if the user had edited it.
func (e *Engine) SetValue(nodeID int, name string, value any) error {
	st, err := e.State(nodeID)
	if err != nil {
		return err
	}
	c, ok := st.controls[name]
	if !ok {
		return fmt.Errorf("parameter %q on node %d: %w", name, nodeID, graph.ErrSlotNotFound)
	}
	c.widget.SetValue(value)
	return nil
}

func (e *Engine) onConnectionsChange(st *NodeState, kind graph.SlotKind, slot int, connected bool) {
	if kind != graph.KindInput || slot < 0 || slot >= len(st.node.Inputs) {
		return
	}
	port := st.node.Inputs[slot].Name
	if slots.ParsePlaceholder(port) > 0 {
		return
	}
	logger.Node("engine", st.NodeID).Debug("Port connection changed", "port", port, "connected", connected, "loading", e.guard.Active())
	e.guard.Do(func() { e.syncPort(st, port) })
}

// syncPort copies the visible port's link onto its bound placeholder.
func (e *Engine) syncPort(st *NodeState, port string) {
	if st.detached {
		return
	}
	c, ok := st.portOwner(port)
	if !ok {
		return
	}
	b, ok := st.Pool.Lookup(c.param.Name)
	if !ok {
		return
	}
	placeholder := st.node.FindInput(b.Placeholder())
	if placeholder < 0 {
		return
	}

	linkID := 0
	if l, ok := st.node.InputLink(st.node.FindInput(port)); ok {
		linkID = l.ID
	}
	st.node.Inputs[placeholder].Link = linkID

	if !st.restoring {
		e.refreshHidden(st)
	}
}

// refreshHidden keeps the three backend fields on the node current.
func (e *Engine) refreshHidden(st *NodeState) {
	p := e.payload(st)
	e.setFixed(st, transform.FieldModelID, st.ModelID)
	e.setFixed(st, transform.FieldRequestJSON, p.RequestJSONIndent())
	e.setFixed(st, transform.FieldParamMap, p.ParamMapString())
}

// setFixed writes a node-owned widget without triggering its callback.
func (e *Engine) setFixed(st *NodeState, name string, value any) {
	if w, ok := st.node.Widget(name); ok {
		w.Value = value
	}
}

// applyParameters replaces every control and port with ones for params.
// Port-eligible parameters are bound in priority order; a parameter that
// finds the pool exhausted keeps its control only.
func (e *Engine) applyParameters(st *NodeState, params []schema.Parameter) {
	e.clearControls(st)
	st.Parameters = params
	st.Values = make(map[string]any, len(params))

	e.bind(st, params)
	for _, p := range params {
		e.addControl(st, p, nil)
	}
	e.addPorts(st)
}

func (e *Engine) bind(st *NodeState, params []schema.Parameter) {
	log := logger.Node("engine", st.NodeID)
	for _, p := range slots.Order(params) {
		if !p.Type.PortEligible() {
			continue
		}
		b, err := st.Pool.Allocate(p.Name, p.Type)
		if err != nil {
			log.Warn("No placeholder left, parameter gets a control only", "param", p.Name, "error", err)
			continue
		}
		log.Debug("Bound parameter", "param", p.Name, "placeholder", b.Placeholder(), "type", b.Type)
	}
}

// addPorts creates the visible port of every bound parameter in slot order,
// reusing an input of the same name when one is already on the node.
func (e *Engine) addPorts(st *NodeState) {
	for _, slot := range st.Pool.Used() {
		name, _ := st.Pool.Owner(slot)
		c, ok := st.controls[name]
		if !ok {
			continue
		}
		if st.node.FindInput(name) < 0 {
			st.node.AddInput(name, portType(c.param.Type))
		}
		c.port = name
	}
}

// clearControls removes every parameter control and visible port, releases
// the pool and zeroes the placeholder mirrors of bound parameters.
func (e *Engine) clearControls(st *NodeState) {
	old := st.controls
	st.controls = make(map[string]*control)

	for name, c := range old {
		st.node.RemoveWidget(c.widget)
		if c.port == "" {
			continue
		}
		if idx := st.node.FindInput(c.port); idx >= 0 {
			if err := st.node.RemoveInput(idx); err != nil {
				logger.Node("engine", st.NodeID).Warn("Failed to remove port", "port", c.port, "error", err)
			}
		}
		if b, ok := st.Pool.Lookup(name); ok {
			if idx := st.node.FindInput(b.Placeholder()); idx >= 0 {
				st.node.Inputs[idx].Link = 0
			}
		}
	}
	st.Pool.ReleaseAll()
}

// addControl creates the control of p, starting from saved when it is set
// and from the parameter default otherwise.
func (e *Engine) addControl(st *NodeState, p schema.Parameter, saved any) *control {
	w := newWidget(p)
	if saved != nil {
		w.Value = saved
	}
	st.node.AddWidget(w)
	st.Values[p.Name] = w.Value

	c := &control{param: p, widget: w}
	st.controls[p.Name] = c

	name := p.Name
	w.Callback = func(v any) {
		st.Values[name] = v
		if st.restoring || st.detached || e.guard.Active() {
			return
		}
		e.refreshHidden(st)
	}
	return c
}

func newWidget(p schema.Parameter) *graph.Widget {
	w := &graph.Widget{
		Name:  p.Label(),
		Value: initialValue(p),
		Options: graph.WidgetOptions{
			Tooltip: p.Description,
		},
	}

	switch {
	case p.Type == schema.TypeBoolean:
		w.Kind = graph.WidgetToggle
	case p.Type == schema.TypeEnum:
		w.Kind = graph.WidgetCombo
		w.Options.Values = p.EnumValues
	case isSeed(p):
		w.Kind = graph.WidgetNumber
		lo, hi := float64(SeedAuto), float64(SeedMax)
		w.Options.Min, w.Options.Max, w.Options.Step = &lo, &hi, 1
	case p.Type.IsNumeric():
		w.Kind = graph.WidgetNumber
		w.Options.Min, w.Options.Max, w.Options.Step = p.Min, p.Max, p.Step
	case p.Type.IsLora():
		w.Kind = graph.WidgetMultiline
		w.Options.Placeholder = loraPlaceholder
	case p.Multiline():
		w.Kind = graph.WidgetMultiline
	default:
		w.Kind = graph.WidgetText
	}
	return w
}

func initialValue(p schema.Parameter) any {
	switch {
	case p.Type == schema.TypeBoolean:
		b, _ := p.Default.(bool)
		return b
	case p.Type == schema.TypeEnum:
		if p.Default != nil {
			return p.Default
		}
		if len(p.EnumValues) > 0 {
			return p.EnumValues[0]
		}
		return ""
	case isSeed(p):
		if p.Default != nil {
			return p.Default
		}
		return float64(SeedAuto)
	case p.Type.IsNumeric():
		if p.Default != nil {
			return p.Default
		}
		if p.Min != nil {
			return *p.Min
		}
		return float64(0)
	case p.Type == schema.TypeArray:
		return joinArray(p.Default)
	}

	switch v := p.Default.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

func joinArray(v any) string {
	switch val := v.(type) {
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ", ")
	case string:
		return val
	}
	return ""
}

func isSeed(p schema.Parameter) bool {
	return p.Type.IsNumeric() && strings.Contains(strings.ToLower(p.Name), "seed")
}

func portType(tag schema.TypeTag) string {
	switch tag {
	case schema.TypeInteger:
		return "INT"
	case schema.TypeFloat:
		return "FLOAT"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeLoraWeight, schema.TypeLoraWeightArray:
		return "LORA_WEIGHT"
	}
	return "STRING"
}
