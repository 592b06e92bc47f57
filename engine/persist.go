package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wavebind/catalog"
	"wavebind/graph"
	"wavebind/logger"
	"wavebind/schema"
	"wavebind/slots"
)

// SavedState is the binding state stored on a task node in a saved
// workflow. It is enough to rebuild the node without asking the catalog.
type SavedState struct {
	ModelID       string                   `json:"modelId"`
	Category      string                   `json:"category"`
	ModelLabel    string                   `json:"modelLabel,omitempty"`
	CategoryLabel string                   `json:"categoryLabel,omitempty"`
	Parameters    []schema.Parameter       `json:"parameters"`
	Values        map[string]any           `json:"values"`
	Bindings      map[string]slots.Binding `json:"bindings"`
}

func (e *Engine) persisted(st *NodeState) SavedState {
	s := SavedState{
		ModelID:       st.ModelID,
		Category:      st.Category,
		ModelLabel:    st.ModelLabel,
		CategoryLabel: st.CategoryLabel,
		Parameters:    st.Parameters,
		Values:        make(map[string]any, len(st.Parameters)),
		Bindings:      st.Pool.Bindings(),
	}
	for _, p := range st.Parameters {
		s.Values[p.Name] = st.value(p.Name)
	}
	return s
}

// DecodeState reads the saved binding state from a node property. The
// property may hold the state itself, its decoded JSON object or a JSON
// string.
func DecodeState(raw any) (SavedState, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return SavedState{}, errors.New("no saved state")
	case string:
		data = []byte(v)
	case SavedState:
		return v, nil
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return SavedState{}, fmt.Errorf("error encoding saved state: %w", err)
		}
	}

	var s SavedState
	if err := json.Unmarshal(data, &s); err != nil {
		return SavedState{}, fmt.Errorf("error decoding saved state: %w", err)
	}
	return s, nil
}

// restoreState rebuilds a node from its saved form during a document load.
// Controls take their saved values and ports keep the links the document
// restored. Broken state leaves the node freshly initialised.
func (e *Engine) restoreState(st *NodeState, doc graph.NodeDocument) {
	log := logger.Node("engine", st.NodeID)

	raw, ok := doc.Properties[StateProperty]
	if !ok {
		e.reset(st)
		return
	}
	saved, err := DecodeState(raw)
	if err != nil {
		log.Warn("Ignoring malformed saved state", "error", err)
		delete(st.node.Properties, StateProperty)
		e.reset(st)
		return
	}

	st.ModelID = saved.ModelID
	st.Category = saved.Category
	st.ModelLabel = saved.ModelLabel
	st.CategoryLabel = saved.CategoryLabel
	st.Parameters = saved.Parameters
	st.paramsFor = saved.ModelID
	st.controls = make(map[string]*control)
	st.Values = make(map[string]any, len(saved.Parameters))

	eligible := make(map[string]slots.Binding, len(saved.Bindings))
	known := make(map[string]schema.Parameter, len(saved.Parameters))
	for _, p := range saved.Parameters {
		known[p.Name] = p
	}
	for name, b := range saved.Bindings {
		if p, ok := known[name]; ok && p.Type.PortEligible() {
			eligible[name] = b
		}
	}
	st.Pool.Restore(eligible)

	for _, p := range saved.Parameters {
		e.addControl(st, p, saved.Values[p.Name])
	}
	e.dropStrayPorts(st)
	e.addPorts(st)

	e.setFixed(st, WidgetCategory, st.Category)
	e.setFixed(st, WidgetModel, st.ModelID)
	e.refreshHidden(st)

	log.Debug("Restored saved state", "model", st.ModelID, "parameters", len(st.Parameters), "ports", len(st.Pool.Used()))

	modelID := st.ModelID
	e.guard.Do(func() { e.refreshLabels(e.ctx, st, modelID) })
}

// reset leaves a loaded node with placeholders only and nothing bound.
// Links that target a placeholder directly are kept; mirrors are cleared.
func (e *Engine) reset(st *NodeState) {
	e.clearControls(st)
	e.dropStrayPorts(st)
	for i, in := range st.node.Inputs {
		if l, ok := st.node.InputLink(i); ok && l.TargetID == st.NodeID && l.TargetSlot == i {
			continue
		}
		in.Link = 0
	}
}

// dropStrayPorts removes inputs that are neither placeholders nor the port
// of a bound parameter.
func (e *Engine) dropStrayPorts(st *NodeState) {
	for i := len(st.node.Inputs) - 1; i >= 0; i-- {
		name := st.node.Inputs[i].Name
		if slots.ParsePlaceholder(name) > 0 {
			continue
		}
		if _, bound := st.Pool.Lookup(name); bound {
			continue
		}
		if err := st.node.RemoveInput(i); err != nil {
			logger.Node("engine", st.NodeID).Warn("Failed to remove stray port", "port", name, "error", err)
		}
	}
}

// RefreshLabels refetches the display names of a node's category and model.
func (e *Engine) RefreshLabels(ctx context.Context, nodeID int) error {
	st, err := e.State(nodeID)
	if err != nil {
		return err
	}
	modelID := st.ModelID
	e.guard.Do(func() { e.refreshLabels(ctx, st, modelID) })
	return nil
}

func (e *Engine) refreshLabels(ctx context.Context, st *NodeState, modelID string) {
	if st.detached || modelID == "" || st.ModelID != modelID {
		return
	}
	if st.Category == "" {
		st.ModelLabel = modelID
		return
	}

	models, err := e.catalog.Models(ctx, st.Category)
	if st.detached || st.ModelID != modelID {
		logger.Node("engine", st.NodeID).Debug("Discarding stale label refresh", "model", modelID, "current", st.ModelID)
		return
	}
	if err != nil {
		logger.Node("engine", st.NodeID).Warn("Failed to refresh model labels", "category", st.Category, "error", err)
		st.ModelLabel = modelID
		return
	}

	st.models = models
	if w, ok := st.node.Widget(WidgetModel); ok {
		w.Options.Values = optionValues(models)
	}
	st.ModelLabel = catalog.Label(models, modelID)
	if st.categories != nil {
		st.CategoryLabel = catalog.Label(st.categories, st.Category)
	}
}
