package engine

import (
	"context"
	"reflect"
	"time"

	"wavebind/catalog"
	"wavebind/history"
	"wavebind/logger"
	"wavebind/schema"
	"wavebind/transform"
)

// LoadCategories fetches the category list for a task node's selector.
func (e *Engine) LoadCategories(ctx context.Context, nodeID int) error {
	st, err := e.State(nodeID)
	if err != nil {
		return err
	}
	e.guard.Do(func() { e.loadCategories(ctx, st) })
	return nil
}

// SelectCategory loads the models of category and selects the first one.
// An empty model list clears the node's model.
func (e *Engine) SelectCategory(ctx context.Context, nodeID int, category string) error {
	st, err := e.State(nodeID)
	if err != nil {
		return err
	}
	e.guard.Do(func() { e.selectCategory(ctx, st, category) })
	return nil
}

// SelectModel switches a task node to modelID. The outgoing model is saved
// to history and the incoming one is restored from it.
func (e *Engine) SelectModel(ctx context.Context, nodeID int, modelID string) error {
	st, err := e.State(nodeID)
	if err != nil {
		return err
	}
	e.guard.Do(func() { e.selectModel(ctx, st, modelID) })
	return nil
}

// ClearModel saves the current model to history and removes every control.
func (e *Engine) ClearModel(nodeID int) error {
	st, err := e.State(nodeID)
	if err != nil {
		return err
	}
	e.guard.Do(func() { e.clearModel(st) })
	return nil
}

func (e *Engine) loadCategories(ctx context.Context, st *NodeState) {
	log := logger.Node("engine", st.NodeID)

	categories, err := e.catalog.Categories(ctx)
	if st.detached {
		return
	}
	if err != nil {
		log.Warn("Failed to load categories", "error", err)
		categories = nil
	}

	st.categories = categories
	if w, ok := st.node.Widget(WidgetCategory); ok {
		w.Options.Values = optionValues(categories)
	}
	if st.Category != "" {
		st.CategoryLabel = catalog.Label(categories, st.Category)
	}
	log.Debug("Categories loaded", "count", len(categories))
}

func (e *Engine) selectCategory(ctx context.Context, st *NodeState, category string) {
	log := logger.Node("engine", st.NodeID)

	st.Category = category
	st.CategoryLabel = catalog.Label(st.categories, category)
	if w, ok := st.node.Widget(WidgetCategory); ok {
		w.Value = category
	}
	if category == "" {
		st.models = nil
		e.clearModel(st)
		return
	}

	models, err := e.catalog.Models(ctx, category)
	if st.detached || st.Category != category {
		log.Debug("Discarding stale model list", "category", category, "current", st.Category)
		return
	}
	if err != nil {
		log.Warn("Failed to load models", "category", category, "error", err)
		models = nil
	}

	st.models = models
	if w, ok := st.node.Widget(WidgetModel); ok {
		w.Options.Values = optionValues(models)
	}

	if len(models) == 0 {
		e.clearModel(st)
		return
	}
	e.selectModel(ctx, st, models[0].Value)
}

func (e *Engine) selectModel(ctx context.Context, st *NodeState, modelID string) {
	log := logger.Node("engine", st.NodeID)

	if modelID == "" {
		e.clearModel(st)
		return
	}

	e.remember(st)
	st.ModelID = modelID
	st.ModelLabel = catalog.Label(st.models, modelID)
	e.setFixed(st, WidgetModel, modelID)
	e.setFixed(st, transform.FieldModelID, modelID)

	detail, err := e.catalog.Detail(ctx, modelID)
	if st.detached || st.ModelID != modelID {
		log.Debug("Discarding stale model detail", "model", modelID, "current", st.ModelID)
		return
	}

	var params []schema.Parameter
	if err != nil {
		log.Warn("Failed to load model detail", "model", modelID, "error", err)
	} else if params, err = schema.Parse(detail.InputSchema); err != nil {
		log.Warn("Failed to parse model schema", "model", modelID, "error", err)
		params = nil
	}

	if len(params) > 0 && schema.Equal(params, st.Parameters) {
		log.Debug("Parameters unchanged, keeping controls", "model", modelID)
		st.paramsFor = modelID
		if _, ok := e.history.Exact(modelID); ok {
			e.restore(st)
		}
		e.refreshHidden(st)
		return
	}

	e.applyParameters(st, params)
	st.paramsFor = modelID
	e.restore(st)
	e.refreshHidden(st)

	log.Info("Model selected", "model", modelID, "parameters", len(params), "ports", len(st.Pool.Used()))
}

func (e *Engine) clearModel(st *NodeState) {
	e.remember(st)
	st.ModelID = ""
	st.ModelLabel = ""
	st.paramsFor = ""
	e.setFixed(st, WidgetModel, "")
	e.applyParameters(st, nil)
	e.refreshHidden(st)
	logger.Node("engine", st.NodeID).Debug("Model cleared")
}

// Remember saves a task node's current parameters to history without
// leaving its model.
func (e *Engine) Remember(nodeID int) error {
	st, err := e.State(nodeID)
	if err != nil {
		return err
	}
	e.remember(st)
	return nil
}

// remember saves the parameters currently on the node to history under the
// model they were derived for.
func (e *Engine) remember(st *NodeState) {
	if st.paramsFor == "" || len(st.Parameters) == 0 {
		return
	}
	e.history.Save(e.snapshot(st))
}

func (e *Engine) snapshot(st *NodeState) history.Record {
	r := history.Record{
		ModelID:     st.paramsFor,
		Category:    st.Category,
		Timestamp:   time.Now(),
		Values:      make(map[string]history.Value, len(st.Parameters)),
		Connections: make(map[string]history.Source),
	}

	for _, p := range st.Parameters {
		v := history.Value{Value: st.value(p.Name), Type: p.Type}
		if l, ok := st.source(p.Name); ok {
			v.Linked = true
			r.Connections[p.Name] = history.Source{NodeID: l.OriginID, OutputSlot: l.OriginSlot}
		}
		r.Values[p.Name] = v
	}
	return r
}

// restore applies the exact history record of the current model, or a
// field-by-field fuzzy match when there is none.
func (e *Engine) restore(st *NodeState) {
	if len(st.Parameters) == 0 || e.history.Len() == 0 {
		return
	}
	log := logger.Node("engine", st.NodeID)

	names := make([]string, len(st.Parameters))
	for i, p := range st.Parameters {
		names[i] = p.Name
	}
	match, exact := e.history.Lookup(st.ModelID, names)
	if match.Empty() {
		return
	}

	st.restoring = true
	defer func() { st.restoring = false }()

	restored, reconnected := 0, 0
	for _, p := range st.Parameters {
		v, ok := match.Values[p.Name]
		if !ok {
			continue
		}
		c, ok := st.controls[p.Name]
		if !ok || !compatible(p, v.Value) {
			continue
		}
		c.widget.SetValue(v.Value)
		restored++
	}

	for _, p := range st.Parameters {
		src, ok := match.Connections[p.Name]
		if !ok {
			continue
		}
		port, ok := st.Port(p.Name)
		if !ok {
			continue
		}
		if _, err := e.graph.Connect(src.NodeID, src.OutputSlot, st.NodeID, st.node.FindInput(port)); err != nil {
			log.Debug("Skipping stale connection", "param", p.Name, "origin", src.NodeID, "slot", src.OutputSlot, "error", err)
			continue
		}
		reconnected++
	}

	log.Debug("Restored from history", "model", st.ModelID, "exact", exact, "values", restored, "connections", reconnected)
}

// compatible reports whether a remembered value can be put back into p's control.
func compatible(p schema.Parameter, v any) bool {
	if v == nil {
		return false
	}
	switch p.Type {
	case schema.TypeEnum:
		for _, allowed := range p.EnumValues {
			if reflect.DeepEqual(allowed, v) {
				return true
			}
		}
		return false
	case schema.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case schema.TypeInteger, schema.TypeFloat:
		switch v.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	}
	return true
}

func optionValues(options []catalog.Option) []any {
	values := make([]any, len(options))
	for i, o := range options {
		values[i] = o.Value
	}
	return values
}
