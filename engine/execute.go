package engine

import (
	"github.com/richinsley/comfy2go/graphapi"

	"wavebind/graph"
	"wavebind/logger"
	"wavebind/transform"
)

// View returns the read-only execution view of a task node.
func (e *Engine) View(nodeID int) (transform.View, error) {
	st, err := e.State(nodeID)
	if err != nil {
		return transform.View{}, err
	}
	return e.view(st), nil
}

// Payload returns the execution payload of a task node as it stands now.
func (e *Engine) Payload(nodeID int) (transform.Payload, error) {
	st, err := e.State(nodeID)
	if err != nil {
		return transform.Payload{}, err
	}
	return e.payload(st), nil
}

func (e *Engine) view(st *NodeState) transform.View {
	v := transform.View{
		ModelID:  st.ModelID,
		Params:   make([]transform.Param, 0, len(st.Parameters)),
		Bindings: st.Pool.Bindings(),
	}
	for _, p := range st.Parameters {
		param := transform.Param{Parameter: p, Value: st.value(p.Name)}
		if l, ok := st.source(p.Name); ok {
			param.Source = &transform.Origin{NodeID: l.OriginID, Slot: l.OriginSlot}
		}
		v.Params = append(v.Params, param)
	}
	return v
}

func (e *Engine) payload(st *NodeState) transform.Payload {
	return transform.Build(e.view(st))
}

// PrepareExecution builds the execution request for the whole graph and the
// matching saved-workflow form, with every task node reduced to its three
// backend fields and placeholder connections. Live node state is not touched.
func (e *Engine) PrepareExecution(clientID string) (graphapi.Prompt, graph.Document) {
	prompt := e.graph.ToPrompt(clientID)
	doc := e.graph.Serialize()

	for _, id := range e.TaskNodes() {
		st := e.states[id]
		p := e.payload(st)
		if !transform.RewriteWorkflow(&doc, id, p, StateProperty) {
			logger.Node("engine", id).Warn("Task node missing from workflow")
			continue
		}
		logger.Node("engine", id).Debug("Prepared task node", "model", p.ModelID, "literals", len(p.RequestJSON), "connected", len(p.ParamMap))
	}

	return prompt, doc
}
