package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/richinsley/comfy2go/graphapi"

	"wavebind/catalog"
	"wavebind/graph"
	"wavebind/history"
	"wavebind/logger"
	"wavebind/slots"
	"wavebind/transform"
)

// DefaultNodeType is the class name the backend registers for task nodes.
const DefaultNodeType = "WaveSpeedAI Task Create"

// StateProperty is the node property the binding state is saved under.
const StateProperty = "wavespeed_state"

// Cosmetic selector widgets.
const (
	WidgetCategory = "category"
	WidgetModel    = "model"
)

// TaskInfoType is the output type of a task node.
const TaskInfoType = "TASK_INFO"

// Catalog is the remote model catalog.
type Catalog interface {
	Categories(ctx context.Context) ([]catalog.Option, error)
	Models(ctx context.Context, category string) ([]catalog.Option, error)
	Detail(ctx context.Context, modelID string) (*catalog.ModelDetail, error)
}

// Options configures an Engine; zero values select the defaults.
type Options struct {
	NodeType string
	Slots    int
	// Context is used for catalog calls started from widget callbacks.
	Context context.Context
}

// Engine binds model parameters onto task nodes of one graph. It is not
// safe for concurrent use: callers deliver events one at a time, as an
// editor's event loop does.
type Engine struct {
	graph    *graph.Graph
	catalog  Catalog
	history  *history.Cache
	guard    LoadGuard
	nodeType string
	slots    int
	ctx      context.Context
	states   map[int]*NodeState
}

// New registers the task node type on g and starts observing it.
func New(g *graph.Graph, cat Catalog, hist *history.Cache, opts Options) *Engine {
	if opts.NodeType == "" {
		opts.NodeType = DefaultNodeType
	}
	if opts.Slots <= 0 || opts.Slots > slots.DefaultSize {
		opts.Slots = slots.DefaultSize
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if hist == nil {
		hist = history.New(history.DefaultMaxRecords, nil)
	}

	e := &Engine{
		graph:    g,
		catalog:  cat,
		history:  hist,
		nodeType: opts.NodeType,
		slots:    opts.Slots,
		ctx:      opts.Context,
		states:   make(map[int]*NodeState),
	}

	g.Registry().Register(e.nodeType, e.newTaskNode)
	g.AddObserver(e)
	return e
}

// newTaskNode builds the fixed shape of a task node: hidden placeholders
// param_1..param_N, the hidden backend fields, the two selectors and one
// task output.
func (e *Engine) newTaskNode() *graph.Node {
	n := graph.NewNode(e.nodeType)
	for i := 1; i <= e.slots; i++ {
		idx := n.AddInput(slots.PlaceholderName(i), graph.AnyType)
		n.Inputs[idx].Hidden = true
	}
	n.AddOutput("task_info", TaskInfoType)

	n.AddWidget(&graph.Widget{Name: transform.FieldModelID, Kind: graph.WidgetText, Value: "", Hidden: true})
	n.AddWidget(&graph.Widget{Name: transform.FieldRequestJSON, Kind: graph.WidgetText, Value: "{}", Hidden: true})
	n.AddWidget(&graph.Widget{Name: transform.FieldParamMap, Kind: graph.WidgetText, Value: "{}", Hidden: true})
	n.AddWidget(&graph.Widget{Name: WidgetCategory, Kind: graph.WidgetCombo, Value: ""})
	n.AddWidget(&graph.Widget{Name: WidgetModel, Kind: graph.WidgetCombo, Value: ""})
	return n
}

func (e *Engine) NodeType() string {
	return e.nodeType
}

func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

func (e *Engine) History() *history.Cache {
	return e.history
}

func (e *Engine) Guard() *LoadGuard {
	return &e.guard
}

// State returns the binding state of a task node.
func (e *Engine) State(nodeID int) (*NodeState, error) {
	st, ok := e.states[nodeID]
	if !ok {
		return nil, fmt.Errorf("task node %d: %w", nodeID, graph.ErrNodeNotFound)
	}
	return st, nil
}

// TaskNodes returns the ids of every attached task node in ascending order.
func (e *Engine) TaskNodes() []int {
	ids := make([]int, 0, len(e.states))
	for id := range e.states {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (e *Engine) BeforeConfigure(*graph.Graph) {
	e.guard.Enter()
}

func (e *Engine) AfterConfigure(*graph.Graph) {
	e.guard.Exit()
}

func (e *Engine) NodeCreated(n *graph.Node) {
	if n.Type != e.nodeType {
		return
	}
	e.attach(n)
}

func (e *Engine) NodeRemoved(n *graph.Node) {
	st, ok := e.states[n.ID]
	if !ok {
		return
	}
	st.detached = true
	delete(e.states, n.ID)
	logger.Node("engine", n.ID).Debug("Task node removed")
}

func (e *Engine) attach(n *graph.Node) {
	st := newNodeState(n, e.slots)
	e.states[n.ID] = st

	n.OnConnectionsChange = func(kind graph.SlotKind, slot int, connected bool, link *graph.Link) {
		e.onConnectionsChange(st, kind, slot, connected)
	}
	n.OnConfigure = func(doc graph.NodeDocument) {
		e.restoreState(st, doc)
	}
	n.OnSerialize = func(doc *graph.NodeDocument) {
		doc.Properties[StateProperty] = e.persisted(st)
	}
	n.OnPrompt = func(graphapi.PromptNode) graphapi.PromptNode {
		return e.payload(st).PromptNode(e.nodeType)
	}

	if w, ok := n.Widget(WidgetCategory); ok {
		w.Callback = func(v any) {
			if e.guard.Active() || st.restoring || st.detached {
				return
			}
			category, _ := v.(string)
			e.selectCategory(e.ctx, st, category)
		}
	}
	if w, ok := n.Widget(WidgetModel); ok {
		w.Callback = func(v any) {
			if e.guard.Active() || st.restoring || st.detached {
				return
			}
			modelID, _ := v.(string)
			e.selectModel(e.ctx, st, modelID)
		}
	}

	logger.Node("engine", n.ID).Debug("Task node attached", "placeholders", e.slots)

	e.guard.Do(func() {
		if !st.detached {
			e.loadCategories(e.ctx, st)
		}
	})
}
