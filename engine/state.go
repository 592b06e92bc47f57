package engine

import (
	"wavebind/catalog"
	"wavebind/graph"
	"wavebind/schema"
	"wavebind/slots"
)

// NodeState is the binding state of one task node.
type NodeState struct {
	NodeID        int
	ModelID       string
	Category      string
	ModelLabel    string
	CategoryLabel string
	Parameters    []schema.Parameter
	Values        map[string]any
	Pool          *slots.Pool

	node       *graph.Node
	controls   map[string]*control
	categories []catalog.Option
	models     []catalog.Option
	// paramsFor is the model the current Parameters were derived for.
	paramsFor string
	restoring bool
	detached  bool
}

// control is the widget, and optionally the visible port, of one parameter.
type control struct {
	param  schema.Parameter
	widget *graph.Widget
	port   string
}

func newNodeState(n *graph.Node, poolSize int) *NodeState {
	return &NodeState{
		NodeID:   n.ID,
		Values:   make(map[string]any),
		Pool:     slots.New(poolSize),
		node:     n,
		controls: make(map[string]*control),
	}
}

// Restoring reports whether history is currently being applied.
func (s *NodeState) Restoring() bool {
	return s.restoring
}

// Bindings returns the current parameter-to-placeholder mapping.
func (s *NodeState) Bindings() map[string]slots.Binding {
	return s.Pool.Bindings()
}

// Port returns the visible port name of a parameter, if it has one.
func (s *NodeState) Port(name string) (string, bool) {
	c, ok := s.controls[name]
	if !ok || c.port == "" {
		return "", false
	}
	return c.port, true
}

// Widget returns the control widget of a parameter.
func (s *NodeState) Widget(name string) (*graph.Widget, bool) {
	c, ok := s.controls[name]
	if !ok {
		return nil, false
	}
	return c.widget, true
}

// Linked reports whether the parameter's visible port has a live connection.
func (s *NodeState) Linked(name string) bool {
	_, ok := s.source(name)
	return ok
}

// source returns the link feeding the parameter's visible port.
func (s *NodeState) source(name string) (*graph.Link, bool) {
	c, ok := s.controls[name]
	if !ok || c.port == "" {
		return nil, false
	}
	idx := s.node.FindInput(c.port)
	if idx < 0 {
		return nil, false
	}
	return s.node.InputLink(idx)
}

// value is the live control value of a parameter.
func (s *NodeState) value(name string) any {
	if c, ok := s.controls[name]; ok && c.widget != nil {
		return c.widget.Value
	}
	return s.Values[name]
}

// portOwner returns the parameter whose visible port is named port.
func (s *NodeState) portOwner(port string) (*control, bool) {
	for _, c := range s.controls {
		if c.port == port {
			return c, true
		}
	}
	return nil, false
}
