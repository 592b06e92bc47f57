package graph

import (
	"github.com/richinsley/comfy2go/graphapi"
)

// Node is a graph node with ports, widgets and free-form properties.
type Node struct {
	ID         int
	Type       string
	Title      string
	Inputs     []*Input
	Outputs    []*Output
	Widgets    []*Widget
	Properties map[string]any

	// OnConnectionsChange fires after a link is attached to or detached from
	// one of this node's slots.
	OnConnectionsChange func(kind SlotKind, slot int, connected bool, link *Link)
	// OnConfigure fires at the end of a bulk load, after ports, widgets and
	// properties have been restored from doc.
	OnConfigure func(doc NodeDocument)
	// OnSerialize may rewrite the node's saved form.
	OnSerialize func(doc *NodeDocument)
	// OnPrompt may replace the node's execution description.
	OnPrompt func(base graphapi.PromptNode) graphapi.PromptNode

	graph *Graph
}

// NewNode returns an unattached node of the given type.
func NewNode(typ string) *Node {
	return &Node{
		Type:       typ,
		Title:      typ,
		Properties: make(map[string]any),
	}
}

// Graph returns the graph the node belongs to, or nil.
func (n *Node) Graph() *Graph {
	return n.graph
}

// FindInput returns the index of the first input named name, or -1.
func (n *Node) FindInput(name string) int {
	for i, in := range n.Inputs {
		if in.Name == name {
			return i
		}
	}
	return -1
}

// FindOutput returns the index of the first output named name, or -1.
func (n *Node) FindOutput(name string) int {
	for i, out := range n.Outputs {
		if out.Name == name {
			return i
		}
	}
	return -1
}

// AddInput appends an input and returns its slot index.
func (n *Node) AddInput(name, typ string) int {
	n.Inputs = append(n.Inputs, &Input{Name: name, Type: typ})
	return len(n.Inputs) - 1
}

// AddOutput appends an output and returns its slot index.
func (n *Node) AddOutput(name, typ string) int {
	n.Outputs = append(n.Outputs, &Output{Name: name, Type: typ})
	return len(n.Outputs) - 1
}

// RemoveInput disconnects and removes the input at slot. Links targeting
// later inputs are renumbered.
func (n *Node) RemoveInput(slot int) error {
	if slot < 0 || slot >= len(n.Inputs) {
		return ErrSlotNotFound
	}
	if n.graph != nil && n.Inputs[slot].Link != 0 {
		if err := n.graph.Disconnect(n.ID, slot); err != nil {
			return err
		}
	}

	n.Inputs = append(n.Inputs[:slot], n.Inputs[slot+1:]...)

	if n.graph != nil {
		for i := slot; i < len(n.Inputs); i++ {
			if l, ok := n.graph.links[n.Inputs[i].Link]; ok && l.TargetID == n.ID && l.TargetSlot == i+1 {
				l.TargetSlot = i
			}
		}
	}
	return nil
}

// Widget returns the widget named name.
func (n *Node) Widget(name string) (*Widget, bool) {
	for _, w := range n.Widgets {
		if w.Name == name {
			return w, true
		}
	}
	return nil, false
}

// AddWidget appends w and returns it.
func (n *Node) AddWidget(w *Widget) *Widget {
	n.Widgets = append(n.Widgets, w)
	return w
}

// RemoveWidget drops w from the node.
func (n *Node) RemoveWidget(w *Widget) bool {
	for i, candidate := range n.Widgets {
		if candidate == w {
			n.Widgets = append(n.Widgets[:i], n.Widgets[i+1:]...)
			return true
		}
	}
	return false
}

// InputLink returns the live link on input slot, if any.
func (n *Node) InputLink(slot int) (*Link, bool) {
	if n.graph == nil || slot < 0 || slot >= len(n.Inputs) || n.Inputs[slot].Link == 0 {
		return nil, false
	}
	l, ok := n.graph.links[n.Inputs[slot].Link]
	return l, ok
}

func (n *Node) connectionsChanged(kind SlotKind, slot int, connected bool, link *Link) {
	if n.OnConnectionsChange != nil {
		n.OnConnectionsChange(kind, slot, connected, link)
	}
}
