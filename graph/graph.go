package graph

import (
	"fmt"
	"sort"

	"wavebind/logger"
)

// Observer receives graph lifecycle events. Hooks run synchronously on the
// caller's goroutine.
type Observer interface {
	BeforeConfigure(g *Graph)
	AfterConfigure(g *Graph)
	NodeCreated(n *Node)
	NodeRemoved(n *Node)
}

// Factory builds a fresh node of one registered type.
type Factory func() *Node

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(typ string, f Factory) {
	r.factories[typ] = f
}

func (r *Registry) Has(typ string) bool {
	_, ok := r.factories[typ]
	return ok
}

func (r *Registry) build(typ string) (*Node, error) {
	f, ok := r.factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	n := f()
	n.Type = typ
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	if n.Title == "" {
		n.Title = typ
	}
	return n, nil
}

// Graph is a single-threaded node graph. It owns node and link identities.
type Graph struct {
	nodes      map[int]*Node
	links      map[int]*Link
	lastNodeID int
	lastLinkID int
	registry   *Registry
	observers  []Observer
}

func New(registry *Registry) *Graph {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Graph{
		nodes:    make(map[int]*Node),
		links:    make(map[int]*Link),
		registry: registry,
	}
}

func (g *Graph) Registry() *Registry {
	return g.registry
}

func (g *Graph) AddObserver(o Observer) {
	g.observers = append(g.observers, o)
}

// Create builds a node of a registered type and adds it.
func (g *Graph) Create(typ string) (*Node, error) {
	n, err := g.registry.build(typ)
	if err != nil {
		return nil, err
	}
	g.Add(n)
	return n, nil
}

// Add attaches n, assigning a fresh id when n has none.
func (g *Graph) Add(n *Node) {
	if n.ID == 0 {
		g.lastNodeID++
		n.ID = g.lastNodeID
	} else if n.ID > g.lastNodeID {
		g.lastNodeID = n.ID
	}
	n.graph = g
	g.nodes[n.ID] = n

	for _, o := range g.observers {
		o.NodeCreated(n)
	}
}

// Remove disconnects every link of node id and drops it.
func (g *Graph) Remove(id int) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("removing node %d: %w", id, ErrNodeNotFound)
	}

	for slot, in := range n.Inputs {
		if in.Link != 0 {
			_ = g.Disconnect(id, slot)
		}
	}
	for _, out := range n.Outputs {
		for _, linkID := range append([]int(nil), out.Links...) {
			if l, ok := g.links[linkID]; ok {
				_ = g.Disconnect(l.TargetID, l.TargetSlot)
			}
		}
	}

	for _, o := range g.observers {
		o.NodeRemoved(n)
	}
	delete(g.nodes, id)
	n.graph = nil
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node ordered by id.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Link returns the link with the given id.
func (g *Graph) Link(id int) (*Link, bool) {
	l, ok := g.links[id]
	return l, ok
}

// Links returns every link ordered by id.
func (g *Graph) Links() []*Link {
	out := make([]*Link, 0, len(g.links))
	for _, l := range g.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connect links output originSlot of originID to input targetSlot of
// targetID with a new link id, replacing any link already on the input.
func (g *Graph) Connect(originID, originSlot, targetID, targetSlot int) (*Link, error) {
	origin, ok := g.nodes[originID]
	if !ok {
		return nil, fmt.Errorf("connect origin %d: %w", originID, ErrNodeNotFound)
	}
	target, ok := g.nodes[targetID]
	if !ok {
		return nil, fmt.Errorf("connect target %d: %w", targetID, ErrNodeNotFound)
	}
	if originSlot < 0 || originSlot >= len(origin.Outputs) {
		return nil, fmt.Errorf("output %d on node %d: %w", originSlot, originID, ErrSlotNotFound)
	}
	if targetSlot < 0 || targetSlot >= len(target.Inputs) {
		return nil, fmt.Errorf("input %d on node %d: %w", targetSlot, targetID, ErrSlotNotFound)
	}

	if target.Inputs[targetSlot].Link != 0 {
		if err := g.Disconnect(targetID, targetSlot); err != nil {
			return nil, err
		}
	}

	g.lastLinkID++
	l := &Link{
		ID:         g.lastLinkID,
		OriginID:   originID,
		OriginSlot: originSlot,
		TargetID:   targetID,
		TargetSlot: targetSlot,
		Type:       origin.Outputs[originSlot].Type,
	}
	g.links[l.ID] = l
	target.Inputs[targetSlot].Link = l.ID
	origin.Outputs[originSlot].Links = append(origin.Outputs[originSlot].Links, l.ID)

	logger.Debug("Connected", "link", l.ID, "origin", originID, "originSlot", originSlot, "target", targetID, "targetSlot", targetSlot)

	target.connectionsChanged(KindInput, targetSlot, true, l)
	origin.connectionsChanged(KindOutput, originSlot, true, l)
	return l, nil
}

// Disconnect removes the link on input targetSlot of targetID, if any.
func (g *Graph) Disconnect(targetID, targetSlot int) error {
	target, ok := g.nodes[targetID]
	if !ok {
		return fmt.Errorf("disconnect target %d: %w", targetID, ErrNodeNotFound)
	}
	if targetSlot < 0 || targetSlot >= len(target.Inputs) {
		return fmt.Errorf("input %d on node %d: %w", targetSlot, targetID, ErrSlotNotFound)
	}

	in := target.Inputs[targetSlot]
	if in.Link == 0 {
		return nil
	}
	l, ok := g.links[in.Link]
	in.Link = 0
	if !ok || l.TargetID != targetID || l.TargetSlot != targetSlot {
		// A mirrored reference is dropped without touching the owning link.
		return nil
	}
	delete(g.links, l.ID)

	origin, hasOrigin := g.nodes[l.OriginID]
	if hasOrigin && l.OriginSlot < len(origin.Outputs) {
		out := origin.Outputs[l.OriginSlot]
		for i, id := range out.Links {
			if id == l.ID {
				out.Links = append(out.Links[:i], out.Links[i+1:]...)
				break
			}
		}
	}

	target.connectionsChanged(KindInput, targetSlot, false, l)
	if hasOrigin {
		origin.connectionsChanged(KindOutput, l.OriginSlot, false, l)
	}
	return nil
}

// attach places a link read from a document into the link table without
// firing callbacks.
func (g *Graph) attach(l Link) {
	link := l
	g.links[link.ID] = &link
	if link.ID > g.lastLinkID {
		g.lastLinkID = link.ID
	}
}

// Clear removes every node and link without firing removal hooks.
func (g *Graph) Clear() {
	g.nodes = make(map[int]*Node)
	g.links = make(map[int]*Link)
	g.lastNodeID = 0
	g.lastLinkID = 0
}
