package graph

import (
	"encoding/json"
	"fmt"

	"github.com/richinsley/comfy2go/graphapi"

	"wavebind/logger"
)

// Document is the saved-workflow form of a graph.
type Document struct {
	LastNodeID int            `json:"last_node_id"`
	LastLinkID int            `json:"last_link_id"`
	Nodes      []NodeDocument `json:"nodes"`
	Links      []Link         `json:"links"`
	Version    float64        `json:"version"`
}

// NodeDocument is the saved form of one node.
type NodeDocument struct {
	ID            int             `json:"id"`
	Type          string          `json:"type"`
	Title         string          `json:"title,omitempty"`
	Inputs        []graphapi.Slot `json:"inputs,omitempty"`
	Outputs       []graphapi.Slot `json:"outputs,omitempty"`
	WidgetsValues []any           `json:"widgets_values,omitempty"`
	Properties    map[string]any  `json:"properties,omitempty"`
}

// ParseDocument decodes a saved workflow.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("error decoding workflow: %w", err)
	}
	return doc, nil
}

// JSON encodes the document with indentation.
func (d Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Serialize captures the graph's current state. Nodes may rewrite their
// own entry through OnSerialize.
func (g *Graph) Serialize() Document {
	doc := Document{
		LastNodeID: g.lastNodeID,
		LastLinkID: g.lastLinkID,
		Version:    0.4,
		Nodes:      make([]NodeDocument, 0, len(g.nodes)),
		Links:      make([]Link, 0, len(g.links)),
	}

	for _, n := range g.Nodes() {
		nd := n.document()
		if n.OnSerialize != nil {
			n.OnSerialize(&nd)
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	for _, l := range g.Links() {
		doc.Links = append(doc.Links, *l)
	}

	return doc
}

func (n *Node) document() NodeDocument {
	nd := NodeDocument{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Properties: make(map[string]any, len(n.Properties)),
	}

	for _, in := range n.Inputs {
		nd.Inputs = append(nd.Inputs, graphapi.Slot{Name: in.Name, Type: in.Type, Link: in.Link})
	}
	for i, out := range n.Outputs {
		links := append([]int{}, out.Links...)
		index := i
		nd.Outputs = append(nd.Outputs, graphapi.Slot{Name: out.Name, Type: out.Type, Links: &links, SlotIndex: &index})
	}
	for _, w := range n.Widgets {
		if w.Kind == WidgetButton {
			continue
		}
		nd.WidgetsValues = append(nd.WidgetsValues, w.Value)
	}
	for k, v := range n.Properties {
		nd.Properties[k] = v
	}

	return nd
}

// Configure replaces the graph with doc. Observers see the whole load as
// one BeforeConfigure/AfterConfigure scope; connection callbacks fire for
// every restored input link inside that scope.
func (g *Graph) Configure(doc Document) {
	for _, o := range g.observers {
		o.BeforeConfigure(g)
	}
	defer func() {
		for _, o := range g.observers {
			o.AfterConfigure(g)
		}
	}()

	g.Clear()

	known := make(map[int]bool, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		known[nd.ID] = true
	}
	for _, l := range doc.Links {
		if !known[l.OriginID] || !known[l.TargetID] {
			logger.Warn("Dropping link to missing node", "link", l.ID, "origin", l.OriginID, "target", l.TargetID)
			continue
		}
		g.attach(l)
	}

	for _, nd := range doc.Nodes {
		n, err := g.registry.build(nd.Type)
		if err != nil {
			logger.Warn("Loading node of unregistered type", "node", nd.ID, "type", nd.Type)
			n = NewNode(nd.Type)
		}
		n.ID = nd.ID
		if nd.Title != "" {
			n.Title = nd.Title
		}
		g.Add(n)
		g.configureNode(n, nd)
	}

	if doc.LastNodeID > g.lastNodeID {
		g.lastNodeID = doc.LastNodeID
	}
	if doc.LastLinkID > g.lastLinkID {
		g.lastLinkID = doc.LastLinkID
	}
}

func (g *Graph) configureNode(n *Node, nd NodeDocument) {
	for i, v := range nd.WidgetsValues {
		if i < len(n.Widgets) {
			n.Widgets[i].Value = v
		}
	}

	for k, v := range nd.Properties {
		n.Properties[k] = v
	}

	if nd.Inputs != nil {
		hidden := make(map[string]bool, len(n.Inputs))
		for _, in := range n.Inputs {
			hidden[in.Name] = in.Hidden
		}
		n.Inputs = n.Inputs[:0]
		for _, s := range nd.Inputs {
			in := &Input{Name: s.Name, Type: s.Type, Link: s.Link, Hidden: hidden[s.Name]}
			if l, ok := g.links[in.Link]; !ok || l.TargetID != n.ID {
				in.Link = 0
			}
			n.Inputs = append(n.Inputs, in)
		}
	}

	if nd.Outputs != nil {
		n.Outputs = n.Outputs[:0]
		for _, s := range nd.Outputs {
			out := &Output{Name: s.Name, Type: s.Type}
			if s.Links != nil {
				for _, id := range *s.Links {
					if l, ok := g.links[id]; ok && l.OriginID == n.ID {
						out.Links = append(out.Links, id)
					}
				}
			}
			n.Outputs = append(n.Outputs, out)
		}
	}

	// Inputs may mirror a link owned by another slot; only the owner is notified.
	for slot, in := range n.Inputs {
		if l, ok := g.links[in.Link]; ok && l.TargetSlot == slot {
			n.connectionsChanged(KindInput, slot, true, l)
		}
	}

	if n.OnConfigure != nil {
		n.OnConfigure(nd)
	}
}
