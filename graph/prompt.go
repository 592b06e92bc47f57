package graph

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/richinsley/comfy2go/graphapi"
)

// ToPrompt builds the execution request for every node. Widget values
// become literal inputs and linked inputs become [originID, originSlot]
// references. A node's OnPrompt hook may replace its entry.
func (g *Graph) ToPrompt(clientID string) graphapi.Prompt {
	if clientID == "" {
		clientID = uuid.New().String()
	}

	p := graphapi.Prompt{
		ClientID: clientID,
		Nodes:    make(map[int]graphapi.PromptNode, len(g.nodes)),
	}

	for _, n := range g.Nodes() {
		pn := g.promptNode(n)
		if n.OnPrompt != nil {
			pn = n.OnPrompt(pn)
		}
		p.Nodes[n.ID] = pn
	}

	return p
}

func (g *Graph) promptNode(n *Node) graphapi.PromptNode {
	pn := graphapi.PromptNode{
		Inputs:    make(map[string]interface{}),
		ClassType: n.Type,
	}

	for _, w := range n.Widgets {
		if w.Kind == WidgetButton {
			continue
		}
		pn.Inputs[w.Name] = w.Value
	}
	for _, in := range n.Inputs {
		if l, ok := g.links[in.Link]; ok && in.Link != 0 {
			pn.Inputs[in.Name] = LinkRef(l.OriginID, l.OriginSlot)
		}
	}

	return pn
}

// LinkRef is the prompt form of a connection: the origin node id as a
// string and its output slot.
func LinkRef(originID, originSlot int) []interface{} {
	return []interface{}{strconv.Itoa(originID), originSlot}
}
