package transform

import (
	"wavebind/graph"
	"wavebind/logger"
	"wavebind/slots"
)

// RewriteWorkflow reduces node nodeID of doc to its execution shape: the
// widget list becomes the three fixed fields, cosmetic inputs are dropped,
// and their links are moved onto the bound placeholders. Properties named
// in dropProps are removed. doc is modified in place.
func RewriteWorkflow(doc *graph.Document, nodeID int, p Payload, dropProps ...string) bool {
	idx := -1
	for i := range doc.Nodes {
		if doc.Nodes[i].ID == nodeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	nd := &doc.Nodes[idx]

	// New slot index of every placeholder once cosmetic inputs are gone.
	newSlot := make(map[string]int)
	kept := nd.Inputs[:0:0]
	for _, in := range nd.Inputs {
		if slots.ParsePlaceholder(in.Name) == 0 {
			continue
		}
		in.Link = 0
		newSlot[in.Name] = len(kept)
		kept = append(kept, in)
	}

	dropped := make(map[int]bool)
	for i := range doc.Links {
		l := &doc.Links[i]
		if l.TargetID != nodeID {
			continue
		}
		if l.TargetSlot < 0 || l.TargetSlot >= len(nd.Inputs) {
			dropped[l.ID] = true
			continue
		}

		name := nd.Inputs[l.TargetSlot].Name
		placeholder := name
		if slots.ParsePlaceholder(name) == 0 {
			ref, ok := p.ParamMap[CleanName(name)]
			if !ok {
				logger.Debug("Dropping link on unmapped input", "node", nodeID, "input", name)
				dropped[l.ID] = true
				continue
			}
			placeholder = ref.Placeholder
		}

		slot, ok := newSlot[placeholder]
		if !ok || kept[slot].Link != 0 {
			dropped[l.ID] = true
			continue
		}
		l.TargetSlot = slot
		kept[slot].Link = l.ID
	}

	nd.Inputs = kept
	nd.WidgetsValues = p.WidgetsValues()
	for _, key := range dropProps {
		delete(nd.Properties, key)
	}

	if len(dropped) > 0 {
		removeLinks(doc, dropped)
	}
	return true
}

func removeLinks(doc *graph.Document, dropped map[int]bool) {
	links := doc.Links[:0]
	for _, l := range doc.Links {
		if !dropped[l.ID] {
			links = append(links, l)
		}
	}
	doc.Links = links

	for i := range doc.Nodes {
		for j := range doc.Nodes[i].Outputs {
			out := &doc.Nodes[i].Outputs[j]
			if out.Links == nil {
				continue
			}
			remaining := make([]int, 0, len(*out.Links))
			for _, id := range *out.Links {
				if !dropped[id] {
					remaining = append(remaining, id)
				}
			}
			out.Links = &remaining
		}
	}
}
