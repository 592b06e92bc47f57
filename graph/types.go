package graph

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrSlotNotFound = errors.New("slot not found")
	ErrUnknownType  = errors.New("unknown node type")
)

// SlotKind distinguishes input and output sides of a connection change.
type SlotKind int

const (
	KindInput SlotKind = iota + 1
	KindOutput
)

// AnyType accepts connections of every type.
const AnyType = "*"

// Link is one edge of the graph, owned by the graph's link table.
type Link struct {
	ID         int
	OriginID   int
	OriginSlot int
	TargetID   int
	TargetSlot int
	Type       string
}

// MarshalJSON writes the compact [id, origin, originSlot, target, targetSlot, type] form.
func (l Link) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.ID, l.OriginID, l.OriginSlot, l.TargetID, l.TargetSlot, l.Type})
}

// UnmarshalJSON accepts both the tuple form and the object form.
func (l *Link) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err == nil {
		if len(tuple) < 5 {
			return fmt.Errorf("link tuple has %d fields", len(tuple))
		}
		ints := []*int{&l.ID, &l.OriginID, &l.OriginSlot, &l.TargetID, &l.TargetSlot}
		for i, dst := range ints {
			if err := json.Unmarshal(tuple[i], dst); err != nil {
				return fmt.Errorf("link field %d: %w", i, err)
			}
		}
		l.Type = ""
		if len(tuple) > 5 {
			// The type may be a string or a list of accepted types.
			if err := json.Unmarshal(tuple[5], &l.Type); err != nil {
				l.Type = string(tuple[5])
			}
		}
		return nil
	}

	var obj struct {
		ID         int    `json:"id"`
		OriginID   int    `json:"origin_id"`
		OriginSlot int    `json:"origin_slot"`
		TargetID   int    `json:"target_id"`
		TargetSlot int    `json:"target_slot"`
		Type       string `json:"type"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("error decoding link: %w", err)
	}
	*l = Link{ID: obj.ID, OriginID: obj.OriginID, OriginSlot: obj.OriginSlot, TargetID: obj.TargetID, TargetSlot: obj.TargetSlot, Type: obj.Type}
	return nil
}

// Input is a connectable input port. Link is 0 when unconnected.
type Input struct {
	Name   string
	Type   string
	Link   int
	Hidden bool
}

// Output is a connectable output port.
type Output struct {
	Name  string
	Type  string
	Links []int
}

type WidgetKind string

const (
	WidgetToggle    WidgetKind = "toggle"
	WidgetCombo     WidgetKind = "combo"
	WidgetNumber    WidgetKind = "number"
	WidgetText      WidgetKind = "text"
	WidgetMultiline WidgetKind = "multiline"
	WidgetButton    WidgetKind = "button"
)

type WidgetOptions struct {
	Values      []any
	Min         *float64
	Max         *float64
	Step        float64
	Placeholder string
	Tooltip     string
}

// Widget is a user-facing control on a node.
type Widget struct {
	Name    string
	Kind    WidgetKind
	Value   any
	Hidden  bool
	Options WidgetOptions

	// Callback runs after SetValue changes the value.
	Callback func(value any)
}

// SetValue stores v and notifies the widget's callback.
func (w *Widget) SetValue(v any) {
	w.Value = v
	if w.Callback != nil {
		w.Callback(v)
	}
}
