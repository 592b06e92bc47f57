package history

import (
	"time"

	"wavebind/schema"
)

// DefaultMaxRecords caps how many models are remembered.
const DefaultMaxRecords = 5

// Value is one parameter's control value at the time a model was left.
type Value struct {
	Value  any            `json:"value" yaml:"value"`
	Linked bool           `json:"linked" yaml:"linked"`
	Type   schema.TypeTag `json:"type" yaml:"type"`
}

// Source identifies the output a parameter's port was connected to.
type Source struct {
	NodeID     int `json:"originNode" yaml:"originNode"`
	OutputSlot int `json:"originSlot" yaml:"originSlot"`
}

// Record is a snapshot of one model's parameters.
type Record struct {
	ModelID     string            `json:"modelId" yaml:"modelId"`
	Category    string            `json:"category" yaml:"category"`
	Timestamp   time.Time         `json:"timestamp" yaml:"timestamp"`
	Values      map[string]Value  `json:"values" yaml:"values"`
	Connections map[string]Source `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// Match is a restoration source assembled field by field.
type Match struct {
	Values      map[string]Value
	Connections map[string]Source
	// Origins records which model supplied each value.
	Origins map[string]string
}

// Empty reports whether nothing was matched.
func (m Match) Empty() bool {
	return len(m.Values) == 0
}

// AsMatch exposes an exact record through the same shape as a fuzzy match.
func (r Record) AsMatch() Match {
	m := Match{
		Values:      r.Values,
		Connections: r.Connections,
		Origins:     make(map[string]string, len(r.Values)),
	}
	for name := range r.Values {
		m.Origins[name] = r.ModelID
	}
	return m
}

func (r Record) clone() Record {
	out := r
	out.Values = make(map[string]Value, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	out.Connections = make(map[string]Source, len(r.Connections))
	for k, v := range r.Connections {
		out.Connections[k] = v
	}
	return out
}
