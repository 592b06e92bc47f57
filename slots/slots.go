package slots

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"wavebind/schema"
)

// DefaultSize is the number of placeholder ports declared on the node type.
const DefaultSize = 20

// PlaceholderPrefix names placeholder ports: param_1 .. param_N.
const PlaceholderPrefix = "param_"

// ErrExhausted is returned by Allocate when every slot is bound.
var ErrExhausted = errors.New("placeholder pool exhausted")

// Binding ties one parameter name to a placeholder slot.
type Binding struct {
	Slot int            `json:"slot" yaml:"slot"`
	Type schema.TypeTag `json:"type" yaml:"type"`
}

// Placeholder is the port name of the bound slot.
func (b Binding) Placeholder() string {
	return PlaceholderName(b.Slot)
}

// PlaceholderName returns the port name for a 1-based slot index.
func PlaceholderName(slot int) string {
	return fmt.Sprintf("%s%d", PlaceholderPrefix, slot)
}

// ParsePlaceholder returns the slot index named by a placeholder port, or 0.
func ParsePlaceholder(name string) int {
	if !strings.HasPrefix(name, PlaceholderPrefix) {
		return 0
	}
	var slot int
	if _, err := fmt.Sscanf(name[len(PlaceholderPrefix):], "%d", &slot); err != nil {
		return 0
	}
	if PlaceholderName(slot) != name {
		return 0
	}
	return slot
}

// Pool is a fixed set of placeholder slots owned by one node. The mapping
// from parameter name to slot is injective and every slot is in 1..Size.
type Pool struct {
	size   int
	cursor int
	bound  map[string]Binding
	used   map[int]string
}

// New creates a pool of size slots; a non-positive size uses DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		size:   size,
		cursor: 1,
		bound:  make(map[string]Binding),
		used:   make(map[int]string),
	}
}

// Size returns the total number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Allocate binds name to the next free slot at or after the cursor,
// wrapping around to slots freed behind it. An existing binding is
// returned unchanged.
func (p *Pool) Allocate(name string, tag schema.TypeTag) (Binding, error) {
	if b, ok := p.bound[name]; ok {
		return b, nil
	}

	start := p.cursor
	if start < 1 || start > p.size {
		start = 1
	}
	for i := 0; i < p.size; i++ {
		slot := (start-1+i)%p.size + 1
		if _, taken := p.used[slot]; taken {
			continue
		}
		b := Binding{Slot: slot, Type: tag}
		p.bound[name] = b
		p.used[slot] = name
		p.cursor = slot + 1
		return b, nil
	}

	return Binding{}, fmt.Errorf("allocating %q: %w", name, ErrExhausted)
}

// Release frees the slot bound to name, if any.
func (p *Pool) Release(name string) {
	b, ok := p.bound[name]
	if !ok {
		return
	}
	delete(p.bound, name)
	delete(p.used, b.Slot)
}

// ReleaseAll frees every slot and rewinds the cursor.
func (p *Pool) ReleaseAll() {
	p.bound = make(map[string]Binding)
	p.used = make(map[int]string)
	p.cursor = 1
}

// Lookup returns the binding for name.
func (p *Pool) Lookup(name string) (Binding, bool) {
	b, ok := p.bound[name]
	return b, ok
}

// Owner returns the parameter bound to slot.
func (p *Pool) Owner(slot int) (string, bool) {
	name, ok := p.used[slot]
	return name, ok
}

// Bindings returns a copy of the current mapping.
func (p *Pool) Bindings() map[string]Binding {
	out := make(map[string]Binding, len(p.bound))
	for k, v := range p.bound {
		out[k] = v
	}
	return out
}

// Used returns the bound slot indices in ascending order.
func (p *Pool) Used() []int {
	out := make([]int, 0, len(p.used))
	for slot := range p.used {
		out = append(out, slot)
	}
	sort.Ints(out)
	return out
}

// Cursor returns the next slot index the pool will try.
func (p *Pool) Cursor() int {
	return p.cursor
}

// Restore rebuilds the pool from a persisted mapping. Entries outside the
// pool or colliding with an earlier slot are dropped.
func (p *Pool) Restore(bindings map[string]Binding) {
	p.ReleaseAll()

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		si, sj := bindings[names[i]].Slot, bindings[names[j]].Slot
		if si != sj {
			return si < sj
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		b := bindings[name]
		if b.Slot < 1 || b.Slot > p.size {
			continue
		}
		if _, taken := p.used[b.Slot]; taken {
			continue
		}
		p.bound[name] = b
		p.used[b.Slot] = name
		if b.Slot >= p.cursor {
			p.cursor = b.Slot + 1
		}
	}
}

var (
	highPriorityTokens   = []string{"prompt", "text", "description"}
	mediumPriorityTokens = []string{"seed", "size", "width", "height", "steps", "cfg", "scale", "strength", "guidance"}
)

// Priority ranks a parameter name for slot allocation; higher goes first.
func Priority(name string) int {
	lower := strings.ToLower(name)
	for _, token := range highPriorityTokens {
		if strings.Contains(lower, token) {
			return 100
		}
	}
	for _, token := range mediumPriorityTokens {
		if strings.Contains(lower, token) {
			return 50
		}
	}
	return 10
}

// Order returns params sorted for allocation: port-eligible parameters by
// descending priority then required-first, followed by the rest in schema order.
func Order(params []schema.Parameter) []schema.Parameter {
	eligible := make([]schema.Parameter, 0, len(params))
	rest := make([]schema.Parameter, 0)
	for _, p := range params {
		if p.Type.PortEligible() {
			eligible = append(eligible, p)
		} else {
			rest = append(rest, p)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		pi, pj := Priority(eligible[i].Name), Priority(eligible[j].Name)
		if pi != pj {
			return pi > pj
		}
		return eligible[i].Required && !eligible[j].Required
	})

	return append(eligible, rest...)
}
