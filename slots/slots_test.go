package slots

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavebind/schema"
)

func TestAllocateIdempotent(t *testing.T) {
	p := New(DefaultSize)

	first, err := p.Allocate("prompt", schema.TypeString)
	require.NoError(t, err)
	second, err := p.Allocate("prompt", schema.TypeString)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, first.Slot)
	assert.Equal(t, "param_1", first.Placeholder())
	assert.Equal(t, 2, p.Cursor())
}

func TestAllocateInjectiveAndBounded(t *testing.T) {
	p := New(DefaultSize)
	seen := map[int]string{}

	for i := 0; i < DefaultSize; i++ {
		name := fmt.Sprintf("p%d", i)
		b, err := p.Allocate(name, schema.TypeInteger)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, b.Slot, 1)
		assert.LessOrEqual(t, b.Slot, DefaultSize)
		_, dup := seen[b.Slot]
		assert.False(t, dup, "slot %d assigned twice", b.Slot)
		seen[b.Slot] = name
	}

	_, err := p.Allocate("one-too-many", schema.TypeString)
	require.ErrorIs(t, err, ErrExhausted)
	assert.Len(t, p.Used(), DefaultSize)

	_, ok := p.Lookup("one-too-many")
	assert.False(t, ok)
}

func TestReleaseAllResetsCursor(t *testing.T) {
	p := New(3)
	for _, name := range []string{"a", "b", "c"} {
		_, err := p.Allocate(name, schema.TypeString)
		require.NoError(t, err)
	}

	p.ReleaseAll()
	assert.Empty(t, p.Used())
	assert.Equal(t, 1, p.Cursor())

	b, err := p.Allocate("d", schema.TypeString)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Slot)
}

func TestReleaseFreesSlotBehindCursor(t *testing.T) {
	p := New(2)
	_, _ = p.Allocate("a", schema.TypeString)
	_, _ = p.Allocate("b", schema.TypeString)
	p.Release("a")

	owner, ok := p.Owner(1)
	assert.False(t, ok)
	assert.Empty(t, owner)

	b, err := p.Allocate("c", schema.TypeString)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Slot)
	assert.Equal(t, []int{1, 2}, p.Used())

	_, err = p.Allocate("d", schema.TypeString)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestAllocateWrapsToFreedSlot(t *testing.T) {
	p := New(3)
	for _, name := range []string{"a", "b", "c"} {
		_, err := p.Allocate(name, schema.TypeString)
		require.NoError(t, err)
	}
	p.Release("a")

	b, err := p.Allocate("d", schema.TypeString)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Slot)
	assert.Equal(t, []int{1, 2, 3}, p.Used())
	assert.Equal(t, 2, p.Cursor())

	p.Release("c")
	b, err = p.Allocate("e", schema.TypeString)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Slot)
}

func TestRestoreDropsInvalidSlots(t *testing.T) {
	p := New(4)
	p.Restore(map[string]Binding{
		"prompt": {Slot: 1, Type: schema.TypeString},
		"seed":   {Slot: 3, Type: schema.TypeInteger},
		"clash":  {Slot: 3, Type: schema.TypeInteger},
		"big":    {Slot: 9, Type: schema.TypeInteger},
	})

	assert.Equal(t, []int{1, 3}, p.Used())
	assert.Equal(t, 4, p.Cursor())
	_, ok := p.Lookup("big")
	assert.False(t, ok)

	b, err := p.Allocate("steps", schema.TypeInteger)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Slot)
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 100, Priority("Prompt"))
	assert.Equal(t, 100, Priority("input_text"))
	assert.Equal(t, 50, Priority("seed"))
	assert.Equal(t, 50, Priority("guidance_scale"))
	assert.Equal(t, 50, Priority("image_size"))
	assert.Equal(t, 10, Priority("style"))
}

func TestOrder(t *testing.T) {
	params := []schema.Parameter{
		{Name: "style", Type: schema.TypeEnum},
		{Name: "seed", Type: schema.TypeInteger, Required: true},
		{Name: "loop", Type: schema.TypeBoolean},
		{Name: "strength", Type: schema.TypeFloat},
		{Name: "negative_prompt", Type: schema.TypeString},
		{Name: "prompt", Type: schema.TypeString, Required: true},
		{Name: "tags", Type: schema.TypeArray},
	}

	ordered := Order(params)
	got := make([]string, len(ordered))
	for i, p := range ordered {
		got[i] = p.Name
	}

	assert.Equal(t, []string{"prompt", "negative_prompt", "seed", "strength", "loop", "style", "tags"}, got)
}

func TestParsePlaceholder(t *testing.T) {
	assert.Equal(t, 7, ParsePlaceholder("param_7"))
	assert.Equal(t, 0, ParsePlaceholder("param_"))
	assert.Equal(t, 0, ParsePlaceholder("param_07"))
	assert.Equal(t, 0, ParsePlaceholder("prompt"))
}
