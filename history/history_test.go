package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavebind/schema"
	"wavebind/wavebase"
)

type memKV struct {
	data map[string][]byte
	err  error
}

func (m *memKV) Get(key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("missing")
	}
	return v, nil
}

func (m *memKV) PutBytes(key string, value []byte) error {
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	return nil
}

func record(model string, values map[string]any) Record {
	r := Record{ModelID: model, Values: map[string]Value{}, Connections: map[string]Source{}}
	for k, v := range values {
		r.Values[k] = Value{Value: v, Type: schema.TypeString}
	}
	return r
}

func modelIDs(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ModelID
	}
	return out
}

func TestSaveMostRecentFirst(t *testing.T) {
	c := New(DefaultMaxRecords, nil)
	c.Save(record("a", nil))
	c.Save(record("b", nil))

	assert.Equal(t, []string{"b", "a"}, modelIDs(c.Records()))
}

func TestSaveReplacesDuplicateModel(t *testing.T) {
	c := New(DefaultMaxRecords, nil)
	c.Save(record("a", map[string]any{"x": 1}))
	c.Save(record("b", nil))
	c.Save(record("a", map[string]any{"x": 2}))

	assert.Equal(t, []string{"a", "b"}, modelIDs(c.Records()))
	r, ok := c.Exact("a")
	require.True(t, ok)
	assert.Equal(t, 2, r.Values["x"].Value)
}

func TestSaveCapsAtMax(t *testing.T) {
	c := New(DefaultMaxRecords, nil)
	for i := 0; i < 8; i++ {
		c.Save(record(fmt.Sprintf("m%d", i), nil))
	}

	assert.Equal(t, 5, c.Len())
	assert.Equal(t, []string{"m7", "m6", "m5", "m4", "m3"}, modelIDs(c.Records()))
}

func TestSaveIgnoresEmptyModel(t *testing.T) {
	c := New(DefaultMaxRecords, nil)
	c.Save(record("", map[string]any{"x": 1}))
	assert.Zero(t, c.Len())
}

func TestExactMissing(t *testing.T) {
	c := New(DefaultMaxRecords, nil)
	_, ok := c.Exact("nope")
	assert.False(t, ok)
}

func TestFuzzyPrefersMostRecentPerField(t *testing.T) {
	c := New(DefaultMaxRecords, nil)
	b := record("B", map[string]any{"y": 3, "z": 4})
	b.Connections["z"] = Source{NodeID: 9, OutputSlot: 1}
	c.Save(b)
	a := record("A", map[string]any{"x": 1, "y": 2})
	c.Save(a)

	m := c.Fuzzy([]string{"x", "y", "z"})
	require.Len(t, m.Values, 3)
	assert.Equal(t, 1, m.Values["x"].Value)
	assert.Equal(t, 2, m.Values["y"].Value)
	assert.Equal(t, 4, m.Values["z"].Value)
	assert.Equal(t, "A", m.Origins["y"])
	assert.Equal(t, "B", m.Origins["z"])
	assert.Equal(t, Source{NodeID: 9, OutputSlot: 1}, m.Connections["z"])
	assert.NotContains(t, m.Connections, "y")
}

func TestFuzzyConnectionFollowsValueRecord(t *testing.T) {
	c := New(DefaultMaxRecords, nil)
	older := record("old", map[string]any{"prompt": "linked"})
	older.Connections["prompt"] = Source{NodeID: 3}
	c.Save(older)
	c.Save(record("new", map[string]any{"prompt": "typed"}))

	m := c.Fuzzy([]string{"prompt"})
	assert.Equal(t, "typed", m.Values["prompt"].Value)
	assert.Empty(t, m.Connections)
}

func TestLookupExactTakesPrecedence(t *testing.T) {
	c := New(DefaultMaxRecords, nil)
	c.Save(record("target", map[string]any{"x": "exact"}))
	c.Save(record("other", map[string]any{"x": "recent", "y": "only-here"}))

	m, exact := c.Lookup("target", []string{"x", "y"})
	assert.True(t, exact)
	assert.Equal(t, "exact", m.Values["x"].Value)
	assert.NotContains(t, m.Values, "y")

	m, exact = c.Lookup("unknown", []string{"x", "y"})
	assert.False(t, exact)
	assert.Equal(t, "recent", m.Values["x"].Value)
	assert.Equal(t, "only-here", m.Values["y"].Value)
}

func TestRecordsAreCopies(t *testing.T) {
	c := New(DefaultMaxRecords, nil)
	c.Save(record("a", map[string]any{"x": 1}))

	got := c.Records()
	got[0].Values["x"] = Value{Value: 99}

	r, _ := c.Exact("a")
	assert.Equal(t, 1, r.Values["x"].Value)
}

func TestPersistsThroughStore(t *testing.T) {
	kv := &memKV{}
	c := New(DefaultMaxRecords, kv)
	c.Save(record("a", map[string]any{"x": "one"}))

	reloaded := New(DefaultMaxRecords, kv)
	r, ok := reloaded.Exact("a")
	require.True(t, ok)
	assert.Equal(t, "one", r.Values["x"].Value)
}

func TestMalformedStoreStartsEmpty(t *testing.T) {
	kv := &memKV{data: map[string][]byte{StoreKey: []byte("{not json")}}
	c := New(DefaultMaxRecords, kv)
	assert.Zero(t, c.Len())

	c = New(DefaultMaxRecords, &memKV{err: errors.New("disk on fire")})
	assert.Zero(t, c.Len())
}

func TestPersistsThroughWavebase(t *testing.T) {
	db, err := wavebase.Open(filepath.Join(t.TempDir(), "history.db"), 0)
	require.NoError(t, err)
	defer db.Close()

	c := New(2, db)
	c.Save(record("a", nil))
	c.Save(record("b", nil))
	c.Save(record("c", nil))

	reloaded := New(2, db)
	assert.Equal(t, []string{"c", "b"}, modelIDs(reloaded.Records()))
}
