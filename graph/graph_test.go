package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

func (r *recorder) BeforeConfigure(*Graph) { r.events = append(r.events, "before") }
func (r *recorder) AfterConfigure(*Graph)  { r.events = append(r.events, "after") }
func (r *recorder) NodeCreated(n *Node)    { r.events = append(r.events, "created:"+n.Type) }
func (r *recorder) NodeRemoved(n *Node)    { r.events = append(r.events, "removed:"+n.Type) }

func testRegistry() *Registry {
	reg := NewRegistry()
	reg.Register("Source", func() *Node {
		n := NewNode("Source")
		n.AddOutput("STRING", "STRING")
		n.AddOutput("INT", "INT")
		return n
	})
	reg.Register("Sink", func() *Node {
		n := NewNode("Sink")
		n.AddInput("a", AnyType)
		n.AddInput("b", AnyType)
		n.AddInput("c", AnyType)
		n.AddWidget(&Widget{Name: "label", Kind: WidgetText, Value: "x"})
		return n
	})
	return reg
}

func mustCreate(t *testing.T, g *Graph, typ string) *Node {
	t.Helper()
	n, err := g.Create(typ)
	require.NoError(t, err)
	return n
}

func TestCreateAssignsIDsAndNotifies(t *testing.T) {
	g := New(testRegistry())
	rec := &recorder{}
	g.AddObserver(rec)

	src := mustCreate(t, g, "Source")
	sink := mustCreate(t, g, "Sink")

	assert.Equal(t, 1, src.ID)
	assert.Equal(t, 2, sink.ID)
	assert.Same(t, g, sink.Graph())
	assert.Equal(t, []string{"created:Source", "created:Sink"}, rec.events)

	_, err := g.Create("Nope")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestConnectAndDisconnect(t *testing.T) {
	g := New(testRegistry())
	src := mustCreate(t, g, "Source")
	sink := mustCreate(t, g, "Sink")

	var changes []bool
	sink.OnConnectionsChange = func(kind SlotKind, slot int, connected bool, link *Link) {
		assert.Equal(t, KindInput, kind)
		assert.Equal(t, 1, slot)
		changes = append(changes, connected)
	}

	l, err := g.Connect(src.ID, 0, sink.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, l.ID, sink.Inputs[1].Link)
	assert.Equal(t, []int{l.ID}, src.Outputs[0].Links)
	assert.Equal(t, "STRING", l.Type)

	got, ok := sink.InputLink(1)
	require.True(t, ok)
	assert.Equal(t, l, got)

	require.NoError(t, g.Disconnect(sink.ID, 1))
	assert.Zero(t, sink.Inputs[1].Link)
	assert.Empty(t, src.Outputs[0].Links)
	_, ok = g.Link(l.ID)
	assert.False(t, ok)
	assert.Equal(t, []bool{true, false}, changes)
}

func TestConnectReplacesExistingLinkWithNewID(t *testing.T) {
	g := New(testRegistry())
	src := mustCreate(t, g, "Source")
	sink := mustCreate(t, g, "Sink")

	first, err := g.Connect(src.ID, 0, sink.ID, 0)
	require.NoError(t, err)
	second, err := g.Connect(src.ID, 1, sink.ID, 0)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, g.Links(), 1)
	assert.Empty(t, src.Outputs[0].Links)
}

func TestConnectErrors(t *testing.T) {
	g := New(testRegistry())
	src := mustCreate(t, g, "Source")
	sink := mustCreate(t, g, "Sink")

	_, err := g.Connect(99, 0, sink.ID, 0)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = g.Connect(src.ID, 5, sink.ID, 0)
	assert.ErrorIs(t, err, ErrSlotNotFound)
	_, err = g.Connect(src.ID, 0, sink.ID, 7)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestRemoveInputRenumbersLinks(t *testing.T) {
	g := New(testRegistry())
	src := mustCreate(t, g, "Source")
	sink := mustCreate(t, g, "Sink")

	_, err := g.Connect(src.ID, 0, sink.ID, 0)
	require.NoError(t, err)
	l, err := g.Connect(src.ID, 1, sink.ID, 2)
	require.NoError(t, err)

	require.NoError(t, sink.RemoveInput(0))
	assert.Len(t, sink.Inputs, 2)
	assert.Equal(t, 1, l.TargetSlot)
	assert.Len(t, g.Links(), 1)
}

func TestRemoveNodeDropsLinks(t *testing.T) {
	g := New(testRegistry())
	rec := &recorder{}
	g.AddObserver(rec)
	src := mustCreate(t, g, "Source")
	sink := mustCreate(t, g, "Sink")
	_, err := g.Connect(src.ID, 0, sink.ID, 0)
	require.NoError(t, err)

	require.NoError(t, g.Remove(src.ID))
	assert.Empty(t, g.Links())
	assert.Zero(t, sink.Inputs[0].Link)
	assert.Contains(t, rec.events, "removed:Source")
	assert.ErrorIs(t, g.Remove(src.ID), ErrNodeNotFound)
}

func TestLinkJSONForms(t *testing.T) {
	l := Link{ID: 3, OriginID: 1, OriginSlot: 0, TargetID: 2, TargetSlot: 4, Type: "STRING"}
	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.JSONEq(t, `[3,1,0,2,4,"STRING"]`, string(data))

	var back Link
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, l, back)

	var obj Link
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"origin_id":1,"origin_slot":0,"target_id":2,"target_slot":4,"type":"STRING"}`), &obj))
	assert.Equal(t, l, obj)

	var short Link
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &short))
}

func TestSerializeConfigureRoundTrip(t *testing.T) {
	g := New(testRegistry())
	src := mustCreate(t, g, "Source")
	sink := mustCreate(t, g, "Sink")
	sink.Properties["note"] = "kept"
	w, _ := sink.Widget("label")
	w.Value = "changed"
	_, err := g.Connect(src.ID, 1, sink.ID, 2)
	require.NoError(t, err)

	data, err := g.Serialize().JSON()
	require.NoError(t, err)
	doc, err := ParseDocument(data)
	require.NoError(t, err)

	loaded := New(testRegistry())
	rec := &recorder{}
	loaded.AddObserver(rec)

	var connected []int
	configured := false
	loaded.AddObserver(hookSink(func(n *Node) {
		if n.Type != "Sink" {
			return
		}
		n.OnConnectionsChange = func(kind SlotKind, slot int, ok bool, _ *Link) {
			connected = append(connected, slot)
		}
		n.OnConfigure = func(NodeDocument) { configured = true }
	}))
	loaded.Configure(doc)

	assert.Equal(t, "before", rec.events[0])
	assert.Equal(t, "after", rec.events[len(rec.events)-1])
	assert.Equal(t, []int{2}, connected)
	assert.True(t, configured)

	got, ok := loaded.Node(sink.ID)
	require.True(t, ok)
	lw, _ := got.Widget("label")
	assert.Equal(t, "changed", lw.Value)
	assert.Equal(t, "kept", got.Properties["note"])
	l, ok := got.InputLink(2)
	require.True(t, ok)
	assert.Equal(t, src.ID, l.OriginID)
	assert.Equal(t, 1, l.OriginSlot)

	origin, _ := loaded.Node(src.ID)
	assert.Equal(t, []int{l.ID}, origin.Outputs[1].Links)

	next, err := loaded.Create("Source")
	require.NoError(t, err)
	assert.Equal(t, 3, next.ID)
}

func TestConfigureDropsDanglingLinks(t *testing.T) {
	doc := Document{
		Nodes: []NodeDocument{{ID: 1, Type: "Sink"}},
		Links: []Link{{ID: 1, OriginID: 42, OriginSlot: 0, TargetID: 1, TargetSlot: 0}},
	}
	doc.Nodes[0].Inputs = nil

	g := New(testRegistry())
	g.Configure(doc)
	assert.Empty(t, g.Links())
}

func TestToPrompt(t *testing.T) {
	g := New(testRegistry())
	src := mustCreate(t, g, "Source")
	sink := mustCreate(t, g, "Sink")
	_, err := g.Connect(src.ID, 1, sink.ID, 0)
	require.NoError(t, err)

	p := g.ToPrompt("client-1")
	assert.Equal(t, "client-1", p.ClientID)
	require.Contains(t, p.Nodes, sink.ID)
	assert.Equal(t, "Sink", p.Nodes[sink.ID].ClassType)
	assert.Equal(t, []interface{}{"1", 1}, p.Nodes[sink.ID].Inputs["a"])
	assert.Equal(t, "x", p.Nodes[sink.ID].Inputs["label"])
	assert.NotContains(t, p.Nodes[sink.ID].Inputs, "b")

	assert.NotEmpty(t, g.ToPrompt("").ClientID)
}

type hookSink func(n *Node)

func (h hookSink) BeforeConfigure(*Graph) {}
func (h hookSink) AfterConfigure(*Graph)  {}
func (h hookSink) NodeCreated(n *Node)    { h(n) }
func (h hookSink) NodeRemoved(*Node)      {}
