package selector

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"testing"

	"github.com/richinsley/powerselect/graphapi"
)

func newTestManager(t *testing.T, slots int) *Manager {
	t.Helper()
	n := graphapi.NewGraphNode("DD_ImagePowerSelector")
	m := NewManager(n, DefaultGeometry)
	for i := 0; i < slots; i++ {
		m.AddSlot()
	}
	return m
}

func inputNames(n *graphapi.GraphNode) []string {
	retv := make([]string, 0, len(n.Inputs))
	for _, s := range n.Inputs {
		retv = append(retv, s.Name)
	}
	return retv
}

func strptr(s string) *string {
	return &s
}

func slots(names ...string) []graphapi.Slot {
	retv := make([]graphapi.Slot, 0, len(names))
	for _, name := range names {
		retv = append(retv, graphapi.Slot{Name: name, Type: SlotType})
	}
	return retv
}

// checkInvariants verifies the invariants that must hold after any operation
func checkInvariants(t *testing.T, m *Manager) {
	t.Helper()
	refs := m.ImageSlots()
	if len(refs) < 1 {
		t.Fatalf("expected at least one image slot, got none")
	}
	states := m.States()
	for _, s := range refs {
		if _, ok := states[s.Name]; !ok {
			t.Errorf("slot %s has no toggle entry", s.Name)
		}
		if s.Suffix > m.Counter() {
			t.Errorf("counter %d below slot suffix %d", m.Counter(), s.Suffix)
		}
	}
	if got := m.Shadow().Value; got != m.Serialize() {
		t.Errorf("shadow widget %v lags serialized state %s", got, m.Serialize())
	}
}

func TestAddSlot(t *testing.T) {
	m := newTestManager(t, 0)

	if name := m.AddSlot(); name != "image_1" {
		t.Errorf("expected image_1, got %s", name)
	}
	if name := m.AddSlot(); name != "image_2" {
		t.Errorf("expected image_2, got %s", name)
	}
	if m.Counter() != 2 {
		t.Errorf("expected counter 2, got %d", m.Counter())
	}
	for _, s := range m.Node().Inputs {
		if s.Type != SlotType {
			t.Errorf("slot %s has type %s", s.Name, s.Type)
		}
	}
	if got := m.Serialize(); got != `{"image_1":true,"image_2":true}` {
		t.Errorf("unexpected serialized state %s", got)
	}
	checkInvariants(t, m)
}

func TestRemoveLastSlotKeepsOne(t *testing.T) {
	m := newTestManager(t, 1)
	before := m.Serialize()

	if m.RemoveLastSlot() {
		t.Error("expected removing the only slot to be a no-op")
	}
	if got := inputNames(m.Node()); !reflect.DeepEqual(got, []string{"image_1"}) {
		t.Errorf("slot list changed: %v", got)
	}
	if m.Serialize() != before {
		t.Errorf("toggle map changed: %s", m.Serialize())
	}
	if m.Counter() != 1 {
		t.Errorf("counter changed: %d", m.Counter())
	}
}

func TestRemoveLastSlotCounterIsMonotonic(t *testing.T) {
	m := newTestManager(t, 3)

	if !m.RemoveLastSlot() {
		t.Fatal("expected a slot to be removed")
	}
	if got := inputNames(m.Node()); !reflect.DeepEqual(got, []string{"image_1", "image_2"}) {
		t.Errorf("unexpected slots %v", got)
	}
	if _, ok := m.States()["image_3"]; ok {
		t.Error("expected toggle entry of removed slot to be deleted")
	}
	if m.Counter() != 3 {
		t.Errorf("expected counter to stay at 3, got %d", m.Counter())
	}
	if name := m.AddSlot(); name != "image_4" {
		t.Errorf("expected slot names not to be reused, got %s", name)
	}
	checkInvariants(t, m)
}

func TestRemoveLastSlotUsesInputOrder(t *testing.T) {
	n := graphapi.NewGraphNode("DD_ImagePowerSelector")
	n.AddInput("image_5", SlotType)
	n.AddInput("mask", "MASK")
	n.AddInput("image_2", SlotType)
	n.AddInput("extra", "INT")
	m := NewManager(n, DefaultGeometry)
	m.Reconcile(nil, nil, n.Inputs)

	if !m.RemoveLastSlot() {
		t.Fatal("expected a slot to be removed")
	}
	// the last image slot by position goes, even though image_5 has the higher number
	if got := inputNames(n); !reflect.DeepEqual(got, []string{"image_5", "mask", "extra"}) {
		t.Errorf("unexpected slots %v", got)
	}
	if m.RemoveLastSlot() {
		t.Error("expected the last image slot to be kept")
	}
}

func TestRemoveLastSlotDisconnectsFirst(t *testing.T) {
	g := graphapi.NewGraph()
	src := graphapi.NewGraphNode("LoadImage")
	src.AddOutput("IMAGE", "IMAGE")
	g.Add(src)

	n := graphapi.NewGraphNode("DD_ImagePowerSelector")
	g.Add(n)
	m := NewManager(n, DefaultGeometry)
	m.AddSlot()
	m.AddSlot()

	link, err := n.ConnectInput(1, src, 0)
	if err != nil {
		t.Fatalf("ConnectInput: %v", err)
	}

	if !m.RemoveLastSlot() {
		t.Fatal("expected a slot to be removed")
	}
	if g.GetLinkById(link.ID) != nil {
		t.Error("expected link to be removed from the graph")
	}
	if len(g.Links) != 0 {
		t.Errorf("expected no links left, got %d", len(g.Links))
	}
	if got := *src.Outputs[0].Links; len(got) != 0 {
		t.Errorf("expected origin output to forget the link, got %v", got)
	}
}

func TestToggle(t *testing.T) {
	m := newTestManager(t, 2)

	if m.Toggle("image_2") {
		t.Error("expected first toggle to disable the slot")
	}
	if !m.Toggle("image_2") {
		t.Error("expected second toggle to enable the slot again")
	}
	if got := m.States()["image_2"]; !got {
		t.Error("expected toggle to be an involution")
	}
	checkInvariants(t, m)
}

func TestToggleUnknownName(t *testing.T) {
	m := newTestManager(t, 1)

	if m.Toggle("image_9") {
		t.Error("expected unknown slot to be treated as enabled before the flip")
	}
	if v, ok := m.States()["image_9"]; !ok || v {
		t.Errorf("expected image_9 to be recorded as false, got %v %v", v, ok)
	}
	checkInvariants(t, m)
}

func TestToggleAll(t *testing.T) {
	n := graphapi.NewGraphNode("DD_ImagePowerSelector")
	m := NewManager(n, DefaultGeometry)
	m.AddSlot()
	m.AddSlot()
	m.AddSlot()
	m.Toggle("image_2")
	m.Toggle("custom") // not an image slot

	m.ToggleAll(false)
	states := m.States()
	for _, name := range []string{"image_1", "image_2", "image_3"} {
		if states[name] {
			t.Errorf("expected %s to be off", name)
		}
	}
	m.Toggle("custom")
	m.ToggleAll(false)
	if !m.States()["custom"] {
		t.Error("expected entries of non image slots to be untouched")
	}

	m.ToggleAll(true)
	for _, name := range []string{"image_1", "image_2", "image_3"} {
		if !m.States()[name] {
			t.Errorf("expected %s to be on", name)
		}
	}
}

func TestReconcileFillsMissingEntries(t *testing.T) {
	m := newTestManager(t, 0)
	m.Reconcile(nil, strptr(`{"image_1":false}`), slots("image_1", "image_2", "image_3"))

	want := ToggleMap{"image_1": false, "image_2": true, "image_3": true}
	if got := m.States(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if m.Counter() != 3 {
		t.Errorf("expected counter 3, got %d", m.Counter())
	}
}

func TestReconcileMalformedFallsBackToDefaults(t *testing.T) {
	m := newTestManager(t, 0)
	m.Reconcile([]interface{}{"not json", 4.0, nil}, strptr("not json"), slots("image_1"))

	if got := m.States(); !reflect.DeepEqual(got, ToggleMap{"image_1": true}) {
		t.Errorf("expected defaults, got %v", got)
	}
	if m.Counter() != 1 {
		t.Errorf("expected counter 1, got %d", m.Counter())
	}
}

func TestReconcileLegacyWidgetValues(t *testing.T) {
	m := newTestManager(t, 0)
	saved := []interface{}{
		"{broken",
		`{"image_1":false,"image_2":true}`,
		`{"image_2":false}`,
	}
	m.Reconcile(saved, nil, slots("image_1", "image_2"))

	want := ToggleMap{"image_1": false, "image_2": true}
	if got := m.States(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected first parseable object to win, got %v", got)
	}
}

func TestReconcileShadowOverridesLegacy(t *testing.T) {
	m := newTestManager(t, 0)
	saved := []interface{}{`{"image_1":false}`}
	m.Reconcile(saved, strptr(`{"image_1":true,"image_2":false}`), slots("image_1", "image_2"))

	want := ToggleMap{"image_1": true, "image_2": false}
	if got := m.States(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected shadow value to win, got %v", got)
	}

	// an empty shadow leaves the legacy value in place
	m2 := newTestManager(t, 0)
	m2.Reconcile(saved, strptr(""), slots("image_1"))
	if got := m2.States(); !reflect.DeepEqual(got, ToggleMap{"image_1": false}) {
		t.Errorf("expected legacy value, got %v", got)
	}
}

func TestReconcileDropsNonBooleanEntries(t *testing.T) {
	m := newTestManager(t, 0)
	m.Reconcile(nil, strptr(`{"image_1":"no","image_2":false}`), slots("image_1", "image_2"))

	want := ToggleMap{"image_1": true, "image_2": false}
	if got := m.States(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestReconcileIgnoresNonObjectJSON(t *testing.T) {
	m := newTestManager(t, 0)
	m.Reconcile([]interface{}{"{}"}, strptr(`["image_1"]`), slots("image_1"))
	if got := m.States(); !reflect.DeepEqual(got, ToggleMap{"image_1": true}) {
		t.Errorf("expected defaults, got %v", got)
	}

	m.Reconcile(nil, strptr("null"), slots("image_1"))
	if got := m.States(); !reflect.DeepEqual(got, ToggleMap{"image_1": true}) {
		t.Errorf("expected defaults for null, got %v", got)
	}
}

func TestReconcileCounterNeverDecreases(t *testing.T) {
	m := newTestManager(t, 5)
	m.Reconcile(nil, nil, slots("image_2"))

	if m.Counter() != 5 {
		t.Errorf("expected counter to stay at 5, got %d", m.Counter())
	}

	m.Reconcile(nil, nil, slots("image_2", "image_12"))
	if m.Counter() != 12 {
		t.Errorf("expected counter 12, got %d", m.Counter())
	}
}

func TestReconcileCounterIgnoresMapKeys(t *testing.T) {
	m := newTestManager(t, 0)
	m.Reconcile(nil, strptr(`{"image_40":true}`), slots("image_1", "image_3"))

	if m.Counter() != 3 {
		t.Errorf("expected counter from inputs only, got %d", m.Counter())
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 50; run++ {
		m := newTestManager(t, 1)
		for step := 0; step < 30; step++ {
			switch rng.Intn(5) {
			case 0:
				m.AddSlot()
			case 1:
				m.RemoveLastSlot()
			case 2:
				refs := m.ImageSlots()
				m.Toggle(refs[rng.Intn(len(refs))].Name)
			case 3:
				m.ToggleAll(rng.Intn(2) == 0)
			case 4:
				m.Toggle("image_99")
			}
			checkInvariants(t, m)
		}

		serialized := m.Serialize()
		restored := newTestManager(t, 0)
		restored.Reconcile(nil, &serialized, m.Node().Inputs)
		if !reflect.DeepEqual(restored.States(), m.States()) {
			t.Fatalf("round trip mismatch: %v vs %v", restored.States(), m.States())
		}
		if restored.Serialize() != serialized {
			t.Errorf("expected identical serialization, got %s vs %s", restored.Serialize(), serialized)
		}

		var decoded map[string]bool
		if err := json.Unmarshal([]byte(serialized), &decoded); err != nil {
			t.Errorf("serialized state is not a JSON object of booleans: %v", err)
		}
	}
}

func TestCounterNonDecreasingAcrossOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := newTestManager(t, 2)
	last := m.Counter()
	for step := 0; step < 200; step++ {
		switch rng.Intn(4) {
		case 0:
			m.AddSlot()
		case 1, 2:
			m.RemoveLastSlot()
		case 3:
			saved := m.Serialize()
			m.Reconcile(nil, &saved, m.Node().Inputs)
		}
		if m.Counter() < last {
			t.Fatalf("counter went from %d to %d", last, m.Counter())
		}
		last = m.Counter()
		checkInvariants(t, m)
	}
}

func TestHitTest(t *testing.T) {
	m := newTestManager(t, 2)
	m.Node().Position = graphapi.Pos{X: 300, Y: 120}

	// slot 1 connector sits at (1+0.7)*20 = 34 below the node origin
	tests := []struct {
		name  string
		local graphapi.Pos
		slot  int
		want  bool
	}{
		{"center", graphapi.Pos{X: 75, Y: 34}, 1, true},
		{"inside", graphapi.Pos{X: 83, Y: 38}, 1, true},
		{"on the edge", graphapi.Pos{X: 87, Y: 34}, 1, false},
		{"outside", graphapi.Pos{X: 75, Y: 50}, 1, false},
		{"other slot", graphapi.Pos{X: 75, Y: 14}, 1, false},
		{"first slot", graphapi.Pos{X: 75, Y: 14}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.HitTest(tt.local, tt.slot); got != tt.want {
				t.Errorf("HitTest(%v, %d) = %v, want %v", tt.local, tt.slot, got, tt.want)
			}
		})
	}

	if name, ok := m.SlotAt(graphapi.Pos{X: 76, Y: 35}); !ok || name != "image_2" {
		t.Errorf("SlotAt = %s %v, want image_2", name, ok)
	}
	if _, ok := m.SlotAt(graphapi.Pos{X: 10, Y: 35}); ok {
		t.Error("expected no slot under the pointer")
	}
}

func TestEnsureDefaultSlots(t *testing.T) {
	m := newTestManager(t, 0)
	m.EnsureDefaultSlots(2)
	if got := inputNames(m.Node()); !reflect.DeepEqual(got, []string{"image_1", "image_2"}) {
		t.Errorf("unexpected default slots %v", got)
	}
	m.EnsureDefaultSlots(2)
	if len(m.Node().Inputs) != 2 {
		t.Errorf("expected existing slots to be kept, got %d", len(m.Node().Inputs))
	}
}

func TestShadowWidgetLookedUpByName(t *testing.T) {
	n := graphapi.NewGraphNode("DD_ImagePowerSelector")
	w := n.AddWidget(&graphapi.Widget{Name: ShadowWidgetName, Type: graphapi.WidgetText, Value: "{}"})
	m := NewManager(n, DefaultGeometry)

	if m.Shadow() != w {
		t.Error("expected the existing widget to be used")
	}
	m.AddSlot()
	if w.Value != `{"image_1":true}` {
		t.Errorf("expected widget to follow state, got %v", w.Value)
	}
	if len(n.Widgets) != 1 {
		t.Errorf("expected no extra widget, got %d", len(n.Widgets))
	}
}
