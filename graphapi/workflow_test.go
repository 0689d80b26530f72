package graphapi

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"reflect"
	"strings"
	"testing"
)

func loadFixture(t *testing.T) *Graph {
	t.Helper()
	graph, err := NewGraphFromJsonFile("testdata/power_selector.json")
	if err != nil {
		t.Fatalf("Failed to load test workflow: %v", err)
	}
	return graph
}

const testDefs = `{
	"LoadImage": {
		"input": {"required": {"image": [["a.png", "b.png"], {"image_upload": true}]}},
		"output": ["IMAGE", "MASK"],
		"output_is_list": [false, false],
		"output_name": ["IMAGE", "MASK"],
		"name": "LoadImage",
		"display_name": "Load Image",
		"category": "image",
		"output_node": false
	},
	"PreviewImage": {
		"input": {"required": {"images": ["IMAGE"]}},
		"output": [],
		"name": "PreviewImage",
		"display_name": "Preview Image",
		"output_node": true
	},
	"Sampler": {
		"input": {
			"required": {
				"seed": ["INT", {"default": 42, "min": 0}],
				"model": ["MODEL"],
				"sampler": [["euler", "ddim"]],
				"cfg": ["FLOAT", {"default": 8.0}]
			},
			"optional": {
				"mask": ["MASK"],
				"note": ["STRING", {"multiline": true}]
			}
		},
		"output": ["LATENT"],
		"name": "Sampler"
	}
}`

func newTestDefs(t *testing.T) *NodeDefs {
	t.Helper()
	defs, err := NewNodeDefsFromJSON([]byte(testDefs))
	if err != nil {
		t.Fatalf("Failed to decode node definitions: %v", err)
	}
	return defs
}

// TestRoundtripWorkflow tests that we can deserialize and re-serialize a
// workflow and get stable JSON output
func TestRoundtripWorkflow(t *testing.T) {
	graph := loadFixture(t)

	if len(graph.Nodes) != 6 {
		t.Errorf("Expected 6 nodes, got %d", len(graph.Nodes))
	}
	if len(graph.Links) != 4 {
		t.Errorf("Expected 4 links, got %d", len(graph.Links))
	}
	if graph.GetGroupWithTitle("Inputs") == nil {
		t.Error("Expected group 'Inputs'")
	}

	// positions saved as objects are read too
	load := graph.GetNodeById(1)
	if load.Position != (Pos{X: 10, Y: 20}) || load.Size != (Size{Width: 315, Height: 314}) {
		t.Errorf("Unexpected position %v and size %v", load.Position, load.Size)
	}

	link := graph.GetLinkById(2)
	if link == nil || link.OriginID != 2 || link.TargetID != 3 || link.TargetSlot != 0 || link.Type != "IMAGE" {
		t.Errorf("Unexpected link %+v", link)
	}

	first, err := graph.GraphToJSON()
	if err != nil {
		t.Fatalf("Failed to marshal graph: %v", err)
	}
	if !strings.Contains(first, `"pos":[10,20]`) {
		t.Error("Expected positions to be written as arrays")
	}
	if !strings.Contains(first, `[2,2,0,3,0,"IMAGE"]`) {
		t.Error("Expected links to be written as tuples")
	}

	again, err := NewGraphFromJsonString(first)
	if err != nil {
		t.Fatalf("Failed to unmarshal re-serialized graph: %v", err)
	}
	second, err := again.GraphToJSON()
	if err != nil {
		t.Fatalf("Failed to marshal graph: %v", err)
	}
	if first != second {
		t.Errorf("Round trip is not stable:\n%s\n%s", first, second)
	}

	// widget values of uninstantiated nodes are kept verbatim
	selector := again.GetNodeById(3)
	if len(selector.WidgetValues) != 1 || selector.WidgetValues[0] != `{"image_1":true,"image_2":false}` {
		t.Errorf("Unexpected widget values %v", selector.WidgetValues)
	}
}

func TestObjectLinksRoundTrip(t *testing.T) {
	data := `{"nodes":[],"links":[{"id":9,"origin_id":1,"origin_slot":0,"target_id":2,"target_slot":1,"type":"IMAGE"}],"groups":[],"last_node_id":2,"last_link_id":9,"version":0.4}`
	graph, err := NewGraphFromJsonString(data)
	if err != nil {
		t.Fatalf("Failed to unmarshal graph: %v", err)
	}
	l := graph.GetLinkById(9)
	if l == nil || l.TargetSlot != 1 {
		t.Fatalf("Unexpected link %+v", l)
	}
	out, err := graph.GraphToJSON()
	if err != nil {
		t.Fatalf("Failed to marshal graph: %v", err)
	}
	if !strings.Contains(out, `"origin_id":1`) {
		t.Errorf("Expected object link format to be preserved, got %s", out)
	}
}

func TestBadLink(t *testing.T) {
	if _, err := NewGraphFromJsonString(`{"nodes":[],"links":[[1,2,3]]}`); err == nil {
		t.Error("Expected short link tuple to fail")
	}
}

func TestSaveGraphToFile(t *testing.T) {
	graph := loadFixture(t)
	path := t.TempDir() + "/out.json"
	if err := graph.SaveGraphToFile(path); err != nil {
		t.Fatalf("SaveGraphToFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("Saved file is not JSON: %v", err)
	}
	if generic["last_node_id"] != 6.0 {
		t.Errorf("Unexpected last_node_id %v", generic["last_node_id"])
	}
}

func TestGraphToPromptFollowsReroutes(t *testing.T) {
	graph := loadFixture(t)
	p, err := graph.GraphToPrompt("abc")
	if err != nil {
		t.Fatalf("GraphToPrompt: %v", err)
	}
	if p.ClientID != "abc" || p.ExtraData.PngInfo.Workflow != graph {
		t.Error("Expected client id and workflow to be set")
	}

	for _, id := range []string{"2", "5", "6"} {
		if _, ok := p.Nodes[id]; ok {
			t.Errorf("Expected node %s to be left out of the prompt", id)
		}
	}

	sel, ok := p.Nodes["3"]
	if !ok {
		t.Fatal("Expected node 3 in prompt")
	}
	if sel.ClassType != "DD_ImagePowerSelector" {
		t.Errorf("Unexpected class type %s", sel.ClassType)
	}
	if got := sel.Inputs["image_1"]; !reflect.DeepEqual(got, []interface{}{"1", 0}) {
		t.Errorf("Expected reroute to resolve to LoadImage, got %v", got)
	}
	if _, ok := sel.Inputs["image_2"]; ok {
		t.Error("Unconnected inputs must not be sent")
	}
	if got := p.Nodes["4"].Inputs["images"]; !reflect.DeepEqual(got, []interface{}{"3", 0}) {
		t.Errorf("Unexpected preview input %v", got)
	}
}

func TestLoadGraphInstantiatesKnownNodes(t *testing.T) {
	graph := loadFixture(t)
	app := NewApp(newTestDefs(t))
	app.LoadGraph(graph)

	load := graph.GetNodeById(1)
	if w := load.GetWidget("image"); w == nil || w.Value != "a.png" || w.Type != WidgetCombo {
		t.Errorf("Expected image combo widget restored from widgets_values, got %+v", w)
	}
	if load.DisplayName != "Load Image" {
		t.Errorf("Unexpected display name %q", load.DisplayName)
	}
	if len(load.Outputs) != 2 || load.Outputs[0].Links == nil {
		t.Error("Expected saved outputs to be kept")
	}

	preview := graph.GetNodeById(4)
	if !preview.IsOutput {
		t.Error("Expected PreviewImage to be an output node")
	}
	if len(preview.Inputs) != 1 || preview.Inputs[0].Link == nil {
		t.Error("Expected saved input link to be kept")
	}

	// no definition and no extension: left as saved
	if len(graph.GetNodeById(3).Widgets) != 0 {
		t.Error("Unknown nodes must not be instantiated")
	}

	p, err := graph.GraphToPrompt("abc")
	if err != nil {
		t.Fatalf("GraphToPrompt: %v", err)
	}
	if got := p.Nodes["1"].Inputs["image"]; got != "a.png" {
		t.Errorf("Expected widget value in prompt, got %v", got)
	}
	if got := graph.GetNodesWithTitle("Load Image"); len(got) != 1 {
		t.Errorf("Expected lookup by display name, got %d nodes", len(got))
	}
}

const samplerDefs = `{
	"KSampler": {
		"input": {
			"required": {
				"model": ["MODEL"],
				"seed": ["INT", {"default": 0, "min": 0}],
				"steps": ["INT", {"default": 20}],
				"cfg": ["FLOAT", {"default": 8.0}],
				"sampler_name": [["euler", "dpmpp_2m"]]
			}
		},
		"output": ["LATENT"],
		"output_name": ["LATENT"],
		"name": "KSampler",
		"display_name": "KSampler",
		"output_node": false
	}
}`

const samplerWorkflow = `{
	"last_node_id": 1,
	"last_link_id": 0,
	"nodes": [
		{
			"id": 1, "type": "KSampler", "pos": [0, 0], "size": [315, 262],
			"flags": {}, "order": 0, "mode": 0,
			"inputs": [{"name": "model", "type": "MODEL", "link": null}],
			"outputs": [{"name": "LATENT", "type": "LATENT", "links": null}],
			"properties": {},
			"widgets_values": [42, "randomize", 30, 7.5, "dpmpp_2m"]
		}
	],
	"links": [],
	"groups": []
}`

func TestSeedControlWidgetKeepsValuesAligned(t *testing.T) {
	defs, err := NewNodeDefsFromJSON([]byte(samplerDefs))
	if err != nil {
		t.Fatalf("Failed to decode node definitions: %v", err)
	}
	graph, err := NewGraphFromJsonString(samplerWorkflow)
	if err != nil {
		t.Fatalf("Failed to load workflow: %v", err)
	}
	NewApp(defs).LoadGraph(graph)

	sampler := graph.GetNodeById(1)
	if w := sampler.GetWidget(ControlAfterGenerate); w == nil || w.Value != "randomize" || w.Type != WidgetCombo {
		t.Fatalf("Expected a control_after_generate combo after seed, got %+v", w)
	}

	p, err := graph.GraphToPrompt("abc")
	if err != nil {
		t.Fatalf("GraphToPrompt: %v", err)
	}
	want := map[string]interface{}{
		"seed":         42.0,
		"steps":        30.0,
		"cfg":          7.5,
		"sampler_name": "dpmpp_2m",
	}
	if got := p.Nodes["1"].Inputs; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected prompt inputs %v, got %v", want, got)
	}

	data, err := graph.GraphToJSON()
	if err != nil {
		t.Fatalf("GraphToJSON: %v", err)
	}
	saved, err := NewGraphFromJsonString(data)
	if err != nil {
		t.Fatalf("Failed to reload saved workflow: %v", err)
	}
	wantValues := []interface{}{42.0, "randomize", 30.0, 7.5, "dpmpp_2m"}
	if got := saved.GetNodeById(1).WidgetValues; !reflect.DeepEqual(got, wantValues) {
		t.Errorf("Expected widgets_values %v, got %v", wantValues, got)
	}
}

func TestNodeDefInputOrder(t *testing.T) {
	defs := newTestDefs(t)
	def := defs.GetNodeDefByName("Sampler")
	if def == nil {
		t.Fatal("Expected Sampler definition")
	}

	var names []string
	for _, d := range def.Inputs() {
		names = append(names, d.Name)
	}
	want := []string{"seed", "model", "sampler", "cfg", "mask", "note"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected declaration order %v, got %v", want, names)
	}

	inputs := def.Inputs()
	if inputs[0].Default() != 42.0 {
		t.Errorf("Expected seed default 42, got %v (%T)", inputs[0].Default(), inputs[0].Default())
	}
	if inputs[2].Type != "COMBO" || inputs[2].Default() != "euler" {
		t.Errorf("Unexpected combo declaration %+v", inputs[2])
	}
	if !inputs[5].Optional || inputs[5].Default() != "" {
		t.Errorf("Unexpected optional declaration %+v", inputs[5])
	}

	var nilDefs *NodeDefs
	if nilDefs.GetNodeDefByName("Sampler") != nil {
		t.Error("Expected nil definitions to find nothing")
	}
}

func TestCreateNode(t *testing.T) {
	app := NewApp(newTestDefs(t))
	g := NewGraph()

	n, err := app.CreateNode(g, "Sampler")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	var widgets []string
	for _, w := range n.Widgets {
		widgets = append(widgets, w.Name)
	}
	if !reflect.DeepEqual(widgets, []string{"seed", ControlAfterGenerate, "sampler", "cfg", "note"}) {
		t.Errorf("Unexpected widgets %v", widgets)
	}
	if len(n.Inputs) != 1 || n.Inputs[0].Name != "model" {
		t.Errorf("Expected only the required model slot, got %+v", n.Inputs)
	}
	if len(n.Outputs) != 1 || n.Outputs[0].Name != "LATENT" {
		t.Errorf("Unexpected outputs %+v", n.Outputs)
	}
	if n.ID != 1 || g.LastNodeID != 1 || g.GetNodeById(1) != n {
		t.Error("Expected node to be added to the graph")
	}
	if got := n.SerializeWidgets(); !reflect.DeepEqual(got, []interface{}{42.0, "randomize", "euler", 8.0, ""}) {
		t.Errorf("Unexpected widget values %v", got)
	}

	if _, err := app.CreateNode(g, "Nope"); err == nil {
		t.Error("Expected unknown type to fail")
	}
}

func TestConnectAndRemoveInputs(t *testing.T) {
	app := NewApp(nil)
	app.NodeDefs().Add(&NodeDef{Name: "Src", Output: []string{"IMAGE"}})
	app.NodeDefs().Add(&NodeDef{Name: "Dst"})
	g := NewGraph()
	src, _ := app.CreateNode(g, "Src")
	dst, _ := app.CreateNode(g, "Dst")
	dst.AddInput("a", "IMAGE")
	dst.AddInput("b", "IMAGE")
	dst.AddInput("c", "IMAGE")

	la, err := dst.ConnectInput(0, src, 0)
	if err != nil {
		t.Fatalf("ConnectInput: %v", err)
	}
	lc, err := dst.ConnectInput(2, src, 0)
	if err != nil {
		t.Fatalf("ConnectInput: %v", err)
	}
	if got := src.GetLinks(); !reflect.DeepEqual(got, []int{la.ID, lc.ID}) {
		t.Errorf("Unexpected output links %v", got)
	}
	if dst.GetNodeForInput(2) != src {
		t.Error("Expected input c to come from src")
	}

	if err := dst.RemoveInput(1); err != nil {
		t.Fatalf("RemoveInput: %v", err)
	}
	if lc.TargetSlot != 1 {
		t.Errorf("Expected link to follow its input to slot 1, got %d", lc.TargetSlot)
	}
	if dst.GetInputLink(1) != lc {
		t.Error("Expected input c to keep its link")
	}

	// removing a connected input disconnects it
	if err := dst.RemoveInput(0); err != nil {
		t.Fatalf("RemoveInput: %v", err)
	}
	if g.GetLinkById(la.ID) != nil || len(g.Links) != 1 {
		t.Error("Expected the removed input's link to be dropped")
	}
	if got := *src.Outputs[0].Links; !reflect.DeepEqual(got, []int{lc.ID}) {
		t.Errorf("Unexpected output links after removal %v", got)
	}
	if lc.TargetSlot != 0 || dst.GetInputWithName("c") == nil {
		t.Error("Expected c to move to slot 0")
	}

	if err := dst.DisconnectInput(0); err != nil {
		t.Fatalf("DisconnectInput: %v", err)
	}
	if dst.Inputs[0].Connected() || len(g.Links) != 0 {
		t.Error("Expected input to be disconnected")
	}

	if err := dst.RemoveInput(4); !errors.Is(err, ErrSlotOutOfRange) {
		t.Errorf("Expected ErrSlotOutOfRange, got %v", err)
	}
	if _, err := dst.ConnectInput(0, src, 3); !errors.Is(err, ErrSlotOutOfRange) {
		t.Errorf("Expected ErrSlotOutOfRange, got %v", err)
	}
	other, _ := app.CreateNode(NewGraph(), "Src")
	if _, err := dst.ConnectInput(0, other, 0); err == nil {
		t.Error("Expected connecting across graphs to fail")
	}
}

func TestGeometry(t *testing.T) {
	n := NewGraphNode("Dst")
	n.Position = Pos{X: 100, Y: 50}
	n.Size = Size{Width: 200, Height: 80}
	n.AddInput("a", "IMAGE")
	n.AddInput("b", "IMAGE")
	n.AddInput("c", "IMAGE")

	in := n.GetConnectionPos(true, 1)
	if math.Abs(in.X-110) > 1e-9 || math.Abs(in.Y-84) > 1e-9 {
		t.Errorf("Unexpected input position %v", in)
	}
	out := n.GetConnectionPos(false, 0)
	if math.Abs(out.X-291) > 1e-9 || math.Abs(out.Y-64) > 1e-9 {
		t.Errorf("Unexpected output position %v", out)
	}

	if s := n.ComputeSize(); s != (Size{Width: 200, Height: 66}) {
		t.Errorf("Unexpected size without widgets %v", s)
	}
	n.AddWidget(&Widget{Name: "seed", Type: WidgetNumber})
	n.AddWidget(&Widget{Name: "hidden", Type: WidgetConverted, ComputeSize: func(float64) Size { return Size{Height: -4} }})
	if s := n.ComputeSize(); s != (Size{Width: 200, Height: 92}) {
		t.Errorf("Unexpected size with widgets %v", s)
	}

	n.Size.Width = 50
	if s := n.ComputeSize(); s.Width != NodeMinWidth {
		t.Errorf("Expected minimum width, got %v", s.Width)
	}
}

// traceHooks records hook calls in order
type traceHooks struct {
	NodeHooks
	name string
	log  *[]string
}

func (h *traceHooks) OnCreate(n *GraphNode) {
	*h.log = append(*h.log, h.name)
	h.NodeHooks.OnCreate(n)
}

func (h *traceHooks) OnReady(n *GraphNode) {
	*h.log = append(*h.log, h.name+".ready")
	h.NodeHooks.OnReady(n)
}

func (h *traceHooks) OnBuildMenu(n *GraphNode, options []*MenuOption) []*MenuOption {
	options = h.NodeHooks.OnBuildMenu(n, options)
	return append(options, &MenuOption{Content: h.name})
}

func TestHookChain(t *testing.T) {
	var log []string
	app := NewApp(nil)
	for _, name := range []string{"first", "second"} {
		name := name
		app.RegisterExtension("Custom", func(prev NodeHooks) NodeHooks {
			return &traceHooks{NodeHooks: prev, name: name, log: &log}
		})
	}

	g := NewGraph()
	n, err := app.CreateNode(g, "Custom")
	if err != nil {
		t.Fatalf("Expected registered extension to make the type known: %v", err)
	}
	if !reflect.DeepEqual(log, []string{"second", "first"}) {
		t.Errorf("Expected later extensions to wrap earlier ones, got %v", log)
	}

	n.ScheduleReady()
	n.ScheduleReady()
	if app.Pending() != 1 {
		t.Errorf("Expected ready requests to be merged, got %d", app.Pending())
	}
	log = nil
	app.Flush()
	if !reflect.DeepEqual(log, []string{"second.ready", "first.ready"}) || app.Pending() != 0 {
		t.Errorf("Unexpected ready calls %v", log)
	}

	options := app.ContextMenu(n)
	if len(options) != 7 || options[5].Content != "first" || options[6].Content != "second" {
		t.Errorf("Unexpected menu %v", options)
	}

	// nodes without a host run OnReady immediately
	log = nil
	orphan := NewGraphNode("Custom")
	orphan.Hooks = &traceHooks{NodeHooks: BaseHooks{}, name: "orphan", log: &log}
	orphan.ScheduleReady()
	if !reflect.DeepEqual(log, []string{"orphan.ready"}) {
		t.Errorf("Expected immediate ready, got %v", log)
	}
}

func TestNodeState(t *testing.T) {
	n := NewGraphNode("X")
	if n.State("k") != nil {
		t.Error("Expected no state")
	}
	n.SetState("k", 3)
	if n.State("k") != 3 {
		t.Error("Expected stored state")
	}
	n.SetDirtyCanvas(true, false)
	if fg, bg := n.Dirty(); !fg || bg {
		t.Error("Unexpected dirty flags")
	}
	n.ClearDirty()
	if fg, bg := n.Dirty(); fg || bg {
		t.Error("Expected flags to be cleared")
	}
}
