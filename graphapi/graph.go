package graphapi

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// allow us to order nodes by thier execution order (ordinality)
type ByGraphOrdinal []*GraphNode

func (a ByGraphOrdinal) Len() int           { return len(a) }
func (a ByGraphOrdinal) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByGraphOrdinal) Less(i, j int) bool { return a[i].Order < a[j].Order }

// Group is a titled frame on the canvas. Groups carry no behavior here and
// are kept so saved workflows round trip.
type Group struct {
	Title    string    `json:"title"`
	Bounding []float64 `json:"bounding"`
	Color    string    `json:"color,omitempty"`
}

// Graph is a ComfyUI workflow
type Graph struct {
	Nodes      []*GraphNode           `json:"nodes"`
	Links      []*Link                `json:"links"`
	Groups     []*Group               `json:"groups"`
	LastNodeID int                    `json:"last_node_id"`
	LastLinkID int                    `json:"last_link_id"`
	Config     map[string]interface{} `json:"config,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
	Version    float32                `json:"version"`

	NodesByID             map[int]*GraphNode `json:"-"`
	LinksByID             map[int]*Link      `json:"-"`
	NodesInExecutionOrder []*GraphNode       `json:"-"`
}

// NewGraph creates an empty workflow
func NewGraph() *Graph {
	return &Graph{
		Nodes:     make([]*GraphNode, 0),
		Links:     make([]*Link, 0),
		Groups:    make([]*Group, 0),
		Version:   0.4,
		NodesByID: make(map[int]*GraphNode),
		LinksByID: make(map[int]*Link),
	}
}

func (t *Graph) UnmarshalJSON(b []byte) error {
	// Create an alias type to avoid recursive call to UnmarshalJSON
	type Alias Graph

	alias := &Alias{}
	if err := json.Unmarshal(b, alias); err != nil {
		return err
	}

	*t = Graph(*alias)
	if t.Nodes == nil {
		t.Nodes = make([]*GraphNode, 0)
	}
	if t.Links == nil {
		t.Links = make([]*Link, 0)
	}
	if t.Groups == nil {
		t.Groups = make([]*Group, 0)
	}
	t.reindex()
	return nil
}

// reindex rebuilds the lookup maps and execution order
func (t *Graph) reindex() {
	t.NodesByID = make(map[int]*GraphNode)
	t.LinksByID = make(map[int]*Link)

	for _, node := range t.Nodes {
		t.NodesByID[node.ID] = node
		// Give the node a pointer to it's parent graph
		node.Graph = t
	}

	for _, link := range t.Links {
		t.LinksByID[link.ID] = link
	}

	t.NodesInExecutionOrder = make([]*GraphNode, len(t.Nodes))
	copy(t.NodesInExecutionOrder, t.Nodes)
	sort.Stable(ByGraphOrdinal(t.NodesInExecutionOrder))
}

// Add inserts a node into the graph and assigns it the next node id
func (t *Graph) Add(n *GraphNode) {
	t.LastNodeID++
	n.ID = t.LastNodeID
	n.Order = len(t.Nodes)
	n.Graph = t
	t.Nodes = append(t.Nodes, n)
	t.NodesByID[n.ID] = n
	t.NodesInExecutionOrder = append(t.NodesInExecutionOrder, n)
}

func (t *Graph) addLink(origin *GraphNode, originSlot int, target *GraphNode, targetSlot int) *Link {
	t.LastLinkID++
	l := &Link{
		ID:         t.LastLinkID,
		OriginID:   origin.ID,
		OriginSlot: originSlot,
		TargetID:   target.ID,
		TargetSlot: targetSlot,
		Type:       origin.Outputs[originSlot].Type,
	}
	t.Links = append(t.Links, l)
	t.LinksByID[l.ID] = l

	out := &origin.Outputs[originSlot]
	if out.Links == nil {
		links := make([]int, 0, 1)
		out.Links = &links
	}
	*out.Links = append(*out.Links, l.ID)

	id := l.ID
	target.Inputs[targetSlot].Link = &id
	return l
}

// removeLink drops a link from the graph and from its origin output
func (t *Graph) removeLink(id int) {
	l, ok := t.LinksByID[id]
	if !ok {
		return
	}
	delete(t.LinksByID, id)
	for i, candidate := range t.Links {
		if candidate.ID == id {
			t.Links = append(t.Links[:i], t.Links[i+1:]...)
			break
		}
	}

	origin := t.GetNodeById(l.OriginID)
	if origin == nil || l.OriginSlot >= len(origin.Outputs) {
		return
	}
	out := origin.Outputs[l.OriginSlot]
	if out.Links == nil {
		return
	}
	kept := make([]int, 0, len(*out.Links))
	for _, lid := range *out.Links {
		if lid != id {
			kept = append(kept, lid)
		}
	}
	origin.Outputs[l.OriginSlot].Links = &kept
}

func (t *Graph) GetLinkById(id int) *Link {
	val, ok := t.LinksByID[id]
	if ok {
		return val
	}
	return nil
}

func (t *Graph) GetNodeById(id int) *GraphNode {
	val, ok := t.NodesByID[id]
	if ok {
		return val
	}
	return nil
}

// GetGroupWithTitle returns the 'first' group with the given title
func (t *Graph) GetGroupWithTitle(title string) *Group {
	for _, g := range t.Groups {
		if g.Title == title {
			return g
		}
	}
	return nil
}

// GetNodesWithTitle retrieves nodes from the graph based on a given title. If a node's title is not set,
// it falls back to matching against the node's display name.
func (t *Graph) GetNodesWithTitle(title string) []*GraphNode {
	retv := make([]*GraphNode, 0)
	for _, n := range t.Nodes {
		if (n.Title == "" && n.DisplayName == title) || n.Title == title {
			retv = append(retv, n)
		}
	}
	return retv
}

// GetNodesWithType retrieves all nodes in the graph that match a specified type.
func (t *Graph) GetNodesWithType(nodeType string) []*GraphNode {
	retv := make([]*GraphNode, 0)
	for _, n := range t.Nodes {
		if n.Type == nodeType {
			retv = append(retv, n)
		}
	}
	return retv
}

// NewGraphFromJsonReader decodes a workflow. The nodes are not instantiated;
// pass the graph to App.LoadGraph to run node extensions on it.
func NewGraphFromJsonReader(r io.Reader) (*Graph, error) {
	graph := &Graph{}
	if err := json.NewDecoder(r).Decode(graph); err != nil {
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}
	return graph, nil
}

func NewGraphFromJsonFile(path string) (*Graph, error) {
	freader, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer freader.Close()

	return NewGraphFromJsonReader(freader)
}

func NewGraphFromJsonString(data string) (*Graph, error) {
	return NewGraphFromJsonReader(strings.NewReader(data))
}

// syncWidgetValues copies live widget values into widgets_values for every
// node that has been instantiated
func (t *Graph) syncWidgetValues() {
	for _, n := range t.Nodes {
		if len(n.Widgets) > 0 {
			n.WidgetValues = n.SerializeWidgets()
		}
	}
}

func (t *Graph) GraphToJSON() (string, error) {
	t.syncWidgetValues()
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *Graph) SaveGraphToFile(path string) error {
	data, err := t.GraphToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(data), 0o644)
}
