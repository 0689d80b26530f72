package graphapi

import (
	"log/slog"
	"strconv"
)

// Prompt is the data that is enqueued to an instance of ComfyUI
type Prompt struct {
	ClientID  string                `json:"client_id"`
	Nodes     map[string]PromptNode `json:"prompt"`
	ExtraData PromptExtraData       `json:"extra_data"`
	PID       string                `json:"pid,omitempty"`
}

type PromptNode struct {
	// Inputs can be one of:
	//	float64
	//	string
	//	bool
	//	[]interface{} where: [0] is string of target node
	//					     [1] is float64 (int) of slot index
	Inputs    map[string]interface{} `json:"inputs"`
	ClassType string                 `json:"class_type"`
}

type PromptExtraData struct {
	PngInfo PromptWorkflow `json:"extra_pnginfo"`
}

// PromptWorkflow is the original Graph that was used to create the Prompt.
// It is added to generated PNG files such that the information needed to
// recreate the image is available.
type PromptWorkflow struct {
	Workflow *Graph `json:"workflow"`
}

// resolveInputLink follows an input through virtual nodes (reroutes) to the
// link from the real producing node
func (t *Graph) resolveInputLink(node *GraphNode, slotIndex int) *Link {
	link := node.GetInputLink(slotIndex)
	parent := node.GetNodeForInput(slotIndex)
	for link != nil && parent != nil && parent.IsVirtual() {
		link = parent.GetInputLink(link.OriginSlot)
		if link == nil {
			break
		}
		parent = t.GetNodeById(link.OriginID)
	}
	return link
}

// GraphToPrompt builds the prompt for the executable nodes of the graph.
// Widget values are taken from the live widgets, so hidden widgets with a
// serializer override send their derived value.
func (t *Graph) GraphToPrompt(clientID string) (Prompt, error) {
	t.syncWidgetValues()
	p := Prompt{
		ClientID: clientID,
		Nodes:    make(map[string]PromptNode),
	}
	for _, node := range t.NodesInExecutionOrder {
		if node.IsVirtual() {
			// Don't serialize frontend only nodes
			continue
		}

		if node.Mode == ModeNever {
			// Don't serialize muted nodes
			continue
		}

		pn := PromptNode{
			ClassType: node.Type,
			Inputs:    make(map[string]interface{}),
		}

		for _, w := range node.Widgets {
			if w.NoSerialize || w.FrontendOnly {
				continue
			}
			pn.Inputs[w.Name] = w.SerializedValue()
		}
		if len(node.Widgets) == 0 && len(node.WidgetValues) > 0 {
			slog.Debug("node was not instantiated, widget values are not named", "node", node.ID, "node type", node.Type)
		}

		// populate the node input links
		for i, slot := range node.Inputs {
			link := t.resolveInputLink(node, i)
			if link == nil {
				continue
			}
			pn.Inputs[slot.Name] = []interface{}{strconv.Itoa(link.OriginID), link.OriginSlot}
		}
		p.Nodes[strconv.Itoa(node.ID)] = pn
	}
	// assign our current graph as the workflow
	p.ExtraData.PngInfo.Workflow = t
	return p, nil
}
