package client

import "github.com/richinsley/powerselect/graphapi"

// QueueItem is a prompt accepted by the backend. Progress arrives on
// Messages until a "stopped" message, after which the channel is not used.
type QueueItem struct {
	PromptID   string                 `json:"prompt_id"`
	Number     int                    `json:"number"`
	NodeErrors map[string]interface{} `json:"node_errors"`
	Messages   chan PromptMessage     `json:"-"`
	Workflow   *graphapi.Graph        `json:"-"`
}

func newQueueItem(workflow *graphapi.Graph) *QueueItem {
	return &QueueItem{
		Workflow: workflow,
		Messages: make(chan PromptMessage, 16),
	}
}
