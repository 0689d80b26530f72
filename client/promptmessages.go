package client

import "fmt"

// PromptMessage is what a QueueItem receives on its Messages channel.
// Type is one of started, executing, progress, data or stopped and
// selects the concrete type held in Message.
type PromptMessage struct {
	Type    string
	Message interface{}
}

type PromptMessageStarted struct {
	PromptID string `json:"prompt_id"`
}

func (p *PromptMessage) ToPromptMessageStarted() *PromptMessageStarted {
	return p.Message.(*PromptMessageStarted)
}

// PromptMessageExecuting names the node the backend moved on to. NodeID is
// the backend id, which is compound ("57:8") for nodes inside a group node.
type PromptMessageExecuting struct {
	NodeID string
	Title  string
}

func (p *PromptMessage) ToPromptMessageExecuting() *PromptMessageExecuting {
	return p.Message.(*PromptMessageExecuting)
}

type PromptMessageProgress struct {
	NodeID string
	Max    int
	Value  int
}

func (p *PromptMessage) ToPromptMessageProgress() *PromptMessageProgress {
	return p.Message.(*PromptMessageProgress)
}

// PromptMessageData carries a node's outputs keyed by output name ("images", "text", ...)
type PromptMessageData struct {
	NodeID string
	Data   map[string][]DataOutput
}

func (p *PromptMessage) ToPromptMessageData() *PromptMessageData {
	return p.Message.(*PromptMessageData)
}

// PromptMessageStopped is the last message for a prompt. Exception is set
// only when Reason is QueuedItemStoppedReasonError.
type PromptMessageStopped struct {
	QueueItem *QueueItem
	Reason    QueuedItemStoppedReason
	Exception *PromptMessageStoppedException
}

func (p *PromptMessage) ToPromptMessageStopped() *PromptMessageStopped {
	return p.Message.(*PromptMessageStopped)
}

// PromptMessageStoppedException describes the node that failed
type PromptMessageStoppedException struct {
	NodeID           string
	NodeType         string
	NodeName         string
	ExceptionMessage string
	ExceptionType    string
	Traceback        []string
}

// ExecutionError is returned by ProcessMessages when the backend reports an
// exception while executing the prompt
type ExecutionError struct {
	PromptID  string
	Exception *PromptMessageStoppedException
}

func (e *ExecutionError) Error() string {
	ex := e.Exception
	return fmt.Sprintf("prompt %s failed in node %s (%s): %s: %s",
		e.PromptID, ex.NodeID, ex.NodeName, ex.ExceptionType, ex.ExceptionMessage)
}
