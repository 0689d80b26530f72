package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// WSStatusMessage is a message from the backend's /ws endpoint. Data holds
// one of the WSMessage* types below, or nil for message types we ignore.
type WSStatusMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"Data"`
}

type promptScoped interface {
	promptID() string
}

// PromptID returns the prompt the message belongs to, or "" for messages
// that are not tied to a prompt
func (sm *WSStatusMessage) PromptID() string {
	if p, ok := sm.Data.(promptScoped); ok {
		return p.promptID()
	}
	return ""
}

func (sm *WSStatusMessage) UnmarshalJSON(b []byte) error {
	// Unmarshal into an anonymous type to avoid infinite recursion
	var temp struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	sm.Type = temp.Type
	switch sm.Type {
	case "status":
		sm.Data = &WSMessageDataStatus{}
	case "execution_start", "execution_success":
		sm.Data = &WSMessageDataExecutionStart{}
	case "execution_cached":
		sm.Data = &WSMessageDataExecutionCached{}
	case "executing":
		sm.Data = &WSMessageDataExecuting{}
	case "progress":
		sm.Data = &WSMessageDataProgress{}
	case "executed":
		sm.Data = &WSMessageDataExecuted{}
	case "execution_interrupted":
		sm.Data = &WSMessageExecutionInterrupted{}
	case "execution_error":
		sm.Data = &WSMessageExecutionError{}
	default:
		sm.Data = nil
	}

	if sm.Data != nil && len(temp.Data) > 0 {
		if err := json.Unmarshal(temp.Data, sm.Data); err != nil {
			return fmt.Errorf("%s message: %w", sm.Type, err)
		}
	}
	return nil
}

/*
{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 1}}, "sid": "..."}}
*/
type WSMessageDataStatus struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
}

/*
{"type": "execution_start", "data": {"prompt_id": "ed986d60-2a27-4d28-8871-2fdb36582902"}}
*/
type WSMessageDataExecutionStart struct {
	PromptID string `json:"prompt_id"`
}

func (m *WSMessageDataExecutionStart) promptID() string { return m.PromptID }

/*
{"type": "execution_cached", "data": {"nodes": [], "prompt_id": "ed986d60-2a27-4d28-8871-2fdb36582902"}}
*/
type WSMessageDataExecutionCached struct {
	Nodes    []string `json:"nodes"`
	PromptID string   `json:"prompt_id"`
}

func (m *WSMessageDataExecutionCached) promptID() string { return m.PromptID }

/*
{"type": "executing", "data": {"node": "12", "prompt_id": "ed986d60-2a27-4d28-8871-2fdb36582902"}}

Node ids are strings and may be compound ("57:8") for nodes inside
subgraphs. A null node marks the end of the prompt.
*/
type WSMessageDataExecuting struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

func (m *WSMessageDataExecuting) promptID() string { return m.PromptID }

/*
{"type": "progress", "data": {"value": 1, "max": 20, "prompt_id": "...", "node": "3"}}
*/
type WSMessageDataProgress struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id"`
	Node     string `json:"node"`
}

func (m *WSMessageDataProgress) promptID() string { return m.PromptID }

/*
{"type": "executed", "data": {"node": "19", "output": {"images": [{"filename": "ComfyUI_00046_.png", "subfolder": "", "type": "output"}]}, "prompt_id": "ed986d60-2a27-4d28-8871-2fdb36582902"}}

// when there are multiple outputs, each output will receive an "executed"
*/
type WSMessageDataExecuted struct {
	Node     string
	Output   map[string][]DataOutput
	PromptID string
}

func (m *WSMessageDataExecuted) promptID() string { return m.PromptID }

func (mde *WSMessageDataExecuted) UnmarshalJSON(b []byte) error {
	var temp struct {
		Node      string                 `json:"node"`
		OutputRaw map[string]interface{} `json:"output"`
		PromptID  string                 `json:"prompt_id"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	mde.Node = temp.Node
	mde.PromptID = temp.PromptID
	mde.Output = make(map[string][]DataOutput)
	for k, v := range temp.OutputRaw {
		entries, ok := v.([]interface{})
		if !ok {
			// scalar outputs such as "animated": [false] are not data
			continue
		}
		outputs := make([]DataOutput, 0, len(entries))
		for _, e := range entries {
			if out, ok := dataOutputFrom(e); ok {
				outputs = append(outputs, out)
			}
		}
		mde.Output[k] = outputs
	}
	return nil
}

// dataOutputFrom converts one output entry: a file reference, or raw text
func dataOutputFrom(e interface{}) (DataOutput, bool) {
	switch v := e.(type) {
	case map[string]interface{}:
		filename, _ := v["filename"].(string)
		filetype, _ := v["type"].(string)
		if filename == "" || filetype == "" {
			slog.Warn("executed output entry without filename or type", "entry", v)
			return DataOutput{}, false
		}
		subfolder, _ := v["subfolder"].(string)
		return DataOutput{Filename: filename, Subfolder: subfolder, Type: filetype}, true
	case string:
		return DataOutput{Type: "text", Text: v}, true
	}
	slog.Warn("executed output entry of unknown type", "entry", e)
	return DataOutput{Type: "unknown", Text: fmt.Sprint(e)}, true
}

/*
{"type": "execution_interrupted", "data": {"prompt_id": "dc7093d7-980a-4fe6-bf0c-f6fef932c74b", "node_id": "19", "node_type": "SaveImage", "executed": ["5", "17", "10", "11"]}}
*/
type WSMessageExecutionInterrupted struct {
	PromptID string   `json:"prompt_id"`
	Node     string   `json:"node_id"`
	NodeType string   `json:"node_type"`
	Executed []string `json:"executed"`
}

func (m *WSMessageExecutionInterrupted) promptID() string { return m.PromptID }

type WSMessageExecutionError struct {
	PromptID         string                 `json:"prompt_id"`
	Node             string                 `json:"node_id"`
	NodeType         string                 `json:"node_type"`
	Executed         []string               `json:"executed"`
	ExceptionMessage string                 `json:"exception_message"`
	ExceptionType    string                 `json:"exception_type"`
	Traceback        []string               `json:"traceback"`
	CurrentInputs    map[string]interface{} `json:"current_inputs"`
}

func (m *WSMessageExecutionError) promptID() string { return m.PromptID }
