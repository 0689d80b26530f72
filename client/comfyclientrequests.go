package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/richinsley/powerselect/graphapi"
)

/*
routes used:
@routes.get("/object_info")
@routes.get("/prompt")
@routes.get("/view")

@routes.post("/prompt")
@routes.post("/interrupt")
@routes.post("/upload/image")
*/

var ErrPromptRejected = errors.New("prompt rejected")

// get performs a GET against the backend and returns the body of a 200 response
func (c *ComfyClient) get(path string) ([]byte, error) {
	resp, err := c.httpclient.Get(fmt.Sprintf("http://%s%s", c.serverBaseAddress, path))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return body, nil
}

func (c *ComfyClient) post(path string, body []byte) (*http.Response, []byte, error) {
	resp, err := c.httpclient.Post(fmt.Sprintf("http://%s%s", c.serverBaseAddress, path), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	return resp, data, nil
}

// GetObjectInfos retrieves the node definitions of every node type the backend provides
func (c *ComfyClient) GetObjectInfos() (*graphapi.NodeDefs, error) {
	body, err := c.get("/object_info")
	if err != nil {
		return nil, err
	}
	return graphapi.NewNodeDefsFromJSON(body)
}

func (c *ComfyClient) GetQueueExecutionInfo() (*QueueExecInfo, error) {
	body, err := c.get("/prompt")
	if err != nil {
		return nil, err
	}
	queue_exec := &QueueExecInfo{}
	if err := json.Unmarshal(body, queue_exec); err != nil {
		return nil, err
	}
	return queue_exec, nil
}

// GetImage downloads an output file
func (c *ComfyClient) GetImage(image_data DataOutput) ([]byte, error) {
	params := url.Values{}
	params.Add("filename", image_data.Filename)
	params.Add("subfolder", image_data.Subfolder)
	params.Add("type", image_data.Type)
	return c.get("/view?" + params.Encode())
}

// QueuePrompt converts graph to a prompt and enqueues it. Messages about the
// prompt are delivered on the returned item's Messages channel.
func (c *ComfyClient) QueuePrompt(graph *graphapi.Graph) (*QueueItem, error) {
	if err := c.CheckConnection(); err != nil {
		return nil, err
	}

	prompt, err := graph.GraphToPrompt(c.clientid)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(prompt)
	if err != nil {
		return nil, err
	}

	// prevent a race where the ws may provide messages about a queued item before
	// we add the item to our internal map
	c.webSocket.LockRead()
	defer c.webSocket.UnlockRead()

	resp, body, err := c.post("/prompt", data)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		perror := &PromptErrorMessage{}
		if perr := json.Unmarshal(body, perror); perr != nil || perror.Error.Message == "" {
			slog.Error("unexpected prompt response", "status", resp.Status, "body", string(body))
			return nil, fmt.Errorf("%w: %s", ErrPromptRejected, resp.Status)
		}
		return nil, fmt.Errorf("%w: %s", ErrPromptRejected, perror.Error.Message)
	}

	item := newQueueItem(graph)
	if err := json.Unmarshal(body, item); err != nil {
		return nil, err
	}
	if item.PromptID == "" {
		return nil, fmt.Errorf("%w: response has no prompt_id", ErrPromptRejected)
	}

	c.mu.Lock()
	c.queueditems[item.PromptID] = item
	c.mu.Unlock()
	return item, nil
}

// Interrupt stops the prompt that is currently executing
func (c *ComfyClient) Interrupt() error {
	resp, _, err := c.post("/interrupt", []byte("{}"))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("interrupt: %s", resp.Status)
	}
	return nil
}
