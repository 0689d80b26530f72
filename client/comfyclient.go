package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richinsley/powerselect/graphapi"
)

type QueuedItemStoppedReason string

const (
	QueuedItemStoppedReasonFinished    QueuedItemStoppedReason = "finished"
	QueuedItemStoppedReasonInterrupted QueuedItemStoppedReason = "interrupted"
	QueuedItemStoppedReasonError       QueuedItemStoppedReason = "error"
)

type ComfyClientCallbacks struct {
	ClientQueueCountChanged func(*ComfyClient, int)
	QueuedItemStarted       func(*ComfyClient, *QueueItem)
	QueuedItemStopped       func(*ComfyClient, *QueueItem, QueuedItemStoppedReason)
	QueuedItemDataAvailable func(*ComfyClient, *QueueItem, *PromptMessageData)
}

// Extension installs node extensions on an App before graphs are loaded
type Extension func(app *graphapi.App)

// ComfyClient is the top level object that allows for interaction with the ComfyUI backend
type ComfyClient struct {
	serverBaseAddress string
	serverAddress     string
	serverPort        int
	clientid          string
	nodedefs          *graphapi.NodeDefs
	extensions        []Extension
	initialized       bool
	callbacks         *ComfyClientCallbacks
	timeout           int
	retry             int
	webSocket         *WebSocketConnection
	httpclient        *http.Client

	// mu guards the queue state, which the websocket reader updates
	mu                    sync.Mutex
	queueditems           map[string]*QueueItem
	queuecount            int
	lastProcessedPromptID string
}

// NewComfyClientWithTimeout creates a new client whose websocket connection
// waits up to timeout seconds and retries up to retry times
func NewComfyClientWithTimeout(server_address string, server_port int, callbacks *ComfyClientCallbacks, timeout int, retry int) *ComfyClient {
	c := NewComfyClient(server_address, server_port, callbacks)
	c.timeout = timeout
	c.retry = retry
	return c
}

// NewComfyClient creates a new client that waits indefinitely for the websocket connection
func NewComfyClient(server_address string, server_port int, callbacks *ComfyClientCallbacks) *ComfyClient {
	return &ComfyClient{
		serverBaseAddress: server_address + ":" + strconv.Itoa(server_port),
		serverAddress:     server_address,
		serverPort:        server_port,
		clientid:          uuid.New().String(),
		queueditems:       make(map[string]*QueueItem),
		callbacks:         callbacks,
		timeout:           -1,
		retry:             5,
		httpclient:        &http.Client{},
	}
}

// AddExtension registers ext to run on every App the client creates
func (c *ComfyClient) AddExtension(ext Extension) {
	c.extensions = append(c.extensions, ext)
}

// IsInitialized returns true if the client's websocket is connected and initialized
func (c *ComfyClient) IsInitialized() bool {
	return c.initialized
}

// CheckConnection initializes the client if that has not happened yet
func (c *ComfyClient) CheckConnection() error {
	if !c.IsInitialized() {
		return c.Init()
	}
	return nil
}

// Init retrieves the node definitions and starts the websocket connection
func (c *ComfyClient) Init() error {
	defs, err := c.GetObjectInfos()
	if err != nil {
		return err
	}
	c.nodedefs = defs

	if c.webSocket == nil {
		ws := &WebSocketConnection{
			WebSocketURL: fmt.Sprintf("ws://%s/ws?clientId=%s", c.serverBaseAddress, c.clientid),
			MaxRetry:     c.retry,
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Handler:      c.OnWindowSocketMessage,
		}
		if err := ws.ConnectWithManager(c.timeout); err != nil {
			ws.Close()
			return fmt.Errorf("connecting websocket: %w", err)
		}
		c.webSocket = ws
	}

	c.initialized = true
	return nil
}

// Close stops the websocket connection
func (c *ComfyClient) Close() {
	if c.webSocket != nil {
		c.webSocket.Close()
		c.webSocket = nil
	}
	c.initialized = false
}

// ClientID returns the unique client ID for the connection to the ComfyUI backend
func (c *ComfyClient) ClientID() string {
	return c.clientid
}

// NodeDefs returns the definitions retrieved by Init
func (c *ComfyClient) NodeDefs() *graphapi.NodeDefs {
	return c.nodedefs
}

// return the underlying http client
func (c *ComfyClient) HttpClient() *http.Client {
	return c.httpclient
}

// set the underlying http client
func (c *ComfyClient) SetHttpClient(client *http.Client) {
	c.httpclient = client
}

// NewApp creates a host for the backend's node definitions with the
// client's extensions installed
func (c *ComfyClient) NewApp() *graphapi.App {
	app := graphapi.NewApp(c.nodedefs)
	for _, ext := range c.extensions {
		ext(app)
	}
	return app
}

// NewGraphFromJsonReader loads a workflow and instantiates its nodes.
// It also returns the node types the backend does not know.
func (c *ComfyClient) NewGraphFromJsonReader(r io.Reader) (*graphapi.Graph, []string, error) {
	if err := c.CheckConnection(); err != nil {
		return nil, nil, err
	}
	graph, err := graphapi.NewGraphFromJsonReader(r)
	if err != nil {
		return nil, nil, err
	}

	app := c.NewApp()
	app.LoadGraph(graph)
	app.Flush()
	return graph, missingNodeTypes(app, graph), nil
}

// NewGraphFromJsonFile creates a new graph from a JSON file
func (c *ComfyClient) NewGraphFromJsonFile(path string) (*graphapi.Graph, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return c.NewGraphFromJsonReader(file)
}

// NewGraphFromJsonString creates a new graph from a JSON string
func (c *ComfyClient) NewGraphFromJsonString(data string) (*graphapi.Graph, []string, error) {
	return c.NewGraphFromJsonReader(strings.NewReader(data))
}

// NewGraphFromPNGReader extracts the workflow from PNG data read from an io.Reader and creates a new graph
func (c *ComfyClient) NewGraphFromPNGReader(r io.Reader) (*graphapi.Graph, []string, error) {
	metadata, err := GetPngMetadata(r)
	if err != nil {
		return nil, nil, err
	}

	workflow, ok := metadata["workflow"]
	if !ok {
		return nil, nil, errors.New("png does not contain workflow metadata")
	}
	return c.NewGraphFromJsonString(workflow)
}

// NewGraphFromPNGFile extracts the workflow from a PNG file and creates a new graph
func (c *ComfyClient) NewGraphFromPNGFile(path string) (*graphapi.Graph, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return c.NewGraphFromPNGReader(file)
}

func missingNodeTypes(app *graphapi.App, graph *graphapi.Graph) []string {
	seen := make(map[string]bool)
	retv := make([]string, 0)
	for _, n := range graph.Nodes {
		if n.IsVirtual() || seen[n.Type] || app.NodeDefs().GetNodeDefByName(n.Type) != nil {
			continue
		}
		seen[n.Type] = true
		retv = append(retv, n.Type)
	}
	return retv
}

// GetQueuedItem returns a QueueItem that was queued with the ComfyClient, that has not been processed yet
// or is currently being processed.  Once a QueueItem has been processed, it will not be available with this method.
func (c *ComfyClient) GetQueuedItem(prompt_id string) *QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueditems[prompt_id]
}

// QueueCount returns the queue length last reported by the backend
func (c *ComfyClient) QueueCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queuecount
}

// finish removes qi from the queue and sends its final message.
// No other messages are sent to the channel after this.
func (c *ComfyClient) finish(qi *QueueItem, reason QueuedItemStoppedReason, exception *PromptMessageStoppedException) {
	if c.callbacks != nil && c.callbacks.QueuedItemStopped != nil {
		c.callbacks.QueuedItemStopped(c, qi, reason)
	}
	c.mu.Lock()
	delete(c.queueditems, qi.PromptID)
	c.mu.Unlock()
	qi.Messages <- PromptMessage{
		Type: "stopped",
		Message: &PromptMessageStopped{
			QueueItem: qi,
			Reason:    reason,
			Exception: exception,
		},
	}
}

// nodeTitle resolves a backend node id, which may be a compound id like
// "57:8", to a title from the workflow
func nodeTitle(g *graphapi.Graph, nodeID string) string {
	if g == nil {
		return nodeID
	}
	id, err := strconv.Atoi(nodeID)
	if err != nil {
		head, _, found := strings.Cut(nodeID, ":")
		if !found {
			return nodeID
		}
		if id, err = strconv.Atoi(head); err != nil {
			return nodeID
		}
	}
	node := g.GetNodeById(id)
	switch {
	case node == nil:
		return nodeID
	case node.Title != "":
		return node.Title
	case node.DisplayName != "":
		return node.DisplayName
	}
	return node.Type
}

// OnWindowSocketMessage processes each message received from the websocket connection to ComfyUI.
// The messages are parsed, and translated into PromptMessage structs and placed into the correct QueuedItem's message channel.
func (c *ComfyClient) OnWindowSocketMessage(msg string) {
	message := &WSStatusMessage{}
	if err := json.Unmarshal([]byte(msg), message); err != nil {
		slog.Error("Deserializing Status Message", "error", err)
		return
	}

	promptID := message.PromptID()
	c.mu.Lock()
	if message.Type == "execution_start" {
		// update lastProcessedPromptID to indicate we are processing a new prompt
		c.lastProcessedPromptID = promptID
	}
	if promptID == "" {
		promptID = c.lastProcessedPromptID
	}
	qi := c.queueditems[promptID]
	c.mu.Unlock()

	switch message.Type {
	case "status":
		s := message.Data.(*WSMessageDataStatus)
		c.mu.Lock()
		c.queuecount = s.Status.ExecInfo.QueueRemaining
		c.mu.Unlock()
		if c.callbacks != nil && c.callbacks.ClientQueueCountChanged != nil {
			c.callbacks.ClientQueueCountChanged(c, s.Status.ExecInfo.QueueRemaining)
		}
	case "execution_start":
		if qi == nil {
			return
		}
		if c.callbacks != nil && c.callbacks.QueuedItemStarted != nil {
			c.callbacks.QueuedItemStarted(c, qi)
		}
		qi.Messages <- PromptMessage{
			Type:    "started",
			Message: &PromptMessageStarted{PromptID: qi.PromptID},
		}
	case "execution_cached", "execution_success":
		// the executing message with a nil node follows a success
	case "executing":
		s := message.Data.(*WSMessageDataExecuting)
		if qi == nil {
			return
		}
		if s.Node == nil {
			// final node was processed
			c.finish(qi, QueuedItemStoppedReasonFinished, nil)
			return
		}
		qi.Messages <- PromptMessage{
			Type: "executing",
			Message: &PromptMessageExecuting{
				NodeID: *s.Node,
				Title:  nodeTitle(qi.Workflow, *s.Node),
			},
		}
	case "progress":
		s := message.Data.(*WSMessageDataProgress)
		if qi == nil {
			return
		}
		qi.Messages <- PromptMessage{
			Type: "progress",
			Message: &PromptMessageProgress{
				NodeID: s.Node,
				Value:  s.Value,
				Max:    s.Max,
			},
		}
	case "executed":
		s := message.Data.(*WSMessageDataExecuted)
		if qi == nil {
			return
		}
		mdata := &PromptMessageData{
			NodeID: s.Node,
			Data:   s.Output,
		}
		if c.callbacks != nil && c.callbacks.QueuedItemDataAvailable != nil {
			c.callbacks.QueuedItemDataAvailable(c, qi, mdata)
		}
		qi.Messages <- PromptMessage{Type: "data", Message: mdata}
	case "execution_interrupted":
		if qi != nil {
			c.finish(qi, QueuedItemStoppedReasonInterrupted, nil)
		}
	case "execution_error":
		s := message.Data.(*WSMessageExecutionError)
		if qi == nil {
			return
		}
		c.finish(qi, QueuedItemStoppedReasonError, &PromptMessageStoppedException{
			NodeID:           s.Node,
			NodeType:         s.NodeType,
			NodeName:         nodeTitle(qi.Workflow, s.Node),
			ExceptionMessage: s.ExceptionMessage,
			ExceptionType:    s.ExceptionType,
			Traceback:        s.Traceback,
		})
	case "crystools.monitor":
	default:
		slog.Debug("Unhandled message type", "type", message.Type)
	}
}
