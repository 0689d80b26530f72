package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/richinsley/powerselect/graphapi"
)

// ErrInterrupted is returned by ProcessMessages when the prompt was interrupted
var ErrInterrupted = errors.New("prompt interrupted")

// MessageHandlers are optional callbacks for the messages of one QueueItem.
// Nil handlers are skipped.
type MessageHandlers struct {
	OnStarted   func(*PromptMessageStarted)
	OnExecuting func(*PromptMessageExecuting)
	OnProgress  func(*PromptMessageProgress)
	// OnData receives node outputs, e.g. the images of a SaveImage node
	OnData func(*PromptMessageData)
	// OnError runs before OnStopped when the backend reported an exception
	OnError   func(*PromptMessageStoppedException)
	OnStopped func(*PromptMessageStopped)
	// OnComplete runs once ProcessMessages returns, for any reason
	OnComplete func()
}

// DefaultMessageHandlers returns handlers that log the lifecycle of a prompt
func DefaultMessageHandlers() *MessageHandlers {
	return &MessageHandlers{
		OnStarted: func(msg *PromptMessageStarted) {
			slog.Info("Execution started", "prompt_id", msg.PromptID)
		},
		OnExecuting: func(msg *PromptMessageExecuting) {
			slog.Info("Executing node", "node_id", msg.NodeID, "title", msg.Title)
		},
		OnError: func(ex *PromptMessageStoppedException) {
			slog.Error("Execution error",
				"node_id", ex.NodeID,
				"node_type", ex.NodeType,
				"error", ex.ExceptionMessage,
			)
		},
		OnStopped: func(msg *PromptMessageStopped) {
			slog.Info("Execution stopped", "reason", msg.Reason)
		},
	}
}

func (h *MessageHandlers) WithProgressHandler(fn func(*PromptMessageProgress)) *MessageHandlers {
	h.OnProgress = fn
	return h
}

func (h *MessageHandlers) WithDataHandler(fn func(*PromptMessageData)) *MessageHandlers {
	h.OnData = fn
	return h
}

func (h *MessageHandlers) WithCompleteHandler(fn func()) *MessageHandlers {
	h.OnComplete = fn
	return h
}

// stoppedError maps the final message of a prompt to the error ProcessMessages returns
func (qi *QueueItem) stoppedError(msg *PromptMessageStopped) error {
	switch msg.Reason {
	case QueuedItemStoppedReasonInterrupted:
		return ErrInterrupted
	case QueuedItemStoppedReasonError:
		if msg.Exception == nil {
			return fmt.Errorf("prompt %s failed", qi.PromptID)
		}
		return &ExecutionError{PromptID: qi.PromptID, Exception: msg.Exception}
	}
	return nil
}

// ProcessMessages dispatches the messages of qi to handlers until the prompt
// stops or ctx is done. It returns nil when the prompt finished, ErrInterrupted
// when it was interrupted and an *ExecutionError when a node failed.
func (qi *QueueItem) ProcessMessages(ctx context.Context, handlers *MessageHandlers) error {
	if handlers == nil {
		handlers = &MessageHandlers{}
	}
	if handlers.OnComplete != nil {
		defer handlers.OnComplete()
	}

	for {
		var msg PromptMessage
		select {
		case msg = <-qi.Messages:
		case <-ctx.Done():
			return ctx.Err()
		}

		switch msg.Type {
		case "started":
			if handlers.OnStarted != nil {
				handlers.OnStarted(msg.ToPromptMessageStarted())
			}
		case "executing":
			if handlers.OnExecuting != nil {
				handlers.OnExecuting(msg.ToPromptMessageExecuting())
			}
		case "progress":
			if handlers.OnProgress != nil {
				handlers.OnProgress(msg.ToPromptMessageProgress())
			}
		case "data":
			if handlers.OnData != nil {
				handlers.OnData(msg.ToPromptMessageData())
			}
		case "stopped":
			stopped := msg.ToPromptMessageStopped()
			if stopped.Exception != nil && handlers.OnError != nil {
				handlers.OnError(stopped.Exception)
			}
			if handlers.OnStopped != nil {
				handlers.OnStopped(stopped)
			}
			return qi.stoppedError(stopped)
		default:
			slog.Warn("Unknown message type received", "type", msg.Type)
		}
	}
}

// QueuePromptAndProcess queues graph and processes its messages until it stops
func (c *ComfyClient) QueuePromptAndProcess(ctx context.Context, graph *graphapi.Graph, handlers *MessageHandlers) error {
	item, err := c.QueuePrompt(graph)
	if err != nil {
		return fmt.Errorf("failed to queue prompt: %w", err)
	}
	return item.ProcessMessages(ctx, handlers)
}
