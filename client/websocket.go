package client

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrWebSocketClosed = errors.New("websocket connection closed")

// WebSocketConnection keeps a connection to the backend's status stream open,
// reconnecting with exponential backoff, and hands every text message to Handler.
type WebSocketConnection struct {
	WebSocketURL string
	MaxRetry     int
	RetryCount   int
	Handler      func(message string)

	// Exponential backoff configuration
	BaseDelay time.Duration // The initial delay, e.g., 1 second
	MaxDelay  time.Duration // The maximum delay, e.g., 1 minute
	Dialer    websocket.Dialer

	connected atomic.Bool
	mu        sync.Mutex // held while dispatching a message, see LockRead
	connMu    sync.Mutex
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// ConnectWithManager starts the connection manager goroutine.
// timeoutSeconds > 0 waits that long for the first connection, < 0 waits
// indefinitely and 0 returns immediately.
func (w *WebSocketConnection) ConnectWithManager(timeoutSeconds int) error {
	done := w.doneChan()
	// receives the outcome of the first connection attempt cycle
	first := make(chan error, 1)

	go func() {
		signaled := false
		signal := func(err error) {
			if !signaled {
				signaled = true
				first <- err
			}
		}

		retries := 0
		for {
			if err := w.connect(); err != nil {
				w.connected.Store(false)
				retries++
				if retries > w.MaxRetry {
					slog.Error("Maximum number of websocket retries reached", "retries", w.MaxRetry)
					signal(err)
					return
				}
				select {
				case <-time.After(w.getReconnectDelay()):
					continue
				case <-done:
					signal(ErrWebSocketClosed)
					return
				}
			}

			select {
			case <-done:
				w.Close()
				signal(ErrWebSocketClosed)
				return
			default:
			}

			retries = 0
			w.RetryCount = 0
			w.connected.Store(true)
			signal(nil)
			w.handleMessages()
			w.connected.Store(false)

			select {
			case <-done:
				return
			default:
				slog.Warn("websocket disconnected, reconnecting", "url", w.WebSocketURL)
			}
		}
	}()

	switch {
	case timeoutSeconds > 0:
		timeout := time.Duration(timeoutSeconds) * time.Second
		select {
		case err := <-first:
			return err
		case <-time.After(timeout):
			return errors.New("websocket connection timeout after " + timeout.String())
		}
	case timeoutSeconds < 0:
		return <-first
	}
	return nil
}

func (w *WebSocketConnection) doneChan() chan struct{} {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.done == nil {
		w.done = make(chan struct{})
	}
	return w.done
}

func (w *WebSocketConnection) connect() error {
	conn, _, err := w.Dialer.Dial(w.WebSocketURL, nil)
	if err != nil {
		slog.Error("Failed to connect websocket", "url", w.WebSocketURL, "error", err)
		return err
	}
	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	return nil
}

// IsConnected reports whether the connection is currently up
func (w *WebSocketConnection) IsConnected() bool {
	return w.connected.Load()
}

func (w *WebSocketConnection) Ping() error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return ErrWebSocketClosed
	}
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

// handleMessages reads until the connection fails or is closed
func (w *WebSocketConnection) handleMessages() {
	w.connMu.Lock()
	conn := w.conn
	w.connMu.Unlock()
	defer conn.Close()

	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("websocket read error", "error", err)
			return
		}
		// binary messages carry preview images, which we do not use
		if kind != websocket.TextMessage || w.Handler == nil {
			continue
		}
		w.mu.Lock()
		w.Handler(string(message))
		w.mu.Unlock()
	}
}

// exponential backoff calculation
func (w *WebSocketConnection) getReconnectDelay() time.Duration {
	// Calculate the delay as BaseDelay * 2^(RetryCount), capped at MaxDelay
	delay := w.BaseDelay * time.Duration(math.Pow(2, float64(w.RetryCount)))
	if delay > w.MaxDelay {
		delay = w.MaxDelay
	}
	w.RetryCount++
	return delay
}

// Close stops the connection manager and closes the connection
func (w *WebSocketConnection) Close() {
	done := w.doneChan()
	w.closeOnce.Do(func() {
		close(done)
	})
	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.connMu.Unlock()
}

// LockRead holds back message dispatch, so that a prompt can be registered
// before any message about it is handled
func (w *WebSocketConnection) LockRead() {
	w.mu.Lock()
}

func (w *WebSocketConnection) UnlockRead() {
	w.mu.Unlock()
}
