package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"deribitarb/internal/domain"
)

const (
	writeWait = 10 * time.Second

	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// MessageHandler receives every raw frame read from the stream.
type MessageHandler func(raw []byte)

// WSClient streams subscription messages from the venue. On read failure it
// reconnects with exponential backoff and restores its subscriptions.
type WSClient struct {
	env    Environment
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	subscribed []string

	handlerMu sync.RWMutex
	handlers  []MessageHandler

	done chan struct{}
}

// NewWSClient builds a websocket client for the environment.
func NewWSClient(env Environment, logger *slog.Logger) *WSClient {
	return &WSClient{
		env:    env,
		logger: logger.With("component", "deribit.ws"),
		done:   make(chan struct{}),
	}
}

// Connect dials the stream and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("deribit/ws: %w: client is closed", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.env.WebsocketURL(), nil)
	if err != nil {
		return fmt.Errorf("deribit/ws: connect: %w", err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if len(w.subscribed) > 0 {
		if err := w.sendSubscribe(w.subscribed); err != nil {
			return fmt.Errorf("deribit/ws: restore subscriptions: %w", err)
		}
	}
	return nil
}

// Subscribe adds channels to the stream and tracks them for reconnection.
func (w *WSClient) Subscribe(channels []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("deribit/ws: %w: not connected", domain.ErrWSDisconnect)
	}
	if err := w.sendSubscribe(channels); err != nil {
		return fmt.Errorf("deribit/ws: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(w.subscribed))
	for _, ch := range w.subscribed {
		existing[ch] = struct{}{}
	}
	for _, ch := range channels {
		if _, ok := existing[ch]; !ok {
			w.subscribed = append(w.subscribed, ch)
		}
	}
	return nil
}

// OnMessage registers a handler invoked for every received frame.
func (w *WSClient) OnMessage(handler MessageHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Close shuts the stream down. Safe to call more than once.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// sendSubscribe writes a public/subscribe request. Caller holds w.mu.
func (w *WSClient) sendSubscribe(channels []string) error {
	req := rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      rand.Uint64(),
		Method:  "public/subscribe",
		Params:  map[string]any{"channels": channels},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.logger.Warn("websocket read error, reconnecting", "error", err)
			w.reconnect()
			return
		}

		w.handlerMu.RLock()
		handlers := w.handlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(message)
		}
	}
}

func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (w *WSClient) reconnect() {
	delay := reconnectDelay
	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			w.logger.Info("websocket reconnected")
			return
		}
		w.logger.Warn("websocket reconnect failed", "error", err, "retry_in", delay.String())

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
