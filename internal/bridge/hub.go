package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SUF145/call-geo/common/jwt"
	"github.com/SUF145/call-geo/common/logger"
	"github.com/SUF145/call-geo/common/response"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	ErrNoPeer   = errors.New("no application logic peer connected")
	ErrPeerBusy = errors.New("peer send buffer full")
)

const (
	EnvelopeCall   = "call"
	EnvelopeResult = "result"
)

// Envelope is the wire frame exchanged with peers.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Method    string          `json:"method,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    *Result         `json:"result,omitempty"`
}

type peer struct {
	hub    *Hub
	handle int64
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

// Hub keeps one WebSocket peer per callback handle. Each handle's Endpoint
// is a Messenger for that peer.
type Hub struct {
	secret   string
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	peers    map[int64]*peer
	handlers map[int64]map[string]MethodCallHandler
}

func NewHub(secret string) *Hub {
	return &Hub{
		secret: secret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		peers:    make(map[int64]*peer),
		handlers: make(map[int64]map[string]MethodCallHandler),
	}
}

// Endpoint returns the Messenger for the peer registered under handle.
func (h *Hub) Endpoint(handle int64) Messenger {
	return &endpoint{hub: h, handle: handle}
}

func (h *Hub) Connected(handle int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.peers[handle]
	return ok
}

func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// ServeWS authenticates the peer token and runs the connection until it
// closes. A newer connection for the same handle replaces the older one.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.ValidateToken(bearerToken(r), h.secret)
	if err != nil {
		response.Unauthorized(w, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCtx(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	p := &peer{hub: h, handle: claims.CallbackHandle, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(p)
	logger.InfoCtx(r.Context(), "Application logic peer connected",
		"callback_handle", p.handle,
		"entry_point", claims.EntryPoint,
		"remote_addr", conn.RemoteAddr().String(),
	)

	go p.writePump()
	p.readPump(r.Context())
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for handle, p := range h.peers {
		p.close()
		delete(h.peers, handle)
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old := h.peers[p.handle]; old != nil {
		logger.Info("Replacing existing peer", "callback_handle", p.handle)
		old.close()
	}
	h.peers[p.handle] = p
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.peers[p.handle] == p {
		delete(h.peers, p.handle)
	}
	p.close()
}

func (h *Hub) handler(handle int64, channel string) MethodCallHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handlers[handle][channel]
}

func (h *Hub) setHandler(handle int64, channel string, fn MethodCallHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if fn == nil {
		delete(h.handlers[handle], channel)
		if len(h.handlers[handle]) == 0 {
			delete(h.handlers, handle)
		}
		return
	}
	if h.handlers[handle] == nil {
		h.handlers[handle] = make(map[string]MethodCallHandler)
	}
	h.handlers[handle][channel] = fn
}

func (h *Hub) send(handle int64, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	// peers are only closed under the write lock
	h.mu.RLock()
	defer h.mu.RUnlock()

	p, ok := h.peers[handle]
	if !ok {
		return ErrNoPeer
	}
	select {
	case p.send <- data:
		return nil
	default:
		return ErrPeerBusy
	}
}

type endpoint struct {
	hub    *Hub
	handle int64
}

func (e *endpoint) Send(_ context.Context, channel string, call MethodCall) error {
	return e.hub.send(e.handle, Envelope{
		ID:        uuid.NewString(),
		Type:      EnvelopeCall,
		Channel:   channel,
		Method:    call.Method,
		Arguments: call.Arguments,
	})
}

func (e *endpoint) SetMessageHandler(channel string, handler MethodCallHandler) {
	e.hub.setHandler(e.handle, channel, handler)
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.send)
	})
}

func (p *peer) readPump(ctx context.Context) {
	defer func() {
		p.hub.unregister(p)
		p.conn.Close()
		logger.Info("Application logic peer disconnected", "callback_handle", p.handle)
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", "callback_handle", p.handle, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("Dropping malformed envelope", "callback_handle", p.handle, "error", err)
			continue
		}
		p.handleEnvelope(ctx, env)
	}
}

func (p *peer) handleEnvelope(ctx context.Context, env Envelope) {
	switch env.Type {
	case EnvelopeCall:
		result := NotImplemented()
		if fn := p.hub.handler(p.handle, env.Channel); fn != nil {
			result = fn(ctx, MethodCall{Method: env.Method, Arguments: env.Arguments})
		}
		if err := p.hub.send(p.handle, Envelope{ID: env.ID, Type: EnvelopeResult, Channel: env.Channel, Result: &result}); err != nil {
			logger.Warn("Failed to answer peer call", "callback_handle", p.handle, "method", env.Method, "error", err)
		}
	case EnvelopeResult:
		if env.Result != nil && env.Result.Kind == ResultError {
			logger.Warn("Peer reported error", "callback_handle", p.handle, "id", env.ID, "code", env.Result.Code, "message", env.Result.Message)
		}
	default:
		logger.Warn("Unknown envelope type", "callback_handle", p.handle, "type", env.Type)
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket write error", "callback_handle", p.handle, "error", err)
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
