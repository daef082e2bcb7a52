package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SUF145/call-geo/common/logger"
)

// Engine is the live execution context for one application-logic entry point.
type Engine struct {
	Handle     int64
	EntryPoint string
	StartedAt  time.Time

	channel *Channel
}

func (e *Engine) Channel() *Channel {
	return e.channel
}

// Connector returns the Messenger reaching the peer behind a handle.
type Connector func(handle int64) Messenger

// Host owns the single execution context and its channel. Creation happens at
// most once while the context lives; the first handle wins.
type Host struct {
	registry Registry
	connect  Connector

	mu     sync.Mutex
	engine *Engine
}

func NewHost(registry Registry, connect Connector) *Host {
	return &Host{registry: registry, connect: connect}
}

// EnsureEngine returns the live context, creating it for handle when none
// exists. configure runs once on the new channel before it is published.
func (h *Host) EnsureEngine(ctx context.Context, handle int64, configure func(*Channel)) (*Engine, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine != nil {
		if h.engine.Handle != handle {
			logger.DebugCtx(ctx, "Execution context already running, ignoring handle",
				"running_handle", h.engine.Handle,
				"ignored_handle", handle,
			)
		}
		return h.engine, false, nil
	}

	entry, err := h.registry.Lookup(ctx, handle)
	if err != nil {
		return nil, false, fmt.Errorf("lookup callback %d: %w", handle, err)
	}

	ch := NewChannel(ChannelName, h.connect(handle))
	if configure != nil {
		configure(ch)
	}

	h.engine = &Engine{
		Handle:     handle,
		EntryPoint: entry.EntryPoint,
		StartedAt:  time.Now().UTC(),
		channel:    ch,
	}
	logger.InfoCtx(ctx, "Execution context created", "callback_handle", handle, "entry_point", entry.EntryPoint)
	return h.engine, true, nil
}

// Channel returns the shared channel, or nil before the context exists.
func (h *Host) Channel() *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil {
		return nil
	}
	return h.engine.channel
}

func (h *Host) Engine() *Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine
}

// Shutdown destroys the execution context. A later EnsureEngine may create a
// new one.
func (h *Host) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil {
		return
	}
	h.engine.channel.Close()
	logger.Info("Execution context destroyed", "callback_handle", h.engine.Handle)
	h.engine = nil
}
