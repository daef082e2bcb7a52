package bridge

import (
	"context"
	"sync"
)

type MethodCallHandler func(ctx context.Context, call MethodCall) Result

// Messenger moves method calls for named channels across the execution
// boundary.
type Messenger interface {
	Send(ctx context.Context, channel string, call MethodCall) error
	SetMessageHandler(channel string, handler MethodCallHandler)
}

// Channel is a named conduit on a Messenger.
type Channel struct {
	name      string
	messenger Messenger

	mu      sync.RWMutex
	handler MethodCallHandler
}

func NewChannel(name string, messenger Messenger) *Channel {
	c := &Channel{name: name, messenger: messenger}
	messenger.SetMessageHandler(name, c.dispatch)
	return c
}

func (c *Channel) Name() string {
	return c.name
}

// InvokeMethod sends a call without waiting for an answer.
func (c *Channel) InvokeMethod(ctx context.Context, method string, args interface{}) error {
	call, err := NewMethodCall(method, args)
	if err != nil {
		return err
	}
	return c.messenger.Send(ctx, c.name, call)
}

// SetMethodCallHandler installs the inbound handler. nil removes it.
func (c *Channel) SetMethodCallHandler(h MethodCallHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Close detaches the channel from its messenger.
func (c *Channel) Close() {
	c.messenger.SetMessageHandler(c.name, nil)
}

func (c *Channel) dispatch(ctx context.Context, call MethodCall) Result {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()

	if h == nil {
		return NotImplemented()
	}
	return h(ctx, call)
}
