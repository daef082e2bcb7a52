package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var ErrUnknownChannel = errors.New("notification channel not registered")

// Manager is the notification surface.
type Manager interface {
	CreateChannel(ctx context.Context, spec ChannelSpec) error
	Notify(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, id int) error
}

// Tray keeps the active notifications in memory. Posting to an existing id
// replaces it.
type Tray struct {
	mu       sync.RWMutex
	channels map[string]ChannelSpec
	active   map[int]Notification
	now      func() time.Time
}

func NewTray() *Tray {
	return &Tray{
		channels: make(map[string]ChannelSpec),
		active:   make(map[int]Notification),
		now:      time.Now,
	}
}

// CreateChannel registers spec. Re-creating a channel updates it.
func (t *Tray) CreateChannel(_ context.Context, spec ChannelSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels[spec.ID] = spec
	return nil
}

func (t *Tray) Notify(_ context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.channels[n.ChannelID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, n.ChannelID)
	}
	if n.PostedAt.IsZero() {
		n.PostedAt = t.now().UTC()
	}
	t.active[n.ID] = n
	return nil
}

func (t *Tray) Cancel(_ context.Context, id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, id)
	return nil
}

// Active returns the visible notifications ordered by id.
func (t *Tray) Active() []Notification {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Notification, 0, len(t.active))
	for _, n := range t.active {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Tray) Get(id int) (Notification, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.active[id]
	return n, ok
}

func (t *Tray) Channels() []ChannelSpec {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ChannelSpec, 0, len(t.channels))
	for _, c := range t.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
