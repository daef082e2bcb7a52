package location

import (
	"context"
	"sync"

	"github.com/SUF145/call-geo/common/logger"
	"github.com/google/uuid"
)

type subscriber struct {
	sub      Subscription
	cb       Callback
	lastSent int64
}

// PushProvider is fed by device uploads through Ingest. Each subscriber gets
// at most one fix per MinInterval, measured on fix timestamps.
type PushProvider struct {
	mu          sync.Mutex
	permitted   bool
	subscribers map[string]*subscriber
}

func NewPushProvider(permitted bool) *PushProvider {
	return &PushProvider{
		permitted:   permitted,
		subscribers: make(map[string]*subscriber),
	}
}

func (p *PushProvider) RequestUpdates(_ context.Context, req Request, cb Callback) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.permitted {
		return Subscription{}, ErrPermissionDenied
	}

	sub := Subscription{ID: uuid.NewString(), Request: req}
	p.subscribers[sub.ID] = &subscriber{sub: sub, cb: cb}
	return sub, nil
}

func (p *PushProvider) RemoveUpdates(sub Subscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subscribers[sub.ID]; !ok {
		return ErrUnknownSubscription
	}
	delete(p.subscribers, sub.ID)
	return nil
}

// SetPermission grants or revokes location access. Revoking drops every live
// subscription.
func (p *PushProvider) SetPermission(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.permitted = granted
	if !granted && len(p.subscribers) > 0 {
		logger.Warn("Location permission revoked, dropping subscriptions", "count", len(p.subscribers))
		p.subscribers = make(map[string]*subscriber)
	}
}

func (p *PushProvider) Permitted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permitted
}

// Ingest delivers fixes to every subscriber and returns how many deliveries
// were made. Callbacks run outside the lock.
func (p *PushProvider) Ingest(ctx context.Context, fixes ...Fix) int {
	type delivery struct {
		cb    Callback
		fixes []Fix
	}

	p.mu.Lock()
	deliveries := make([]delivery, 0, len(p.subscribers))
	for _, s := range p.subscribers {
		accepted := s.accept(fixes)
		if len(accepted) > 0 {
			deliveries = append(deliveries, delivery{cb: s.cb, fixes: accepted})
		}
	}
	p.mu.Unlock()

	delivered := 0
	for _, d := range deliveries {
		d.cb(ctx, d.fixes)
		delivered += len(d.fixes)
	}
	return delivered
}

func (s *subscriber) accept(fixes []Fix) []Fix {
	floor := s.sub.Request.MinInterval.Milliseconds()
	var out []Fix
	for _, f := range fixes {
		if s.lastSent != 0 && f.Timestamp-s.lastSent < floor {
			continue
		}
		s.lastSent = f.Timestamp
		out = append(out, f)
	}
	return out
}
