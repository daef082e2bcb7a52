package location

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrUnknownSubscription = errors.New("unknown location subscription")
)

// Callback receives a batch of fixes in arrival order.
type Callback func(ctx context.Context, fixes []Fix)

type Subscription struct {
	ID      string
	Request Request
}

// Provider delivers fixes to subscribers until the subscription is removed.
type Provider interface {
	RequestUpdates(ctx context.Context, req Request, cb Callback) (Subscription, error)
	RemoveUpdates(sub Subscription) error
}
