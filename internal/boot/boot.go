// Package boot restarts background tracking after a system restart when the
// persisted preference says it was running.
package boot

import (
	"context"

	"github.com/SUF145/call-geo/common/logger"
	"github.com/SUF145/call-geo/internal/prefs"
)

const (
	ActionBootCompleted    = "android.intent.action.BOOT_COMPLETED"
	ActionQuickbootPowerOn = "android.intent.action.QUICKBOOT_POWERON"
)

// Starter asks the host runtime to (re)start the reporting process.
type Starter interface {
	Start(ctx context.Context, callbackHandle int64) error
}

type Restorer struct {
	store   prefs.Store
	starter Starter
}

func NewRestorer(store prefs.Store, starter Starter) *Restorer {
	return &Restorer{store: store, starter: starter}
}

// IsBootAction reports whether action is one of the accepted boot signals.
func IsBootAction(action string) bool {
	return action == ActionBootCompleted || action == ActionQuickbootPowerOn
}

// OnReceive handles a system signal. It issues at most one start request and
// writes no state.
func (r *Restorer) OnReceive(ctx context.Context, action string) (bool, error) {
	if !IsBootAction(action) {
		logger.DebugCtx(ctx, "Ignoring non-boot signal", "action", action)
		return false, nil
	}

	pref, err := r.store.Load(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to read tracking preference, treating as disabled", "error", err)
		return false, nil
	}
	if !pref.ShouldRestore() {
		logger.InfoCtx(ctx, "Tracking not enabled, nothing to restore",
			"tracking_enabled", pref.Enabled,
			"callback_handle", pref.CallbackHandle,
		)
		return false, nil
	}

	logger.InfoCtx(ctx, "Restoring background tracking", "callback_handle", pref.CallbackHandle)
	if err := r.starter.Start(ctx, pref.CallbackHandle); err != nil {
		return false, err
	}
	return true, nil
}
