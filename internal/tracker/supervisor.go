package tracker

import (
	"context"
	"sync"

	"github.com/SUF145/call-geo/common/logger"
)

// Supervisor is the host runtime for the reporting process. It creates a
// service on the first start request and destroys it on stop, the way an OS
// supervises a foreground service.
type Supervisor struct {
	newService func() *Service
	listeners  []func(State)

	mu      sync.Mutex
	current *Service
}

func NewSupervisor(newService func() *Service, listeners ...func(State)) *Supervisor {
	return &Supervisor{newService: newService, listeners: listeners}
}

// Start delivers Created to a fresh service when none is running, then
// StartRequested with handle.
func (s *Supervisor) Start(ctx context.Context, handle int64) error {
	s.mu.Lock()
	svc := s.current
	if svc == nil {
		svc = s.newService()
		s.current = svc
		logger.InfoCtx(ctx, "Starting tracking service", "callback_handle", handle)
		if err := svc.Handle(ctx, Created{}); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	err := svc.Handle(ctx, StartRequested{Handle: handle})
	state := svc.State()
	s.mu.Unlock()

	s.notify(state)
	return err
}

// Stop destroys the running service. It reports whether one was running.
func (s *Supervisor) Stop(ctx context.Context) (bool, error) {
	s.mu.Lock()
	svc := s.current
	s.current = nil
	s.mu.Unlock()

	if svc == nil {
		return false, nil
	}
	err := svc.Handle(ctx, Destroyed{})
	s.notify(StateStopped)
	return true, err
}

// Current returns the running service, or nil.
func (s *Supervisor) Current() *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Supervisor) Running() bool {
	return s.Current() != nil
}

// Tracking reports whether the running service holds a live subscription.
func (s *Supervisor) Tracking() bool {
	svc := s.Current()
	return svc != nil && svc.State() == StateTracking
}

func (s *Supervisor) notify(state State) {
	for _, fn := range s.listeners {
		fn(state)
	}
}
