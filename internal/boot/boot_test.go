package boot

import (
	"context"
	"errors"
	"testing"

	"github.com/SUF145/call-geo/internal/prefs"
)

type recordingStarter struct {
	handles []int64
	err     error
}

func (s *recordingStarter) Start(_ context.Context, handle int64) error {
	s.handles = append(s.handles, handle)
	return s.err
}

type failingStore struct{}

func (failingStore) Load(context.Context) (prefs.TrackingPreference, error) {
	return prefs.TrackingPreference{}, errors.New("disk gone")
}

func (failingStore) Save(context.Context, prefs.TrackingPreference) error { return nil }

func TestOnReceive(t *testing.T) {
	tests := []struct {
		name        string
		action      string
		pref        prefs.TrackingPreference
		wantHandles []int64
	}{
		{"disabled", ActionBootCompleted, prefs.TrackingPreference{}, nil},
		{"disabled with handle", ActionBootCompleted, prefs.TrackingPreference{CallbackHandle: 42}, nil},
		{"enabled zero handle", ActionBootCompleted, prefs.TrackingPreference{Enabled: true}, nil},
		{"enabled", ActionBootCompleted, prefs.TrackingPreference{Enabled: true, CallbackHandle: 42}, []int64{42}},
		{"quickboot", ActionQuickbootPowerOn, prefs.TrackingPreference{Enabled: true, CallbackHandle: 42}, []int64{42}},
		{"other action", "android.intent.action.SCREEN_ON", prefs.TrackingPreference{Enabled: true, CallbackHandle: 42}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &recordingStarter{}
			r := NewRestorer(prefs.NewMemoryStore(tt.pref), starter)

			started, err := r.OnReceive(context.Background(), tt.action)
			if err != nil {
				t.Fatalf("OnReceive: %v", err)
			}
			if started != (len(tt.wantHandles) > 0) {
				t.Errorf("started = %v", started)
			}
			if len(starter.handles) != len(tt.wantHandles) {
				t.Fatalf("start requests = %v, want %v", starter.handles, tt.wantHandles)
			}
			for i := range tt.wantHandles {
				if starter.handles[i] != tt.wantHandles[i] {
					t.Errorf("handle[%d] = %d, want %d", i, starter.handles[i], tt.wantHandles[i])
				}
			}
		})
	}
}

func TestOnReceiveStoreFailure(t *testing.T) {
	starter := &recordingStarter{}
	r := NewRestorer(failingStore{}, starter)

	started, err := r.OnReceive(context.Background(), ActionBootCompleted)
	if err != nil || started {
		t.Fatalf("OnReceive = %v, %v; want false, nil", started, err)
	}
	if len(starter.handles) != 0 {
		t.Errorf("unexpected start requests %v", starter.handles)
	}
}

func TestOnReceiveStarterError(t *testing.T) {
	starter := &recordingStarter{err: errors.New("refused")}
	r := NewRestorer(prefs.NewMemoryStore(prefs.TrackingPreference{Enabled: true, CallbackHandle: 7}), starter)

	if _, err := r.OnReceive(context.Background(), ActionBootCompleted); err == nil {
		t.Fatal("expected starter error to surface")
	}
}
