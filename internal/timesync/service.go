package timesync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sample is one clock measurement pushed to connected clients.
type Sample struct {
	ServerTimestampMs    int64 `json:"server_timestamp_ms"`
	SimulatedTimestampMs int64 `json:"simulated_timestamp_ms"`
	RecommendedOffsetMs  int64 `json:"recommended_offset_ms"`
}

// clockProvider captures the measurements required for time sync samples.
type clockProvider interface {
	TimeSyncSnapshot() (serverMs, simulatedMs, offsetMs int64)
}

// Tracker accumulates simulated game time and reports drift against the wall clock.
type Tracker struct {
	mu          sync.Mutex
	now         func() time.Time
	started     time.Time
	simulatedMs int64
}

// NewTracker constructs a tracker anchored at the current wall clock.
func NewTracker(clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{now: clock, started: clock()}
}

// Advance credits the tracker with elapsed simulated time.
func (t *Tracker) Advance(dt time.Duration) {
	if t == nil || dt <= 0 {
		return
	}
	t.mu.Lock()
	t.simulatedMs += dt.Milliseconds()
	t.mu.Unlock()
}

// TimeSyncSnapshot reports the wall clock, the simulated clock, and the drift
// between them. A negative offset means the simulation lags real time.
func (t *Tracker) TimeSyncSnapshot() (serverMs, simulatedMs, offsetMs int64) {
	if t == nil {
		return 0, 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	serverMs = now.UnixMilli()
	simulatedMs = t.simulatedMs
	elapsedMs := now.Sub(t.started).Milliseconds()
	offsetMs = simulatedMs - elapsedMs
	return serverMs, simulatedMs, offsetMs
}

// Service pushes periodic drift samples to a consumer channel.
type Service struct {
	provider clockProvider
	interval time.Duration
}

// NewService wires a clock provider into the streaming transport.
func NewService(provider clockProvider, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{provider: provider, interval: interval}
}

// Sample returns a single measurement without streaming.
func (s *Service) Sample() (Sample, error) {
	if s == nil || s.provider == nil {
		return Sample{}, fmt.Errorf("time sync service unavailable")
	}
	serverMs, simulatedMs, offsetMs := s.provider.TimeSyncSnapshot()
	return Sample{
		ServerTimestampMs:    serverMs,
		SimulatedTimestampMs: simulatedMs,
		RecommendedOffsetMs:  offsetMs,
	}, nil
}

// Stream pushes successive samples to out until the context is cancelled.
// The channel is never closed by Stream so callers can reuse it across sessions.
func (s *Service) Stream(ctx context.Context, out chan<- Sample) error {
	if s == nil || s.provider == nil || out == nil {
		return fmt.Errorf("time sync service unavailable")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	//1.- Emit an initial sample immediately to minimise startup skew.
	if err := s.send(ctx, out); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			//2.- Stream successive updates at the configured cadence.
			if err := s.send(ctx, out); err != nil {
				return err
			}
		}
	}
}

func (s *Service) send(ctx context.Context, out chan<- Sample) error {
	sample, err := s.Sample()
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- sample:
		return nil
	}
}
