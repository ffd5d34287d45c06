package timesync

import (
	"context"
	"testing"
	"time"
)

func TestTrackerReportsDrift(t *testing.T) {
	base := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	now := base
	tracker := NewTracker(func() time.Time { return now })

	// One second of wall time but only 800 ms of simulated progress.
	now = now.Add(time.Second)
	tracker.Advance(800 * time.Millisecond)

	serverMs, simulatedMs, offsetMs := tracker.TimeSyncSnapshot()
	if serverMs != now.UnixMilli() {
		t.Fatalf("unexpected server timestamp %d", serverMs)
	}
	if simulatedMs != 800 {
		t.Fatalf("unexpected simulated ms %d", simulatedMs)
	}
	if offsetMs != -200 {
		t.Fatalf("expected lagging offset -200, got %d", offsetMs)
	}
}

func TestTrackerIgnoresNonPositiveAdvance(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Advance(-time.Second)
	tracker.Advance(0)
	_, simulatedMs, _ := tracker.TimeSyncSnapshot()
	if simulatedMs != 0 {
		t.Fatalf("expected no simulated progress, got %d", simulatedMs)
	}
}

func TestServiceSample(t *testing.T) {
	base := time.Date(2024, 7, 10, 13, 0, 0, 0, time.UTC)
	now := base
	tracker := NewTracker(func() time.Time { return now })
	tracker.Advance(500 * time.Millisecond)

	service := NewService(tracker, time.Second)
	sample, err := service.Sample()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if sample.SimulatedTimestampMs != 500 || sample.RecommendedOffsetMs != 500 {
		t.Fatalf("unexpected sample %+v", sample)
	}
}

func TestServiceStreamEmitsImmediateSample(t *testing.T) {
	tracker := NewTracker(nil)
	service := NewService(tracker, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Sample, 1)
	done := make(chan error, 1)
	go func() { done <- service.Stream(ctx, out) }()

	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("expected immediate sample")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestServiceRequiresProvider(t *testing.T) {
	service := NewService(nil, time.Second)
	if _, err := service.Sample(); err == nil {
		t.Fatal("expected error without provider")
	}
}
