package simulation

import (
	"testing"
	"time"
)

func TestTickMonitorSnapshot(t *testing.T) {
	monitor := NewTickMonitor()
	monitor.Observe(10 * time.Millisecond)
	monitor.Observe(30 * time.Millisecond)
	monitor.Observe(20 * time.Millisecond)

	snapshot := monitor.Snapshot()
	if snapshot.Samples != 3 {
		t.Fatalf("expected 3 samples, got %d", snapshot.Samples)
	}
	if snapshot.Average != 20*time.Millisecond {
		t.Fatalf("expected average 20ms, got %v", snapshot.Average)
	}
	if snapshot.Max != 30*time.Millisecond {
		t.Fatalf("expected max 30ms, got %v", snapshot.Max)
	}
	if snapshot.Last != 20*time.Millisecond {
		t.Fatalf("expected last 20ms, got %v", snapshot.Last)
	}
}

func TestTickMonitorIgnoresInvalidSamples(t *testing.T) {
	monitor := NewTickMonitor()
	monitor.Observe(0)
	monitor.Observe(-5 * time.Millisecond)
	if snapshot := monitor.Snapshot(); snapshot.Samples != 0 {
		t.Fatalf("expected no samples recorded, got %d", snapshot.Samples)
	}
}

func TestAverageFPS(t *testing.T) {
	snapshot := TickMetricsSnapshot{Average: 50 * time.Millisecond}
	if fps := snapshot.AverageFPS(); fps < 19.9 || fps > 20.1 {
		t.Fatalf("expected ~20 fps, got %v", fps)
	}
	if fps := (TickMetricsSnapshot{}).AverageFPS(); fps != 0 {
		t.Fatalf("expected 0 fps for empty snapshot, got %v", fps)
	}
}
