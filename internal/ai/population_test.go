package ai

import (
	"context"
	"errors"
	"testing"
)

type fakeSeater struct {
	targets []int
	fail    bool
}

func (f *fakeSeater) Scale(_ context.Context, target int) (int, error) {
	if f.fail {
		return 0, errors.New("seat failure")
	}
	f.targets = append(f.targets, target)
	return target, nil
}

func TestPopulationBackfillsWithBots(t *testing.T) {
	seater := &fakeSeater{}
	population := NewPopulation(PopulationConfig{TargetPopulation: 4, Seater: seater})

	//1.- An empty room gets fully botted.
	if err := population.SetTarget(context.Background(), 4); err != nil {
		t.Fatalf("set target: %v", err)
	}
	if snapshot := population.Snapshot(); snapshot.Bots != 4 {
		t.Fatalf("expected 4 bots, got %+v", snapshot)
	}

	//2.- Each human connection retires one bot.
	if err := population.HumanConnected(context.Background()); err != nil {
		t.Fatalf("human connect: %v", err)
	}
	if snapshot := population.Snapshot(); snapshot.Humans != 1 || snapshot.Bots != 3 {
		t.Fatalf("expected 1 human and 3 bots, got %+v", snapshot)
	}

	//3.- A departure hands the seat back to a bot.
	if err := population.HumanDisconnected(context.Background()); err != nil {
		t.Fatalf("human disconnect: %v", err)
	}
	if snapshot := population.Snapshot(); snapshot.Humans != 0 || snapshot.Bots != 4 {
		t.Fatalf("expected 0 humans and 4 bots, got %+v", snapshot)
	}
}

func TestPopulationClampsAtZeroBots(t *testing.T) {
	population := NewPopulation(PopulationConfig{TargetPopulation: 1})
	for i := 0; i < 3; i++ {
		if err := population.HumanConnected(context.Background()); err != nil {
			t.Fatalf("human connect: %v", err)
		}
	}
	if snapshot := population.Snapshot(); snapshot.Bots != 0 {
		t.Fatalf("expected no bots when humans exceed the target, got %+v", snapshot)
	}
}

func TestPopulationDisconnectNeverGoesNegative(t *testing.T) {
	population := NewPopulation(PopulationConfig{TargetPopulation: 2})
	if err := population.HumanDisconnected(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if snapshot := population.Snapshot(); snapshot.Humans != 0 {
		t.Fatalf("expected humans clamped at zero, got %+v", snapshot)
	}
}

func TestPopulationPropagatesSeaterErrors(t *testing.T) {
	population := NewPopulation(PopulationConfig{TargetPopulation: 2, Seater: &fakeSeater{fail: true}})
	if err := population.HumanConnected(context.Background()); err == nil {
		t.Fatalf("expected seater error to surface")
	}
}

func TestPopulationRejectsNegativeTarget(t *testing.T) {
	population := NewPopulation(PopulationConfig{})
	if err := population.SetTarget(context.Background(), -1); err == nil {
		t.Fatalf("expected error for negative target")
	}
}
