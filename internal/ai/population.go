package ai

import (
	"context"
	"errors"
	"sync"
)

// Seater adjusts the number of bot seats in a room's lobby.
type Seater interface {
	// Scale adjusts the number of seated bots and returns the confirmed count.
	Scale(ctx context.Context, target int) (int, error)
}

// PopulationSnapshot exposes the observed participant counts for metrics export.
type PopulationSnapshot struct {
	Humans int
	Bots   int
}

// PopulationConfig configures the bot population controller.
type PopulationConfig struct {
	TargetPopulation int
	Seater           Seater
}

// Population keeps a room filled: bots occupy every configured slot not taken
// by a connected human and yield seats back as humans join.
type Population struct {
	mu sync.Mutex

	humans int
	bots   int
	target int
	seater Seater
}

// NewPopulation constructs a population controller with the supplied configuration.
func NewPopulation(cfg PopulationConfig) *Population {
	population := &Population{seater: cfg.Seater}
	if cfg.TargetPopulation > 0 {
		population.target = cfg.TargetPopulation
	}
	return population
}

// SetTarget updates the desired total number of participants and reconciles.
func (p *Population) SetTarget(ctx context.Context, total int) error {
	if p == nil {
		return errors.New("population controller is nil")
	}
	if total < 0 {
		return errors.New("population must be non-negative")
	}
	p.mu.Lock()
	p.target = total
	targetBots := p.desiredBotsLocked()
	p.mu.Unlock()
	return p.reconcile(ctx, targetBots)
}

// HumanConnected records a new human and retires a bot if the room is full.
func (p *Population) HumanConnected(ctx context.Context) error {
	if p == nil {
		return errors.New("population controller is nil")
	}
	p.mu.Lock()
	p.humans++
	targetBots := p.desiredBotsLocked()
	p.mu.Unlock()
	return p.reconcile(ctx, targetBots)
}

// HumanDisconnected records a departure and backfills the seat with a bot.
func (p *Population) HumanDisconnected(ctx context.Context) error {
	if p == nil {
		return errors.New("population controller is nil")
	}
	p.mu.Lock()
	//1.- Clamp at zero so out-of-order disconnects cannot go negative.
	if p.humans > 0 {
		p.humans--
	}
	targetBots := p.desiredBotsLocked()
	p.mu.Unlock()
	return p.reconcile(ctx, targetBots)
}

// Snapshot returns the most recent human and bot counts without mutating state.
func (p *Population) Snapshot() PopulationSnapshot {
	if p == nil {
		return PopulationSnapshot{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return PopulationSnapshot{Humans: p.humans, Bots: p.bots}
}

func (p *Population) desiredBotsLocked() int {
	desired := p.target - p.humans
	if desired < 0 {
		desired = 0
	}
	return desired
}

func (p *Population) reconcile(ctx context.Context, target int) error {
	if target < 0 {
		target = 0
	}
	confirmed := target
	if p.seater != nil {
		//1.- Ask the seater to adjust the roster and record the confirmed count.
		var err error
		confirmed, err = p.seater.Scale(ctx, target)
		if err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.bots = confirmed
	p.mu.Unlock()
	return nil
}
