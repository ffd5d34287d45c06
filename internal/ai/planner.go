package ai

import (
	"math/rand"
	"sort"

	"starlane/engine/internal/combat"
	"starlane/engine/internal/command"
	"starlane/engine/internal/graph"
	"starlane/engine/internal/state"
)

// Stance is the coarse strategic mode a bot operates in between wakes.
type Stance string

const (
	// StanceExpansion grabs nearby neutral territory.
	StanceExpansion Stance = "expansion"
	// StanceConsolidation shuffles armies from the interior toward borders.
	StanceConsolidation Stance = "consolidation"
	// StanceAggressive presses attacks on weaker enemy neighbors.
	StanceAggressive Stance = "aggressive"
	// StanceDefensive reinforces borders under enemy pressure.
	StanceDefensive Stance = "defensive"
)

const (
	// defaultAttackRatio is the garrison advantage required before attacking.
	defaultAttackRatio = 1.8
	// maxCommandsPerWake bounds how much a bot does in one decision pass.
	maxCommandsPerWake = 4
	// minWakeTicks and wakeJitterTicks randomize per-bot cadence.
	minWakeTicks    = 10
	wakeJitterTicks = 20
	// throttleTerritoryCount slows decisions down on very large maps.
	throttleTerritoryCount = 100
	throttleFactor         = 4
)

type botState struct {
	player   int
	stance   Stance
	nextWake uint64
}

// Planner decides commands for every bot in a room. It implements the
// engine's Strategist contract, so all of its output passes through the same
// validation as human input.
type Planner struct {
	layout      *graph.Graph
	balance     combat.Balance
	rng         *rand.Rand
	attackRatio float64
	bots        map[int]*botState
}

// PlannerOption customizes planner construction.
type PlannerOption func(*Planner)

// WithPlannerSeed fixes the cadence and tie-break randomness.
func WithPlannerSeed(seed int64) PlannerOption {
	return func(p *Planner) {
		p.rng = rand.New(rand.NewSource(seed))
	}
}

// WithAttackRatio overrides the garrison advantage threshold.
func WithAttackRatio(ratio float64) PlannerOption {
	return func(p *Planner) {
		if ratio > 1 {
			p.attackRatio = ratio
		}
	}
}

// NewPlanner builds a planner for the given map and ruleset.
func NewPlanner(layout *graph.Graph, balance combat.Balance, opts ...PlannerOption) *Planner {
	planner := &Planner{
		layout:      layout,
		balance:     balance,
		rng:         rand.New(rand.NewSource(1)),
		attackRatio: defaultAttackRatio,
		bots:        make(map[int]*botState),
	}
	for _, opt := range opts {
		opt(planner)
	}
	return planner
}

// AddBot registers a bot player with a desynchronized first wake.
func (p *Planner) AddBot(playerID int) {
	if p == nil || playerID <= 0 {
		return
	}
	p.bots[playerID] = &botState{
		player:   playerID,
		stance:   StanceExpansion,
		nextWake: uint64(p.rng.Intn(wakeJitterTicks) + 1),
	}
}

// RemoveBot drops a bot from future planning.
func (p *Planner) RemoveBot(playerID int) {
	if p == nil {
		return
	}
	delete(p.bots, playerID)
}

// Stance reports the current strategic mode of the bot, for diagnostics.
func (p *Planner) Stance(playerID int) Stance {
	if p == nil {
		return ""
	}
	if bot, ok := p.bots[playerID]; ok {
		return bot.stance
	}
	return ""
}

// Plan produces commands for every bot due to wake at this tick.
func (p *Planner) Plan(world *state.World, tick uint64) []command.Command {
	if p == nil || world == nil {
		return nil
	}
	ids := make([]int, 0, len(p.bots))
	for id := range p.bots {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var planned []command.Command
	for _, id := range ids {
		bot := p.bots[id]
		if tick < bot.nextWake {
			continue
		}
		player := world.Players.Get(id)
		if player == nil || player.Eliminated {
			continue
		}
		owned := player.TerritoryIDs()
		bot.stance = p.decideStance(world, id, owned)
		planned = append(planned, p.commandsFor(world, bot, owned)...)

		//1.- Randomized cadence, throttled down on very large holdings.
		cadence := uint64(minWakeTicks + p.rng.Intn(wakeJitterTicks))
		if len(owned) > throttleTerritoryCount {
			cadence *= throttleFactor
		}
		bot.nextWake = tick + cadence
	}
	return planned
}

// decideStance inspects borders and garrisons to pick the next mode.
func (p *Planner) decideStance(world *state.World, playerID int, owned []int) Stance {
	neutralBorder := false
	weakEnemyBorder := false
	pressure := false
	for _, id := range owned {
		territory := world.Territories.Get(id)
		if territory == nil {
			continue
		}
		for _, neighborID := range p.layout.Neighbors(id) {
			neighbor := world.Territories.Get(neighborID)
			if neighbor == nil || neighbor.Owner == playerID {
				continue
			}
			if neighbor.Owner == state.NeutralOwner {
				neutralBorder = true
				continue
			}
			if float64(territory.Armies) >= float64(neighbor.Armies)*p.attackRatio {
				weakEnemyBorder = true
			}
			if neighbor.Armies > territory.Armies {
				pressure = true
			}
		}
	}
	//1.- Attack when ahead, expand when neutrals border, defend under pressure.
	switch {
	case weakEnemyBorder:
		return StanceAggressive
	case neutralBorder:
		return StanceExpansion
	case pressure:
		return StanceDefensive
	default:
		return StanceConsolidation
	}
}

// commandsFor emits at most maxCommandsPerWake commands for one bot.
func (p *Planner) commandsFor(world *state.World, bot *botState, owned []int) []command.Command {
	var cmds []command.Command
	budget := 1 + p.rng.Intn(maxCommandsPerWake)

	for _, id := range owned {
		if len(cmds) >= budget {
			break
		}
		territory := world.Territories.Get(id)
		if territory == nil || territory.Armies < p.balance.MinAttackArmies {
			continue
		}
		switch bot.stance {
		case StanceAggressive:
			if target := p.weakestAttackable(world, bot.player, id, territory.Armies, false); target != 0 {
				cmds = append(cmds, command.Command{Type: command.TypeAttack, Player: bot.player, From: id, To: target})
			}
		case StanceExpansion:
			if target := p.weakestAttackable(world, bot.player, id, territory.Armies, true); target != 0 {
				cmds = append(cmds, command.Command{Type: command.TypeAttack, Player: bot.player, From: id, To: target})
			} else if territory.Armies > p.balance.ProbeCost {
				if target := p.nearestNeutral(world, id); target != 0 {
					cmds = append(cmds, command.Command{Type: command.TypeLaunchProbe, Player: bot.player, From: id, To: target})
				}
			}
		case StanceDefensive, StanceConsolidation:
			if target := p.weakestFriendlyBorder(world, bot.player, id); target != 0 && territory.Armies > 2 {
				cmds = append(cmds, command.Command{Type: command.TypeTransfer, Player: bot.player, From: id, To: target})
			}
		}
	}
	return cmds
}

// weakestAttackable finds the softest adjacent target satisfying the attack
// ratio; neutralOnly restricts the scan to uncolonized territory.
func (p *Planner) weakestAttackable(world *state.World, playerID, from, armies int, neutralOnly bool) int {
	target := 0
	lowest := 0
	for _, neighborID := range p.layout.Neighbors(from) {
		neighbor := world.Territories.Get(neighborID)
		if neighbor == nil || neighbor.Owner == playerID {
			continue
		}
		if neutralOnly && neighbor.Owner != state.NeutralOwner {
			continue
		}
		if float64(armies) < float64(neighbor.Armies)*p.attackRatio {
			continue
		}
		if target == 0 || neighbor.Armies < lowest {
			target = neighborID
			lowest = neighbor.Armies
		}
	}
	return target
}

// nearestNeutral picks the closest neutral territory for a probe launch.
func (p *Planner) nearestNeutral(world *state.World, from int) int {
	target := 0
	nearest := 0.0
	for _, territory := range world.Territories.Snapshot() {
		if territory.Owner != state.NeutralOwner || territory.ID == from {
			continue
		}
		distance := p.layout.Distance(from, territory.ID)
		if target == 0 || distance < nearest {
			target = territory.ID
			nearest = distance
		}
	}
	return target
}

// weakestFriendlyBorder finds an adjacent friendly territory that touches an
// enemy and has fewer armies than the source, to receive reinforcements.
func (p *Planner) weakestFriendlyBorder(world *state.World, playerID, from int) int {
	source := world.Territories.Get(from)
	if source == nil {
		return 0
	}
	target := 0
	lowest := 0
	for _, neighborID := range p.layout.Neighbors(from) {
		neighbor := world.Territories.Get(neighborID)
		if neighbor == nil || neighbor.Owner != playerID {
			continue
		}
		if neighbor.Armies >= source.Armies {
			continue
		}
		if !p.touchesHostile(world, playerID, neighborID) {
			continue
		}
		if target == 0 || neighbor.Armies < lowest {
			target = neighborID
			lowest = neighbor.Armies
		}
	}
	return target
}

func (p *Planner) touchesHostile(world *state.World, playerID, id int) bool {
	for _, neighborID := range p.layout.Neighbors(id) {
		neighbor := world.Territories.Get(neighborID)
		if neighbor != nil && neighbor.Owner != playerID {
			return true
		}
	}
	return false
}
