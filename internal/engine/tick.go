package engine

import (
	"time"

	"starlane/engine/internal/command"
	"starlane/engine/internal/events"
	"starlane/engine/internal/logging"
	"starlane/engine/internal/state"
)

// Step advances the simulation by one fixed timestep. It must only be called
// from the room's loop goroutine; everything in the pipeline runs to
// completion before the next command or tick is processed.
func (e *Engine) Step(dt time.Duration) {
	if e == nil || dt <= 0 {
		return
	}
	if e.world.Phase() != state.PhasePlaying {
		return
	}

	//1.- Advance the tick counter so every mutation below is stamped.
	tick := e.world.AdvanceTick()
	scaled := dt.Seconds() * e.gameSpeed

	//2.- Apply staged commands atomically in arrival order.
	e.applyQueued(tick)

	//3.- Generate armies, honoring supply redirection and garrison caps.
	e.applyGrowth(scaled)

	//4.- Move probes and resolve arrivals against current ownership.
	e.advanceProbes(scaled, tick)

	//5.- Periodically validate supply routes, rerouting or dropping broken ones.
	if e.maintenanceTicks > 0 && tick%e.maintenanceTicks == 0 {
		e.maintainRoutes()
	}

	//6.- Let the bot planner act through the same executor as humans.
	e.runStrategist(tick)

	//7.- Announce fresh eliminations, then settle the win condition.
	e.publishEliminations(tick)
	e.checkWin(tick)
}

func (e *Engine) applyQueued(tick uint64) {
	e.queueMu.Lock()
	staged := e.queue
	e.queue = nil
	e.queueMu.Unlock()

	for _, cmd := range staged {
		receipt, err := e.executor.Apply(cmd)
		e.recordOutcome(Outcome{Command: cmd, Receipt: receipt, Err: err, Tick: tick})
		if err != nil {
			continue
		}
		e.publishCombat(tick, receipt)
	}
}

func (e *Engine) publishCombat(tick uint64, receipt command.Receipt) {
	if receipt.Combat == nil {
		return
	}
	_, _ = e.stream.PublishCombat(tick, events.CombatEvent{
		Attacker:        receipt.Combat.Attacker,
		Defender:        receipt.Combat.Defender,
		From:            receipt.Combat.From,
		To:              receipt.Combat.To,
		Outcome:         string(receipt.Combat.Outcome),
		SurvivingArmies: receipt.Combat.SurvivingArmies,
		ThroneCaptured:  receipt.Eliminated != 0,
	})
}

func (e *Engine) recordOutcome(outcome Outcome) {
	e.queueMu.Lock()
	e.outcomes = append(e.outcomes, outcome)
	e.queueMu.Unlock()
}

func (e *Engine) applyGrowth(elapsedSeconds float64) {
	interval := e.balance.GrowthIntervalSeconds
	if interval <= 0 || elapsedSeconds <= 0 {
		return
	}
	for _, territory := range e.world.Territories.Snapshot() {
		if territory.Owner == state.NeutralOwner {
			continue
		}
		increments := 0
		e.world.Territories.Mutate(territory.ID, func(live *state.Territory) bool {
			live.GrowthProgress += elapsedSeconds
			for live.GrowthProgress >= interval {
				live.GrowthProgress -= interval
				increments++
			}
			return true
		})
		for i := 0; i < increments; i++ {
			e.deliverIncrement(territory.ID, territory.Owner)
		}
	}
}

// deliverIncrement routes one generated army: supply sources feed their route
// destination; either endpoint enforces its garrison cap by overflowing to the
// weakest friendly neighbor.
func (e *Engine) deliverIncrement(territoryID, owner int) {
	if route := e.world.Routes.Get(territoryID); route != nil && route.Active {
		destination := e.world.Territories.Get(route.Destination)
		if destination != nil && destination.Owner == owner {
			e.creditArmy(route.Destination, owner)
			return
		}
		//1.- A broken route falls back to local growth until maintenance runs.
	}
	e.creditArmy(territoryID, owner)
}

// creditArmy adds one army to a territory, spilling over the garrison cap to
// the friendly neighbor with the smallest garrison.
func (e *Engine) creditArmy(territoryID, owner int) {
	territory := e.world.Territories.Get(territoryID)
	if territory == nil {
		return
	}
	if territory.MaxGarrison > 0 && territory.Armies >= territory.MaxGarrison {
		target := 0
		lowest := 0
		for _, neighbor := range e.layout.Neighbors(territoryID) {
			candidate := e.world.Territories.Get(neighbor)
			if candidate == nil || candidate.Owner != owner {
				continue
			}
			if target == 0 || candidate.Armies < lowest {
				target = neighbor
				lowest = candidate.Armies
			}
		}
		if target == 0 {
			//1.- No friendly neighbor: the increment is forfeited.
			return
		}
		e.world.Territories.Mutate(target, func(live *state.Territory) bool {
			live.Armies++
			return true
		})
		return
	}
	e.world.Territories.Mutate(territoryID, func(live *state.Territory) bool {
		live.Armies++
		return true
	})
}

func (e *Engine) advanceProbes(elapsedSeconds float64, tick uint64) {
	arrived := e.world.Probes.Advance(elapsedSeconds)
	for _, probe := range arrived {
		outcome := events.ProbeLost
		target := e.world.Territories.Get(probe.To)
		owner := e.world.Players.Get(probe.Owner)
		//1.- Ownership is checked at arrival, not at launch, to settle races.
		//    An owner eliminated mid-flight forfeits the probe outright.
		if target != nil && target.Owner == state.NeutralOwner && owner != nil && !owner.Eliminated {
			e.executor.TransferOwnership(probe.To, probe.Owner)
			e.world.Territories.Mutate(probe.To, func(live *state.Territory) bool {
				live.Armies = 1
				return true
			})
			outcome = events.ProbeColonized
		}
		e.world.Probes.Remove(probe.ID)
		_, _ = e.stream.PublishProbe(tick, events.ProbeEvent{
			ProbeID: probe.ID,
			Owner:   probe.Owner,
			From:    probe.From,
			To:      probe.To,
			Outcome: outcome,
		})
	}
}

func (e *Engine) maintainRoutes() {
	for _, source := range e.world.Routes.Sources() {
		route := e.world.Routes.Get(source)
		if route == nil {
			continue
		}
		owner := state.NeutralOwner
		if territory := e.world.Territories.Get(source); territory != nil {
			owner = territory.Owner
		}
		if owner != state.NeutralOwner && e.pathIntact(route, owner) {
			continue
		}
		//1.- One reroute attempt through the current owner's holdings.
		if owner != state.NeutralOwner {
			if path := e.executor.OwnedPath(owner, route.Source, route.Destination); path != nil {
				e.world.Routes.Mutate(source, func(live *state.SupplyRoute) bool {
					live.Path = path
					return true
				})
				continue
			}
		}
		e.world.Routes.Remove(source)
	}
}

func (e *Engine) pathIntact(route *state.SupplyRoute, owner int) bool {
	for _, id := range route.Path {
		territory := e.world.Territories.Get(id)
		if territory == nil || territory.Owner != owner {
			return false
		}
	}
	return true
}

func (e *Engine) runStrategist(tick uint64) {
	if e.strategist == nil {
		return
	}
	for _, cmd := range e.strategist.Plan(e.world, tick) {
		receipt, err := e.executor.Apply(cmd)
		if err != nil {
			//1.- Bots simply re-plan on their next wake; no error routing.
			continue
		}
		e.publishCombat(tick, receipt)
	}
}

func (e *Engine) publishEliminations(tick uint64) {
	for _, player := range e.world.Players.Snapshot() {
		if !player.Eliminated {
			continue
		}
		if e.announced == nil {
			e.announced = make(map[int]struct{})
		}
		if _, done := e.announced[player.ID]; done {
			continue
		}
		e.announced[player.ID] = struct{}{}
		_, _ = e.stream.PublishElimination(tick, events.EliminationEvent{Player: player.ID})
		e.log.Info("player eliminated", logging.Int("player", player.ID), logging.Int64("tick", int64(tick)))
	}
}

func (e *Engine) checkWin(tick uint64) {
	active := e.sortedActivePlayers()
	if len(active) > 1 {
		return
	}
	winner := 0
	if len(active) == 1 {
		winner = active[0]
	}
	if !e.world.End(winner) {
		return
	}
	_, _ = e.stream.PublishGameEnd(tick, events.GameEndEvent{Winner: winner})
	e.log.Info("game ended", logging.Int("winner", winner), logging.Int64("tick", int64(tick)))
}
