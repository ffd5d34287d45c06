package command

import (
	"math"

	"github.com/google/uuid"

	"starlane/engine/internal/combat"
	"starlane/engine/internal/graph"
	"starlane/engine/internal/state"
)

// Default and allowed attack/transfer commitment fractions.
const (
	DefaultFraction = 0.5
	probeFraction   = 0.25
	allInFraction   = 1.0
)

// CombatReport mirrors a resolved battle back to the issuing client.
type CombatReport struct {
	Attacker        int            `json:"attacker"`
	Defender        int            `json:"defender"`
	From            int            `json:"from"`
	To              int            `json:"to"`
	Outcome         combat.Outcome `json:"outcome"`
	SurvivingArmies int            `json:"surviving_armies"`
}

// Receipt describes the observable effects of an accepted command.
type Receipt struct {
	Combat *CombatReport
	// Eliminated is the player removed by an empire collapse, zero otherwise.
	Eliminated int
	// ProbeID identifies a newly launched probe.
	ProbeID string
}

// Executor validates and applies commands against the room's world. It is the
// only component allowed to change territory ownership, so the player
// territory sets can never diverge from the ownership column.
type Executor struct {
	world    *state.World
	layout   *graph.Graph
	resolver *combat.Resolver
	probeID  func() string
}

// ExecutorOption customizes executor construction.
type ExecutorOption func(*Executor)

// WithProbeID replaces the probe identifier generator, used by tests.
func WithProbeID(gen func() string) ExecutorOption {
	return func(x *Executor) {
		if gen != nil {
			x.probeID = gen
		}
	}
}

// NewExecutor wires the executor to the room's world, layout and resolver.
func NewExecutor(world *state.World, layout *graph.Graph, resolver *combat.Resolver, opts ...ExecutorOption) *Executor {
	executor := &Executor{
		world:    world,
		layout:   layout,
		resolver: resolver,
		probeID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// Apply validates the command fully before mutating anything, so a returned
// rejection guarantees an untouched world.
func (x *Executor) Apply(cmd Command) (Receipt, error) {
	if x == nil || x.world == nil {
		return Receipt{}, reject(InvalidTerritory, "executor not initialized")
	}
	switch cmd.Type {
	case TypeAttack:
		return x.attack(cmd)
	case TypeTransfer:
		return x.transfer(cmd)
	case TypeLaunchProbe:
		return x.launchProbe(cmd)
	case TypeCreateSupplyRoute:
		return x.createSupplyRoute(cmd)
	case TypeCancelSupplyRoute:
		return x.cancelSupplyRoute(cmd)
	default:
		return Receipt{}, reject(InvalidTerritory, "unknown command type %q", cmd.Type)
	}
}

func (x *Executor) attack(cmd Command) (Receipt, error) {
	balance := x.resolver.Balance()

	//1.- Existence before anything else.
	from := x.world.Territories.Get(cmd.From)
	if from == nil {
		return Receipt{}, reject(InvalidTerritory, "territory %d does not exist", cmd.From)
	}
	to := x.world.Territories.Get(cmd.To)
	if to == nil {
		return Receipt{}, reject(InvalidTerritory, "territory %d does not exist", cmd.To)
	}
	//2.- Ownership, then adjacency, then resources, then the semantic rule.
	if from.Owner != cmd.Player {
		return Receipt{}, reject(NotOwner, "territory %d is not owned by player %d", cmd.From, cmd.Player)
	}
	if !x.layout.Adjacent(cmd.From, cmd.To) {
		return Receipt{}, reject(NotAdjacent, "no lane joins %d and %d", cmd.From, cmd.To)
	}
	if from.Armies < balance.MinAttackArmies {
		return Receipt{}, reject(InsufficientArmies, "territory %d needs %d armies to attack", cmd.From, balance.MinAttackArmies)
	}
	if to.Owner == cmd.Player {
		return Receipt{}, reject(SelfTarget, "territory %d already belongs to player %d", cmd.To, cmd.Player)
	}
	fraction, err := attackFraction(cmd.Fraction)
	if err != nil {
		return Receipt{}, err
	}
	committed := int(math.Floor(fraction * float64(from.Armies-1)))
	if committed < 1 {
		return Receipt{}, reject(InsufficientArmies, "commitment from territory %d rounds to zero", cmd.From)
	}

	//3.- Resolve the battle, then apply both sides atomically.
	result := x.resolver.Resolve(committed, to.Armies)
	tick := x.world.Tick()
	defender := to.Owner
	throne := to.Throne

	x.world.Territories.Mutate(cmd.From, func(territory *state.Territory) bool {
		territory.Armies = 1
		territory.LastCombatTick = tick
		return true
	})

	receipt := Receipt{Combat: &CombatReport{
		Attacker: cmd.Player,
		Defender: defender,
		From:     cmd.From,
		To:       cmd.To,
		Outcome:  result.Outcome,
	}}

	if result.Outcome == combat.AttackerVictory {
		x.TransferOwnership(cmd.To, cmd.Player)
		x.world.Territories.Mutate(cmd.To, func(territory *state.Territory) bool {
			territory.Armies = result.SurvivingAttackers
			territory.LastCombatTick = tick
			if territory.Throne {
				territory.Throne = false
			}
			return true
		})
		receipt.Combat.SurvivingArmies = result.SurvivingAttackers
		if throne && defender != state.NeutralOwner {
			//4.- Capturing a throne collapses the remaining empire.
			x.collapseEmpire(defender, cmd.Player, tick)
			receipt.Eliminated = defender
		} else {
			x.checkElimination(defender)
		}
	} else {
		x.world.Territories.Mutate(cmd.To, func(territory *state.Territory) bool {
			territory.Armies = result.SurvivingDefenders
			territory.LastCombatTick = tick
			return true
		})
		receipt.Combat.SurvivingArmies = result.SurvivingDefenders
	}
	return receipt, nil
}

func (x *Executor) transfer(cmd Command) (Receipt, error) {
	from := x.world.Territories.Get(cmd.From)
	if from == nil {
		return Receipt{}, reject(InvalidTerritory, "territory %d does not exist", cmd.From)
	}
	to := x.world.Territories.Get(cmd.To)
	if to == nil {
		return Receipt{}, reject(InvalidTerritory, "territory %d does not exist", cmd.To)
	}
	if from.Owner != cmd.Player {
		return Receipt{}, reject(NotOwner, "territory %d is not owned by player %d", cmd.From, cmd.Player)
	}
	if to.Owner != cmd.Player {
		return Receipt{}, reject(NotOwner, "territory %d is not owned by player %d", cmd.To, cmd.Player)
	}
	if !x.layout.Adjacent(cmd.From, cmd.To) {
		return Receipt{}, reject(NotAdjacent, "no lane joins %d and %d", cmd.From, cmd.To)
	}
	if from.Armies <= 1 {
		return Receipt{}, reject(InsufficientArmies, "territory %d has no spare armies", cmd.From)
	}
	fraction := cmd.Fraction
	if fraction == 0 {
		fraction = DefaultFraction
	}
	if fraction <= 0 || fraction > 1 {
		return Receipt{}, reject(InsufficientArmies, "transfer fraction %v out of range", cmd.Fraction)
	}
	moved := int(math.Floor(float64(from.Armies) * fraction))
	//1.- Cap the move so the source keeps its minimum garrison of one.
	if moved > from.Armies-1 {
		moved = from.Armies - 1
	}
	if moved < 1 {
		return Receipt{}, reject(InsufficientArmies, "transfer from territory %d rounds to zero", cmd.From)
	}

	x.world.Territories.Mutate(cmd.From, func(territory *state.Territory) bool {
		territory.Armies -= moved
		return true
	})
	x.world.Territories.Mutate(cmd.To, func(territory *state.Territory) bool {
		territory.Armies += moved
		return true
	})
	return Receipt{}, nil
}

func (x *Executor) launchProbe(cmd Command) (Receipt, error) {
	balance := x.resolver.Balance()

	from := x.world.Territories.Get(cmd.From)
	if from == nil {
		return Receipt{}, reject(InvalidTerritory, "territory %d does not exist", cmd.From)
	}
	to := x.world.Territories.Get(cmd.To)
	if to == nil {
		return Receipt{}, reject(InvalidTerritory, "territory %d does not exist", cmd.To)
	}
	if from.Owner != cmd.Player {
		return Receipt{}, reject(NotOwner, "territory %d is not owned by player %d", cmd.From, cmd.Player)
	}
	if to.Owner == cmd.Player {
		return Receipt{}, reject(SelfTarget, "territory %d already belongs to player %d", cmd.To, cmd.Player)
	}
	if to.Owner != state.NeutralOwner {
		return Receipt{}, reject(AlreadyExists, "territory %d is already colonized", cmd.To)
	}
	if from.Armies < balance.ProbeCost {
		return Receipt{}, reject(InsufficientArmies, "territory %d cannot cover probe cost %d", cmd.From, balance.ProbeCost)
	}

	//1.- Transit time scales with distance, stretched by hazards on the segment.
	distance := x.layout.Distance(cmd.From, cmd.To)
	duration := distance / balance.ProbeSpeed * x.layout.TransitFactor(cmd.From, cmd.To)
	if duration <= 0 {
		duration = 1 / balance.ProbeSpeed
	}

	x.world.Territories.Mutate(cmd.From, func(territory *state.Territory) bool {
		territory.Armies -= balance.ProbeCost
		return true
	})
	probe := &state.Probe{
		ID:       x.probeID(),
		Owner:    cmd.Player,
		From:     cmd.From,
		To:       cmd.To,
		Duration: duration,
	}
	x.world.Probes.Upsert(probe)
	return Receipt{ProbeID: probe.ID}, nil
}

func (x *Executor) createSupplyRoute(cmd Command) (Receipt, error) {
	from := x.world.Territories.Get(cmd.From)
	if from == nil {
		return Receipt{}, reject(InvalidTerritory, "territory %d does not exist", cmd.From)
	}
	to := x.world.Territories.Get(cmd.To)
	if to == nil {
		return Receipt{}, reject(InvalidTerritory, "territory %d does not exist", cmd.To)
	}
	if from.Owner != cmd.Player {
		return Receipt{}, reject(NotOwner, "territory %d is not owned by player %d", cmd.From, cmd.Player)
	}
	if to.Owner != cmd.Player {
		return Receipt{}, reject(NotOwner, "territory %d is not owned by player %d", cmd.To, cmd.Player)
	}
	if cmd.From == cmd.To {
		return Receipt{}, reject(SelfTarget, "route endpoints must differ")
	}
	if existing := x.world.Routes.Get(cmd.From); existing != nil && existing.Destination == cmd.To {
		return Receipt{}, reject(AlreadyExists, "route %d -> %d already exists", cmd.From, cmd.To)
	}
	//1.- The route must traverse the issuing player's own territory only.
	path := x.OwnedPath(cmd.Player, cmd.From, cmd.To)
	if path == nil {
		return Receipt{}, reject(NoPath, "no owned route joins %d and %d", cmd.From, cmd.To)
	}

	x.world.Routes.Upsert(&state.SupplyRoute{
		Source:      cmd.From,
		Destination: cmd.To,
		Path:        path,
		Active:      true,
	})
	return Receipt{}, nil
}

func (x *Executor) cancelSupplyRoute(cmd Command) (Receipt, error) {
	territory := x.world.Territories.Get(cmd.From)
	if territory == nil {
		return Receipt{}, reject(InvalidTerritory, "territory %d does not exist", cmd.From)
	}
	if territory.Owner != cmd.Player {
		return Receipt{}, reject(NotOwner, "territory %d is not owned by player %d", cmd.From, cmd.Player)
	}
	//1.- Cancelling a territory without a route is a harmless no-op.
	x.world.Routes.Remove(cmd.From)
	return Receipt{}, nil
}

// OwnedPath finds the shortest route between two territories through the
// player's holdings, deterministic under equal lengths.
func (x *Executor) OwnedPath(player, from, to int) []int {
	if x == nil {
		return nil
	}
	return x.layout.Path(from, to, func(id int) bool {
		territory := x.world.Territories.Get(id)
		return territory != nil && territory.Owner == player
	})
}

// TransferOwnership reassigns a territory and keeps both players' territory
// sets in lockstep. Every ownership change in the engine funnels through here.
func (x *Executor) TransferOwnership(territoryID, newOwner int) {
	if x == nil || x.world == nil {
		return
	}
	var previous int
	x.world.Territories.Mutate(territoryID, func(territory *state.Territory) bool {
		previous = territory.Owner
		if previous == newOwner {
			return false
		}
		territory.Owner = newOwner
		return true
	})
	if previous == newOwner {
		return
	}
	if previous != state.NeutralOwner {
		x.world.Players.Mutate(previous, func(player *state.Player) bool {
			delete(player.Territories, territoryID)
			return true
		})
	}
	if newOwner != state.NeutralOwner {
		x.world.Players.Mutate(newOwner, func(player *state.Player) bool {
			if player.Territories == nil {
				player.Territories = make(map[int]struct{})
			}
			player.Territories[territoryID] = struct{}{}
			return true
		})
	}
}

// CheckElimination flags the player as eliminated once their last territory is
// gone. Probes in flight do not keep a player alive.
func (x *Executor) checkElimination(playerID int) {
	if playerID == state.NeutralOwner {
		return
	}
	player := x.world.Players.Get(playerID)
	if player == nil || player.Eliminated || player.TerritoryCount() > 0 {
		return
	}
	x.world.Players.Mutate(playerID, func(p *state.Player) bool {
		p.Eliminated = true
		return true
	})
}

// MarkEliminated exposes the elimination check for scheduler-driven paths.
func (x *Executor) MarkEliminated(playerID int) {
	if x == nil {
		return
	}
	x.checkElimination(playerID)
}

func (x *Executor) collapseEmpire(defeated, conqueror int, tick uint64) {
	//1.- Hand every remaining holding of the defeated player to the conqueror.
	for _, id := range x.world.Territories.OwnedBy(defeated) {
		x.TransferOwnership(id, conqueror)
		x.world.Territories.Mutate(id, func(territory *state.Territory) bool {
			territory.LastCombatTick = tick
			return true
		})
	}
	x.world.Players.Mutate(defeated, func(player *state.Player) bool {
		if player.Eliminated {
			return false
		}
		player.Eliminated = true
		return true
	})
}

func attackFraction(fraction float64) (float64, error) {
	switch fraction {
	case 0:
		return DefaultFraction, nil
	case probeFraction, DefaultFraction, allInFraction:
		return fraction, nil
	default:
		return 0, reject(InsufficientArmies, "attack fraction %v is not a recognized commitment", fraction)
	}
}
