package engine

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"starlane/engine/internal/combat"
	"starlane/engine/internal/command"
	"starlane/engine/internal/events"
	"starlane/engine/internal/graph"
	"starlane/engine/internal/logging"
	"starlane/engine/internal/state"
)

const (
	// StartingArmies is the garrison placed on every throne at game start.
	StartingArmies = 10
	// defaultQueueLimit bounds staged commands between ticks.
	defaultQueueLimit = 256
	// defaultRouteMaintenanceTicks throttles supply route validation.
	defaultRouteMaintenanceTicks = 20
)

var (
	// ErrQueueFull signals command pressure beyond the staging capacity.
	ErrQueueFull = errors.New("command queue is full")
	// ErrGameOver signals a command submitted after the game ended.
	ErrGameOver = errors.New("game has ended")
	// ErrNoTerritoryLeft signals a roster larger than the map can seed.
	ErrNoTerritoryLeft = errors.New("no neutral territory left for a starting position")
)

// Strategist plans commands for bot players. Planned commands run through the
// same executor as human input.
type Strategist interface {
	Plan(world *state.World, tick uint64) []command.Command
}

// Outcome records the result of one applied command for the issuing client.
type Outcome struct {
	Command command.Command
	Receipt command.Receipt
	Err     error
	Tick    uint64
}

// Engine owns one room's world and is its only mutator. Commands are staged
// in a mutex-guarded queue and drained at the start of each tick; everything
// else happens on the loop goroutine.
type Engine struct {
	world    *state.World
	layout   *graph.Graph
	executor *command.Executor
	balance  combat.Balance
	stream   *events.Stream
	log      *logging.Logger
	rng      *rand.Rand

	gameSpeed        float64
	maintenanceTicks uint64
	queueLimit       int

	strategist Strategist

	queueMu  sync.Mutex
	queue    []command.Command
	outcomes []Outcome

	announced map[int]struct{}
}

// Option customizes engine construction.
type Option func(*Engine)

// WithGameSpeed scales every time-based gameplay threshold.
func WithGameSpeed(multiplier float64) Option {
	return func(e *Engine) {
		if multiplier > 0 {
			e.gameSpeed = multiplier
		}
	}
}

// WithSeed fixes the random source so matches replay deterministically.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewSource(seed))
	}
}

// WithStrategist installs the bot planner invoked during the tick pipeline.
func WithStrategist(strategist Strategist) Option {
	return func(e *Engine) {
		e.strategist = strategist
	}
}

// WithEventStream routes gameplay events to the given stream.
func WithEventStream(stream *events.Stream) Option {
	return func(e *Engine) {
		if stream != nil {
			e.stream = stream
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithRouteMaintenanceInterval sets how many ticks pass between supply checks.
func WithRouteMaintenanceInterval(ticks uint64) Option {
	return func(e *Engine) {
		if ticks > 0 {
			e.maintenanceTicks = ticks
		}
	}
}

// WithQueueLimit bounds the staged command queue.
func WithQueueLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.queueLimit = limit
		}
	}
}

// New builds an engine for the given map and ruleset. The world starts in the
// lobby phase; add players, then call Start.
func New(layout *graph.Graph, balance combat.Balance, opts ...Option) *Engine {
	e := &Engine{
		world:            state.NewWorld(),
		layout:           layout,
		balance:          balance,
		stream:           events.NewStream(events.Config{}),
		log:              logging.NewTestLogger(),
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		gameSpeed:        1,
		maintenanceTicks: defaultRouteMaintenanceTicks,
		queueLimit:       defaultQueueLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	resolver := combat.NewResolver(balance, combat.WithRand(e.rng))
	e.executor = command.NewExecutor(e.world, layout, resolver)

	//1.- Seed every territory as neutral and empty.
	for _, id := range layout.IDs() {
		e.world.Territories.Upsert(&state.Territory{ID: id, Owner: state.NeutralOwner})
	}
	return e
}

// World exposes the underlying state for read-side consumers.
func (e *Engine) World() *state.World {
	if e == nil {
		return nil
	}
	return e.world
}

// Events exposes the room's gameplay event stream.
func (e *Engine) Events() *events.Stream {
	if e == nil {
		return nil
	}
	return e.stream
}

// AddPlayer seats a player during the lobby phase: a throne territory is
// chosen as far as possible from the other thrones and garrisoned.
func (e *Engine) AddPlayer(id int, name, color string, kind state.PlayerKind) error {
	if e == nil {
		return errors.New("nil engine")
	}
	if e.world.Phase() != state.PhaseLobby {
		return errors.New("players can only join in the lobby")
	}
	start, err := e.pickStartingTerritory()
	if err != nil {
		return err
	}
	e.world.Players.Upsert(&state.Player{
		ID:          id,
		Name:        name,
		Color:       color,
		Kind:        kind,
		Territories: map[int]struct{}{},
	})
	e.executor.TransferOwnership(start, id)
	e.world.Territories.Mutate(start, func(territory *state.Territory) bool {
		territory.Armies = StartingArmies
		territory.Throne = true
		return true
	})
	e.log.Info("player seated",
		logging.Int("player", id),
		logging.String("kind", string(kind)),
		logging.Int("throne", start))
	return nil
}

// pickStartingTerritory selects the neutral territory maximizing the minimum
// distance to existing thrones, ties broken by ascending id.
func (e *Engine) pickStartingTerritory() (int, error) {
	thrones := make([]int, 0)
	for _, territory := range e.world.Territories.Snapshot() {
		if territory.Throne {
			thrones = append(thrones, territory.ID)
		}
	}

	bestID := 0
	bestScore := -1.0
	for _, id := range e.layout.IDs() {
		territory := e.world.Territories.Get(id)
		if territory == nil || territory.Owner != state.NeutralOwner {
			continue
		}
		score := 0.0
		if len(thrones) == 0 {
			//1.- The first throne just takes the lowest neutral id.
			score = 1
		} else {
			nearest := -1.0
			for _, throne := range thrones {
				distance := e.layout.Distance(id, throne)
				if nearest < 0 || distance < nearest {
					nearest = distance
				}
			}
			score = nearest
		}
		if score > bestScore {
			bestScore = score
			bestID = id
		}
	}
	if bestID == 0 {
		return 0, ErrNoTerritoryLeft
	}
	return bestID, nil
}

// Start moves the room from lobby to playing.
func (e *Engine) Start() bool {
	if e == nil {
		return false
	}
	started := e.world.Start()
	if started {
		e.log.Info("game started", logging.Int("players", len(e.world.Players.Snapshot())))
	}
	return started
}

// Submit stages a command for the next tick. Safe for concurrent use.
func (e *Engine) Submit(cmd command.Command) error {
	if e == nil {
		return errors.New("nil engine")
	}
	if e.world.Phase() == state.PhaseEnded {
		return ErrGameOver
	}
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if len(e.queue) >= e.queueLimit {
		return ErrQueueFull
	}
	e.queue = append(e.queue, cmd)
	return nil
}

// DrainOutcomes returns and clears the command results recorded since the
// previous drain, in application order.
func (e *Engine) DrainOutcomes() []Outcome {
	if e == nil {
		return nil
	}
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	outcomes := e.outcomes
	e.outcomes = nil
	return outcomes
}

// ConsumeDiff drains the per-tick state changes for the snapshot publisher.
func (e *Engine) ConsumeDiff() state.TickDiff {
	if e == nil {
		return state.TickDiff{}
	}
	return e.world.ConsumeDiff()
}

// Snapshot captures the full world for keyframes and new subscribers.
func (e *Engine) Snapshot() state.Snapshot {
	if e == nil {
		return state.Snapshot{}
	}
	return e.world.Snapshot()
}

// sortedActivePlayers returns non-eliminated player ids ascending.
func (e *Engine) sortedActivePlayers() []int {
	ids := e.world.Players.Active()
	sort.Ints(ids)
	return ids
}
