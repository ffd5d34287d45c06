package main

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"starlane/engine/internal/ai"
	"starlane/engine/internal/combat"
	"starlane/engine/internal/command"
	"starlane/engine/internal/config"
	"starlane/engine/internal/engine"
	"starlane/engine/internal/events"
	"starlane/engine/internal/graph"
	"starlane/engine/internal/logging"
	"starlane/engine/internal/networking"
	"starlane/engine/internal/replay"
	"starlane/engine/internal/simulation"
	"starlane/engine/internal/state"
	"starlane/engine/internal/timesync"
)

var botPalette = []string{"#d64545", "#4587d6", "#45d68a", "#d6c545", "#9a45d6", "#d66f45", "#45c5d6", "#d645a8"}

// serverMessage wraps every outbound websocket payload with a routing type.
type serverMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Room runs one match: a single engine mutated only by its loop goroutine,
// plus the broadcast plumbing shared by every connected client.
type Room struct {
	name      string
	cfg       *config.Config
	log       *logging.Logger
	engine    *engine.Engine
	loop      *simulation.Loop
	monitor   *simulation.TickMonitor
	publisher *networking.SnapshotPublisher
	stream    *events.Stream
	planner   *ai.Planner
	bots      *ai.Population
	tracker   *timesync.Tracker
	recorder  *replay.Writer

	registry         *roomRegistry
	cancel           context.CancelFunc
	lastKeyframeTick uint64

	mu           sync.Mutex
	clients      map[*client]bool
	byPlayer     map[int]*client
	nextPlayerID int
	closed       bool
}

// roomRegistry owns the active rooms and the metrics shared across them.
type roomRegistry struct {
	cfg        *config.Config
	log        *logging.Logger
	snapshots  *networking.PublishMetrics
	broadcasts atomic.Int64

	mu    sync.Mutex
	rooms map[string]*Room
}

func newRoomRegistry(cfg *config.Config, log *logging.Logger) *roomRegistry {
	return &roomRegistry{
		cfg:       cfg,
		log:       log,
		snapshots: networking.NewPublishMetrics(),
		rooms:     make(map[string]*Room),
	}
}

// GetOrCreate returns the named room, spinning up its engine and loop on first use.
func (reg *roomRegistry) GetOrCreate(name string) (*Room, error) {
	if name == "" {
		name = "main"
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok := reg.rooms[name]; ok {
		return room, nil
	}
	room, err := newRoom(name, reg)
	if err != nil {
		return nil, err
	}
	reg.rooms[name] = room
	return room, nil
}

// Stats reports cumulative broadcasts and the active room count.
func (reg *roomRegistry) Stats() (broadcasts, rooms int) {
	reg.mu.Lock()
	rooms = len(reg.rooms)
	reg.mu.Unlock()
	return int(reg.broadcasts.Load()), rooms
}

// SnapshotMetrics exposes the aggregated publisher counters for /metrics.
func (reg *roomRegistry) SnapshotMetrics() *networking.PublishMetrics {
	return reg.snapshots
}

// TickStats aggregates per-room tick monitors into one snapshot for /metrics.
func (reg *roomRegistry) TickStats() simulation.TickMetricsSnapshot {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var merged simulation.TickMetricsSnapshot
	for _, room := range reg.rooms {
		stats := room.monitor.Snapshot()
		merged.Samples += stats.Samples
		if stats.Max > merged.Max {
			merged.Max = stats.Max
		}
		if stats.Last > merged.Last {
			merged.Last = stats.Last
		}
		if stats.Average > merged.Average {
			merged.Average = stats.Average
		}
	}
	return merged
}

// DumpReplay flushes every room recorder and reports the replay root.
func (reg *roomRegistry) DumpReplay(ctx context.Context) (string, error) {
	if reg.cfg.ReplayRoot == "" {
		return "", fmt.Errorf("replay recording disabled")
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, room := range reg.rooms {
		if room.recorder == nil {
			continue
		}
		if err := room.recorder.Flush(); err != nil {
			return "", err
		}
	}
	return reg.cfg.ReplayRoot, nil
}

// Close stops every room loop and releases replay sinks.
func (reg *roomRegistry) Close() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()
	for _, room := range rooms {
		room.Close()
	}
}

// ringLayout builds the default deterministic map: territories on a circle
// with lanes to the one- and two-step neighbours in both directions.
func ringLayout(size int) graph.Spec {
	if size < 4 {
		size = 4
	}
	radius := float64(size) * 2
	spec := graph.Spec{Territories: make([]graph.Territory, 0, size)}
	for i := 0; i < size; i++ {
		angle := 2 * math.Pi * float64(i) / float64(size)
		id := i + 1
		neighbors := make([]int, 0, 4)
		for _, offset := range []int{-2, -1, 1, 2} {
			candidate := wrapID(i+offset, size)
			if candidate == id || containsInt(neighbors, candidate) {
				continue
			}
			neighbors = append(neighbors, candidate)
		}
		spec.Territories = append(spec.Territories, graph.Territory{
			ID:        id,
			X:         radius * math.Cos(angle),
			Y:         radius * math.Sin(angle),
			Neighbors: neighbors,
		})
	}
	return spec
}

func wrapID(i, size int) int {
	return ((i%size)+size)%size + 1
}

func containsInt(values []int, candidate int) bool {
	for _, v := range values {
		if v == candidate {
			return true
		}
	}
	return false
}

func roomSeed(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

func newRoom(name string, reg *roomRegistry) (*Room, error) {
	cfg := reg.cfg
	log := reg.log.With(logging.String("room", name))

	layout, err := graph.New(ringLayout(cfg.MapSize))
	if err != nil {
		return nil, fmt.Errorf("build map: %w", err)
	}
	balance, err := combat.LoadBalance(cfg.BalancePath)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	codec, err := networking.ForName(cfg.SnapshotCodec)
	if err != nil {
		return nil, err
	}

	seed := roomSeed(name)
	stream := events.NewStream(events.Config{})
	planner := ai.NewPlanner(layout, balance, ai.WithPlannerSeed(seed))
	eng := engine.New(layout, balance,
		engine.WithSeed(seed),
		engine.WithGameSpeed(cfg.GameSpeed),
		engine.WithStrategist(planner),
		engine.WithEventStream(stream),
		engine.WithLogger(log),
	)

	room := &Room{
		name:         name,
		cfg:          cfg,
		log:          log,
		engine:       eng,
		monitor:      simulation.NewTickMonitor(),
		publisher:    networking.NewSnapshotPublisher(codec, cfg.KeyframeInterval, networking.WithSharedMetrics(reg.snapshots)),
		stream:       stream,
		planner:      planner,
		tracker:      timesync.NewTracker(nil),
		registry:     reg,
		clients:      make(map[*client]bool),
		byPlayer:     make(map[int]*client),
		nextPlayerID: 1,
	}

	//1.- Seat the configured bot roster before any human joins.
	room.bots = ai.NewPopulation(ai.PopulationConfig{
		TargetPopulation: cfg.AICount,
		Seater:           &roomSeater{room: room},
	})
	if err := room.bots.SetTarget(context.Background(), cfg.AICount); err != nil {
		return nil, fmt.Errorf("seat bots: %w", err)
	}

	//2.- Open the replay sinks when recording is configured.
	if cfg.ReplayRoot != "" {
		recorder, _, err := replay.NewWriter(cfg.ReplayRoot, name, nil)
		if err != nil {
			return nil, fmt.Errorf("open replay: %w", err)
		}
		recorder.SetHeaderMetadata(fmt.Sprintf("%d", seed), cfg.MapSize, replay.RulesetFromBalance(balance))
		room.recorder = recorder
	}

	ctx, cancel := context.WithCancel(context.Background())
	room.cancel = cancel
	room.loop = simulation.NewLoop(float64(cfg.TickRateHz), room.step)
	room.loop.Start(ctx)
	go room.forwardEvents(ctx)
	go room.forwardTimeSync(ctx)

	log.Info("room created",
		logging.Int("map_size", cfg.MapSize),
		logging.Int("bots", cfg.AICount))
	return room, nil
}

// roomSeater adapts lobby bot seating to the population controller.
type roomSeater struct {
	room  *Room
	total int
}

// Scale seats additional bots while the room is still in the lobby phase.
// Seated bots are never retired; a match in progress keeps its roster.
func (s *roomSeater) Scale(_ context.Context, target int) (int, error) {
	for s.total < target {
		if err := s.room.addBot(); err != nil {
			return s.total, err
		}
		s.total++
	}
	return s.total, nil
}

func (r *Room) addBot() error {
	r.mu.Lock()
	id := r.nextPlayerID
	r.nextPlayerID++
	r.mu.Unlock()

	name := fmt.Sprintf("drone-%02d", id)
	color := botPalette[(id-1)%len(botPalette)]
	if err := r.engine.AddPlayer(id, name, color, state.BotPlayer); err != nil {
		return err
	}
	r.planner.AddBot(id)
	return nil
}

// Join seats a human player and returns their id. Fails once the match started
// or when the roster is full.
func (r *Room) Join(c *client, name string) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, fmt.Errorf("room closed")
	}
	if len(r.byPlayer) >= r.cfg.MaxClients {
		r.mu.Unlock()
		return 0, fmt.Errorf("room full")
	}
	id := r.nextPlayerID
	r.nextPlayerID++
	r.mu.Unlock()

	color := botPalette[(id-1)%len(botPalette)]
	if err := r.engine.AddPlayer(id, name, color, state.HumanPlayer); err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.clients[c] = true
	r.byPlayer[id] = c
	r.mu.Unlock()

	_ = r.bots.HumanConnected(context.Background())

	//1.- Hand the newcomer a full keyframe so they can render immediately.
	if frame, err := r.publisher.EncodeKeyframe(r.engine.Snapshot()); err == nil {
		r.sendTo(c, serverMessage{Type: "snapshot", Data: frame})
	}

	//2.- Auto-start once the roster is at capacity.
	if len(r.engine.Snapshot().Players) >= r.cfg.MaxPlayers {
		r.StartMatch()
	}
	return id, nil
}

// Leave detaches a client; their empire keeps fighting under engine control.
func (r *Room) Leave(c *client, playerID int) {
	r.mu.Lock()
	delete(r.clients, c)
	if playerID > 0 {
		delete(r.byPlayer, playerID)
	}
	r.mu.Unlock()
	_ = r.bots.HumanDisconnected(context.Background())
}

// StartMatch flips the room from lobby to playing.
func (r *Room) StartMatch() bool {
	started := r.engine.Start()
	if started {
		r.log.Info("match started")
	}
	return started
}

// Submit queues a validated command for the next tick.
func (r *Room) Submit(cmd command.Command) error {
	return r.engine.Submit(cmd)
}

// step is the loop callback: advance the engine, then fan out the results.
func (r *Room) step(dt time.Duration) {
	started := time.Now()
	r.engine.Step(dt)
	r.monitor.Observe(time.Since(started))
	r.tracker.Advance(time.Duration(float64(dt) * r.cfg.GameSpeed))
	r.dispatchOutcomes()
	r.publish()
}

// dispatchOutcomes routes rejections back to the issuing client only.
func (r *Room) dispatchOutcomes() {
	for _, outcome := range r.engine.DrainOutcomes() {
		if outcome.Err == nil {
			continue
		}
		r.mu.Lock()
		target := r.byPlayer[outcome.Command.Player]
		r.mu.Unlock()
		if target == nil {
			continue
		}
		msg := commandError{
			Command: string(outcome.Command.Type),
			Reason:  string(command.ReasonOf(outcome.Err)),
			Tick:    outcome.Tick,
		}
		if rejection, ok := outcome.Err.(*command.Rejection); ok {
			msg.Detail = rejection.Detail
		}
		r.sendTo(target, serverMessage{Type: "error", Data: msg})
	}
}

// publish encodes the tick's world change as a keyframe or delta and fans it out.
// Only called from the loop goroutine, so lastKeyframeTick needs no lock.
func (r *Room) publish() {
	tick := r.engine.World().Tick()
	diff := r.engine.ConsumeDiff()

	var (
		frame networking.Frame
		err   error
	)
	switch {
	case r.publisher.ShouldKeyframe(tick) && tick != r.lastKeyframeTick:
		frame, err = r.publisher.EncodeKeyframe(r.engine.Snapshot())
		r.lastKeyframeTick = tick
	case diff.Empty():
		return
	default:
		frame, err = r.publisher.EncodeDelta(diff)
	}
	if err != nil {
		r.log.Error("snapshot encode failed", logging.Error(err))
		return
	}

	r.broadcast(serverMessage{Type: "snapshot", Data: frame})

	if r.recorder != nil && frame.Kind == networking.FrameKeyframe {
		_, simulatedMs, _ := r.tracker.TimeSyncSnapshot()
		if err := r.recorder.AppendFrame(tick, simulatedMs, frame.Payload); err != nil {
			r.log.Warn("replay frame append failed", logging.Error(err))
		}
	}
}

// forwardEvents relays the room's event stream to every connected client.
func (r *Room) forwardEvents(ctx context.Context) {
	sub, err := r.stream.Subscribe(ctx, "room:"+r.name, 64)
	if err != nil {
		r.log.Error("event subscription failed", logging.Error(err))
		return
	}
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-sub.Events():
			if !ok {
				return
			}
			r.broadcast(serverMessage{Type: "event", Data: envelope})
			if err := sub.Ack(envelope.Sequence); err != nil {
				r.log.Warn("event ack failed", logging.Error(err))
			}
			if r.recorder != nil {
				payload, err := json.Marshal(envelope)
				if err == nil {
					_, simulatedMs, _ := r.tracker.TimeSyncSnapshot()
					if err := r.recorder.AppendEvent(envelope.Tick, simulatedMs, string(envelope.Kind), payload); err != nil {
						r.log.Warn("replay event append failed", logging.Error(err))
					}
				}
			}
		}
	}
}

// forwardTimeSync pushes periodic clock samples so clients can slew smoothly.
func (r *Room) forwardTimeSync(ctx context.Context) {
	service := timesync.NewService(r.tracker, r.cfg.PingInterval)
	samples := make(chan timesync.Sample, 1)
	go func() {
		_ = service.Stream(ctx, samples)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-samples:
			r.broadcast(serverMessage{Type: "time_sync", Data: sample})
		}
	}
}

// broadcast fans a message out to every client, dropping those that cannot keep up.
func (r *Room) broadcast(msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("broadcast marshal failed", logging.Error(err))
		return
	}
	r.registry.broadcasts.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		select {
		case c.send <- payload:
		default:
			close(c.send)
			delete(r.clients, c)
		}
	}
}

func (r *Room) sendTo(c *client, msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.clients[c] {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// ClientCount reports the attached websocket clients.
func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close stops the loop and flushes the replay bundle.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.loop.Stop()
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			r.log.Warn("replay close failed", logging.Error(err))
		}
	}
}
