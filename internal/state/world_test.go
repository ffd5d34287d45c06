package state

import "testing"

func TestWorldPhaseIsOneWay(t *testing.T) {
	world := NewWorld()
	if world.Phase() != PhaseLobby {
		t.Fatalf("expected new world in lobby, got %s", world.Phase())
	}
	if !world.Start() {
		t.Fatalf("expected lobby -> playing transition to succeed")
	}
	if world.Start() {
		t.Fatalf("expected second start to be rejected")
	}
	if !world.End(3) {
		t.Fatalf("expected playing -> ended transition to succeed")
	}
	if world.Winner() != 3 {
		t.Fatalf("expected winner 3, got %d", world.Winner())
	}
	if world.End(5) {
		t.Fatalf("expected ended world to reject another end")
	}
	if world.Winner() != 3 {
		t.Fatalf("winner must not change after the game ends")
	}
}

func TestWorldEndRequiresPlaying(t *testing.T) {
	world := NewWorld()
	if world.End(1) {
		t.Fatalf("expected end from lobby to be rejected")
	}
}

func TestWorldConsumeDiffAggregates(t *testing.T) {
	world := NewWorld()
	world.Start()
	world.AdvanceTick()
	world.Territories.Upsert(&Territory{ID: 1, Owner: 1, Armies: 2})
	world.Players.Upsert(&Player{ID: 1, Name: "ada", Kind: HumanPlayer})
	world.Probes.Upsert(&Probe{ID: "p-1", Owner: 1, From: 1, To: 2, Duration: 4})
	world.Routes.Upsert(&SupplyRoute{Source: 1, Destination: 2, Path: []int{1, 2}, Active: true})

	diff := world.ConsumeDiff()
	if diff.Tick != 1 || diff.Phase != PhasePlaying {
		t.Fatalf("unexpected diff header: %+v", diff)
	}
	if len(diff.Territories.Updated) != 1 || len(diff.Players.Updated) != 1 ||
		len(diff.Probes.Updated) != 1 || len(diff.Routes.Updated) != 1 {
		t.Fatalf("expected one update per store, got %+v", diff)
	}
	if !world.ConsumeDiff().Empty() {
		t.Fatalf("expected empty diff after drain")
	}
}

func TestWorldTotalArmies(t *testing.T) {
	world := NewWorld()
	world.Territories.Upsert(&Territory{ID: 1, Armies: 7})
	world.Territories.Upsert(&Territory{ID: 2, Armies: 3})
	if total := world.TotalArmies(); total != 10 {
		t.Fatalf("expected 10 armies, got %d", total)
	}
}

func TestProbeStoreAdvance(t *testing.T) {
	store := NewProbeStore()
	store.Upsert(&Probe{ID: "b", Owner: 1, From: 1, To: 3, Duration: 2})
	store.Upsert(&Probe{ID: "a", Owner: 1, From: 1, To: 2, Duration: 10})

	if arrived := store.Advance(1); len(arrived) != 0 {
		t.Fatalf("expected no arrivals after 1s, got %v", arrived)
	}
	arrived := store.Advance(1)
	if len(arrived) != 1 || arrived[0].ID != "b" {
		t.Fatalf("expected probe b to arrive, got %v", arrived)
	}
	if arrived[0].Progress != 1 {
		t.Fatalf("expected arrival progress clamped to 1, got %v", arrived[0].Progress)
	}

	//1.- Arrived probes stay stored until the engine resolves the landing.
	if store.Get("b") == nil {
		t.Fatalf("expected arrived probe to remain until removed")
	}
	store.Remove("b")
	diff := store.ConsumeDiff()
	if len(diff.Removed) != 1 || diff.Removed[0] != "b" {
		t.Fatalf("expected removal of b in diff, got %v", diff.Removed)
	}
}

func TestRouteStoreReplacesSameSource(t *testing.T) {
	store := NewRouteStore()
	store.Upsert(&SupplyRoute{Source: 1, Destination: 3, Path: []int{1, 2, 3}, Active: true})
	store.Upsert(&SupplyRoute{Source: 1, Destination: 4, Path: []int{1, 4}, Active: true})

	route := store.Get(1)
	if route == nil || route.Destination != 4 {
		t.Fatalf("expected replacement route to 4, got %+v", route)
	}
	if sources := store.Sources(); len(sources) != 1 {
		t.Fatalf("expected a single route source, got %v", sources)
	}
}

func TestRouteStoreRejectsShortPath(t *testing.T) {
	store := NewRouteStore()
	store.Upsert(&SupplyRoute{Source: 1, Destination: 1, Path: []int{1}})
	if route := store.Get(1); route != nil {
		t.Fatalf("expected single-node path to be rejected, got %+v", route)
	}
}

func TestPlayerStoreActive(t *testing.T) {
	store := NewPlayerStore()
	store.Upsert(&Player{ID: 2, Name: "bot-2", Kind: BotPlayer})
	store.Upsert(&Player{ID: 1, Name: "ada", Kind: HumanPlayer})
	store.Mutate(2, func(player *Player) bool {
		player.Eliminated = true
		return true
	})

	active := store.Active()
	if len(active) != 1 || active[0] != 1 {
		t.Fatalf("expected only player 1 active, got %v", active)
	}
}

func TestPlayerCloneIndependentTerritorySet(t *testing.T) {
	store := NewPlayerStore()
	store.Upsert(&Player{ID: 1, Name: "ada", Kind: HumanPlayer, Territories: map[int]struct{}{1: {}}})

	clone := store.Get(1)
	clone.Territories[9] = struct{}{}
	if got := store.Get(1); got.TerritoryCount() != 1 {
		t.Fatalf("expected stored territory set untouched, got %v", got.TerritoryIDs())
	}
}
