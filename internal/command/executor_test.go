package command

import (
	"reflect"
	"testing"

	"starlane/engine/internal/combat"
	"starlane/engine/internal/graph"
	"starlane/engine/internal/state"
)

// testWorld builds a 1-2-3-4 line map with player 1 holding 1 and 2, player 2
// holding 3, and territory 4 neutral.
func testWorld(t *testing.T, opts ...combat.Option) (*state.World, *Executor) {
	t.Helper()
	layout, err := graph.New(graph.Spec{Territories: []graph.Territory{
		{ID: 1, X: 0, Y: 0, Neighbors: []int{2}},
		{ID: 2, X: 5, Y: 0, Neighbors: []int{1, 3}},
		{ID: 3, X: 10, Y: 0, Neighbors: []int{2, 4}},
		{ID: 4, X: 15, Y: 0, Neighbors: []int{3}},
	}})
	if err != nil {
		t.Fatalf("graph.New returned error: %v", err)
	}

	world := state.NewWorld()
	world.Territories.Upsert(&state.Territory{ID: 1, Owner: 1, Armies: 10})
	world.Territories.Upsert(&state.Territory{ID: 2, Owner: 1, Armies: 5})
	world.Territories.Upsert(&state.Territory{ID: 3, Owner: 2, Armies: 3})
	world.Territories.Upsert(&state.Territory{ID: 4, Owner: state.NeutralOwner, Armies: 0})
	world.Players.Upsert(&state.Player{ID: 1, Name: "ada", Kind: state.HumanPlayer,
		Territories: map[int]struct{}{1: {}, 2: {}}})
	world.Players.Upsert(&state.Player{ID: 2, Name: "bot-2", Kind: state.BotPlayer,
		Territories: map[int]struct{}{3: {}}})
	world.Start()

	resolver := combat.NewResolver(combat.DefaultBalance(), opts...)
	counter := 0
	executor := NewExecutor(world, layout, resolver, WithProbeID(func() string {
		counter++
		return "probe-1"
	}))
	return world, executor
}

// favorableRolls always maxes the attack roll and zeroes the defense roll.
func favorableRolls() combat.Option {
	rolls := []float64{1, 0}
	index := 0
	return combat.WithRoll(func() float64 {
		value := rolls[index%len(rolls)]
		index++
		return value
	})
}

func hostileRolls() combat.Option {
	return combat.WithRoll(func() float64 { return 0 })
}

func TestAttackMeasuredCommitmentCapture(t *testing.T) {
	world, executor := testWorld(t, favorableRolls())
	//1.- 10 armies at default commitment send floor(0.5*9)=4 against 3.
	world.Territories.Mutate(2, func(territory *state.Territory) bool {
		territory.Armies = 10
		return true
	})

	receipt, err := executor.Apply(Command{Type: TypeAttack, Player: 1, From: 2, To: 3})
	if err != nil {
		t.Fatalf("attack rejected: %v", err)
	}
	if receipt.Combat == nil || receipt.Combat.Outcome != combat.AttackerVictory {
		t.Fatalf("expected victory, got %+v", receipt.Combat)
	}
	if receipt.Combat.SurvivingArmies != 3 {
		t.Fatalf("expected ceil(4*0.7)=3 survivors, got %d", receipt.Combat.SurvivingArmies)
	}
	captured := world.Territories.Get(3)
	if captured.Owner != 1 || captured.Armies != 3 {
		t.Fatalf("expected territory 3 captured with 3 armies, got %+v", captured)
	}
	if source := world.Territories.Get(2); source.Armies != 1 {
		t.Fatalf("expected source left with residual 1, got %d", source.Armies)
	}
	//2.- Ownership sets must follow the capture.
	if world.Players.Get(1).TerritoryCount() != 3 {
		t.Fatalf("expected player 1 to hold 3 territories")
	}
	if world.Players.Get(2).TerritoryCount() != 0 {
		t.Fatalf("expected player 2 to hold nothing")
	}
	if !world.Players.Get(2).Eliminated {
		t.Fatalf("expected player 2 eliminated after losing the last territory")
	}
}

func TestAttackDefenderHolds(t *testing.T) {
	world, executor := testWorld(t, hostileRolls())

	receipt, err := executor.Apply(Command{Type: TypeAttack, Player: 1, From: 2, To: 3})
	if err != nil {
		t.Fatalf("attack rejected: %v", err)
	}
	if receipt.Combat.Outcome != combat.DefenderHolds {
		t.Fatalf("expected defender to hold, got %s", receipt.Combat.Outcome)
	}
	target := world.Territories.Get(3)
	if target.Owner != 2 {
		t.Fatalf("ownership must not change on defeat")
	}
	if target.Armies != 3 {
		t.Fatalf("expected ceil(3*0.8)=3 defenders, got %d", target.Armies)
	}
	if source := world.Territories.Get(2); source.Armies != 1 {
		t.Fatalf("expected source residual 1 after a failed attack, got %d", source.Armies)
	}
}

func TestAttackConservesTotalArmies(t *testing.T) {
	world, executor := testWorld(t, favorableRolls())
	before := world.TotalArmies()
	if _, err := executor.Apply(Command{Type: TypeAttack, Player: 1, From: 2, To: 3}); err != nil {
		t.Fatalf("attack rejected: %v", err)
	}
	if after := world.TotalArmies(); after > before {
		t.Fatalf("attack increased armies from %d to %d", before, after)
	}
}

func TestAttackRejections(t *testing.T) {
	cases := []struct {
		name   string
		cmd    Command
		reason Reason
	}{
		{"missing source", Command{Type: TypeAttack, Player: 1, From: 99, To: 3}, InvalidTerritory},
		{"missing target", Command{Type: TypeAttack, Player: 1, From: 2, To: 99}, InvalidTerritory},
		{"not owner", Command{Type: TypeAttack, Player: 2, From: 2, To: 3}, NotOwner},
		{"not adjacent", Command{Type: TypeAttack, Player: 1, From: 1, To: 3}, NotAdjacent},
		{"own target", Command{Type: TypeAttack, Player: 1, From: 1, To: 2}, SelfTarget},
		{"bad fraction", Command{Type: TypeAttack, Player: 1, From: 2, To: 3, Fraction: 0.33}, InsufficientArmies},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			world, executor := testWorld(t)
			world.ConsumeDiff()
			before := world.Snapshot()

			_, err := executor.Apply(tc.cmd)
			if ReasonOf(err) != tc.reason {
				t.Fatalf("expected reason %s, got %v", tc.reason, err)
			}
			//1.- Rejected commands must leave the world byte-identical.
			if !reflect.DeepEqual(before, world.Snapshot()) {
				t.Fatalf("rejected command mutated the world")
			}
			if !world.ConsumeDiff().Empty() {
				t.Fatalf("rejected command produced a diff")
			}
		})
	}
}

func TestAttackBelowMinimumGarrison(t *testing.T) {
	world, executor := testWorld(t)
	world.Territories.Mutate(2, func(territory *state.Territory) bool {
		territory.Armies = 1
		return true
	})
	_, err := executor.Apply(Command{Type: TypeAttack, Player: 1, From: 2, To: 3})
	if ReasonOf(err) != InsufficientArmies {
		t.Fatalf("expected InsufficientArmies, got %v", err)
	}
}

func TestThroneCaptureCollapsesEmpire(t *testing.T) {
	world, executor := testWorld(t, favorableRolls())
	//1.- Give player 2 a throne at 3 and an outlying holding at 4.
	world.Territories.Mutate(3, func(territory *state.Territory) bool {
		territory.Throne = true
		return true
	})
	world.Territories.Mutate(4, func(territory *state.Territory) bool {
		territory.Owner = 2
		territory.Armies = 6
		return true
	})
	world.Players.Mutate(2, func(player *state.Player) bool {
		player.Territories[4] = struct{}{}
		return true
	})

	receipt, err := executor.Apply(Command{Type: TypeAttack, Player: 1, From: 2, To: 3})
	if err != nil {
		t.Fatalf("attack rejected: %v", err)
	}
	if receipt.Eliminated != 2 {
		t.Fatalf("expected player 2 eliminated by collapse, got %d", receipt.Eliminated)
	}
	if world.Territories.Get(3).Throne {
		t.Fatalf("captured throne flag must be cleared")
	}
	if world.Territories.Get(4).Owner != 1 {
		t.Fatalf("collapse must transfer every remaining holding")
	}
	loser := world.Players.Get(2)
	if !loser.Eliminated || loser.TerritoryCount() != 0 {
		t.Fatalf("expected eliminated player with no territory, got %+v", loser)
	}
	if got := world.Players.Get(1).TerritoryIDs(); !reflect.DeepEqual(got, []int{1, 2, 3, 4}) {
		t.Fatalf("expected player 1 to hold the whole map, got %v", got)
	}
}

func TestTransferMovesHalfAndLeavesGarrison(t *testing.T) {
	world, executor := testWorld(t)
	if _, err := executor.Apply(Command{Type: TypeTransfer, Player: 1, From: 1, To: 2}); err != nil {
		t.Fatalf("transfer rejected: %v", err)
	}
	if got := world.Territories.Get(1).Armies; got != 5 {
		t.Fatalf("expected 10-floor(10*0.5)=5 at source, got %d", got)
	}
	if got := world.Territories.Get(2).Armies; got != 10 {
		t.Fatalf("expected 5+5=10 at destination, got %d", got)
	}
}

func TestTransferFullFractionKeepsOne(t *testing.T) {
	world, executor := testWorld(t)
	if _, err := executor.Apply(Command{Type: TypeTransfer, Player: 1, From: 1, To: 2, Fraction: 1}); err != nil {
		t.Fatalf("transfer rejected: %v", err)
	}
	if got := world.Territories.Get(1).Armies; got != 1 {
		t.Fatalf("expected source capped at 1, got %d", got)
	}
}

func TestTransferRejectsEnemyDestination(t *testing.T) {
	_, executor := testWorld(t)
	_, err := executor.Apply(Command{Type: TypeTransfer, Player: 1, From: 2, To: 3})
	if ReasonOf(err) != NotOwner {
		t.Fatalf("expected NotOwner, got %v", err)
	}
}

func TestLaunchProbeDeductsCost(t *testing.T) {
	world, executor := testWorld(t)
	receipt, err := executor.Apply(Command{Type: TypeLaunchProbe, Player: 1, From: 2, To: 4})
	if err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if receipt.ProbeID == "" {
		t.Fatalf("expected probe id in receipt")
	}
	if got := world.Territories.Get(2).Armies; got != 2 {
		t.Fatalf("expected 5-3=2 armies after probe cost, got %d", got)
	}
	probe := world.Probes.Get(receipt.ProbeID)
	if probe == nil || probe.To != 4 || probe.Owner != 1 {
		t.Fatalf("unexpected probe record: %+v", probe)
	}
	//1.- Distance 2 -> 4 is 10 units at speed 5: two seconds of transit.
	if probe.Duration != 2 {
		t.Fatalf("expected duration 2s, got %v", probe.Duration)
	}
}

func TestLaunchProbeInsufficientCost(t *testing.T) {
	world, executor := testWorld(t)
	//1.- One army short of the cost rejects and deducts nothing.
	world.Territories.Mutate(2, func(territory *state.Territory) bool {
		territory.Armies = combat.DefaultBalance().ProbeCost - 1
		return true
	})
	world.ConsumeDiff()
	before := world.Snapshot()

	_, err := executor.Apply(Command{Type: TypeLaunchProbe, Player: 1, From: 2, To: 4})
	if ReasonOf(err) != InsufficientArmies {
		t.Fatalf("expected InsufficientArmies, got %v", err)
	}
	if !reflect.DeepEqual(before, world.Snapshot()) {
		t.Fatalf("rejected probe launch mutated the world")
	}
}

func TestLaunchProbeRejectsColonizedTarget(t *testing.T) {
	_, executor := testWorld(t)
	_, err := executor.Apply(Command{Type: TypeLaunchProbe, Player: 1, From: 2, To: 3})
	if ReasonOf(err) != AlreadyExists {
		t.Fatalf("expected AlreadyExists for enemy target, got %v", err)
	}
	_, err = executor.Apply(Command{Type: TypeLaunchProbe, Player: 1, From: 2, To: 1})
	if ReasonOf(err) != SelfTarget {
		t.Fatalf("expected SelfTarget for own target, got %v", err)
	}
}

func TestCreateSupplyRoute(t *testing.T) {
	world, executor := testWorld(t)
	if _, err := executor.Apply(Command{Type: TypeCreateSupplyRoute, Player: 1, From: 1, To: 2}); err != nil {
		t.Fatalf("route rejected: %v", err)
	}
	route := world.Routes.Get(1)
	if route == nil || !route.Active {
		t.Fatalf("expected active route, got %+v", route)
	}
	if !reflect.DeepEqual(route.Path, []int{1, 2}) {
		t.Fatalf("unexpected route path %v", route.Path)
	}

	//1.- The same source and destination again is a duplicate.
	_, err := executor.Apply(Command{Type: TypeCreateSupplyRoute, Player: 1, From: 1, To: 2})
	if ReasonOf(err) != AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestCreateSupplyRouteNoOwnedPath(t *testing.T) {
	world, executor := testWorld(t)
	//1.- Player 1 also owns 4, but territory 3 in between belongs to player 2.
	executor.TransferOwnership(4, 1)
	_, err := executor.Apply(Command{Type: TypeCreateSupplyRoute, Player: 1, From: 1, To: 4})
	if ReasonOf(err) != NoPath {
		t.Fatalf("expected NoPath, got %v", err)
	}
	if world.Routes.Get(1) != nil {
		t.Fatalf("rejected route must not be stored")
	}
}

func TestCancelSupplyRoute(t *testing.T) {
	world, executor := testWorld(t)
	if _, err := executor.Apply(Command{Type: TypeCreateSupplyRoute, Player: 1, From: 1, To: 2}); err != nil {
		t.Fatalf("route rejected: %v", err)
	}
	if _, err := executor.Apply(Command{Type: TypeCancelSupplyRoute, Player: 1, From: 1}); err != nil {
		t.Fatalf("cancel rejected: %v", err)
	}
	if world.Routes.Get(1) != nil {
		t.Fatalf("expected route removed")
	}
	//1.- Cancelling again is a harmless no-op.
	if _, err := executor.Apply(Command{Type: TypeCancelSupplyRoute, Player: 1, From: 1}); err != nil {
		t.Fatalf("second cancel errored: %v", err)
	}
}

func TestTransferOwnershipKeepsSetsInLockstep(t *testing.T) {
	world, executor := testWorld(t)
	executor.TransferOwnership(3, 1)

	if world.Territories.Get(3).Owner != 1 {
		t.Fatalf("expected territory 3 owned by player 1")
	}
	if got := world.Players.Get(1).TerritoryIDs(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("expected player 1 set {1,2,3}, got %v", got)
	}
	if world.Players.Get(2).TerritoryCount() != 0 {
		t.Fatalf("expected player 2 set emptied")
	}

	//1.- Re-transferring to the same owner changes nothing.
	world.ConsumeDiff()
	executor.TransferOwnership(3, 1)
	if !world.ConsumeDiff().Empty() {
		t.Fatalf("no-op transfer must not dirty the diff")
	}
}
