package combat

import (
	"math/rand"
	"testing"
)

func fixedRoll(value float64) func() float64 {
	return func() float64 { return value }
}

func TestResolveFavorableAttack(t *testing.T) {
	//1.- Max attack roll, min defense roll: 4 attackers beat 3 defenders.
	resolver := NewResolver(DefaultBalance(), WithRoll(func() float64 { return 0 }))
	rolls := []float64{1, 0}
	index := 0
	resolver.roll = func() float64 {
		value := rolls[index%len(rolls)]
		index++
		return value
	}

	result := resolver.Resolve(4, 3)
	if result.Outcome != AttackerVictory {
		t.Fatalf("expected attacker victory, got %s", result.Outcome)
	}
	if result.SurvivingAttackers != 3 {
		t.Fatalf("expected ceil(4*0.7)=3 survivors, got %d", result.SurvivingAttackers)
	}
	if result.SurvivingDefenders != 0 {
		t.Fatalf("expected no defender survivors on capture, got %d", result.SurvivingDefenders)
	}
}

func TestResolveDefenderHolds(t *testing.T) {
	//1.- Zero rolls give the defense base the edge on equal armies.
	resolver := NewResolver(DefaultBalance(), WithRoll(fixedRoll(0)))
	result := resolver.Resolve(5, 5)
	if result.Outcome != DefenderHolds {
		t.Fatalf("expected defender to hold, got %s", result.Outcome)
	}
	if result.SurvivingDefenders != 4 {
		t.Fatalf("expected ceil(5*0.8)=4 defenders, got %d", result.SurvivingDefenders)
	}
	if result.SurvivingAttackers != 0 {
		t.Fatalf("expected the repelled force destroyed, got %d", result.SurvivingAttackers)
	}
}

func TestResolveUnopposed(t *testing.T) {
	resolver := NewResolver(DefaultBalance(), WithRoll(fixedRoll(0)))
	result := resolver.Resolve(6, 0)
	if result.Outcome != AttackerVictory || result.SurvivingAttackers != 6 {
		t.Fatalf("expected full occupation of an empty target, got %+v", result)
	}
}

func TestResolveConservesArmies(t *testing.T) {
	resolver := NewResolver(DefaultBalance(), WithRand(rand.New(rand.NewSource(42))))
	for i := 0; i < 500; i++ {
		attackers := 1 + i%40
		defenders := i % 33
		before := attackers + defenders
		result := resolver.Resolve(attackers, defenders)
		after := result.SurvivingAttackers + result.SurvivingDefenders
		if after > before {
			t.Fatalf("battle created armies: %d attackers vs %d defenders -> %+v", attackers, defenders, result)
		}
		if result.SurvivingAttackers < 0 || result.SurvivingDefenders < 0 {
			t.Fatalf("negative survivors: %+v", result)
		}
		if result.Outcome == AttackerVictory && result.SurvivingAttackers == 0 {
			t.Fatalf("a victorious attacker must keep at least one army: %+v", result)
		}
	}
}

func TestResolveDeterministicUnderSeed(t *testing.T) {
	first := NewResolver(DefaultBalance(), WithRand(rand.New(rand.NewSource(7))))
	second := NewResolver(DefaultBalance(), WithRand(rand.New(rand.NewSource(7))))
	for i := 0; i < 50; i++ {
		a := first.Resolve(10, 8)
		b := second.Resolve(10, 8)
		if a != b {
			t.Fatalf("same seed diverged at round %d: %+v vs %+v", i, a, b)
		}
	}
}
