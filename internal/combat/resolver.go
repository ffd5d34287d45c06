package combat

import (
	"math"
	"math/rand"
)

// Outcome names the winning side of a resolved battle.
type Outcome string

const (
	// AttackerVictory means the target changes hands.
	AttackerVictory Outcome = "victory"
	// DefenderHolds means the target stays with its owner.
	DefenderHolds Outcome = "defeat"
)

// Result carries the resolved casualties of a single battle. Battles resolve
// atomically within one tick; the caller applies ownership changes.
type Result struct {
	Outcome Outcome
	// SurvivingAttackers occupy the target on victory and are lost otherwise.
	SurvivingAttackers int
	// SurvivingDefenders hold the target after repelling the attack.
	SurvivingDefenders int
}

// Resolver turns opposing army counts into a battle result. The random source
// is injected so battles replay deterministically under a fixed seed.
type Resolver struct {
	balance Balance
	roll    func() float64
}

// Option customizes resolver construction.
type Option func(*Resolver)

// WithRoll replaces the uniform [0,1) roll source.
func WithRoll(roll func() float64) Option {
	return func(r *Resolver) {
		if roll != nil {
			r.roll = roll
		}
	}
}

// WithRand seeds the resolver from a shared random generator.
func WithRand(rng *rand.Rand) Option {
	return func(r *Resolver) {
		if rng != nil {
			r.roll = rng.Float64
		}
	}
}

// NewResolver builds a resolver for the given ruleset.
func NewResolver(balance Balance, opts ...Option) *Resolver {
	resolver := &Resolver{balance: balance, roll: rand.Float64}
	for _, opt := range opts {
		opt(resolver)
	}
	return resolver
}

// Balance exposes the ruleset constants the resolver was built with.
func (r *Resolver) Balance() Balance {
	if r == nil {
		return Balance{}
	}
	return r.balance
}

// Resolve computes one battle. Total survivors never exceed the combined
// pre-battle force and an empty target always falls to any attacker.
func (r *Resolver) Resolve(attackers, defenders int) Result {
	if r == nil || attackers <= 0 {
		return Result{Outcome: DefenderHolds, SurvivingDefenders: max(defenders, 0)}
	}
	if defenders <= 0 {
		//1.- Unopposed attacks occupy the target at full strength.
		return Result{Outcome: AttackerVictory, SurvivingAttackers: attackers}
	}

	//2.- Each side's power is its army count times a base plus a uniform roll.
	attackPower := float64(attackers) * (r.balance.AttackBase + r.roll()*r.balance.AttackVariance)
	defensePower := float64(defenders) * (r.balance.DefenseBase + r.roll()*r.balance.DefenseVariance)

	if attackPower > defensePower {
		//3.- The winner keeps a ceil fraction so a lone attacker never wins with zero.
		survivors := int(math.Ceil(float64(attackers) * r.balance.WinnerSurvival))
		survivors = min(survivors, attackers)
		return Result{Outcome: AttackerVictory, SurvivingAttackers: survivors}
	}

	survivors := int(math.Ceil(float64(defenders) * r.balance.LoserSurvival))
	survivors = min(survivors, defenders)
	return Result{Outcome: DefenderHolds, SurvivingDefenders: survivors}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
