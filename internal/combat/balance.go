package combat

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Balance holds every tunable gameplay constant. The zero value is not
// usable; start from DefaultBalance and overlay file overrides.
type Balance struct {
	// AttackBase and DefenseBase anchor the per-army power multipliers.
	AttackBase  float64 `yaml:"attack_base"`
	DefenseBase float64 `yaml:"defense_base"`
	// Variances widen the uniform roll added on top of each base.
	AttackVariance  float64 `yaml:"attack_variance"`
	DefenseVariance float64 `yaml:"defense_variance"`
	// Survival rates scale the winning and losing side after a battle.
	WinnerSurvival float64 `yaml:"winner_survival"`
	LoserSurvival  float64 `yaml:"loser_survival"`
	// MinAttackArmies is the garrison floor required to launch an attack.
	MinAttackArmies int `yaml:"min_attack_armies"`
	// GrowthIntervalSeconds is the game time needed to generate one army.
	GrowthIntervalSeconds float64 `yaml:"growth_interval_seconds"`
	// ProbeCost is deducted from the source garrison at launch.
	ProbeCost int `yaml:"probe_cost"`
	// ProbeSpeed is map units covered per second of game time.
	ProbeSpeed float64 `yaml:"probe_speed"`
}

// DefaultBalance returns the shipped ruleset constants.
func DefaultBalance() Balance {
	return Balance{
		AttackBase:            0.8,
		DefenseBase:           0.9,
		AttackVariance:        0.3,
		DefenseVariance:       0.3,
		WinnerSurvival:        0.7,
		LoserSurvival:         0.8,
		MinAttackArmies:       2,
		GrowthIntervalSeconds: 3,
		ProbeCost:             3,
		ProbeSpeed:            5,
	}
}

// LoadBalance reads YAML overrides from path on top of the defaults. An empty
// path returns the defaults unchanged; a missing or invalid file is an error.
func LoadBalance(path string) (Balance, error) {
	balance := DefaultBalance()
	if strings.TrimSpace(path) == "" {
		return balance, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Balance{}, fmt.Errorf("read balance file: %w", err)
	}
	if err := yaml.Unmarshal(data, &balance); err != nil {
		return Balance{}, fmt.Errorf("parse balance file: %w", err)
	}
	if err := balance.Validate(); err != nil {
		return Balance{}, err
	}
	return balance, nil
}

// Validate checks every constant and reports all violations at once.
func (b Balance) Validate() error {
	var problems []string
	if b.AttackBase < 0.8 {
		problems = append(problems, fmt.Sprintf("attack_base must be >= 0.8, got %v", b.AttackBase))
	}
	if b.DefenseBase < 0.8 {
		problems = append(problems, fmt.Sprintf("defense_base must be >= 0.8, got %v", b.DefenseBase))
	}
	if b.AttackVariance < 0.2 || b.AttackVariance > 0.4 {
		problems = append(problems, fmt.Sprintf("attack_variance must be within [0.2, 0.4], got %v", b.AttackVariance))
	}
	if b.DefenseVariance < 0.2 || b.DefenseVariance > 0.4 {
		problems = append(problems, fmt.Sprintf("defense_variance must be within [0.2, 0.4], got %v", b.DefenseVariance))
	}
	if b.WinnerSurvival <= 0 || b.WinnerSurvival > 1 {
		problems = append(problems, fmt.Sprintf("winner_survival must be within (0, 1], got %v", b.WinnerSurvival))
	}
	if b.LoserSurvival < 0 || b.LoserSurvival > 1 {
		problems = append(problems, fmt.Sprintf("loser_survival must be within [0, 1], got %v", b.LoserSurvival))
	}
	if b.MinAttackArmies < 2 {
		problems = append(problems, fmt.Sprintf("min_attack_armies must be >= 2, got %d", b.MinAttackArmies))
	}
	if b.GrowthIntervalSeconds <= 0 {
		problems = append(problems, fmt.Sprintf("growth_interval_seconds must be positive, got %v", b.GrowthIntervalSeconds))
	}
	if b.ProbeCost <= 0 {
		problems = append(problems, fmt.Sprintf("probe_cost must be positive, got %d", b.ProbeCost))
	}
	if b.ProbeSpeed <= 0 {
		problems = append(problems, fmt.Sprintf("probe_speed must be positive, got %v", b.ProbeSpeed))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
