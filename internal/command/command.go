package command

import "fmt"

// Type enumerates the closed set of player commands.
type Type string

const (
	// TypeAttack commits a fraction of a garrison against an adjacent territory.
	TypeAttack Type = "attack"
	// TypeTransfer moves armies between two friendly adjacent territories.
	TypeTransfer Type = "transfer"
	// TypeLaunchProbe sends a colonization probe toward a neutral territory.
	TypeLaunchProbe Type = "launch_probe"
	// TypeCreateSupplyRoute redirects a territory's growth along an owned path.
	TypeCreateSupplyRoute Type = "create_supply_route"
	// TypeCancelSupplyRoute drops the route sourced at a territory.
	TypeCancelSupplyRoute Type = "cancel_supply_route"
)

// Command is the tagged union submitted by humans and bots alike. Fraction
// applies to attacks and transfers; zero selects the default commitment.
type Command struct {
	Type     Type    `json:"type"`
	Player   int     `json:"player"`
	From     int     `json:"from,omitempty"`
	To       int     `json:"to,omitempty"`
	Fraction float64 `json:"fraction,omitempty"`
}

// Reason is the typed cause attached to every command rejection.
type Reason string

const (
	// InvalidTerritory means a referenced id does not exist on the map.
	InvalidTerritory Reason = "invalid_territory"
	// NotOwner means the issuing player does not own the source territory.
	NotOwner Reason = "not_owner"
	// NotAdjacent means no direct warp lane joins the two territories.
	NotAdjacent Reason = "not_adjacent"
	// InsufficientArmies means the garrison cannot cover the commitment or cost.
	InsufficientArmies Reason = "insufficient_armies"
	// SelfTarget means the command targets the player's own holdings.
	SelfTarget Reason = "self_target"
	// NoPath means no owned route connects source and destination.
	NoPath Reason = "no_path"
	// AlreadyExists means the requested entity is already in place.
	AlreadyExists Reason = "already_exists"
)

// Rejection is the error returned for every failed validation. Rejections are
// pure: the world is untouched when one is returned.
type Rejection struct {
	Reason Reason
	Detail string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	if r == nil {
		return ""
	}
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the typed reason from an error, empty when the error is
// not a rejection.
func ReasonOf(err error) Reason {
	if rejection, ok := err.(*Rejection); ok && rejection != nil {
		return rejection.Reason
	}
	return ""
}
