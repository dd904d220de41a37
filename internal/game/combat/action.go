package combat

import (
	"fmt"
	"time"
)

// ActionKind identifies what a combatant intends to do this tick.
// The zero value (ActionNone) means no pending action.
type ActionKind int

const (
	ActionNone   ActionKind = iota // zero value; nothing queued
	ActionAttack                   // primary weapon
	ActionGadget                   // secondary ability at Action.Gadget
	ActionDefend                   // defensive maneuver
)

// String returns the human-readable name of the ActionKind.
func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionAttack:
		return "attack"
	case ActionGadget:
		return "gadget"
	case ActionDefend:
		return "defend"
	default:
		return "unknown"
	}
}

// Action is one chosen action. Target is an optional focus target id.
type Action struct {
	Kind   ActionKind
	Gadget int
	Target string
}

// String renders the action for logs.
func (a Action) String() string {
	switch a.Kind {
	case ActionGadget:
		return fmt.Sprintf("gadget-%d", a.Gadget)
	default:
		return a.Kind.String()
	}
}

// CooldownKey returns the cooldown slot consumed by a, or "" when the action
// has no cooldown.
func (a Action) CooldownKey() string {
	switch a.Kind {
	case ActionGadget:
		return GadgetCooldownKey(a.Gadget)
	case ActionDefend:
		return DefendCooldownKey
	default:
		return ""
	}
}

// Defensive maneuver timing.
const (
	DefendDuration = 1500 * time.Millisecond
	DefendCooldown = 6 * time.Second
)
