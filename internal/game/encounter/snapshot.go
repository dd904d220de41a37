package encounter

import (
	"time"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/status"
)

// CombatantView is an immutable copy of one combatant's presentation state.
type CombatantView struct {
	ID         string
	Name       string
	Team       combat.Team
	Controller combat.Controller
	Level      int
	HP         int
	MaxHP      int
	// Units is the living unit count; 1 for non-swarm combatants while alive.
	Units     int
	Defeated  bool
	Gadgets   int
	Statuses  []status.Effect
	Cooldowns map[string]time.Duration
}

// Snapshot is the state surfaced to presentation after every tick.
type Snapshot struct {
	EncounterID string
	Tick        uint64
	Phase       Phase
	Outcome     Outcome
	Elapsed     time.Duration
	TimeBudget  time.Duration
	GraceTicks  int
	Combatants  []CombatantView
	// Log holds the most recent LogWindow event lines, oldest first.
	Log []string
	// LogTotal counts every event line recorded so far; the last line of Log
	// is line LogTotal.
	LogTotal int
}

// TickOutcome is returned by every Tick. Summary is non-nil only once the
// encounter has terminated with WIN, LOSE, or TIMEOUT.
type TickOutcome struct {
	Snapshot Snapshot
	Summary  *Summary
}

// Terminal reports whether the encounter has reached TERMINATED.
func (o TickOutcome) Terminal() bool { return o.Snapshot.Phase == PhaseTerminated }

// view is the read-only state Submit validates against.
type view struct {
	terminated bool
	actors     map[string]CombatantView
}

func (v *view) actor(id string) (CombatantView, bool) {
	cv, ok := v.actors[id]
	return cv, ok
}

func viewOf(c *combat.Combatant) CombatantView {
	return CombatantView{
		ID:         c.ID,
		Name:       c.Name,
		Team:       c.Team,
		Controller: c.Controller,
		Level:      c.Level,
		HP:         c.CurrentHP,
		MaxHP:      c.MaxHP,
		Units:      c.UnitCount(),
		Defeated:   c.IsDefeated(),
		Gadgets:    len(c.Loadout.Gadgets),
		Statuses:   c.Status.All(),
		Cooldowns:  c.Cooldowns(),
	}
}

func viewsOf(cs []*combat.Combatant) []CombatantView {
	out := make([]CombatantView, 0, len(cs))
	for _, c := range cs {
		out = append(out, viewOf(c))
	}
	return out
}

// Snapshot returns the current presentation state.
func (e *Encounter) Snapshot() Snapshot {
	return Snapshot{
		EncounterID: e.id,
		Tick:        e.ticks,
		Phase:       e.phase,
		Outcome:     e.outcome,
		Elapsed:     e.elapsed,
		TimeBudget:  e.setup.TimeBudget,
		GraceTicks:  e.graceLeft,
		Combatants:  viewsOf(e.roster),
		Log:         e.log.window(e.setup.LogWindow),
		LogTotal:    len(e.log.lines),
	}
}

// publish makes the current actor state visible to Submit. Cooldowns are
// published as they will stand after the next tick's decay, which runs
// before that tick consumes the pending action.
func (e *Encounter) publish() {
	v := &view{
		terminated: e.phase == PhaseTerminated,
		actors:     make(map[string]CombatantView, len(e.allies)),
	}
	for _, c := range e.allies {
		cv := viewOf(c)
		cv.Cooldowns = c.CooldownsAfter(e.setup.Step)
		v.actors[c.ID] = cv
	}
	e.view.Store(v)
}
