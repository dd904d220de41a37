// Package encounter implements the fixed-step combat simulation: roster
// construction, the PRE_START/RUNNING/TERMINATED lifecycle, per-tick action
// resolution, hostile behaviour, the event log, and the terminal summary.
package encounter

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// Construction errors.
var (
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrInvalidHostile     = errors.New("invalid hostile")
	ErrInvalidSetup       = errors.New("invalid encounter setup")
)

// Submission errors.
var (
	ErrUnknownActor     = errors.New("unknown actor")
	ErrActionOnCooldown = errors.New("action on cooldown")
	ErrActorDefeated    = errors.New("actor defeated")
	ErrUnknownGadget    = errors.New("unknown gadget")
	ErrTerminated       = errors.New("encounter terminated")
)

// Defaults applied by New for zero-valued Setup fields.
const (
	DefaultStep       = time.Second
	DefaultTimeBudget = 5 * time.Minute
	DefaultLogWindow  = 5
)

// Phase is the lifecycle state of an Encounter.
type Phase int

const (
	PhasePreStart Phase = iota
	PhaseRunning
	PhaseTerminated
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhasePreStart:
		return "pre_start"
	case PhaseRunning:
		return "running"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of an Encounter. OutcomeAbandoned is set by
// Cancel and never produces a Summary.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeWin       Outcome = "win"
	OutcomeLose      Outcome = "lose"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeAbandoned Outcome = "abandoned"
)

// SurvivalRule decides which allies must stay alive.
type SurvivalRule string

const (
	// SurvivalHumans loses as soon as any human-controlled ally is defeated.
	SurvivalHumans SurvivalRule = "humans"
	// SurvivalAllAllies loses only when every ally is defeated.
	SurvivalAllAllies SurvivalRule = "all_allies"
)

// Participant is the bootstrap data for one allied combatant.
type Participant struct {
	ID         string
	Name       string
	Controller combat.Controller
	Level      int
	MaxHP      int
	Loadout    combat.Loadout
}

// HostileSpec requests one hostile unit (or swarm group) from the catalog.
// Level 0 uses the monster's catalog level; Units 0 uses its catalog units.
type HostileSpec struct {
	MonsterID string
	Level     int
	Units     int
}

// Setup is everything needed to construct an Encounter.
type Setup struct {
	Participants []Participant
	Hostiles     []HostileSpec
	TimeBudget   time.Duration
	Step         time.Duration
	GraceTicks   int
	Difficulty   combat.Difficulty
	SurvivalRule SurvivalRule
	// Seed drives every random choice; 0 picks a fresh seed.
	Seed      uint64
	LogWindow int
}

// BehaviorScript chooses the next action for hostiles with scripted behaviour.
type BehaviorScript interface {
	ChooseAction(hook string, in ScriptInput) (combat.Action, error)
}

// ScriptInput is the read-only state handed to a BehaviorScript.
type ScriptInput struct {
	Self      CombatantView
	Allies    []CombatantView
	Opponents []CombatantView
	Tick      uint64
	Elapsed   time.Duration
}

// Option configures an Encounter.
type Option func(*Encounter)

// WithID sets the encounter id. The default is a random UUID.
func WithID(id string) Option { return func(e *Encounter) { e.id = id } }

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option { return func(e *Encounter) { e.logger = l } }

// WithClock sets the wall clock used for StartedAt/EndedAt.
func WithClock(now func() time.Time) Option { return func(e *Encounter) { e.now = now } }

// WithScript sets the hook runner for scripted hostiles.
func WithScript(s BehaviorScript) Option { return func(e *Encounter) { e.script = s } }

// Encounter is one independent combat simulation. Tick, and every accessor
// other than Submit and Cancel, must be called from a single goroutine.
type Encounter struct {
	id     string
	store  *catalog.Store
	setup  Setup
	logger *zap.Logger
	now    func() time.Time
	script BehaviorScript
	rng    dice.Source

	roster   []*combat.Combatant
	allies   []*combat.Combatant
	hostiles []*combat.Combatant
	byID     map[string]*combat.Combatant
	// areaGadget maps a periodic_area hostile to the loadout index of its area ability.
	areaGadget map[string]int

	phase     Phase
	outcome   Outcome
	graceLeft int
	elapsed   time.Duration
	ticks     uint64
	startedAt time.Time
	endedAt   time.Time

	log     eventLog
	tracker *tracker
	// aggro[hostile][ally] is the damage the ally has dealt to the hostile.
	aggro map[string]map[string]int

	final     *TickOutcome
	view      atomic.Pointer[view]
	cancelled atomic.Bool
}

// New validates setup against the store's current catalog and builds an
// Encounter. No partial Encounter is returned on error.
//
// Precondition: store must be non-nil.
// Postcondition: err wraps ErrInvalidParticipant, ErrInvalidHostile, or
// ErrInvalidSetup on failure.
func New(store *catalog.Store, setup Setup, opts ...Option) (*Encounter, error) {
	if err := normalise(&setup); err != nil {
		return nil, err
	}
	e := &Encounter{
		id:         uuid.NewString(),
		store:      store,
		setup:      setup,
		logger:     zap.NewNop(),
		now:        time.Now,
		byID:       make(map[string]*combat.Combatant),
		areaGadget: make(map[string]int),
		aggro:      make(map[string]map[string]int),
		graceLeft:  setup.GraceTicks,
	}
	for _, opt := range opts {
		opt(e)
	}
	seed := setup.Seed
	if seed == 0 {
		seed = dice.NewSeed()
	}
	e.rng = dice.NewSeededSource(seed)
	e.logger = e.logger.With(zap.String("encounter", e.id))

	cat := store.Current()
	for i, p := range setup.Participants {
		c, err := buildParticipant(cat, p)
		if err != nil {
			return nil, fmt.Errorf("%w: participants[%d] %q: %w", ErrInvalidParticipant, i, p.ID, err)
		}
		if _, dup := e.byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidParticipant, c.ID)
		}
		e.add(c)
	}
	counts := make(map[string]int)
	for i, h := range setup.Hostiles {
		counts[h.MonsterID]++
		id := fmt.Sprintf("%s-%d", h.MonsterID, counts[h.MonsterID])
		c, area, err := buildHostile(cat, id, h)
		if err != nil {
			return nil, fmt.Errorf("%w: hostiles[%d] %q: %w", ErrInvalidHostile, i, h.MonsterID, err)
		}
		if _, dup := e.byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: id %q collides with a participant", ErrInvalidHostile, c.ID)
		}
		if area >= 0 {
			e.areaGadget[c.ID] = area
		}
		e.add(c)
	}
	e.tracker = newTracker(e.roster)

	e.log.appendf("Encounter started against %d hostile(s).", len(e.hostiles))
	if e.graceLeft <= 0 {
		e.begin()
	}
	e.publish()
	e.logger.Debug("encounter created",
		zap.Int("allies", len(e.allies)),
		zap.Int("hostiles", len(e.hostiles)),
		zap.Uint64("seed", seed),
		zap.String("difficulty", string(setup.Difficulty)),
	)
	return e, nil
}

func normalise(s *Setup) error {
	if len(s.Participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidParticipant)
	}
	if len(s.Hostiles) == 0 {
		return fmt.Errorf("%w: at least one hostile is required", ErrInvalidHostile)
	}
	if s.Step < 0 || s.TimeBudget < 0 || s.GraceTicks < 0 || s.LogWindow < 0 {
		return fmt.Errorf("%w: durations and counts must not be negative", ErrInvalidSetup)
	}
	if s.Step == 0 {
		s.Step = DefaultStep
	}
	if s.TimeBudget == 0 {
		s.TimeBudget = DefaultTimeBudget
	}
	if s.LogWindow == 0 {
		s.LogWindow = DefaultLogWindow
	}
	if s.Difficulty == "" {
		s.Difficulty = combat.DifficultyNormal
	}
	if !s.Difficulty.Valid() {
		return fmt.Errorf("%w: difficulty %q", ErrInvalidSetup, s.Difficulty)
	}
	switch s.SurvivalRule {
	case "":
		s.SurvivalRule = SurvivalHumans
	case SurvivalHumans, SurvivalAllAllies:
	default:
		return fmt.Errorf("%w: survival rule %q", ErrInvalidSetup, s.SurvivalRule)
	}
	return nil
}

func expectItem(cat *catalog.Catalog, it combat.Item, slot catalog.Slot) error {
	def, err := cat.Ability(it.AbilityID)
	if err != nil {
		return err
	}
	if def.Slot != slot {
		return fmt.Errorf("ability %q is a %s, want %s", it.AbilityID, def.Slot, slot)
	}
	if !it.Rarity.Valid() {
		return fmt.Errorf("ability %q has unknown rarity %q", it.AbilityID, it.Rarity)
	}
	return nil
}

func buildParticipant(cat *catalog.Catalog, p Participant) (*combat.Combatant, error) {
	if p.ID == "" {
		return nil, errors.New("id must not be empty")
	}
	if p.MaxHP < 1 {
		return nil, fmt.Errorf("max hp must be >= 1, got %d", p.MaxHP)
	}
	switch p.Controller {
	case combat.ControllerHuman, combat.ControllerBot:
	case "":
		p.Controller = combat.ControllerHuman
	default:
		return nil, fmt.Errorf("controller %q is not allowed for participants", p.Controller)
	}
	if err := expectItem(cat, p.Loadout.Weapon, catalog.SlotWeapon); err != nil {
		return nil, err
	}
	for _, g := range p.Loadout.Gadgets {
		if err := expectItem(cat, g, catalog.SlotGadget); err != nil {
			return nil, err
		}
	}
	for _, ps := range p.Loadout.Passives {
		if err := expectItem(cat, ps, catalog.SlotPassive); err != nil {
			return nil, err
		}
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	level := catalog.ClampLevel(p.Level)
	maxHP := combat.DeriveMaxHP(p.MaxHP, level, p.Loadout.Passives, cat)
	return combat.NewCombatant(p.ID, name, combat.TeamAllies, p.Controller, level, maxHP, p.Loadout), nil
}

// buildHostile returns the hostile combatant and the loadout index of its
// periodic area ability, or -1.
func buildHostile(cat *catalog.Catalog, id string, h HostileSpec) (*combat.Combatant, int, error) {
	m, err := cat.Monster(h.MonsterID)
	if err != nil {
		return nil, -1, err
	}
	if h.Units < 0 {
		return nil, -1, fmt.Errorf("units must not be negative, got %d", h.Units)
	}
	level := m.Level
	if h.Level > 0 {
		level = catalog.ClampLevel(h.Level)
	}
	loadout := combat.Loadout{Weapon: combat.Item{AbilityID: m.Weapon, Level: level}}
	area := -1
	for i, g := range m.Gadgets {
		loadout.Gadgets = append(loadout.Gadgets, combat.Item{AbilityID: g, Level: level})
		if m.Behavior.Kind == catalog.BehaviorPeriodicArea && g == m.Behavior.AreaAbility {
			area = i
		}
	}
	if m.Behavior.Kind == catalog.BehaviorPeriodicArea && area < 0 {
		loadout.Gadgets = append(loadout.Gadgets, combat.Item{AbilityID: m.Behavior.AreaAbility, Level: level})
		area = len(loadout.Gadgets) - 1
	}
	c := combat.NewCombatant(id, m.Name, combat.TeamHostiles, combat.ControllerMonster, level, m.MaxHPAt(level, h.Units), loadout)
	c.MonsterID = m.ID
	c.Behavior = m.Behavior
	if m.IsSwarm() {
		c.Swarm = &combat.Swarm{UnitHP: m.UnitHP}
	}
	return c, area, nil
}

func (e *Encounter) add(c *combat.Combatant) {
	e.roster = append(e.roster, c)
	e.byID[c.ID] = c
	if c.Team == combat.TeamAllies {
		e.allies = append(e.allies, c)
	} else {
		e.hostiles = append(e.hostiles, c)
	}
}

// ID returns the encounter id.
func (e *Encounter) ID() string { return e.id }

// Phase returns the lifecycle phase.
func (e *Encounter) Phase() Phase { return e.phase }

// Outcome returns the terminal outcome, or OutcomeNone while not terminated.
func (e *Encounter) Outcome() Outcome { return e.outcome }

// Elapsed returns the simulated time since the encounter started running.
func (e *Encounter) Elapsed() time.Duration { return e.elapsed }

// Submit queues action for actorID, replacing any earlier pending action.
// It validates against the most recently published view and never blocks
// on an in-flight tick. A cooldown that the next tick's decay will clear
// does not block the submission. Actions that become stale before the next
// tick are silently dropped by the tick.
//
// Postcondition: err is one of ErrUnknownActor, ErrActorDefeated,
// ErrUnknownGadget, ErrActionOnCooldown, ErrTerminated (possibly wrapped), or nil.
func (e *Encounter) Submit(actorID string, action combat.Action) error {
	v := e.view.Load()
	if v.terminated || e.cancelled.Load() {
		return ErrTerminated
	}
	cv, ok := v.actor(actorID)
	if !ok || cv.Controller != combat.ControllerHuman {
		return fmt.Errorf("%w: %q", ErrUnknownActor, actorID)
	}
	if cv.Defeated {
		return fmt.Errorf("%w: %q", ErrActorDefeated, actorID)
	}
	switch action.Kind {
	case combat.ActionNone, combat.ActionAttack, combat.ActionDefend:
	case combat.ActionGadget:
		if action.Gadget < 0 || action.Gadget >= cv.Gadgets {
			return fmt.Errorf("%w: index %d", ErrUnknownGadget, action.Gadget)
		}
	default:
		return fmt.Errorf("%w: action kind %d", ErrUnknownGadget, action.Kind)
	}
	if key := action.CooldownKey(); key != "" && cv.Cooldowns[key] > 0 {
		return fmt.Errorf("%w: %s has %s remaining", ErrActionOnCooldown, action, cv.Cooldowns[key])
	}
	e.byID[actorID].Submit(action)
	return nil
}

// Cancel marks the encounter abandoned. The next Tick terminates it without
// a summary. Safe to call from any goroutine; repeated calls are no-ops.
func (e *Encounter) Cancel() { e.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (e *Encounter) Cancelled() bool { return e.cancelled.Load() }

func (e *Encounter) context() combat.Context {
	return combat.Context{
		Catalog:    e.store.Current(),
		Tuning:     e.store.Tuning(),
		Difficulty: e.setup.Difficulty,
	}
}
