package encounter

import (
	"sort"
	"time"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
)

// ParticipantStats are one combatant's totals over the encounter.
//
// Damage counts damage dealt including the part absorbed by shields;
// Tanked is HP lost; Absorbed is damage taken by the combatant's own shields.
type ParticipantStats struct {
	ID         string
	Name       string
	Team       combat.Team
	Controller combat.Controller
	Damage     int
	Healing    int
	Tanked     int
	Absorbed   int
	FinalHP    int
	Defeated   bool
}

// AttributionEntry totals the effects of one ability used by one source.
type AttributionEntry struct {
	SourceID  string
	AbilityID string
	Damage    int
	Healing   int
	Hits      int
}

// Summary is the immutable terminal report of an Encounter.
type Summary struct {
	EncounterID   string
	Outcome       Outcome
	Difficulty    combat.Difficulty
	Duration      time.Duration
	Ticks         uint64
	StartedAt     time.Time
	EndedAt       time.Time
	TuningVersion uint64
	Participants  []ParticipantStats
	Attribution   []AttributionEntry
}

type attributionKey struct {
	source, ability string
}

// tracker accumulates statistics from every resolved Effect.
type tracker struct {
	order       []string
	stats       map[string]*ParticipantStats
	attribution map[attributionKey]*AttributionEntry
}

func newTracker(roster []*combat.Combatant) *tracker {
	t := &tracker{
		stats:       make(map[string]*ParticipantStats, len(roster)),
		attribution: make(map[attributionKey]*AttributionEntry),
	}
	for _, c := range roster {
		t.order = append(t.order, c.ID)
		t.stats[c.ID] = &ParticipantStats{ID: c.ID, Name: c.Name, Team: c.Team, Controller: c.Controller}
	}
	return t
}

func (t *tracker) record(eff combat.Effect) {
	if eff.Flags.Has(combat.FlagNoOp) || eff.SourceID == "" {
		return
	}
	key := attributionKey{eff.SourceID, eff.AbilityID}
	a, ok := t.attribution[key]
	if !ok {
		a = &AttributionEntry{SourceID: eff.SourceID, AbilityID: eff.AbilityID}
		t.attribution[key] = a
	}
	a.Hits++
	src := t.stats[eff.SourceID]
	tgt := t.stats[eff.TargetID]
	switch eff.Kind {
	case catalog.EffectDamage:
		dealt := eff.Applied + eff.Absorbed
		a.Damage += dealt
		if src != nil {
			src.Damage += dealt
		}
		if tgt != nil {
			tgt.Tanked += eff.Applied
			tgt.Absorbed += eff.Absorbed
		}
	case catalog.EffectHeal:
		a.Healing += eff.Applied
		if src != nil {
			src.Healing += eff.Applied
		}
	}
}

func (t *tracker) summary(e *Encounter) *Summary {
	s := &Summary{
		EncounterID:   e.id,
		Outcome:       e.outcome,
		Difficulty:    e.setup.Difficulty,
		Duration:      e.elapsed,
		Ticks:         e.ticks,
		StartedAt:     e.startedAt,
		EndedAt:       e.endedAt,
		TuningVersion: e.store.Tuning().Version,
	}
	for _, id := range t.order {
		st := *t.stats[id]
		c := e.byID[id]
		st.FinalHP = c.CurrentHP
		st.Defeated = c.IsDefeated()
		s.Participants = append(s.Participants, st)
	}
	for _, a := range t.attribution {
		s.Attribution = append(s.Attribution, *a)
	}
	sort.Slice(s.Attribution, func(i, j int) bool {
		if s.Attribution[i].SourceID != s.Attribution[j].SourceID {
			return s.Attribution[i].SourceID < s.Attribution[j].SourceID
		}
		return s.Attribution[i].AbilityID < s.Attribution[j].AbilityID
	})
	return s
}

// Stats returns the current totals for combatant id.
func (e *Encounter) Stats(id string) (ParticipantStats, bool) {
	st, ok := e.tracker.stats[id]
	if !ok {
		return ParticipantStats{}, false
	}
	return *st, true
}
