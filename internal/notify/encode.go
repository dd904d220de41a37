// Package notify adapts encounter snapshots for presentation collaborators.
package notify

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// Encode converts snap into a protobuf Struct suitable for any transport that
// carries google.protobuf.Struct. Durations are encoded as seconds.
//
// Postcondition: returns a non-nil Struct or a non-nil error.
func Encode(snap encounter.Snapshot) (*structpb.Struct, error) {
	combatants := make([]any, 0, len(snap.Combatants))
	for _, c := range snap.Combatants {
		statuses := make([]any, 0, len(c.Statuses))
		for _, s := range c.Statuses {
			statuses = append(statuses, map[string]any{
				"kind":      string(s.Kind),
				"remaining": s.Remaining.Seconds(),
				"magnitude": s.Magnitude,
				"source":    s.SourceID,
			})
		}
		cooldowns := make(map[string]any, len(c.Cooldowns))
		for k, d := range c.Cooldowns {
			cooldowns[k] = d.Seconds()
		}
		combatants = append(combatants, map[string]any{
			"id":         c.ID,
			"name":       c.Name,
			"team":       string(c.Team),
			"controller": string(c.Controller),
			"level":      c.Level,
			"hp":         c.HP,
			"max_hp":     c.MaxHP,
			"units":      c.Units,
			"defeated":   c.Defeated,
			"statuses":   statuses,
			"cooldowns":  cooldowns,
		})
	}
	log := make([]any, 0, len(snap.Log))
	for _, line := range snap.Log {
		log = append(log, line)
	}
	st, err := structpb.NewStruct(map[string]any{
		"encounter_id": snap.EncounterID,
		"tick":         snap.Tick,
		"phase":        snap.Phase.String(),
		"outcome":      string(snap.Outcome),
		"elapsed":      snap.Elapsed.Seconds(),
		"time_budget":  snap.TimeBudget.Seconds(),
		"grace_ticks":  snap.GraceTicks,
		"combatants":   combatants,
		"log":          log,
		"log_total":    snap.LogTotal,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return st, nil
}

// EncodeJSON renders snap as protojson.
func EncodeJSON(snap encounter.Snapshot) ([]byte, error) {
	st, err := Encode(snap)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(st)
}
