// Package scenario loads named encounter setups from YAML for headless runs.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// Item is an equipped ability in a scenario loadout.
type Item struct {
	Ability string         `yaml:"ability"`
	Rarity  catalog.Rarity `yaml:"rarity"`
	Level   int            `yaml:"level"`
}

// Participant is one allied combatant.
type Participant struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Controller combat.Controller `yaml:"controller"`
	Level      int               `yaml:"level"`
	MaxHP      int               `yaml:"max_hp"`
	Weapon     Item              `yaml:"weapon"`
	Gadgets    []Item            `yaml:"gadgets"`
	Passives   []Item            `yaml:"passives"`
}

// Hostile requests one monster from the catalog.
type Hostile struct {
	Monster string `yaml:"monster"`
	Level   int    `yaml:"level"`
	Units   int    `yaml:"units"`
}

// Scenario is a named, reproducible encounter definition.
type Scenario struct {
	ID           string                 `yaml:"id"`
	Description  string                 `yaml:"description"`
	Difficulty   combat.Difficulty      `yaml:"difficulty"`
	TimeBudget   time.Duration          `yaml:"time_budget"`
	GraceTicks   int                    `yaml:"grace_ticks"`
	SurvivalRule encounter.SurvivalRule `yaml:"survival_rule"`
	Seed         uint64                 `yaml:"seed"`
	Participants []Participant          `yaml:"participants"`
	Hostiles     []Hostile              `yaml:"hostiles"`
}

// Validate checks the fields that do not need the catalog. Catalog
// references are checked when the encounter is built.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return errors.New("scenario: id must not be empty")
	}
	if len(s.Participants) == 0 {
		return fmt.Errorf("scenario %q: at least one participant is required", s.ID)
	}
	if len(s.Hostiles) == 0 {
		return fmt.Errorf("scenario %q: at least one hostile is required", s.ID)
	}
	if s.TimeBudget < 0 {
		return fmt.Errorf("scenario %q: time_budget must not be negative", s.ID)
	}
	for _, p := range s.Participants {
		if p.ID == "" {
			return fmt.Errorf("scenario %q: participant id must not be empty", s.ID)
		}
		switch p.Controller {
		case "", combat.ControllerHuman, combat.ControllerBot:
		default:
			return fmt.Errorf("scenario %q: participant %q has invalid controller %q", s.ID, p.ID, p.Controller)
		}
	}
	return nil
}

// Setup converts s into an encounter setup. Zero fields take the defaults
// in defaults; the encounter fills in anything still unset.
func (s *Scenario) Setup(defaults encounter.Setup) encounter.Setup {
	out := defaults
	out.Participants = nil
	out.Hostiles = nil
	if s.Difficulty != "" {
		out.Difficulty = s.Difficulty
	}
	if s.TimeBudget > 0 {
		out.TimeBudget = s.TimeBudget
	}
	if s.GraceTicks > 0 {
		out.GraceTicks = s.GraceTicks
	}
	if s.SurvivalRule != "" {
		out.SurvivalRule = s.SurvivalRule
	}
	if s.Seed != 0 {
		out.Seed = s.Seed
	}
	for _, p := range s.Participants {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		out.Participants = append(out.Participants, encounter.Participant{
			ID:         p.ID,
			Name:       name,
			Controller: p.Controller,
			Level:      p.Level,
			MaxHP:      p.MaxHP,
			Loadout: combat.Loadout{
				Weapon:   p.Weapon.item(),
				Gadgets:  items(p.Gadgets),
				Passives: items(p.Passives),
			},
		})
	}
	for _, h := range s.Hostiles {
		out.Hostiles = append(out.Hostiles, encounter.HostileSpec{MonsterID: h.Monster, Level: h.Level, Units: h.Units})
	}
	return out
}

func (i Item) item() combat.Item {
	r := i.Rarity
	if r == "" {
		r = catalog.RarityCommon
	}
	return combat.Item{AbilityID: i.Ability, Rarity: r, Level: i.Level}
}

func items(in []Item) []combat.Item {
	out := make([]combat.Item, 0, len(in))
	for _, i := range in {
		out = append(out, i.item())
	}
	return out
}

// LoadDirectory reads every *.yaml file in dir. A file may hold several
// documents. Scenarios are returned sorted by id.
//
// Postcondition: Returns an error naming the first file that fails to parse
// or validate, or a duplicate id.
func LoadDirectory(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario dir %q: %w", dir, err)
	}
	seen := make(map[string]string)
	var out []*Scenario
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		for {
			var s Scenario
			if err := dec.Decode(&s); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("parsing %q: %w", path, err)
			}
			if err := s.Validate(); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if prev, dup := seen[s.ID]; dup {
				return nil, fmt.Errorf("scenario %q defined in both %q and %q", s.ID, prev, path)
			}
			seen[s.ID] = path
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Find returns the scenario with the given id.
func Find(all []*Scenario, id string) (*Scenario, bool) {
	for _, s := range all {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}
