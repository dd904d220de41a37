package scenario_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
	"github.com/cory-johannsen/skirmish/internal/game/scenario"
)

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	for dir := wd; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		if filepath.Dir(dir) == dir {
			t.Fatalf("could not find repo root from %s", wd)
		}
	}
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.yaml"), []byte(body), 0o644))
	return dir
}

const minimal = `
id: duel
difficulty: hard
time_budget: 45s
seed: 9
participants:
  - id: p1
    level: 4
    max_hp: 300
    weapon: {ability: pistol, level: 4}
    gadgets:
      - {ability: medkit, rarity: rare, level: 4}
hostiles:
  - {monster: goblin, units: 3}
`

func TestLoadDirectory_ParsesAndConverts(t *testing.T) {
	all, err := scenario.LoadDirectory(writeScenario(t, minimal))
	require.NoError(t, err)
	require.Len(t, all, 1)
	s := all[0]
	assert.Equal(t, 45*time.Second, s.TimeBudget)

	setup := s.Setup(encounter.Setup{Step: time.Second, GraceTicks: 3, TimeBudget: time.Minute})
	assert.Equal(t, combat.DifficultyHard, setup.Difficulty)
	assert.Equal(t, 45*time.Second, setup.TimeBudget)
	assert.Equal(t, 3, setup.GraceTicks, "default kept when unset")
	assert.Equal(t, uint64(9), setup.Seed)
	require.Len(t, setup.Participants, 1)
	p := setup.Participants[0]
	assert.Equal(t, "p1", p.Name, "name defaults to id")
	assert.Equal(t, combat.Item{AbilityID: "pistol", Rarity: catalog.RarityCommon, Level: 4}, p.Loadout.Weapon)
	assert.Equal(t, catalog.RarityRare, p.Loadout.Gadgets[0].Rarity)
	assert.Equal(t, []encounter.HostileSpec{{MonsterID: "goblin", Units: 3}}, setup.Hostiles)
}

func TestLoadDirectory_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "id: x\nbogus: 1\n",
		"no participants": "id: x\nhostiles: [{monster: goblin}]\n",
		"no hostiles":     "id: x\nparticipants: [{id: p1}]\n",
		"missing id":      "participants: [{id: p1}]\nhostiles: [{monster: goblin}]\n",
		"bad controller":  "id: x\nparticipants: [{id: p1, controller: monster}]\nhostiles: [{monster: goblin}]\n",
		"duplicate id":    minimal + "---\n" + minimal,
	}
	for name, body := range cases {
		_, err := scenario.LoadDirectory(writeScenario(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadDirectory_MissingDir(t *testing.T) {
	_, err := scenario.LoadDirectory(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	all, err := scenario.LoadDirectory(writeScenario(t, minimal))
	require.NoError(t, err)
	s, ok := scenario.Find(all, "duel")
	assert.True(t, ok)
	assert.Equal(t, "duel", s.ID)
	_, ok = scenario.Find(all, "other")
	assert.False(t, ok)
}

func TestRepoScenarios_BuildAgainstRepoCatalog(t *testing.T) {
	root := repoRoot(t)
	cat, err := catalog.LoadDirectory(filepath.Join(root, "content"))
	require.NoError(t, err)
	store := catalog.NewStore(cat)

	all, err := scenario.LoadDirectory(filepath.Join(root, "content", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, all)
	for _, s := range all {
		_, err := encounter.New(store, s.Setup(encounter.Setup{}))
		assert.NoError(t, err, s.ID)
	}
}
