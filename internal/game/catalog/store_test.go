package catalog_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
)

const abilitiesYAML = `id: rifle
name: Rifle
slot: weapon
category: single_target
effect: damage
formula: {base: 250, slope: 15}
---
id: slam
name: Ground Slam
slot: gadget
category: area
effect: damage
formula: {base: 50, slope: 5}
cooldown_seconds: 10
`

const monstersYAML = `id: brute
name: Brute
level: 10
hp: {base: 1000, slope: 100}
weapon: rifle
behavior:
  kind: periodic_area
  area_ability: slam
  period_seconds: 10
`

func writeCatalog(t *testing.T, abilities, monsters string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, catalog.AbilitiesDir), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, catalog.MonstersDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, catalog.AbilitiesDir, "core.yaml"), []byte(abilities), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, catalog.MonstersDir, "core.yaml"), []byte(monsters), 0o644))
	return root
}

func TestLoadDirectory(t *testing.T) {
	root := writeCatalog(t, abilitiesYAML, monstersYAML)
	cat, err := catalog.LoadDirectory(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"rifle", "slam"}, cat.AbilityIDs())
	assert.Equal(t, []string{"brute"}, cat.MonsterIDs())
	m, err := cat.Monster("brute")
	require.NoError(t, err)
	assert.Equal(t, catalog.BehaviorPeriodicArea, m.Behavior.Kind)
}

func TestLoadDirectory_UnknownField(t *testing.T) {
	root := writeCatalog(t, abilitiesYAML+"damage_bonus: 3\n", monstersYAML)
	_, err := catalog.LoadDirectory(root)
	assert.Error(t, err)
}

func TestLoadDirectory_MissingDir(t *testing.T) {
	_, err := catalog.LoadDirectory(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestStore_ReloadSwapsCatalog(t *testing.T) {
	root := writeCatalog(t, abilitiesYAML, monstersYAML)
	cat, err := catalog.LoadDirectory(root)
	require.NoError(t, err)
	s := catalog.NewStore(cat)
	old := s.Current()

	require.NoError(t, os.WriteFile(filepath.Join(root, catalog.AbilitiesDir, "extra.yaml"), []byte(`id: flare
name: Flare
slot: gadget
category: multi_hit
effect: damage
formula: {base: 10}
`), 0o644))
	require.NoError(t, s.Reload(root))
	assert.NotSame(t, old, s.Current())
	_, err = s.Current().Ability("flare")
	assert.NoError(t, err)
	_, err = old.Ability("flare")
	assert.Error(t, err, "readers holding the old snapshot are unaffected")
}

func TestStore_ReloadFailureKeepsPrevious(t *testing.T) {
	root := writeCatalog(t, abilitiesYAML, monstersYAML)
	cat, err := catalog.LoadDirectory(root)
	require.NoError(t, err)
	s := catalog.NewStore(cat)
	require.NoError(t, os.WriteFile(filepath.Join(root, catalog.AbilitiesDir, "broken.yaml"), []byte("id: [\n"), 0o644))
	assert.Error(t, s.Reload(root))
	assert.Same(t, cat, s.Current())
}

func TestStore_SetTuning_VersionsIncrease(t *testing.T) {
	cat, err := catalog.Build(nil, nil)
	require.NoError(t, err)
	s := catalog.NewStore(cat)
	assert.Equal(t, uint64(1), s.Tuning().Version)

	per := map[string]float64{"rifle": 0.5}
	require.NoError(t, s.SetTuning(catalog.Tuning{Global: 1.2, PerAbility: per}))
	got := s.Tuning()
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, 1.2, got.Global)

	per["rifle"] = 9
	assert.Equal(t, 0.5, s.Tuning().PerAbility["rifle"], "published tuning does not alias the caller's map")

	assert.Error(t, s.SetTuning(catalog.Tuning{Global: -1}))
	assert.Equal(t, uint64(2), s.Tuning().Version)
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	cat, err := catalog.Build(nil, nil)
	require.NoError(t, err)
	s := catalog.NewStore(cat)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.SetTuning(catalog.Tuning{Global: 1})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Tuning().For("x")
				_ = s.Current()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(401), s.Tuning().Version)
}
