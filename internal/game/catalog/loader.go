package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Subdirectories of a catalog root.
const (
	AbilitiesDir = "abilities"
	MonstersDir  = "monsters"
)

// LoadDirectory reads every *.yaml file under root/abilities and root/monsters
// and builds a validated Catalog. A file may hold several YAML documents.
//
// Precondition: root must be a readable directory.
// Postcondition: Returns a non-nil Catalog, or an error naming the first file
// that fails to read, parse, or validate.
func LoadDirectory(root string) (*Catalog, error) {
	var abilities []*AbilityDef
	err := eachYAML(filepath.Join(root, AbilitiesDir), func(path string, dec *yaml.Decoder) error {
		for {
			var a AbilityDef
			if err := dec.Decode(&a); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("parsing %q: %w", path, err)
			}
			abilities = append(abilities, &a)
		}
	})
	if err != nil {
		return nil, err
	}

	var monsters []*MonsterDef
	err = eachYAML(filepath.Join(root, MonstersDir), func(path string, dec *yaml.Decoder) error {
		for {
			var m MonsterDef
			if err := dec.Decode(&m); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("parsing %q: %w", path, err)
			}
			monsters = append(monsters, &m)
		}
	})
	if err != nil {
		return nil, err
	}

	return Build(abilities, monsters)
}

func eachYAML(dir string, fn func(path string, dec *yaml.Decoder) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading catalog dir %q: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %q: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := fn(path, dec); err != nil {
			return err
		}
	}
	return nil
}
