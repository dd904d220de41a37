package catalog

import (
	"sync"
	"sync/atomic"
)

// Store publishes the current Catalog and Tuning to every running encounter.
// Readers never block; a reload swaps the pointer and leaves in-flight
// readers with the snapshot they already hold.
type Store struct {
	catalog atomic.Pointer[Catalog]
	tuning  atomic.Pointer[Tuning]
	// writeMu orders SetTuning calls so versions are strictly increasing.
	writeMu sync.Mutex
}

// NewStore creates a Store publishing cat with the default tuning.
//
// Precondition: cat must be non-nil.
func NewStore(cat *Catalog) *Store {
	s := &Store{}
	s.catalog.Store(cat)
	t := DefaultTuning()
	t.Version = 1
	s.tuning.Store(&t)
	return s
}

// Current returns the published Catalog.
func (s *Store) Current() *Catalog { return s.catalog.Load() }

// Tuning returns the published Tuning snapshot.
func (s *Store) Tuning() Tuning { return *s.tuning.Load() }

// Swap publishes a freshly loaded catalog.
//
// Precondition: cat must be non-nil.
func (s *Store) Swap(cat *Catalog) { s.catalog.Store(cat) }

// SetTuning validates and publishes t with the next version number.
//
// Postcondition: On success Tuning().Version is one greater than before.
func (s *Store) SetTuning(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	per := make(map[string]float64, len(t.PerAbility))
	for id, m := range t.PerAbility {
		per[id] = m
	}
	t.PerAbility = per
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	t.Version = s.tuning.Load().Version + 1
	s.tuning.Store(&t)
	return nil
}

// Reload rebuilds the catalog from root and publishes it. On error the
// previous catalog stays published.
func (s *Store) Reload(root string) error {
	cat, err := LoadDirectory(root)
	if err != nil {
		return err
	}
	s.Swap(cat)
	return nil
}
