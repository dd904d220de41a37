// Package dice provides the randomness abstraction used by the encounter
// engine for aggro-weighted target selection.
package dice

// Source is the randomness provider for combat decisions.
//
// Implementations returned by NewCryptoSource are safe for concurrent use.
// Seeded sources are owned by a single encounter and are not.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// WeightedIndex picks an index into weights with probability proportional to
// its weight. Non-positive weights are never selected.
//
// Precondition: src must be non-nil.
// Postcondition: Returns -1 iff no weight is positive; otherwise an index i
// with weights[i] > 0.
func WeightedIndex(src Source, weights []int) int {
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return -1
	}
	roll := src.Intn(total)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if roll < w {
			return i
		}
		roll -= w
	}
	return -1
}
