package scheduler

import (
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// staticPool hands out the static ids of one contingency without replacement,
// in a permutation fixed by the contingency id.
type staticPool struct {
	order []string
	next  int
}

func newStaticPool(contingencyID string, staticIDs []string) *staticPool {
	rng := rand.New(rand.NewPCG(xxhash.Sum64String(contingencyID), 0))
	perm := rng.Perm(len(staticIDs))
	order := make([]string, len(staticIDs))
	for i, j := range perm {
		order[i] = staticIDs[j]
	}
	return &staticPool{order: order}
}

// Take returns up to n unused static ids.
func (p *staticPool) Take(n int) []string {
	n = min(n, p.Remaining())
	out := p.order[p.next : p.next+n]
	p.next += n
	return out
}

// Remaining is the number of unused static ids.
func (p *staticPool) Remaining() int {
	return len(p.order) - p.next
}

// seedCounter derives dynamic seeds: hash(static id) + a per static id counter
// starting at 1. Seed 0 is reserved for the special job and skipped.
type seedCounter struct {
	counters map[string]uint64
}

func newSeedCounter() *seedCounter {
	return &seedCounter{counters: make(map[string]uint64)}
}

func (s *seedCounter) Next(staticID string) uint64 {
	for {
		s.counters[staticID]++
		seed := xxhash.Sum64String(staticID) + s.counters[staticID]
		if seed != 0 {
			return seed
		}
	}
}
