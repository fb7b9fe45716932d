// Package allocation apportions an integer job budget across weighted entries
// with the highest-averages (d'Hondt) method.
package allocation

import (
	"cmp"

	"github.com/addrummond/heap"
)

type seat struct {
	index   int
	weight  float64
	divisor int
}

func (s *seat) quotient() float64 {
	return s.weight / float64(s.divisor)
}

// Cmp orders by quotient, lower index first on ties.
func (s *seat) Cmp(o *seat) int {
	if c := cmp.Compare(s.quotient(), o.quotient()); c != 0 {
		return c
	}
	return cmp.Compare(o.index, s.index)
}

// Allocate distributes total jobs over weights. Entries with a non-positive
// weight receive nothing; if no weight is positive every entry receives zero.
// Otherwise the result sums to exactly total.
func Allocate(weights []float64, total int) []int {
	out := make([]int, len(weights))
	if total <= 0 {
		return out
	}

	var h heap.Heap[seat, heap.Max]
	positive := 0
	for i, w := range weights {
		if w > 0 {
			heap.PushOrderable(&h, seat{index: i, weight: w, divisor: 1})
			positive++
		}
	}
	if positive == 0 {
		return out
	}

	for range total {
		s, _ := heap.PopOrderable(&h)
		out[s.index]++
		s.divisor++
		heap.PushOrderable(&h, s)
	}
	return out
}
