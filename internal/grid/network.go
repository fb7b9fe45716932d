// Package grid is the read-only network model consumed by the catalog and the screening oracle.
// A Network is one static operating point: topology plus the dispatch computed upstream.
package grid

import (
	"slices"
)

// Bus is an electrical node.
type Bus struct {
	ID        string  `yaml:"id"`
	NominalKV float64 `yaml:"nominal_kv"`
	// Three-phase short-circuit power at the bus with all sources connected.
	ShortCircuitMVA float64 `yaml:"short_circuit_mva"`
}

// Line is an AC branch between two buses.
type Line struct {
	ID       string  `yaml:"id"`
	From     string  `yaml:"from"`
	To       string  `yaml:"to"`
	LengthKm float64 `yaml:"length_km"`
	R        float64 `yaml:"r"`
	X        float64 `yaml:"x"`
}

// Generator is a synchronous or inverter-based source.
type Generator struct {
	ID       string   `yaml:"id"`
	Bus      string   `yaml:"bus"`
	Category Category `yaml:"category"`
	P        float64  `yaml:"p"`     // MW dispatched
	PMax     float64  `yaml:"p_max"` // MW
	SNom     float64  `yaml:"s_nom"` // MVA
	H        float64  `yaml:"h"`     // inertia constant, s on SNom
	// Contribution of this unit to the short-circuit power of its bus.
	ShortCircuitMVA float64 `yaml:"short_circuit_mva"`
	// Maximum electrical power transfer before and after the disturbance (MW),
	// i.e. E'V/X of the reduced machine-infinite-bus equivalent.
	TransferLimitMW          float64 `yaml:"transfer_limit_mw"`
	PostFaultTransferLimitMW float64 `yaml:"post_fault_transfer_limit_mw"`
	// Part of the shared frequency reference (omega ref) model.
	FrequencyReference bool `yaml:"frequency_reference"`
}

// Load is a consumption point.
type Load struct {
	ID  string  `yaml:"id"`
	Bus string  `yaml:"bus"`
	P   float64 `yaml:"p"` // MW
}

// Network is a static operating point snapshot.
type Network struct {
	Name       string      `yaml:"name"`
	Buses      []Bus       `yaml:"buses"`
	Lines      []Line      `yaml:"lines"`
	Generators []Generator `yaml:"generators"`
	Loads      []Load      `yaml:"loads"`
}

// Bus returns the bus with the given id.
func (n *Network) Bus(id string) (Bus, bool) {
	for _, b := range n.Buses {
		if b.ID == id {
			return b, true
		}
	}
	return Bus{}, false
}

// LinesAt returns the lines connected to a bus, in file order.
func (n *Network) LinesAt(bus string) []Line {
	var out []Line
	for _, l := range n.Lines {
		if l.From == bus || l.To == bus {
			out = append(out, l)
		}
	}
	return out
}

// Neighbours returns the buses one line away from bus, sorted, without duplicates.
func (n *Network) Neighbours(bus string) []string {
	var out []string
	for _, l := range n.LinesAt(bus) {
		other := l.To
		if other == bus {
			other = l.From
		}
		if !slices.Contains(out, other) {
			out = append(out, other)
		}
	}
	slices.Sort(out)
	return out
}

// GeneratorsNear returns generators at bus or at an adjacent bus.
func (n *Network) GeneratorsNear(bus string) []Generator {
	zone := append([]string{bus}, n.Neighbours(bus)...)
	var out []Generator
	for _, g := range n.Generators {
		if slices.Contains(zone, g.Bus) {
			out = append(out, g)
		}
	}
	return out
}

// TotalLoad is the sum of load consumption in MW.
func (n *Network) TotalLoad() float64 {
	var total float64
	for _, l := range n.Loads {
		total += l.P
	}
	return total
}

// FrequencyReferenceMachines returns the ids of the synchronous machines wired to
// the shared frequency reference.
func (n *Network) FrequencyReferenceMachines() []string {
	var out []string
	for _, g := range n.Generators {
		if g.FrequencyReference && !g.Category.InverterBased() {
			out = append(out, g.ID)
		}
	}
	return out
}
