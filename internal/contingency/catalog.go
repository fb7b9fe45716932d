package contingency

import (
	"cmp"
	"fmt"
	"slices"

	"pdsa/internal/config"
	"pdsa/internal/grid"

	"github.com/cockroachdb/errors"
)

// circuitGroup is a set of parallel lines with identical electrical endpoints.
type circuitGroup struct {
	rep      grid.Line
	circuits []string
	length   float64
}

// Build enumerates the full catalog: base, N-1 and (when enabled) N-2 contingencies.
func Build(net *grid.Network, cfg config.CatalogConfig) ([]*Contingency, error) {
	list := []*Contingency{CreateBase(cfg)}

	n1, err := CreateN1(net, cfg)
	if err != nil {
		return nil, err
	}
	list = append(list, n1...)

	if cfg.EnableN2 {
		n2, err := CreateN2(net, cfg)
		if err != nil {
			return nil, err
		}
		list = append(list, n2...)
	}
	return MergeIdentical(list), nil
}

// CreateBase returns the no-event contingency. Its frequency is nominal and only
// keeps it in the sampling pool.
func CreateBase(cfg config.CatalogConfig) *Contingency {
	return &Contingency{
		ID:        BaseID,
		Kind:      KindBase,
		Frequency: cfg.BaseFrequency,
	}
}

// CreateN1 creates a normal-clearing and a delayed-clearing contingency per
// qualifying circuit group.
func CreateN1(net *grid.Network, cfg config.CatalogConfig) ([]*Contingency, error) {
	groups, err := qualifyingGroups(net, cfg)
	if err != nil {
		return nil, err
	}

	var out []*Contingency
	for _, g := range groups {
		rate := cfg.FaultRatePerKm * g.length
		t0 := cfg.FaultTime

		variants := []struct {
			suffix   string
			clearing float64
			prob     float64
		}{
			{"NORMAL", cfg.NormalClearingTime, 1 - cfg.DelayedClearingProbability},
			{"DELAYED", cfg.DelayedClearingTime, cfg.DelayedClearingProbability},
		}
		for _, v := range variants {
			freq := rate * v.prob
			if freq <= 0 {
				continue
			}
			out = append(out, &Contingency{
				ID:           fmt.Sprintf("N1_%s_%s", g.rep.ID, v.suffix),
				Kind:         KindN1,
				Frequency:    freq,
				ClearingTime: v.clearing,
				FaultBus:     g.rep.From,
				Circuits:     g.circuits,
				Events: []Event{
					{Time: t0, Kind: EventFault, Element: g.rep.From},
					{Time: t0 + v.clearing, Kind: EventDisconnect, Element: g.rep.ID, Side: SideBoth},
					{Time: t0 + v.clearing, Kind: EventClearFault, Element: g.rep.From},
				},
			})
		}
	}
	return out, nil
}

// CreateN2 creates the fault plus stuck-breaker contingencies: for each circuit
// group, both fault sides times both stuck breaker sides. Breaker failure
// protection clears the fault by tripping every other line at the stuck side's bus.
func CreateN2(net *grid.Network, cfg config.CatalogConfig) ([]*Contingency, error) {
	groups, err := qualifyingGroups(net, cfg)
	if err != nil {
		return nil, err
	}

	var out []*Contingency
	for _, g := range groups {
		freq := cfg.FaultRatePerKm * g.length * 0.5 * cfg.StuckBreakerProbability
		if freq <= 0 {
			continue
		}
		t0 := cfg.FaultTime
		for _, faultSide := range []Side{SideFrom, SideTo} {
			for _, stuckSide := range []Side{SideFrom, SideTo} {
				faultBus := busAt(g.rep, faultSide)
				stuckBus := busAt(g.rep, stuckSide)
				healthy := SideTo
				if stuckSide == SideTo {
					healthy = SideFrom
				}

				events := []Event{
					{Time: t0, Kind: EventFault, Element: faultBus},
					{Time: t0 + cfg.NormalClearingTime, Kind: EventDisconnect, Element: g.rep.ID, Side: healthy},
				}
				tb := t0 + cfg.BackupClearingTime
				for _, l := range net.LinesAt(stuckBus) {
					if l.ID == g.rep.ID {
						continue
					}
					events = append(events, Event{Time: tb, Kind: EventDisconnect, Element: l.ID, Side: sideOf(l, stuckBus)})
				}
				events = append(events,
					Event{Time: tb, Kind: EventDisconnect, Element: g.rep.ID, Side: stuckSide},
					Event{Time: tb, Kind: EventClearFault, Element: faultBus},
				)

				out = append(out, &Contingency{
					ID:           fmt.Sprintf("N2_%s_F%s_S%s", g.rep.ID, faultSide, stuckSide),
					Kind:         KindN2,
					Frequency:    freq,
					ClearingTime: cfg.BackupClearingTime,
					FaultBus:     faultBus,
					Circuits:     g.circuits,
					Events:       events,
				})
			}
		}
	}
	return out, nil
}

// MergeIdentical is the hook for merging contingencies with identical event sets
// once substation topology is modelled. It currently returns its input unchanged.
func MergeIdentical(list []*Contingency) []*Contingency {
	return list
}

// checkSecurity rejects networks where a bus above the contingency voltage has
// fewer than two connected lines: N-1 security cannot be claimed for them.
func checkSecurity(net *grid.Network, cfg config.CatalogConfig) error {
	for _, b := range net.Buses {
		if b.NominalKV < cfg.MinVoltageKV {
			continue
		}
		if n := len(net.LinesAt(b.ID)); n < 2 {
			return errors.WithHint(
				errors.Wrapf(ErrConfiguration, "bus %s (%.0f kV) has %d connected line(s)", b.ID, b.NominalKV, n),
				"lower catalog.min_voltage_kv or fix the network model")
		}
	}
	return nil
}

// qualifyingGroups groups the parallel circuits above the contingency voltage.
// Every catalog entry point goes through it, so it also runs the security check.
func qualifyingGroups(net *grid.Network, cfg config.CatalogConfig) ([]circuitGroup, error) {
	if err := checkSecurity(net, cfg); err != nil {
		return nil, err
	}

	type key struct {
		a, b string
		r, x float64
	}
	index := make(map[key]int)
	var groups []circuitGroup

	for _, l := range net.Lines {
		from, ok := net.Bus(l.From)
		if !ok {
			return nil, errors.Wrapf(ErrConfiguration, "line %s: unknown bus %s", l.ID, l.From)
		}
		to, ok := net.Bus(l.To)
		if !ok {
			return nil, errors.Wrapf(ErrConfiguration, "line %s: unknown bus %s", l.ID, l.To)
		}
		if min(from.NominalKV, to.NominalKV) < cfg.MinVoltageKV {
			continue
		}
		if l.LengthKm <= 0 {
			return nil, errors.Wrapf(ErrConfiguration, "line %s has non-positive length %g", l.ID, l.LengthKm)
		}

		a, b := l.From, l.To
		if cmp.Less(b, a) {
			a, b = b, a
		}
		k := key{a: a, b: b, r: l.R, x: l.X}
		if i, ok := index[k]; ok {
			groups[i].circuits = append(groups[i].circuits, l.ID)
			groups[i].length += l.LengthKm
			continue
		}
		index[k] = len(groups)
		groups = append(groups, circuitGroup{rep: l, circuits: []string{l.ID}, length: l.LengthKm})
	}

	for i := range groups {
		slices.Sort(groups[i].circuits)
	}
	return groups, nil
}

func busAt(l grid.Line, s Side) string {
	if s == SideTo {
		return l.To
	}
	return l.From
}

func sideOf(l grid.Line, bus string) Side {
	if l.To == bus {
		return SideTo
	}
	return SideFrom
}
