// Package contingency enumerates the credible disturbances of a campaign.
package contingency

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrConfiguration marks a network or catalog setting that makes the campaign meaningless.
// It is raised before any simulation starts.
var ErrConfiguration = errors.New("configuration error")

// BaseID is the identifier of the reserved no-event contingency.
const BaseID = "BASE"

// Kind groups contingencies by how many elements they remove.
type Kind int

const (
	KindBase Kind = iota
	KindN1
	KindN2
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindN1:
		return "N-1"
	case KindN2:
		return "N-2"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// EventKind is the type of an initiating sub-event.
type EventKind int

const (
	EventFault EventKind = iota + 1
	EventClearFault
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventFault:
		return "fault"
	case EventClearFault:
		return "clear_fault"
	case EventDisconnect:
		return "disconnect"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Side selects which breaker of a line an event acts on.
type Side int

const (
	SideBoth Side = iota
	SideFrom
	SideTo
)

func (s Side) String() string {
	switch s {
	case SideFrom:
		return "from"
	case SideTo:
		return "to"
	}
	return "both"
}

// Event is one timestamped initiating sub-event.
type Event struct {
	Time    float64   // seconds from simulation start
	Kind    EventKind
	Element string    // line id, or bus id for faults
	Side    Side
}

// Contingency is immutable once the catalog is built.
type Contingency struct {
	ID           string
	Kind         Kind
	Frequency    float64 // events per year
	Events       []Event // ordered by time
	ClearingTime float64 // seconds between fault and final clearing; 0 without a fault
	FaultBus     string  // empty without a fault
	// Parallel circuits represented by this contingency.
	Circuits []string
}

// HasFault reports whether the contingency applies a short circuit.
func (c *Contingency) HasFault() bool {
	return c.FaultBus != "" && c.ClearingTime > 0
}

// Disconnected returns the ids of the lines removed by the contingency.
func (c *Contingency) Disconnected() []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range c.Events {
		if e.Kind == EventDisconnect && !seen[e.Element] {
			seen[e.Element] = true
			out = append(out, e.Element)
		}
	}
	return out
}

func (c *Contingency) String() string {
	return fmt.Sprintf("%s(%s, f=%.3g/yr)", c.ID, c.Kind, c.Frequency)
}
