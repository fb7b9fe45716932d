package simulation

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// TimelineEvent is one line of the simulator timeline: "time | model | event".
type TimelineEvent struct {
	Time  float64
	Model string
	Event string
}

// Armed reports a protection that picked up.
func (e TimelineEvent) Armed() bool {
	ev := strings.ToLower(e.Event)
	return strings.Contains(ev, "armed") && !strings.Contains(ev, "disarmed")
}

// Disarmed reports a protection that reset without acting.
func (e TimelineEvent) Disarmed() bool {
	return strings.Contains(strings.ToLower(e.Event), "disarmed")
}

// Trip reports an element opening.
func (e TimelineEvent) Trip() bool {
	ev := strings.ToLower(e.Event)
	return strings.Contains(ev, "trip") || strings.Contains(ev, "disconnect")
}

// ParseTimeline reads a timeline. Blank lines are skipped; a truncated last line
// from an interrupted run is ignored.
func ParseTimeline(r io.Reader) ([]TimelineEvent, error) {
	var events []TimelineEvent
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		parts := strings.SplitN(text, "|", 3)
		if len(parts) != 3 {
			continue
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return events, errors.Wrapf(err, "timeline line %d", line)
		}
		events = append(events, TimelineEvent{
			Time:  t,
			Model: strings.TrimSpace(parts[1]),
			Event: strings.TrimSpace(parts[2]),
		})
	}
	if err := sc.Err(); err != nil {
		return events, errors.Wrap(err, "failed to read timeline")
	}
	return events, nil
}

// LoadState is the active power of one load before and after the disturbance.
type LoadState struct {
	ID string  `json:"id"`
	P0 float64 `json:"p0"`
	P  float64 `json:"p"`
}

// FinalState is the network state written by the simulator at the end of a run.
type FinalState struct {
	Time  float64     `json:"time"`
	Loads []LoadState `json:"loads"`
}

// LoadShedding is the percentage of initial load no longer served.
func (fs *FinalState) LoadShedding() float64 {
	var p0, p float64
	for _, l := range fs.Loads {
		p0 += l.P0
		p += max(l.P, 0)
	}
	if p0 <= 0 {
		return 0
	}
	return min(max(100*(p0-p)/p0, 0), 100)
}

func readTimeline(path string) ([]TimelineEvent, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTimeline(f)
}

// readFinalState returns nil when the simulator did not get far enough to write one.
func readFinalState(path string) (*FinalState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var fs FinalState
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, errors.Wrap(err, "invalid final state")
	}
	return &fs, nil
}
