package grid

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// SnapshotExt is the file extension of static operating point files.
const SnapshotExt = ".yaml"

// Reader provides read-only snapshots by static id.
type Reader interface {
	Snapshot(staticID string) (*Network, error)
}

// ReadFile decodes a network snapshot. Unknown fields and categories are rejected.
func ReadFile(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read network %s", path)
	}
	return Decode(data)
}

// Decode parses a YAML network snapshot.
func Decode(data []byte) (*Network, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var n Network
	if err := dec.Decode(&n); err != nil {
		return nil, errors.Wrap(err, "failed to decode network")
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

func (n *Network) validate() error {
	seen := make(map[string]bool, len(n.Buses))
	for _, b := range n.Buses {
		if b.ID == "" {
			return errors.New("bus with empty id")
		}
		if seen[b.ID] {
			return errors.Newf("duplicate bus %q", b.ID)
		}
		seen[b.ID] = true
	}
	for _, l := range n.Lines {
		if !seen[l.From] || !seen[l.To] {
			return errors.Newf("line %q references unknown bus", l.ID)
		}
		if l.From == l.To {
			return errors.Newf("line %q connects bus %q to itself", l.ID, l.From)
		}
	}
	for _, g := range n.Generators {
		if !seen[g.Bus] {
			return errors.Newf("generator %q references unknown bus %q", g.ID, g.Bus)
		}
		if g.Category == 0 {
			return errors.Wrapf(ErrUnknownCategory, "generator %q has no category", g.ID)
		}
	}
	for _, l := range n.Loads {
		if !seen[l.Bus] {
			return errors.Newf("load %q references unknown bus %q", l.ID, l.Bus)
		}
	}
	return nil
}

// Dir serves snapshots from a directory of <static id>.yaml files.
type Dir struct {
	Path string
}

// Snapshot implements Reader.
func (d Dir) Snapshot(staticID string) (*Network, error) {
	return ReadFile(filepath.Join(d.Path, staticID+SnapshotExt))
}

// StaticIDs lists the operating points available in the directory, sorted.
func (d Dir) StaticIDs() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list static directory %s", d.Path)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != SnapshotExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), SnapshotExt))
	}
	slices.Sort(ids)
	if len(ids) == 0 {
		return nil, errors.WithHint(errors.Newf("no %s snapshots in %s", SnapshotExt, d.Path),
			"run the dispatch generation stage first")
	}
	return ids, nil
}
