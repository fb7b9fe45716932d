package grid

import (
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Category is the closed set of generation technologies the screening checks know about.
type Category int

const (
	CategoryThermal Category = iota + 1
	CategoryNuclear
	CategoryHydro
	CategoryGas
	CategorySolarPV
	CategoryWind
	CategoryBattery
)

var categoryNames = map[Category]string{
	CategoryThermal: "thermal",
	CategoryNuclear: "nuclear",
	CategoryHydro:   "hydro",
	CategoryGas:     "gas",
	CategorySolarPV: "pv",
	CategoryWind:    "wind",
	CategoryBattery: "battery",
}

// ErrUnknownCategory is returned when a snapshot names a fuel/category outside the closed set.
var ErrUnknownCategory = errors.New("unknown generator category")

// ParseCategory classifies a category string. Unrecognised values are an error, never a default.
func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "thermal", "coal", "oil":
		return CategoryThermal, nil
	case "nuclear":
		return CategoryNuclear, nil
	case "hydro":
		return CategoryHydro, nil
	case "gas", "ccgt", "ocgt":
		return CategoryGas, nil
	case "pv", "solar":
		return CategorySolarPV, nil
	case "wind", "wind_onshore", "wind_offshore":
		return CategoryWind, nil
	case "battery", "storage":
		return CategoryBattery, nil
	}
	return 0, errors.Wrapf(ErrUnknownCategory, "%q", s)
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "invalid"
}

// InverterBased reports whether the unit connects through power electronics
// (no inertia, limited fault current).
func (c Category) InverterBased() bool {
	switch c {
	case CategorySolarPV, CategoryWind, CategoryBattery:
		return true
	}
	return false
}

// UnmarshalYAML makes snapshot decoding fail on unknown categories.
func (c *Category) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	*c = parsed
	return nil
}

// MarshalYAML writes the canonical category name.
func (c Category) MarshalYAML() (interface{}, error) {
	if _, ok := categoryNames[c]; !ok {
		return nil, errors.Newf("cannot encode invalid category %d", int(c))
	}
	return c.String(), nil
}
