package sim

import (
	"fmt"
	"sort"
)

// Bundle is a batch of physical parameters applied with a single
// recompute. Zero fields leave the current value unchanged.
type Bundle struct {
	Name             string  `json:"name,omitempty"`
	SizeM            float64 `json:"size_m,omitempty"`
	SpeedKms         float64 `json:"speed_kms,omitempty"`
	DensityKgm3      float64 `json:"density_kgm3,omitempty"`
	ApproachAngleDeg float64 `json:"approach_angle_deg,omitempty"`
}

// Preset is a named entry in the fixed registry.
type Preset struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Bundle      Bundle `json:"bundle"`
}

var presets = map[string]Preset{
	"chelyabinsk": {
		ID:          "chelyabinsk",
		Description: "2013 airburst over the southern Urals",
		Bundle:      Bundle{Name: "Chelyabinsk", SizeM: 20, SpeedKms: 19, DensityKgm3: 3300},
	},
	"tunguska": {
		ID:          "tunguska",
		Description: "1908 airburst over Siberia",
		Bundle:      Bundle{Name: "Tunguska", SizeM: 60, SpeedKms: 15, DensityKgm3: 2200},
	},
	"apophis": {
		ID:          "apophis",
		Description: "99942 Apophis, 2029 close approach",
		Bundle:      Bundle{Name: "Apophis", SizeM: 370, SpeedKms: 12.6, DensityKgm3: 2600},
	},
	"bennu": {
		ID:          "bennu",
		Description: "101955 Bennu, OSIRIS-REx sample target",
		Bundle:      Bundle{Name: "Bennu", SizeM: 490, SpeedKms: 12.7, DensityKgm3: 1190},
	},
	"chicxulub": {
		ID:          "chicxulub",
		Description: "End-Cretaceous impactor",
		Bundle:      Bundle{Name: "Chicxulub", SizeM: 10000, SpeedKms: 20, DensityKgm3: 3000},
	},
}

// LookupPreset returns the preset with the given id.
func LookupPreset(id string) (Preset, error) {
	p, ok := presets[id]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
	}
	return p, nil
}

// Presets returns the registry sorted by id.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
