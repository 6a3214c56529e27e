package config

import (
	"sort"

	"github.com/san-kum/mpcsim/internal/plant"
)

// Presets are named scenarios layered on the defaults.
var Presets = map[string]func(*Config){
	"nominal": func(c *Config) {},
	"drift": func(c *Config) {
		c.PlantPreset = "drift"
		c.Plant = plant.Drift()
	},
	"matched": func(c *Config) {
		c.PlantPreset = "matched"
		c.Plant = plant.Matched()
	},
	"long": func(c *Config) {
		c.Steps = 1000
	},
}

// GetPreset returns a fresh config for the named preset, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
