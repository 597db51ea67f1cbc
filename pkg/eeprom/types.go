package eeprom

import (
	"slices"
	"strings"
)

// types maps at24 driver device names to capacity in bytes.
var types = map[string]int{
	"24c00":   16,
	"24c01":   128,
	"24c02":   256,
	"spd":     256,
	"24c04":   512,
	"24c08":   1024,
	"24c16":   2048,
	"24c32":   4096,
	"24c64":   8192,
	"24c128":  16384,
	"24c256":  32768,
	"24c512":  65536,
	"24c1024": 131072,
	"24c2048": 262144,
}

// TypeSize returns the capacity in bytes of the named device type.
func TypeSize(name string) (int, bool) {
	size, ok := types[name]

	return size, ok
}

// Types returns the known device type names, smallest capacity first.
func Types() []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}

	slices.SortFunc(names, func(a, b string) int {
		if d := types[a] - types[b]; d != 0 {
			return d
		}

		return strings.Compare(a, b)
	})

	return names
}
