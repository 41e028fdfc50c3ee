package config

import (
	"path/filepath"
	"sort"
	"strings"
)

// Resolve substitutes the longest alias that matches specifier, either exactly
// or as a prefix followed by "/". It reports false when no alias applies. Only
// the prefix is rewritten; extensions and index files are left to the bundler.
func (c BuildConfiguration) Resolve(specifier string) (string, bool) {
	for _, alias := range c.aliasesByLength() {
		target := c.Aliases[alias]
		if specifier == alias {
			return target, true
		}
		if rest, ok := strings.CutPrefix(specifier, alias+"/"); ok {
			return filepath.Join(target, filepath.FromSlash(rest)), true
		}
	}
	return "", false
}

// aliasesByLength returns alias names longest first, ties broken
// lexically so the lookup is deterministic.
func (c BuildConfiguration) aliasesByLength() []string {
	names := make([]string, 0, len(c.Aliases))
	for alias := range c.Aliases {
		names = append(names, alias)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}
