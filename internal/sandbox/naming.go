package sandbox

import "strings"

// MaxUnitNameLen caps jail names at the hostname label limit; the name
// doubles as host.hostname, the clone dataset component, and the rctl rule
// subject.
const MaxUnitNameLen = 63

// UnitName derives the deterministic jail name for a scope key:
// prefix + slug of the scope key, truncated to MaxUnitNameLen.
func UnitName(prefix string, key ScopeKey) string {
	name := Slug(prefix + key.String())
	if len(name) > MaxUnitNameLen {
		name = strings.TrimRight(name[:MaxUnitNameLen], "-")
	}
	return name
}

// Slug lowercases s and maps every character outside [a-z0-9] to '-',
// collapsing runs and trimming the ends. The result is safe as a jail name,
// hostname, and ZFS dataset component.
func Slug(s string) string {
	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
