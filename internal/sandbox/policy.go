package sandbox

import "time"

// HotPolicy decides whether a drifted sandbox is too recently used to
// destroy out from under an in-flight session. The clock is injectable so
// tests are deterministic; a zero window disables the deferral entirely.
type HotPolicy struct {
	Window time.Duration
	Now    func() time.Time
}

// DefaultHotWindow is how recently a sandbox must have been used to defer
// destructive reconciliation.
const DefaultHotWindow = 5 * time.Minute

func DefaultHotPolicy() HotPolicy {
	return HotPolicy{Window: DefaultHotWindow, Now: time.Now}
}

// IsHot reports whether the entry was used within the window.
func (p HotPolicy) IsHot(entry *Entry) bool {
	if entry == nil || p.Window <= 0 {
		return false
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return now().Sub(entry.LastUsedAt) < p.Window
}
