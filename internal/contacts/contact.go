// Package contacts produces the authoritative per-account contact list:
// persisted contacts, the daemon's live list, profile pushes, and presence
// merged into one cache exposed to consumers as immutable snapshots.
package contacts

import "strings"

// Contact is one entry of an account's contact list.
type Contact struct {
	URI         string
	DisplayName string
	CustomName  string
	AvatarPath  string
	Online      bool
	Banned      bool
	// ProfileVersion is bumped on every profile update so downstream
	// consumers recompute derived state (avatars, initials) even when the
	// visible fields they compare happen to match.
	ProfileVersion int64
}

// EffectiveName returns the name shown in the UI: the user's custom name
// if set, else the peer's published display name, else a truncated URI.
func (c Contact) EffectiveName() string {
	if name := strings.TrimSpace(c.CustomName); name != "" {
		return name
	}
	if name := strings.TrimSpace(c.DisplayName); name != "" {
		return name
	}
	if len(c.URI) > 8 {
		return c.URI[:8] + "…"
	}
	return c.URI
}
