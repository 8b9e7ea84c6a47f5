package contacts

import (
	"sort"
	"strings"

	"github.com/gettogether/peersync/internal/snapshot"
)

// Cache holds per-account contact maps as copy-on-write snapshots.
type Cache struct {
	accounts *snapshot.Map[map[string]Contact]
}

// NewCache creates an empty contact cache.
func NewCache() *Cache {
	return &Cache{accounts: snapshot.NewMap[map[string]Contact]()}
}

// Get returns one contact.
func (c *Cache) Get(accountID, uri string) (Contact, bool) {
	inner, ok := c.accounts.Get(accountID)
	if !ok {
		return Contact{}, false
	}
	ct, ok := inner[uri]
	return ct, ok
}

// List returns the account's contacts sorted by effective name.
func (c *Cache) List(accountID string) []Contact {
	inner, _ := c.accounts.Get(accountID)
	out := make([]Contact, 0, len(inner))
	for _, ct := range inner {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].EffectiveName()), strings.ToLower(out[j].EffectiveName())
		if a != b {
			return a < b
		}
		return out[i].URI < out[j].URI
	})
	return out
}

// Update applies fn to one contact, cloning the account map. If fn returns
// false nothing is written. Reports whether a write happened.
func (c *Cache) Update(accountID, uri string, fn func(cur Contact, ok bool) (Contact, bool)) bool {
	wrote := false
	c.accounts.Update(accountID, func(inner map[string]Contact, _ bool) (map[string]Contact, bool) {
		cur, ok := inner[uri]
		next, write := fn(cur, ok)
		if !write {
			return inner, false
		}
		clone := make(map[string]Contact, len(inner)+1)
		for k, v := range inner {
			clone[k] = v
		}
		clone[uri] = next
		wrote = true
		return clone, true
	})
	return wrote
}

// Delete removes one contact. Reports whether it was present.
func (c *Cache) Delete(accountID, uri string) bool {
	removed := false
	c.accounts.Update(accountID, func(inner map[string]Contact, _ bool) (map[string]Contact, bool) {
		if _, ok := inner[uri]; !ok {
			return inner, false
		}
		clone := make(map[string]Contact, len(inner))
		for k, v := range inner {
			if k != uri {
				clone[k] = v
			}
		}
		removed = true
		return clone, true
	})
	return removed
}

// Replace installs the full contact map for an account.
func (c *Cache) Replace(accountID string, next map[string]Contact) {
	if next == nil {
		next = make(map[string]Contact)
	}
	c.accounts.Set(accountID, next)
}

// Snapshot returns the account's current contact map. Callers must not
// mutate it.
func (c *Cache) Snapshot(accountID string) map[string]Contact {
	inner, _ := c.accounts.Get(accountID)
	return inner
}

// ClearAccount drops every contact of an account.
func (c *Cache) ClearAccount(accountID string) {
	c.accounts.Delete(accountID)
}
