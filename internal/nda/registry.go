// Package nda tracks which requester identities have an executed NDA on
// file. Entries are exact lowercase email addresses or domain wildcards of
// the form "*@domain".
package nda

import "strings"

// Registry is an immutable NDA lookup table, populated once at startup.
type Registry struct {
	entries map[string]bool
}

// NewRegistry builds a registry from exact-address and wildcard entries.
// Entries are normalized to lowercase.
func NewRegistry(entries []string) *Registry {
	r := &Registry{entries: make(map[string]bool, len(entries))}
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			r.entries[e] = true
		}
	}
	return r
}

// Default returns the built-in registry used when no configuration is present.
func Default() *Registry {
	return NewRegistry([]string{
		"acme@example.com",
		"trusted@partner.com",
		"*@enterprise.com",
	})
}

// HasNDA reports whether the sender has an NDA on file, by exact address or
// domain wildcard. Lookup is case-insensitive. A sender without an "@" is
// treated as a literal key and degrades to exact matching only.
func (r *Registry) HasNDA(sender string) bool {
	addr := strings.ToLower(strings.TrimSpace(sender))
	if r.entries[addr] {
		return true
	}
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return r.entries["*@"+addr[i+1:]]
	}
	return false
}

// Len returns the number of registry entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entries returns the normalized entries in unspecified order.
func (r *Registry) Entries() []string {
	out := make([]string, 0, len(r.entries))
	for e := range r.entries {
		out = append(out, e)
	}
	return out
}
