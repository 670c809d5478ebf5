// Package intern provides a process-wide table that deduplicates the
// short, high-repetition strings records and stages carry — writer
// names, level names, application names, tags. Every record field that
// spec.md §3 calls out as "interned" is obtained through a Table so
// that a long-running process holding millions of records only pays
// for each distinct string once.
package intern

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"logcore/internal/metrics"
)

// Table deduplicates strings by content. The zero value is not usable;
// construct with New.
type Table struct {
	mu      sync.RWMutex
	entries map[uint64][]string
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[uint64][]string)}
}

// Intern returns the canonical instance of s, inserting it on first
// sight. Two calls with equal content always return the identical
// string value, so callers can compare interned strings with == instead
// of strings.Compare once both sides came from the same Table.
func (t *Table) Intern(s string) string {
	if s == "" {
		return ""
	}
	h := xxhash.Sum64String(s)

	t.mu.RLock()
	for _, candidate := range t.entries[h] {
		if candidate == s {
			t.mu.RUnlock()
			return candidate
		}
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, candidate := range t.entries[h] {
		if candidate == s {
			return candidate
		}
	}
	t.entries[h] = append(t.entries[h], s)
	metrics.InternedStringsTotal.Inc()
	return s
}

// Len reports the number of distinct strings currently interned.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, bucket := range t.entries {
		n += len(bucket)
	}
	return n
}
