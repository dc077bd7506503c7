package sla

import (
	"sync"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// DedupKey identifies one alert within a dedup window.
type DedupKey struct {
	TicketID string
	Phase    domain.SLAPhase
	Kind     AlertKind
}

// DedupSet remembers which alerts were already emitted in the current window.
// It is process-local and safe for concurrent use by overlapping sweeps.
type DedupSet struct {
	mu   sync.Mutex
	seen map[DedupKey]struct{}
}

// NewDedupSet returns an empty set.
func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[DedupKey]struct{})}
}

// TryMark records key and reports whether it was absent.
func (d *DedupSet) TryMark(key DedupKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Forget drops key so the alert may be emitted again.
func (d *DedupSet) Forget(key DedupKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Clear starts a new window and returns how many keys were dropped.
func (d *DedupSet) Clear() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.seen)
	d.seen = make(map[DedupKey]struct{})
	return n
}

// Len returns the number of keys in the current window.
func (d *DedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
