// Package ledger holds the player's resource balances and storage caps.
package ledger

import (
	"math"
	"sort"
	"sync"
)

// Gold is the resource id of the currency every trade settles in.
const Gold = "gold"

// Ledger is a thread-safe in-memory set of resource balances.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[string]float64
	caps       map[string]float64
	defaultCap float64
}

// New creates a ledger. caps overrides the storage cap per resource; other
// resources use defaultCap, where defaultCap <= 0 means unlimited. Gold is
// unlimited unless capped explicitly.
func New(caps map[string]float64, defaultCap float64) *Ledger {
	c := make(map[string]float64, len(caps))
	for id, v := range caps {
		c[id] = v
	}
	return &Ledger{
		balances:   make(map[string]float64),
		caps:       c,
		defaultCap: defaultCap,
	}
}

// Balance returns the current balance of a resource (0 when never set).
func (l *Ledger) Balance(resource string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[resource]
}

// SetBalance overwrites the balance of a resource.
func (l *Ledger) SetBalance(resource string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[resource] = amount
}

// StorageCap returns the maximum balance a resource may reach; +Inf when unlimited.
func (l *Ledger) StorageCap(resource string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if c, ok := l.caps[resource]; ok && c > 0 {
		return c
	}
	if resource == Gold || l.defaultCap <= 0 {
		return math.Inf(1)
	}
	return l.defaultCap
}

// Balances returns a copy of every balance.
func (l *Ledger) Balances() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]float64, len(l.balances))
	for id, v := range l.balances {
		out[id] = v
	}
	return out
}

// Restore replaces all balances, typically with values loaded from storage.
func (l *Ledger) Restore(balances map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = make(map[string]float64, len(balances))
	for id, v := range balances {
		l.balances[id] = v
	}
}

// Resources returns the ids of every resource with a recorded balance, sorted.
func (l *Ledger) Resources() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
