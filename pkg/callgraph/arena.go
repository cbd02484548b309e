// Package callgraph tracks function-pointer aliasing and builds the
// interprocedural call graph, including indirect edges. Storage locations
// live in an arena keyed by stable identifiers; points-to sets reference
// those identifiers rather than embedding structures in each other, so deep
// aliasing through structs, arrays, and typedefs never creates ownership
// cycles.
package callgraph

import (
	"sort"
	"sync"

	"github.com/quarle/cvet/pkg/program"
)

// LocID identifies a storage location in the arena.
type LocID int

// Arena interns storage-location keys. Safe for concurrent use.
type Arena struct {
	mu   sync.RWMutex
	ids  map[string]LocID
	keys []string
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{ids: make(map[string]LocID)}
}

// Intern returns the stable ID for key, allocating one on first sight.
func (a *Arena) Intern(key string) LocID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.ids[key]; ok {
		return id
	}
	id := LocID(len(a.keys))
	a.ids[key] = id
	a.keys = append(a.keys, key)
	return id
}

// Key returns the key interned under id.
func (a *Arena) Key(id LocID) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.keys[int(id)]
}

// StorageKey canonicalizes an lvalue expression into a stable
// storage-location key. Locals are qualified by their function so distinct
// frames never alias; globals keep their bare name so every function sees
// the same location. All four assignment shapes land on the same keys:
//
//	cb = f        -> "fn::cb"            (local) or "cb" (global)
//	cb = &f       -> same as above       (address-of is identity here)
//	ops.process   -> "fn::ops.process"
//	table[0] = f  -> "table[]"           (array slots are smashed)
//
// Array smashing trades precision for soundness: a read through any index
// sees every function ever stored in the table.
func StorageKey(fnName string, isLocal func(string) bool, e *program.Expr) (string, bool) {
	switch e.Kind {
	case program.ExprIdent:
		if isLocal(e.Name) {
			return fnName + "::" + e.Name, true
		}
		return e.Name, true
	case program.ExprField:
		base, ok := StorageKey(fnName, isLocal, e.Base)
		if !ok {
			return "", false
		}
		return base + "." + e.Name, true
	case program.ExprIndex:
		base, ok := StorageKey(fnName, isLocal, e.Base)
		if !ok {
			return "", false
		}
		return base + "[]", true
	case program.ExprAddrOf:
		return StorageKey(fnName, isLocal, e.Base)
	case program.ExprUnary:
		if e.Op == "*" {
			return StorageKey(fnName, isLocal, e.Base)
		}
		return "", false
	default:
		return "", false
	}
}

// SymbolSet is a set of function symbols a location may hold.
type SymbolSet map[program.SymbolID]struct{}

// Add inserts id, reporting whether the set grew.
func (s SymbolSet) Add(id program.SymbolID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// AddAll unions other into s, reporting whether s grew.
func (s SymbolSet) AddAll(other SymbolSet) bool {
	grew := false
	for id := range other {
		if s.Add(id) {
			grew = true
		}
	}
	return grew
}

// Clone returns an independent copy.
func (s SymbolSet) Clone() SymbolSet {
	c := make(SymbolSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Sorted returns the members in ascending order.
func (s SymbolSet) Sorted() []program.SymbolID {
	out := make([]program.SymbolID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
