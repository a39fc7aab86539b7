// Package cpl models compositions: reels, the typed references they
// hold, metadata, and the composition playlist document itself.
package cpl

import (
	"cinekit.dev/dcp/asset"
	"cinekit.dev/dcp/urnutil"
)

// Ref points at a Packable by identifier. A reference read from disk
// starts unresolved; Resolve binds it once the referenced asset has
// been loaded.
type Ref struct {
	id string
	a  asset.Packable
}

// NewRef builds a resolved reference.
func NewRef(a asset.Packable) Ref {
	return Ref{id: a.ID(), a: a}
}

// UnresolvedRef holds only the identifier.
func UnresolvedRef(id string) Ref {
	return Ref{id: urnutil.TrimPrefix(id)}
}

func (r *Ref) ID() string { return r.id }

// Asset returns the bound asset, if resolved.
func (r *Ref) Asset() (asset.Packable, bool) {
	return r.a, r.a != nil
}

func (r *Ref) Resolved() bool { return r.a != nil }

// Resolve binds the reference against a pool of assets. It reports
// whether a match was found; an already resolved reference is left
// alone.
func (r *Ref) Resolve(pool []asset.Packable) bool {
	if r.a != nil {
		return true
	}
	for _, a := range pool {
		if urnutil.Equal(a.ID(), r.id) {
			r.a = a
			return true
		}
	}
	return false
}
