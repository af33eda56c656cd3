// Package idalloc implements a smallest-free-integer allocator over a
// bounded id space, backed by a sorted set of free intervals.
package idalloc

import (
	"fmt"
	"sort"
)

// interval is an inclusive [lo, hi] range of free ids.
type interval struct {
	lo, hi uint32
}

// Allocator hands out the smallest available id in [0, limit) and tracks
// released ids so they can be reused. The zero value is not usable; call
// New.
type Allocator struct {
	limit uint32
	free  []interval
}

// New returns an Allocator over the id space [0, limit).
func New(limit uint32) *Allocator {
	a := &Allocator{limit: limit}
	if limit > 0 {
		a.free = []interval{{lo: 0, hi: limit - 1}}
	}
	return a
}

// Allocate returns the smallest free id, or an error if the space is
// exhausted.
func (a *Allocator) Allocate() (uint32, error) {
	if len(a.free) == 0 {
		return 0, fmt.Errorf("idalloc: id space exhausted")
	}
	iv := &a.free[0]
	id := iv.lo
	if iv.lo == iv.hi {
		a.free = a.free[1:]
	} else {
		iv.lo++
	}
	return id, nil
}

// Reserve marks a specific id as allocated, failing if it is already in
// use or out of range. Used to seed well-known ids (object id 0 is never
// valid in DRM, so callers typically reserve nothing and rely on
// Allocate starting at 0, but drivers that need a fixed id layout can use
// this).
func (a *Allocator) Reserve(id uint32) error {
	for i := range a.free {
		iv := &a.free[i]
		if id < iv.lo || id > iv.hi {
			continue
		}
		switch {
		case iv.lo == iv.hi:
			a.free = append(a.free[:i], a.free[i+1:]...)
		case id == iv.lo:
			iv.lo++
		case id == iv.hi:
			iv.hi--
		default:
			right := interval{lo: id + 1, hi: iv.hi}
			iv.hi = id - 1
			a.free = append(a.free[:i+1], append([]interval{right}, a.free[i+1:]...)...)
		}
		return nil
	}
	return fmt.Errorf("idalloc: id %d already in use", id)
}

// Free releases id back to the pool, merging it with adjacent free
// intervals. Freeing an id that is not currently allocated is a no-op by
// design: callers that track their own handle tables (File's BO handle
// table, the blob table) only ever call Free once per successful
// Allocate/Reserve, so double-free would indicate a bug elsewhere rather
// than something this type needs to defend against.
func (a *Allocator) Free(id uint32) {
	if id >= a.limit || !a.InUse(id) {
		return
	}
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].lo > id })

	mergeLeft := i > 0 && a.free[i-1].hi+1 == id
	mergeRight := i < len(a.free) && a.free[i].lo == id+1

	switch {
	case mergeLeft && mergeRight:
		a.free[i-1].hi = a.free[i].hi
		a.free = append(a.free[:i], a.free[i+1:]...)
	case mergeLeft:
		a.free[i-1].hi = id
	case mergeRight:
		a.free[i].lo = id
	default:
		a.free = append(a.free, interval{})
		copy(a.free[i+1:], a.free[i:])
		a.free[i] = interval{lo: id, hi: id}
	}
}

// InUse reports whether id is currently allocated.
func (a *Allocator) InUse(id uint32) bool {
	if id >= a.limit {
		return false
	}
	for _, iv := range a.free {
		if id >= iv.lo && id <= iv.hi {
			return false
		}
	}
	return true
}
