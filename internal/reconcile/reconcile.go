package reconcile

import (
	"maps"
	"slices"
)

// Reconcile diffs c against snapshot without mutating either. Events within
// each set are ordered by key so results are deterministic.
func Reconcile[E Entity[E]](c *Collection[E], snapshot []E) (Delta[E], error) {
	candidate, err := Index(snapshot)
	if err != nil {
		return Delta[E]{}, err
	}
	var d Delta[E]
	for _, k := range c.Keys() {
		if _, ok := candidate[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(candidate)) {
		next := candidate[k]
		prev, ok := c.items[k]
		switch {
		case !ok:
			d.Added = append(d.Added, next)
		case !prev.Equal(next):
			d.Changed = append(d.Changed, next)
		}
	}
	return d, nil
}

// Apply merges d into c: removals first, then additions, then changes, so a
// key removed and re-added within one delta ends with the new payload.
func Apply[E Entity[E]](c *Collection[E], d Delta[E]) {
	for _, k := range d.Removed {
		delete(c.items, k)
	}
	for _, e := range d.Added {
		c.items[e.Key()] = e
	}
	for _, e := range d.Changed {
		c.items[e.Key()] = e
	}
}

// Sync reconciles and applies in one step. On error c is left untouched.
func Sync[E Entity[E]](c *Collection[E], snapshot []E) (Delta[E], error) {
	d, err := Reconcile(c, snapshot)
	if err != nil {
		return Delta[E]{}, err
	}
	Apply(c, d)
	return d, nil
}
