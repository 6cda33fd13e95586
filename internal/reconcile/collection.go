package reconcile

import (
	"maps"
	"slices"
)

// Entity is a record identified by a stable key and compared structurally.
type Entity[E any] interface {
	Key() string
	Equal(E) bool
}

// Collection maps key to entity. It is the last-known-good mirror of one
// resource set.
type Collection[E Entity[E]] struct {
	items map[string]E
}

// NewCollection returns an empty collection.
func NewCollection[E Entity[E]]() *Collection[E] {
	return &Collection[E]{items: make(map[string]E)}
}

// Len returns the number of entities.
func (c *Collection[E]) Len() int { return len(c.items) }

// Get returns the entity stored under key.
func (c *Collection[E]) Get(key string) (E, bool) {
	e, ok := c.items[key]
	return e, ok
}

// Has reports whether key is present.
func (c *Collection[E]) Has(key string) bool {
	_, ok := c.items[key]
	return ok
}

// Keys returns the keys in ascending order.
func (c *Collection[E]) Keys() []string {
	return slices.Sorted(maps.Keys(c.items))
}

// List returns the entities ordered by key.
func (c *Collection[E]) List() []E {
	keys := c.Keys()
	out := make([]E, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.items[k])
	}
	return out
}

// Clone returns a shallow copy.
func (c *Collection[E]) Clone() *Collection[E] {
	return &Collection[E]{items: maps.Clone(c.items)}
}

// Equal reports whether both collections hold the same keys with equal entities.
func (c *Collection[E]) Equal(o *Collection[E]) bool {
	return maps.EqualFunc(c.items, o.items, func(a, b E) bool { return a.Equal(b) })
}

// Put stores e under its key. Used by eager mutation post-conditions.
func (c *Collection[E]) Put(e E) { c.items[e.Key()] = e }

// Remove deletes key and reports whether it was present.
func (c *Collection[E]) Remove(key string) bool {
	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	return true
}
