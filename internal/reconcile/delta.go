package reconcile

// Delta is the difference between a collection and a snapshot.
// Added and Changed never share a key; Removed holds keys only.
type Delta[E Entity[E]] struct {
	Added   []E
	Removed []string
	Changed []E
}

// Empty reports whether the delta carries no change.
func (d Delta[E]) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Len returns the total number of events in the delta.
func (d Delta[E]) Len() int { return len(d.Added) + len(d.Removed) + len(d.Changed) }

// Touches reports whether key appears anywhere in the delta.
func (d Delta[E]) Touches(key string) bool {
	for _, e := range d.Added {
		if e.Key() == key {
			return true
		}
	}
	for _, e := range d.Changed {
		if e.Key() == key {
			return true
		}
	}
	for _, k := range d.Removed {
		if k == key {
			return true
		}
	}
	return false
}

// Split partitions d into the events whose key satisfies hold and the rest.
func (d Delta[E]) Split(hold func(key string) bool) (held, rest Delta[E]) {
	for _, e := range d.Added {
		if hold(e.Key()) {
			held.Added = append(held.Added, e)
		} else {
			rest.Added = append(rest.Added, e)
		}
	}
	for _, k := range d.Removed {
		if hold(k) {
			held.Removed = append(held.Removed, k)
		} else {
			rest.Removed = append(rest.Removed, k)
		}
	}
	for _, e := range d.Changed {
		if hold(e.Key()) {
			held.Changed = append(held.Changed, e)
		} else {
			rest.Changed = append(rest.Changed, e)
		}
	}
	return held, rest
}

// Index keys a snapshot by identifier. A key seen twice fails with a
// duplicate key error and no partial result.
func Index[E Entity[E]](snapshot []E) (map[string]E, error) {
	out := make(map[string]E, len(snapshot))
	pos := make(map[string]int, len(snapshot))
	for i, e := range snapshot {
		k := e.Key()
		if first, ok := pos[k]; ok {
			return nil, duplicateKeyError{key: k, first: first, dup: i}
		}
		pos[k] = i
		out[k] = e
	}
	return out, nil
}
